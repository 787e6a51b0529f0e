package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

const (
	dbFileName = "staking.db"
)

var (
	profilesBucket = []byte("profiles")
	poolsBucket    = []byte("pools")
	metaBucket     = []byte("meta")

	activeProfileKey = []byte("active-profile")

	ErrNotFound = errors.New("not found")
)

// DB is the local store for wallet profiles and known pools.
type DB struct {
	bolt *bolt.DB
	path string
}

// Connect opens (creating if needed) the store under dataDir.
func Connect(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "could not create data directory")
	}

	path := filepath.Join(dataDir, dbFileName)
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "could not open database at %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{profilesBucket, poolsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not initialize buckets")
	}

	return &DB{bolt: db, path: path}, nil
}

func (db *DB) Path() string {
	return db.path
}

func (db *DB) Close() error {
	return db.bolt.Close()
}

// SaveProfile inserts or replaces a profile. The first profile saved
// becomes the active one.
func (db *DB) SaveProfile(profile *Profile) error {
	if profile.Name == "" {
		return errors.New("profile name is required")
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	return db.bolt.Update(func(tx *bolt.Tx) error {
		if err := put(tx.Bucket(profilesBucket), []byte(profile.Name), profile); err != nil {
			return err
		}
		meta := tx.Bucket(metaBucket)
		if meta.Get(activeProfileKey) == nil {
			return meta.Put(activeProfileKey, []byte(profile.Name))
		}
		return nil
	})
}

func (db *DB) GetProfile(name string) (*Profile, error) {
	var profile Profile
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(profilesBucket), []byte(name), &profile)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "profile %q", name)
	}
	return &profile, nil
}

func (db *DB) ListProfiles() ([]*Profile, error) {
	var out []*Profile
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(profilesBucket).ForEach(func(_, v []byte) error {
			var p Profile
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list profiles")
	}
	return out, nil
}

func (db *DB) DeleteProfile(name string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		profiles := tx.Bucket(profilesBucket)
		if profiles.Get([]byte(name)) == nil {
			return errors.Wrapf(ErrNotFound, "profile %q", name)
		}
		if err := profiles.Delete([]byte(name)); err != nil {
			return err
		}
		meta := tx.Bucket(metaBucket)
		if string(meta.Get(activeProfileKey)) == name {
			return meta.Delete(activeProfileKey)
		}
		return nil
	})
}

// ActiveProfile returns the selected profile.
func (db *DB) ActiveProfile() (*Profile, error) {
	var name []byte
	err := db.bolt.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(metaBucket).Get(activeProfileKey); v != nil {
			name = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if name == nil {
		return nil, errors.Wrap(ErrNotFound, "no active profile")
	}
	return db.GetProfile(string(name))
}

func (db *DB) SetActiveProfile(name string) error {
	return db.bolt.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(profilesBucket).Get([]byte(name)) == nil {
			return errors.Wrapf(ErrNotFound, "profile %q", name)
		}
		return tx.Bucket(metaBucket).Put(activeProfileKey, []byte(name))
	})
}

// SavePool remembers a pool, typically one this client created.
func (db *DB) SavePool(pool *PoolRecord) error {
	if pool.Address == "" {
		return errors.New("pool address is required")
	}
	if pool.CreatedAt.IsZero() {
		pool.CreatedAt = time.Now().UTC()
	}
	return db.bolt.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(poolsBucket), []byte(pool.Address), pool)
	})
}

func (db *DB) GetPool(address string) (*PoolRecord, error) {
	var pool PoolRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return get(tx.Bucket(poolsBucket), []byte(address), &pool)
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pool %s", address)
	}
	return &pool, nil
}

// ListPools returns known pools, newest first.
func (db *DB) ListPools() ([]*PoolRecord, error) {
	var out []*PoolRecord
	err := db.bolt.View(func(tx *bolt.Tx) error {
		return tx.Bucket(poolsBucket).ForEach(func(_, v []byte) error {
			var p PoolRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not list pools")
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func put(bucket *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "could not marshal record")
	}
	return bucket.Put(key, data)
}

func get(bucket *bolt.Bucket, key []byte, v interface{}) error {
	data := bucket.Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}
