package cmd

import (
	"context"
	"path/filepath"

	staking_protocol "nft-staking-cli/solana"
	"nft-staking-cli/storage"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const defaultProfileName = "default"

// app bundles what every command needs: the resolved config, the local
// profile store, and a ledger connection.
type app struct {
	cfg    *Config
	db     *storage.DB
	ledger *staking_protocol.RPCLedger
	log    *logrus.Entry
}

func newApp(cfg *Config) (*app, error) {
	if cfg.Verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	staking_protocol.ProgramID = cfg.ProgramID

	db, err := storage.Connect(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		db:     db,
		ledger: staking_protocol.NewRPCLedger(cfg.RPCEndpoint),
		log:    logrus.StandardLogger().WithField("type", "cli"),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.WithError(err).Warn("failed to close profile database")
	}
}

// resolveKey picks the signing key: an explicit --keypair file, then the
// named --profile, then the active profile. On first run a default profile
// is created.
func (a *app) resolveKey() (solana.PrivateKey, string, error) {
	if a.cfg.Keypair != "" {
		key, err := solana.PrivateKeyFromSolanaKeygenFile(a.cfg.Keypair)
		if err != nil {
			return nil, "", errors.Wrapf(err, "failed to load keypair %s", a.cfg.Keypair)
		}
		return key, filepath.Base(a.cfg.Keypair), nil
	}

	var profile *storage.Profile
	var err error
	if a.cfg.Profile != "" {
		profile, err = a.db.GetProfile(a.cfg.Profile)
	} else {
		profile, err = a.db.ActiveProfile()
		if errors.Is(err, storage.ErrNotFound) {
			profile, err = a.createProfile(defaultProfileName)
		}
	}
	if err != nil {
		return nil, "", err
	}
	return a.loadProfileKey(profile)
}

func (a *app) loadProfileKey(profile *storage.Profile) (solana.PrivateKey, string, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(profile.KeypairPath)
	if err != nil {
		return nil, "", errors.Wrapf(err, "failed to load keypair for profile %q", profile.Name)
	}
	return key, profile.Name, nil
}

// createProfile generates a keypair under the data dir and registers it.
func (a *app) createProfile(name string) (*storage.Profile, error) {
	path := filepath.Join(a.cfg.DataDir, "keys", name+".json")
	key, created, err := staking_protocol.LoadOrCreateKeypair(path)
	if err != nil {
		return nil, err
	}
	if !created {
		a.log.WithField("path", path).Info("reusing existing keypair file")
	}
	return a.importProfile(name, path, key)
}

func (a *app) importProfile(name, path string, key solana.PrivateKey) (*storage.Profile, error) {
	profile := &storage.Profile{
		Name:        name,
		KeypairPath: path,
		PublicKey:   key.PublicKey().String(),
	}
	if err := a.db.SaveProfile(profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (a *app) newSession(key solana.PrivateKey, notifier staking_protocol.Notifier) (*staking_protocol.Session, error) {
	return staking_protocol.NewSession(&staking_protocol.SessionConfig{
		Ledger:         a.ledger,
		Signer:         staking_protocol.NewKeypairSigner(key),
		Pool:           a.cfg.Pool,
		Collection:     a.cfg.Collection,
		Notifier:       notifier,
		ConfirmTimeout: a.cfg.ConfirmTimeout,
	})
}

// openSession resolves the signer and loads the pool configuration.
func (a *app) openSession(ctx context.Context, notifier staking_protocol.Notifier) (*staking_protocol.Session, string, error) {
	key, profile, err := a.resolveKey()
	if err != nil {
		return nil, "", err
	}
	session, err := a.newSession(key, notifier)
	if err != nil {
		return nil, "", err
	}
	if _, err := session.RefreshPoolConfig(ctx); err != nil {
		return nil, "", errors.Wrap(err, "failed to load pool")
	}
	return session, profile, nil
}

// mintDecimals looks up the decimals of a mint for display. Zero is
// returned when the mint cannot be read.
func (a *app) mintDecimals(ctx context.Context, mint solana.PublicKey) uint8 {
	info, err := a.ledger.GetAccount(ctx, mint)
	if err != nil || info == nil {
		return 0
	}
	var m staking_protocol.Mint
	if err := m.Unmarshal(info.Data); err != nil {
		return 0
	}
	return m.Decimals
}
