package staking_protocol

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	defaultConfigDirName = ".config"
	stakingConfigDirName = "nft-staking"
	walletFileName       = "wallet.json"
)

// Signer authorizes transactions on behalf of the fee payer. Implementations
// that decline must return an error wrapping ErrSignerRejected.
type Signer interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error)
}

// KeypairSigner signs with a local keypair.
type KeypairSigner struct {
	privateKey solana.PrivateKey
}

func NewKeypairSigner(privateKey solana.PrivateKey) *KeypairSigner {
	return &KeypairSigner{privateKey: privateKey}
}

func (s *KeypairSigner) PublicKey() solana.PublicKey {
	return s.privateKey.PublicKey()
}

func (s *KeypairSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pub := s.privateKey.PublicKey()
	_, err := tx.PartialSign(func(key solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(key) {
			return &s.privateKey
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(ErrSignerRejected, "keypair signer: %v", err)
	}
	return tx, nil
}

// LoadOrCreateKeypair loads a solana-keygen style keypair file, creating a
// new keypair at path if none exists.
func LoadOrCreateKeypair(path string) (solana.PrivateKey, bool, error) {
	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type":   "staking/signer",
		"method": "LoadOrCreateKeypair",
		"path":   path,
	})

	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Info("no existing keypair found, creating a new one")
		key, err := createKeypairFile(path)
		return key, true, err
	} else if err != nil {
		return nil, false, errors.Wrap(err, "failed to check for keypair file")
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, false, errors.Wrapf(err, "failed to load keypair from %s", path)
	}
	return key, false, nil
}

func createKeypairFile(path string) (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate keypair")
	}
	if err := SaveKeypairFile(key, path); err != nil {
		return nil, err
	}
	return key, nil
}

// SaveKeypairFile writes key as a JSON byte array, the solana-keygen format.
func SaveKeypairFile(key solana.PrivateKey, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.Wrap(err, "failed to create keypair directory")
	}

	// A []byte would marshal as base64, so widen to ints.
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	raw, err := json.Marshal(ints)
	if err != nil {
		return errors.Wrap(err, "failed to marshal keypair")
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return errors.Wrap(err, "failed to write keypair file")
	}
	return nil
}

// DefaultKeypairPath returns e.g. /home/user/.config/nft-staking/wallet.json.
func DefaultKeypairPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get user home directory")
	}
	return filepath.Join(homeDir, defaultConfigDirName, stakingConfigDirName, walletFileName), nil
}
