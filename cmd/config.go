package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	staking_protocol "nft-staking-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "STAKE"

const (
	keyRPCEndpoint    = "rpc-endpoint"
	keyProgramID      = "program-id"
	keyPool           = "pool"
	keyCollection     = "collection"
	keyConfirmTimeout = "confirm-timeout"
	keyProfile        = "profile"
	keyKeypair        = "keypair"
	keyDataDir        = "data-dir"
	keyVerbose        = "verbose"
)

// Config is the resolved runtime configuration. Precedence is flag, then
// STAKE_* environment variable (a .env file is loaded first), then default.
type Config struct {
	RPCEndpoint    string
	ProgramID      solana.PublicKey
	Pool           solana.PublicKey
	Collection     string
	ConfirmTimeout time.Duration
	Profile        string
	Keypair        string
	DataDir        string
	Verbose        bool
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String(keyRPCEndpoint, "", "Solana RPC endpoint (default mainnet-beta, or Helius when HELIUS_API_KEY is set)")
	flags.String(keyProgramID, staking_protocol.ProgramID.String(), "staking program address")
	flags.String(keyPool, staking_protocol.DefaultPool.String(), "pool address")
	flags.String(keyCollection, "", "collection symbol to list instead of the pool's own tag")
	flags.Duration(keyConfirmTimeout, staking_protocol.DefaultConfirmTimeout, "how long to wait for finalization")
	flags.String(keyProfile, "", "wallet profile to use (default: the active profile)")
	flags.String(keyKeypair, "", "path to a solana-keygen keypair file, overrides --profile")
	flags.String(keyDataDir, defaultDataDir(), "directory holding the local profile database")
	flags.BoolP(keyVerbose, "v", false, "enable debug logging")
}

func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug(".env file not found, using environment only")
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "could not bind flags")
	}
	return v, nil
}

func loadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RPCEndpoint:    v.GetString(keyRPCEndpoint),
		Collection:     v.GetString(keyCollection),
		ConfirmTimeout: v.GetDuration(keyConfirmTimeout),
		Profile:        v.GetString(keyProfile),
		Keypair:        v.GetString(keyKeypair),
		DataDir:        v.GetString(keyDataDir),
		Verbose:        v.GetBool(keyVerbose),
	}

	if cfg.RPCEndpoint == "" {
		cfg.RPCEndpoint = rpc.MainNetBeta_RPC
		if heliusApiKey := os.Getenv("HELIUS_API_KEY"); heliusApiKey != "" {
			cfg.RPCEndpoint = fmt.Sprintf("https://mainnet.helius-rpc.com/?api-key=%s", heliusApiKey)
		}
	}

	var err error
	if cfg.ProgramID, err = solana.PublicKeyFromBase58(v.GetString(keyProgramID)); err != nil {
		return nil, errors.Wrap(err, "invalid program-id")
	}
	if cfg.Pool, err = solana.PublicKeyFromBase58(v.GetString(keyPool)); err != nil {
		return nil, errors.Wrap(err, "invalid pool")
	}
	if cfg.ConfirmTimeout <= 0 {
		return nil, errors.New("confirm-timeout must be positive")
	}
	if cfg.DataDir == "" {
		return nil, errors.New("data-dir is required")
	}
	return cfg, nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nft-staking"
	}
	return filepath.Join(home, ".config", "nft-staking")
}
