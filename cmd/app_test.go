package cmd

import (
	"path/filepath"
	"testing"

	staking_protocol "nft-staking-cli/solana"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *app {
	cfg := &Config{
		RPCEndpoint:    "http://127.0.0.1:8899",
		ProgramID:      staking_protocol.ProgramID,
		Pool:           staking_protocol.DefaultPool,
		ConfirmTimeout: staking_protocol.DefaultConfirmTimeout,
		DataDir:        t.TempDir(),
	}
	a, err := newApp(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestResolveKey_CreatesDefaultProfile(t *testing.T) {
	a := newTestApp(t)

	key, name, err := a.resolveKey()
	require.NoError(t, err)
	assert.Equal(t, defaultProfileName, name)

	profile, err := a.db.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), profile.PublicKey)
	assert.Equal(t, filepath.Join(a.cfg.DataDir, "keys", "default.json"), profile.KeypairPath)

	again, _, err := a.resolveKey()
	require.NoError(t, err)
	assert.Equal(t, key, again)
}

func TestResolveKey_NamedProfile(t *testing.T) {
	a := newTestApp(t)
	_, err := a.createProfile("alt")
	require.NoError(t, err)

	a.cfg.Profile = "alt"
	_, name, err := a.resolveKey()
	require.NoError(t, err)
	assert.Equal(t, "alt", name)

	a.cfg.Profile = "missing"
	_, _, err = a.resolveKey()
	assert.Error(t, err)
}

func TestResolveKey_KeypairOverridesProfile(t *testing.T) {
	a := newTestApp(t)
	key := solana.NewWallet().PrivateKey
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, staking_protocol.SaveKeypairFile(key, path))

	a.cfg.Keypair = path
	a.cfg.Profile = "ignored"
	got, name, err := a.resolveKey()
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())
	assert.Equal(t, "id.json", name)

	profiles, err := a.db.ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}
