package staking_protocol

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateKeypair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "wallet.json")

	created, isNew, err := LoadOrCreateKeypair(path)
	require.NoError(t, err)
	assert.True(t, isNew)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, byte('['), raw[0])

	loaded, isNew, err := LoadOrCreateKeypair(path)
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, created.PublicKey(), loaded.PublicKey())
}

func TestKeypairSigner_SignsOnlyItsSlot(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	stakeData := newKey(t)

	tx, err := solana.NewTransaction(
		[]solana.Instruction{NewStakeInstruction(&StakeInstructionAccounts{
			Owner:     payer.PublicKey(),
			Pool:      newKey(t),
			StakeData: stakeData,
		})},
		solana.Hash{7},
		solana.TransactionPayer(payer.PublicKey()),
	)
	require.NoError(t, err)

	signer := NewKeypairSigner(payer)
	assert.Equal(t, payer.PublicKey(), signer.PublicKey())

	signed, err := signer.SignTransaction(context.Background(), tx)
	require.NoError(t, err)
	require.Len(t, signed.Signatures, 2)
	assert.NotEqual(t, solana.Signature{}, signed.Signatures[0])
	assert.Equal(t, solana.Signature{}, signed.Signatures[1])
}
