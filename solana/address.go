package staking_protocol

import (
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

var (
	metadataPrefix = []byte("metadata")
	editionPrefix  = []byte("edition")
)

// DeriveAssociatedAccount returns the associated token account of owner for mint.
func DeriveAssociatedAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	if owner.IsZero() || mint.IsZero() {
		return solana.PublicKey{}, invalidInput("associated account needs non-zero owner and mint")
	}
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			owner.Bytes(),
			solana.TokenProgramID.Bytes(),
			mint.Bytes(),
		},
		AssociatedTokenProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to derive associated token account")
	}
	return addr, nil
}

// DeriveMetadataAddress returns the Metaplex metadata account of mint.
func DeriveMetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			metadataPrefix,
			TokenMetadataProgramID.Bytes(),
			mint.Bytes(),
		},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to derive metadata address")
	}
	return addr, nil
}

// DeriveMasterEditionAddress returns the Metaplex master edition account of mint.
func DeriveMasterEditionAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			metadataPrefix,
			TokenMetadataProgramID.Bytes(),
			mint.Bytes(),
			editionPrefix,
		},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to derive master edition address")
	}
	return addr, nil
}

// DerivePoolAddress returns the pool PDA and bump for a pool seed.
func DerivePoolAddress(seed solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress(
		[][]byte{
			seed.Bytes(),
		},
		ProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, 0, errors.Wrap(err, "failed to derive pool address")
	}
	return addr, bump, nil
}

// NewPoolSeed generates a fresh random seed for a new pool. Only the public
// half is ever used; the private key is discarded.
func NewPoolSeed() (solana.PublicKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return solana.PublicKey{}, errors.Wrap(err, "failed to generate pool seed")
	}
	return key.PublicKey(), nil
}
