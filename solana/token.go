package staking_protocol

import (
	"github.com/gagliardetto/solana-go"
)

const (
	TokenAccountSize = 165
	MintSize         = 82

	mintDecimalsOffset = 44
)

// TokenAccount holds the fields of an SPL token account the client reads.
type TokenAccount struct {
	Mint   solana.PublicKey
	Owner  solana.PublicKey
	Amount uint64
}

func (t *TokenAccount) Unmarshal(data []byte) error {
	if len(data) != TokenAccountSize {
		return malformed("token account", "expected %d bytes, got %d", TokenAccountSize, len(data))
	}

	var offset int
	getKey(data, &t.Mint, &offset)
	getKey(data, &t.Owner, &offset)
	getUint64(data, &t.Amount, &offset)

	return nil
}

// Mint holds the decimals of an SPL mint.
type Mint struct {
	Decimals uint8
}

func (m *Mint) Unmarshal(data []byte) error {
	if len(data) != MintSize {
		return malformed("mint", "expected %d bytes, got %d", MintSize, len(data))
	}
	m.Decimals = data[mintDecimalsOffset]
	return nil
}

// IsSingleUnitNft reports whether an account/mint pair looks like a held NFT.
func IsSingleUnitNft(account *TokenAccount, mint *Mint) bool {
	return account.Amount == 1 && mint.Decimals == 0
}
