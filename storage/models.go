package storage

import "time"

// Profile names a wallet. The key material stays in the keypair file; only
// its location is stored.
type Profile struct {
	Name        string    `json:"name"`
	KeypairPath string    `json:"keypair_path"`
	PublicKey   string    `json:"public_key"`
	CreatedAt   time.Time `json:"created_at"`
}

// PoolRecord is a pool the user created or chose to remember.
type PoolRecord struct {
	Address    string    `json:"address"`
	Label      string    `json:"label,omitempty"`
	Owner      string    `json:"owner,omitempty"`
	RewardMint string    `json:"reward_mint,omitempty"`
	Collection string    `json:"collection,omitempty"`
	Signature  string    `json:"signature,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
