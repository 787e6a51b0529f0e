package staking_protocol

import (
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

const ProgramName = "SolanaAnchor"

// ProgramID is the deployed staking program. It is a variable so deployments
// on other clusters can point the client elsewhere at startup.
var ProgramID = solana.MustPublicKeyFromBase58("EnvYMhDHtBZzadw8NK5UfctRvcMgNH1PGT7KkAcDAyKD")

var (
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	TokenMetadataProgramID   = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Mainnet defaults used by the reference deployment.
var (
	DefaultPool       = solana.MustPublicKeyFromBase58("4F711h78UKj5TkaTPdWjW6WKYQnNN8dAUecccF8etRFH")
	DefaultRewardMint = solana.MustPublicKeyFromBase58("Azw7nHFCUrY3i2RpRLxJja1mooiZkAai3ipsmQTeMqNQ")
	DefaultCollection = "Zoku"
)

var (
	Instruction_InitPool = anchorDiscriminator("global", "init_pool")
	Instruction_Stake    = anchorDiscriminator("global", "stake")
	Instruction_Unstake  = anchorDiscriminator("global", "unstake")
	Instruction_Claim    = anchorDiscriminator("global", "claim")

	Account_Pool      = anchorDiscriminator("account", "Pool")
	Account_StakeData = anchorDiscriminator("account", "StakeData")
)

// anchorDiscriminator returns the first 8 bytes of sha256("<namespace>:<name>").
func anchorDiscriminator(namespace, name string) [8]byte {
	hash := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], hash[:8])
	return out
}

// InstructionIDToName maps a discriminator back to the instruction name.
func InstructionIDToName(id [8]byte) (string, bool) {
	switch id {
	case Instruction_InitPool:
		return "InitPool", true
	case Instruction_Stake:
		return "Stake", true
	case Instruction_Unstake:
		return "Unstake", true
	case Instruction_Claim:
		return "Claim", true
	default:
		return "", false
	}
}
