package staking_protocol

import (
	"encoding/json"
	"strings"
	"sync"
	"unicode"

	"github.com/pkg/errors"
)

// IDL is the subset of the Anchor IDL the client relies on. The embedded
// document pins the account order and flags of every instruction.
type IDL struct {
	Version      string              `json:"version"`
	Name         string              `json:"name"`
	Instructions []IDLInstruction    `json:"instructions"`
	Accounts     []IDLTypeDefinition `json:"accounts"`
}

type IDLInstruction struct {
	Name     string       `json:"name"`
	Args     []IDLField   `json:"args"`
	Accounts []IDLAccount `json:"accounts"`
}

type IDLField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type IDLAccount struct {
	Name     string `json:"name"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

type IDLTypeDefinition struct {
	Name string `json:"name"`
	Type struct {
		Kind   string     `json:"kind"`
		Fields []IDLField `json:"fields"`
	} `json:"type"`
}

func ParseIDL(idlBytes []byte) (*IDL, error) {
	var idl IDL
	err := json.Unmarshal(idlBytes, &idl)
	if err != nil {
		return nil, errors.Wrap(err, "error unmarshalling IDL JSON")
	}
	return &idl, nil
}

var (
	initIdlOnce sync.Once
	initIdlErr  error
	idlData     *IDL
)

// ProgramIDL returns the embedded IDL of the staking program.
func ProgramIDL() (*IDL, error) {
	initIdlOnce.Do(func() {
		idlData, initIdlErr = ParseIDL([]byte(idlJSON))
	})
	return idlData, initIdlErr
}

// Instruction looks up an instruction by its IDL (camelCase) name.
func (idl *IDL) Instruction(name string) (*IDLInstruction, bool) {
	for i := range idl.Instructions {
		if idl.Instructions[i].Name == name {
			return &idl.Instructions[i], true
		}
	}
	return nil, false
}

// Discriminator returns the Anchor sighash of the instruction.
func (ix *IDLInstruction) Discriminator() [8]byte {
	return anchorDiscriminator("global", toSnakeCase(ix.Name))
}

func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const idlJSON = `{
  "version": "0.1.0",
  "name": "solana_anchor",
  "instructions": [
    {
      "name": "initPool",
      "accounts": [
        { "name": "owner", "isMut": true, "isSigner": true },
        { "name": "pool", "isMut": true, "isSigner": false },
        { "name": "rand", "isMut": false, "isSigner": false },
        { "name": "rewardMint", "isMut": false, "isSigner": false },
        { "name": "rewardAccount", "isMut": false, "isSigner": false },
        { "name": "systemProgram", "isMut": false, "isSigner": false }
      ],
      "args": [
        { "name": "bump", "type": "u8" },
        { "name": "rewardAmount", "type": "u64" },
        { "name": "period", "type": "i64" },
        { "name": "withdrawable", "type": "u8" },
        { "name": "stakeCollection", "type": "string" }
      ]
    },
    {
      "name": "stake",
      "accounts": [
        { "name": "owner", "isMut": true, "isSigner": true },
        { "name": "pool", "isMut": false, "isSigner": false },
        { "name": "stakeData", "isMut": true, "isSigner": true },
        { "name": "nftMint", "isMut": false, "isSigner": false },
        { "name": "metadata", "isMut": false, "isSigner": false },
        { "name": "sourceNftAccount", "isMut": true, "isSigner": false },
        { "name": "destNftAccount", "isMut": true, "isSigner": false },
        { "name": "tokenProgram", "isMut": false, "isSigner": false },
        { "name": "systemProgram", "isMut": false, "isSigner": false },
        { "name": "clock", "isMut": false, "isSigner": false }
      ],
      "args": []
    },
    {
      "name": "unstake",
      "accounts": [
        { "name": "owner", "isMut": true, "isSigner": true },
        { "name": "pool", "isMut": false, "isSigner": false },
        { "name": "stakeData", "isMut": true, "isSigner": false },
        { "name": "sourceNftAccount", "isMut": true, "isSigner": false },
        { "name": "destNftAccount", "isMut": true, "isSigner": false },
        { "name": "tokenProgram", "isMut": false, "isSigner": false },
        { "name": "clock", "isMut": false, "isSigner": false }
      ],
      "args": []
    },
    {
      "name": "claim",
      "accounts": [
        { "name": "owner", "isMut": true, "isSigner": true },
        { "name": "pool", "isMut": false, "isSigner": false },
        { "name": "stakeData", "isMut": true, "isSigner": false },
        { "name": "sourceRewardAccount", "isMut": true, "isSigner": false },
        { "name": "destRewardAccount", "isMut": true, "isSigner": false },
        { "name": "tokenProgram", "isMut": false, "isSigner": false },
        { "name": "clock", "isMut": false, "isSigner": false }
      ],
      "args": []
    }
  ],
  "accounts": [
    {
      "name": "Pool",
      "type": {
        "kind": "struct",
        "fields": [
          { "name": "owner", "type": "publicKey" },
          { "name": "rand", "type": "publicKey" },
          { "name": "rewardMint", "type": "publicKey" },
          { "name": "rewardAccount", "type": "publicKey" },
          { "name": "rewardAmount", "type": "u64" },
          { "name": "period", "type": "i64" },
          { "name": "withdrawable", "type": "u8" },
          { "name": "stakeCollection", "type": "string" },
          { "name": "bump", "type": "u8" }
        ]
      }
    },
    {
      "name": "StakeData",
      "type": {
        "kind": "struct",
        "fields": [
          { "name": "unstaked", "type": "bool" },
          { "name": "owner", "type": "publicKey" },
          { "name": "pool", "type": "publicKey" },
          { "name": "account", "type": "publicKey" },
          { "name": "stakeTime", "type": "i64" },
          { "name": "withdrawnNumber", "type": "u8" }
        ]
      }
    }
  ]
}`
