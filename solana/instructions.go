package staking_protocol

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/text/format"
	"github.com/gagliardetto/treeout"
	"github.com/pkg/errors"
)

type instructionParam struct {
	name  string
	value interface{}
}

// Instruction is a staking program instruction with the metadata needed to
// render it for inspection.
type Instruction struct {
	name     string
	params   []instructionParam
	accounts solana.AccountMetaSlice
	data     []byte
}

var _ solana.Instruction = (*Instruction)(nil)

func (inst *Instruction) ProgramID() solana.PublicKey {
	return ProgramID
}

func (inst *Instruction) Accounts() []*solana.AccountMeta {
	return inst.accounts
}

func (inst *Instruction) Data() ([]byte, error) {
	return inst.data, nil
}

func (inst *Instruction) Name() string {
	return inst.name
}

func (inst *Instruction) EncodeToTree(parent treeout.Branches) {
	idl, _ := ProgramIDL()
	var names []string
	if idl != nil {
		if def, ok := idl.Instruction(lowerFirst(inst.name)); ok {
			for _, a := range def.Accounts {
				names = append(names, a.Name)
			}
		}
	}

	parent.Child(format.Program(ProgramName, ProgramID)).
		ParentFunc(func(programBranch treeout.Branches) {
			programBranch.Child(format.Instruction(inst.name)).
				ParentFunc(func(instructionBranch treeout.Branches) {
					instructionBranch.Child("Params").ParentFunc(func(paramsBranch treeout.Branches) {
						for _, p := range inst.params {
							paramsBranch.Child(format.Param(p.name, p.value))
						}
					})
					instructionBranch.Child("Accounts").ParentFunc(func(accountsBranch treeout.Branches) {
						for i, meta := range inst.accounts {
							name := "account"
							if i < len(names) {
								name = names[i]
							}
							accountsBranch.Child(format.Meta(name, meta))
						}
					})
				})
		})
}

type InitPoolInstructionArgs struct {
	Bump            uint8
	RewardAmount    uint64
	Period          int64
	Withdrawable    uint8
	StakeCollection string
}

type InitPoolInstructionAccounts struct {
	Owner         solana.PublicKey
	Pool          solana.PublicKey
	Rand          solana.PublicKey
	RewardMint    solana.PublicKey
	RewardAccount solana.PublicKey
}

func NewInitPoolInstruction(accounts *InitPoolInstructionAccounts, args *InitPoolInstructionArgs) (*Instruction, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	err := enc.WriteBytes(Instruction_InitPool[:], false)
	if err == nil {
		err = enc.WriteUint8(args.Bump)
	}
	if err == nil {
		err = enc.WriteUint64(args.RewardAmount, binary.LittleEndian)
	}
	if err == nil {
		err = enc.WriteInt64(args.Period, binary.LittleEndian)
	}
	if err == nil {
		err = enc.WriteUint8(args.Withdrawable)
	}
	if err == nil {
		err = writeBorshString(enc, args.StakeCollection)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode init_pool args")
	}

	return &Instruction{
		name: "InitPool",
		params: []instructionParam{
			{"Bump", args.Bump},
			{"RewardAmount", args.RewardAmount},
			{"Period", args.Period},
			{"Withdrawable", args.Withdrawable},
			{"StakeCollection", args.StakeCollection},
		},
		accounts: solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Owner, true, true),
			solana.NewAccountMeta(accounts.Pool, true, false),
			solana.NewAccountMeta(accounts.Rand, false, false),
			solana.NewAccountMeta(accounts.RewardMint, false, false),
			solana.NewAccountMeta(accounts.RewardAccount, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		},
		data: buf.Bytes(),
	}, nil
}

type StakeInstructionAccounts struct {
	Owner            solana.PublicKey
	Pool             solana.PublicKey
	StakeData        solana.PublicKey
	NftMint          solana.PublicKey
	Metadata         solana.PublicKey
	SourceNftAccount solana.PublicKey
	DestNftAccount   solana.PublicKey
}

func NewStakeInstruction(accounts *StakeInstructionAccounts) *Instruction {
	return &Instruction{
		name: "Stake",
		accounts: solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Owner, true, true),
			solana.NewAccountMeta(accounts.Pool, false, false),
			solana.NewAccountMeta(accounts.StakeData, true, true),
			solana.NewAccountMeta(accounts.NftMint, false, false),
			solana.NewAccountMeta(accounts.Metadata, false, false),
			solana.NewAccountMeta(accounts.SourceNftAccount, true, false),
			solana.NewAccountMeta(accounts.DestNftAccount, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
			solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		},
		data: append([]byte(nil), Instruction_Stake[:]...),
	}
}

type UnstakeInstructionAccounts struct {
	Owner            solana.PublicKey
	Pool             solana.PublicKey
	StakeData        solana.PublicKey
	SourceNftAccount solana.PublicKey
	DestNftAccount   solana.PublicKey
}

func NewUnstakeInstruction(accounts *UnstakeInstructionAccounts) *Instruction {
	return &Instruction{
		name: "Unstake",
		accounts: solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Owner, true, true),
			solana.NewAccountMeta(accounts.Pool, false, false),
			solana.NewAccountMeta(accounts.StakeData, true, false),
			solana.NewAccountMeta(accounts.SourceNftAccount, true, false),
			solana.NewAccountMeta(accounts.DestNftAccount, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		},
		data: append([]byte(nil), Instruction_Unstake[:]...),
	}
}

type ClaimInstructionAccounts struct {
	Owner               solana.PublicKey
	Pool                solana.PublicKey
	StakeData           solana.PublicKey
	SourceRewardAccount solana.PublicKey
	DestRewardAccount   solana.PublicKey
}

func NewClaimInstruction(accounts *ClaimInstructionAccounts) *Instruction {
	return &Instruction{
		name: "Claim",
		accounts: solana.AccountMetaSlice{
			solana.NewAccountMeta(accounts.Owner, true, true),
			solana.NewAccountMeta(accounts.Pool, false, false),
			solana.NewAccountMeta(accounts.StakeData, true, false),
			solana.NewAccountMeta(accounts.SourceRewardAccount, true, false),
			solana.NewAccountMeta(accounts.DestRewardAccount, true, false),
			solana.NewAccountMeta(solana.TokenProgramID, false, false),
			solana.NewAccountMeta(solana.SysVarClockPubkey, false, false),
		},
		data: append([]byte(nil), Instruction_Claim[:]...),
	}
}

// NewCreateAssociatedAccountInstruction creates wallet's associated token
// account for mint, paid for by payer.
func NewCreateAssociatedAccountInstruction(payer, wallet, mint solana.PublicKey) solana.Instruction {
	return associatedtokenaccount.NewCreateInstruction(payer, wallet, mint).Build()
}

// IsCreateAssociatedAccount reports whether ix targets the associated token
// account program.
func IsCreateAssociatedAccount(ix solana.Instruction) bool {
	return ix.ProgramID().Equals(AssociatedTokenProgramID)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'A' && b[0] <= 'Z' {
		b[0] += 'a' - 'A'
	}
	return string(b)
}
