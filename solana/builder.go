package staking_protocol

import (
	"context"
	"math"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/treeout"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Plan is an ordered instruction list plus the freshly generated keys that
// must co-sign it.
type Plan struct {
	Instructions []solana.Instruction
	Signers      []solana.PrivateKey
}

// Empty reports whether the plan has nothing to submit.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Instructions) == 0
}

// Tree renders the plan for inspection.
func (p *Plan) Tree() string {
	tree := treeout.New("Instructions")
	for _, ix := range p.Instructions {
		if inst, ok := ix.(*Instruction); ok {
			inst.EncodeToTree(tree)
			continue
		}
		tree.Child(ix.ProgramID().String()).ParentFunc(func(branch treeout.Branches) {
			for _, meta := range ix.Accounts() {
				branch.Child(meta.PublicKey.String())
			}
		})
	}
	return tree.String()
}

// PoolPlan is a Plan that creates a new pool at Pool.
type PoolPlan struct {
	Plan
	Pool          solana.PublicKey
	Seed          solana.PublicKey
	RewardAccount solana.PublicKey
}

// StakePlan is a Plan that stakes one NFT into a new StakeData account.
type StakePlan struct {
	Plan
	StakeRecord solana.PublicKey
}

// ClaimPlan is a Plan that claims the rewards of every eligible record.
type ClaimPlan struct {
	Plan
	Records []solana.PublicKey
	Periods uint64
	Claimed uint64
}

// Builder assembles instruction lists against current ledger state. It
// never submits anything.
type Builder struct {
	log     *logrus.Entry
	ledger  Ledger
	scanner *Scanner
}

func NewBuilder(ledger Ledger) *Builder {
	return &Builder{
		log:     logrus.StandardLogger().WithField("type", "staking/builder"),
		ledger:  ledger,
		scanner: NewScanner(ledger, ProgramID),
	}
}

type InitializePoolParams struct {
	Owner           solana.PublicKey
	RewardMint      solana.PublicKey
	RewardAmount    uint64
	Period          int64
	Withdrawable    uint8
	StakeCollection string
}

func (b *Builder) BuildInitializePool(ctx context.Context, params *InitializePoolParams) (*PoolPlan, error) {
	if params.RewardAmount == 0 {
		return nil, invalidInput("reward amount must be positive")
	}
	if params.Period <= 0 {
		return nil, invalidInput("period must be positive, got %d", params.Period)
	}
	if params.Owner.IsZero() || params.RewardMint.IsZero() {
		return nil, invalidInput("owner and reward mint are required")
	}

	seed, err := NewPoolSeed()
	if err != nil {
		return nil, err
	}
	pool, bump, err := DerivePoolAddress(seed)
	if err != nil {
		return nil, err
	}
	rewardAccount, err := DeriveAssociatedAccount(pool, params.RewardMint)
	if err != nil {
		return nil, err
	}

	initPool, err := NewInitPoolInstruction(
		&InitPoolInstructionAccounts{
			Owner:         params.Owner,
			Pool:          pool,
			Rand:          seed,
			RewardMint:    params.RewardMint,
			RewardAccount: rewardAccount,
		},
		&InitPoolInstructionArgs{
			Bump:            bump,
			RewardAmount:    params.RewardAmount,
			Period:          params.Period,
			Withdrawable:    params.Withdrawable,
			StakeCollection: params.StakeCollection,
		},
	)
	if err != nil {
		return nil, err
	}

	b.log.WithFields(logrus.Fields{
		"method": "BuildInitializePool",
		"pool":   pool.String(),
	}).Debug("built pool initialization")

	return &PoolPlan{
		Plan: Plan{
			Instructions: []solana.Instruction{
				// The pool is brand new so its reward account cannot exist yet.
				NewCreateAssociatedAccountInstruction(params.Owner, pool, params.RewardMint),
				initPool,
			},
		},
		Pool:          pool,
		Seed:          seed,
		RewardAccount: rewardAccount,
	}, nil
}

func (b *Builder) BuildStake(ctx context.Context, owner, pool, nftMint solana.PublicKey) (*StakePlan, error) {
	if owner.IsZero() || pool.IsZero() || nftMint.IsZero() {
		return nil, invalidInput("owner, pool and nft mint are required")
	}

	log := b.log.WithFields(logrus.Fields{
		"method": "BuildStake",
		"owner":  owner.String(),
		"mint":   nftMint.String(),
	})

	metadata, err := DeriveMetadataAddress(nftMint)
	if err != nil {
		return nil, err
	}
	source, err := DeriveAssociatedAccount(owner, nftMint)
	if err != nil {
		return nil, err
	}
	dest, err := DeriveAssociatedAccount(pool, nftMint)
	if err != nil {
		return nil, err
	}

	accounts, err := b.ledger.GetAccounts(ctx, source, dest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up token accounts")
	}
	if len(accounts) != 2 {
		return nil, errors.Errorf("expected 2 accounts from lookup, got %d", len(accounts))
	}
	if accounts[0] == nil {
		return nil, invalidInput("owner holds no token account for mint %s", nftMint)
	}
	var held TokenAccount
	if err := held.Unmarshal(accounts[0].Data); err != nil {
		return nil, err
	}
	if held.Amount != 1 {
		return nil, invalidInput("owner must hold exactly one unit of %s, holds %d", nftMint, held.Amount)
	}

	stakeData, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate stake record key")
	}

	var instructions []solana.Instruction
	if accounts[1] == nil {
		log.Debug("pool custody account absent, creating")
		instructions = append(instructions, NewCreateAssociatedAccountInstruction(owner, pool, nftMint))
	}
	instructions = append(instructions, NewStakeInstruction(&StakeInstructionAccounts{
		Owner:            owner,
		Pool:             pool,
		StakeData:        stakeData.PublicKey(),
		NftMint:          nftMint,
		Metadata:         metadata,
		SourceNftAccount: source,
		DestNftAccount:   dest,
	}))

	return &StakePlan{
		Plan: Plan{
			Instructions: instructions,
			Signers:      []solana.PrivateKey{stakeData},
		},
		StakeRecord: stakeData.PublicKey(),
	}, nil
}

// BuildUnstake resolves the staked mint from the record's custody account
// rather than from any cached view.
func (b *Builder) BuildUnstake(ctx context.Context, owner solana.PublicKey, pool *PoolConfig, stakeRecord solana.PublicKey, now time.Time) (*Plan, error) {
	if stakeRecord.IsZero() {
		return nil, invalidInput("stake record address is required")
	}
	if pool == nil {
		return nil, invalidInput("pool configuration is required")
	}

	info, err := b.ledger.GetAccount(ctx, stakeRecord)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read stake record")
	}
	if info == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "stake record %s", stakeRecord)
	}
	record, err := ParseAccount_StakeData(info.Data)
	if err != nil {
		return nil, err
	}

	if !record.Owner.Equals(owner) {
		return nil, invalidInput("stake record %s is owned by %s", stakeRecord, record.Owner)
	}
	if record.Unstaked {
		return nil, invalidInput("stake record %s is already unstaked", stakeRecord)
	}
	if unlocks := record.UnlocksAt(pool); now.Unix() < unlocks {
		if unlocks == math.MaxInt64 {
			return nil, invalidInput("stake record %s does not unlock within the representable time range", stakeRecord)
		}
		return nil, invalidInput("stake record %s is locked until %s", stakeRecord, time.Unix(unlocks, 0).UTC())
	}

	custody, err := b.ledger.GetAccount(ctx, record.Account)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read custody account")
	}
	if custody == nil {
		return nil, errors.Wrapf(ErrRecordNotFound, "custody account %s", record.Account)
	}
	var token TokenAccount
	if err := token.Unmarshal(custody.Data); err != nil {
		return nil, err
	}

	dest, err := DeriveAssociatedAccount(owner, token.Mint)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Instructions: []solana.Instruction{
			NewUnstakeInstruction(&UnstakeInstructionAccounts{
				Owner:            owner,
				Pool:             record.Pool,
				StakeData:        stakeRecord,
				SourceNftAccount: record.Account,
				DestNftAccount:   dest,
			}),
		},
	}, nil
}

// BuildClaim batches one claim per active record with accrued periods into
// a single plan. A plan without claims is returned empty.
func (b *Builder) BuildClaim(ctx context.Context, owner, poolAddress solana.PublicKey, pool *PoolConfig, now time.Time) (*ClaimPlan, error) {
	if owner.IsZero() || poolAddress.IsZero() {
		return nil, invalidInput("owner and pool are required")
	}
	if pool == nil {
		return nil, invalidInput("pool configuration is required")
	}

	log := b.log.WithFields(logrus.Fields{
		"method": "BuildClaim",
		"owner":  owner.String(),
		"pool":   poolAddress.String(),
	})

	records, err := b.scanner.ScanStakeRecords(ctx, owner, poolAddress)
	if err != nil {
		return nil, err
	}

	dest, err := DeriveAssociatedAccount(owner, pool.RewardMint)
	if err != nil {
		return nil, err
	}

	plan := &ClaimPlan{}
	for _, r := range records {
		if r.Record.Unstaked {
			continue
		}
		periods := AccruedPeriods(now.Unix(), r.Record.StakeTime, pool.Period, r.Record.WithdrawnNumber, pool.Withdrawable)
		if periods == 0 {
			continue
		}
		plan.Instructions = append(plan.Instructions, NewClaimInstruction(&ClaimInstructionAccounts{
			Owner:               owner,
			Pool:                poolAddress,
			StakeData:           r.Address,
			SourceRewardAccount: pool.RewardAccount,
			DestRewardAccount:   dest,
		}))
		plan.Records = append(plan.Records, r.Address)
		plan.Periods += periods
		plan.Claimed = addAmounts(plan.Claimed, ClaimableAmount(periods, pool.RewardAmount))
	}

	if len(plan.Instructions) == 0 {
		log.Debug("nothing accrued")
		return plan, nil
	}

	existing, err := b.ledger.GetAccount(ctx, dest)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up reward account")
	}
	if existing == nil {
		plan.Instructions = append(
			[]solana.Instruction{NewCreateAssociatedAccountInstruction(owner, owner, pool.RewardMint)},
			plan.Instructions...,
		)
	}
	return plan, nil
}
