package staking_protocol

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertMatchesIDL(t *testing.T, name string, ix solana.Instruction) {
	idl, err := ProgramIDL()
	require.NoError(t, err)
	def, ok := idl.Instruction(name)
	require.True(t, ok, name)

	assert.Equal(t, ProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	disc := def.Discriminator()
	assert.Equal(t, disc[:], data[:8], name)

	metas := ix.Accounts()
	require.Len(t, metas, len(def.Accounts), name)
	for i, a := range def.Accounts {
		assert.Equal(t, a.IsMut, metas[i].IsWritable, "%s.%s writable", name, a.Name)
		assert.Equal(t, a.IsSigner, metas[i].IsSigner, "%s.%s signer", name, a.Name)
	}
}

func TestInstructions_MatchIDL(t *testing.T) {
	initPool, err := NewInitPoolInstruction(
		&InitPoolInstructionAccounts{Owner: newKey(t), Pool: newKey(t), Rand: newKey(t), RewardMint: newKey(t), RewardAccount: newKey(t)},
		&InitPoolInstructionArgs{Bump: 250, RewardAmount: 10, Period: 60, Withdrawable: 7, StakeCollection: "Zoku"},
	)
	require.NoError(t, err)
	assertMatchesIDL(t, "initPool", initPool)

	assertMatchesIDL(t, "stake", NewStakeInstruction(&StakeInstructionAccounts{Owner: newKey(t), Pool: newKey(t), StakeData: newKey(t)}))
	assertMatchesIDL(t, "unstake", NewUnstakeInstruction(&UnstakeInstructionAccounts{Owner: newKey(t), Pool: newKey(t)}))
	assertMatchesIDL(t, "claim", NewClaimInstruction(&ClaimInstructionAccounts{Owner: newKey(t), Pool: newKey(t)}))
}

func TestNewInitPoolInstruction_EncodesArgs(t *testing.T) {
	ix, err := NewInitPoolInstruction(
		&InitPoolInstructionAccounts{},
		&InitPoolInstructionArgs{Bump: 250, RewardAmount: 10, Period: 60, Withdrawable: 7, StakeCollection: "Zoku"},
	)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 8+1+8+8+1+4+4)

	assert.Equal(t, Instruction_InitPool[:], data[:8])
	assert.EqualValues(t, 250, data[8])
	assert.EqualValues(t, 10, binary.LittleEndian.Uint64(data[9:17]))
	assert.EqualValues(t, 60, binary.LittleEndian.Uint64(data[17:25]))
	assert.EqualValues(t, 7, data[25])
	assert.EqualValues(t, 4, binary.LittleEndian.Uint32(data[26:30]))
	assert.Equal(t, "Zoku", string(data[30:]))
}

func TestBuildInitializePool(t *testing.T) {
	builder := NewBuilder(newFakeLedger())
	owner, rewardMint := newKey(t), newKey(t)

	_, err := builder.BuildInitializePool(context.Background(), &InitializePoolParams{Owner: owner, RewardMint: rewardMint, RewardAmount: 0, Period: 60})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = builder.BuildInitializePool(context.Background(), &InitializePoolParams{Owner: owner, RewardMint: rewardMint, RewardAmount: 10, Period: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	plan, err := builder.BuildInitializePool(context.Background(), &InitializePoolParams{
		Owner:           owner,
		RewardMint:      rewardMint,
		RewardAmount:    10,
		Period:          60,
		Withdrawable:    7,
		StakeCollection: "Zoku",
	})
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 2)
	assert.True(t, IsCreateAssociatedAccount(plan.Instructions[0]))
	assertMatchesIDL(t, "initPool", plan.Instructions[1])
	assert.Empty(t, plan.Signers)

	expectedPool, _, err := DerivePoolAddress(plan.Seed)
	require.NoError(t, err)
	assert.Equal(t, expectedPool, plan.Pool)

	expectedReward, err := DeriveAssociatedAccount(plan.Pool, rewardMint)
	require.NoError(t, err)
	assert.Equal(t, expectedReward, plan.RewardAccount)
	assert.Equal(t, plan.Pool, plan.Instructions[1].Accounts()[1].PublicKey)
	assert.Equal(t, plan.Seed, plan.Instructions[1].Accounts()[2].PublicKey)
}

func TestBuildStake(t *testing.T) {
	owner, pool, mint := newKey(t), newKey(t), newKey(t)
	source, err := DeriveAssociatedAccount(owner, mint)
	require.NoError(t, err)
	dest, err := DeriveAssociatedAccount(pool, mint)
	require.NoError(t, err)

	t.Run("creates missing custody account", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.setAccount(source, solana.TokenProgramID, tokenAccountData(mint, owner, 1))

		plan, err := NewBuilder(ledger).BuildStake(context.Background(), owner, pool, mint)
		require.NoError(t, err)
		require.Len(t, plan.Instructions, 2)
		assert.True(t, IsCreateAssociatedAccount(plan.Instructions[0]))
		assertMatchesIDL(t, "stake", plan.Instructions[1])

		require.Len(t, plan.Signers, 1)
		assert.Equal(t, plan.StakeRecord, plan.Signers[0].PublicKey())
		metas := plan.Instructions[1].Accounts()
		assert.Equal(t, plan.StakeRecord, metas[2].PublicKey)
		assert.Equal(t, source, metas[5].PublicKey)
		assert.Equal(t, dest, metas[6].PublicKey)
	})

	t.Run("never duplicates an existing custody account", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.setAccount(source, solana.TokenProgramID, tokenAccountData(mint, owner, 1))
		ledger.setAccount(dest, solana.TokenProgramID, tokenAccountData(mint, pool, 0))

		plan, err := NewBuilder(ledger).BuildStake(context.Background(), owner, pool, mint)
		require.NoError(t, err)
		require.Len(t, plan.Instructions, 1)
		for _, ix := range plan.Instructions {
			assert.False(t, IsCreateAssociatedAccount(ix))
		}
	})

	t.Run("requires exactly one unit", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.setAccount(source, solana.TokenProgramID, tokenAccountData(mint, owner, 0))

		_, err := NewBuilder(ledger).BuildStake(context.Background(), owner, pool, mint)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = NewBuilder(newFakeLedger()).BuildStake(context.Background(), owner, pool, mint)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}

func TestBuildUnstake(t *testing.T) {
	owner, poolAddress, mint := newKey(t), newKey(t), newKey(t)
	pool := &PoolConfig{RewardAmount: 10, Period: 60, Withdrawable: 7}
	custody, err := DeriveAssociatedAccount(poolAddress, mint)
	require.NoError(t, err)

	t0 := time.Unix(1_700_000_000, 0)
	recordAddress := newKey(t)

	ledger := newFakeLedger()
	ledger.addProgramAccount(recordAddress, (&StakeRecord{
		Owner:     owner,
		Pool:      poolAddress,
		Account:   custody,
		StakeTime: t0.Unix(),
	}).Marshal())
	ledger.setAccount(custody, solana.TokenProgramID, tokenAccountData(mint, poolAddress, 1))
	builder := NewBuilder(ledger)

	_, err = builder.BuildUnstake(context.Background(), owner, pool, newKey(t), t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = builder.BuildUnstake(context.Background(), owner, pool, recordAddress, t0.Add(419*time.Second))
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = builder.BuildUnstake(context.Background(), newKey(t), pool, recordAddress, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// a lock that overflows int64 stays locked
	hostile := &PoolConfig{RewardAmount: 10, Period: math.MaxInt64 / 2, Withdrawable: 7}
	_, err = builder.BuildUnstake(context.Background(), owner, hostile, recordAddress, t0.Add(time.Hour))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Zero(t, ledger.sentCount())

	plan, err := builder.BuildUnstake(context.Background(), owner, pool, recordAddress, t0.Add(420*time.Second))
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 1)
	assertMatchesIDL(t, "unstake", plan.Instructions[0])

	dest, err := DeriveAssociatedAccount(owner, mint)
	require.NoError(t, err)
	metas := plan.Instructions[0].Accounts()
	assert.Equal(t, poolAddress, metas[1].PublicKey)
	assert.Equal(t, recordAddress, metas[2].PublicKey)
	assert.Equal(t, custody, metas[3].PublicKey)
	assert.Equal(t, dest, metas[4].PublicKey)
}

func TestBuildClaim(t *testing.T) {
	owner, poolAddress := newKey(t), newKey(t)
	pool := testPoolConfig(t)
	now := time.Unix(1_700_001_000, 0)

	t.Run("no records", func(t *testing.T) {
		plan, err := NewBuilder(newFakeLedger()).BuildClaim(context.Background(), owner, poolAddress, pool, now)
		require.NoError(t, err)
		assert.True(t, plan.Empty())
	})

	ledger := newFakeLedger()
	accrued := newKey(t)
	ledger.addProgramAccount(accrued, (&StakeRecord{Owner: owner, Pool: poolAddress, StakeTime: now.Unix() - 185}).Marshal())
	fresh := newKey(t)
	ledger.addProgramAccount(fresh, (&StakeRecord{Owner: owner, Pool: poolAddress, StakeTime: now.Unix() - 10}).Marshal())
	unstaked := newKey(t)
	ledger.addProgramAccount(unstaked, (&StakeRecord{Owner: owner, Pool: poolAddress, Unstaked: true, StakeTime: now.Unix() - 1000}).Marshal())
	saturated := newKey(t)
	ledger.addProgramAccount(saturated, (&StakeRecord{Owner: owner, Pool: poolAddress, StakeTime: now.Unix() - 1000, WithdrawnNumber: 2}).Marshal())

	plan, err := NewBuilder(ledger).BuildClaim(context.Background(), owner, poolAddress, pool, now)
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 3)
	assert.True(t, IsCreateAssociatedAccount(plan.Instructions[0]))
	assertMatchesIDL(t, "claim", plan.Instructions[1])
	assertMatchesIDL(t, "claim", plan.Instructions[2])
	assert.ElementsMatch(t, []solana.PublicKey{accrued, saturated}, plan.Records)
	assert.EqualValues(t, 3+5, plan.Periods)
	assert.EqualValues(t, 80, plan.Claimed)

	dest, err := DeriveAssociatedAccount(owner, pool.RewardMint)
	require.NoError(t, err)
	ledger.setAccount(dest, solana.TokenProgramID, tokenAccountData(pool.RewardMint, owner, 0))

	plan, err = NewBuilder(ledger).BuildClaim(context.Background(), owner, poolAddress, pool, now)
	require.NoError(t, err)
	require.Len(t, plan.Instructions, 2)
	for _, ix := range plan.Instructions {
		assert.False(t, IsCreateAssociatedAccount(ix))
		assert.Equal(t, pool.RewardAccount, ix.Accounts()[3].PublicKey)
		assert.Equal(t, dest, ix.Accounts()[4].PublicKey)
	}
}

func TestPlan_Tree(t *testing.T) {
	plan := &Plan{Instructions: []solana.Instruction{
		NewClaimInstruction(&ClaimInstructionAccounts{Owner: newKey(t), Pool: newKey(t)}),
	}}
	tree := plan.Tree()
	assert.Contains(t, tree, "Claim")
	assert.Contains(t, tree, "stakeData")
}
