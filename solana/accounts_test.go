package staking_protocol

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStakeRecord_RoundTrip(t *testing.T) {
	expected := StakeRecord{
		Unstaked:        false,
		Owner:           newKey(t),
		Pool:            newKey(t),
		Account:         newKey(t),
		StakeTime:       1_700_000_123,
		WithdrawnNumber: 3,
	}

	data := expected.Marshal()
	require.Len(t, data, StakeRecordSize)
	assert.Equal(t, 114, StakeRecordSize)
	assert.Equal(t, Account_StakeData[:], data[:8])
	assert.Equal(t, expected.Owner[:], data[StakeRecordOwnerOffset:StakeRecordOwnerOffset+32])
	assert.Equal(t, expected.Pool[:], data[StakeRecordPoolOffset:StakeRecordPoolOffset+32])
	assert.Equal(t, expected.Account[:], data[StakeRecordAccountOffset:StakeRecordAccountOffset+32])
	assert.EqualValues(t, 3, data[113])

	var actual StakeRecord
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, expected, actual)

	var again StakeRecord
	require.NoError(t, again.Unmarshal(actual.Marshal()))
	assert.Equal(t, actual, again)
}

func TestStakeRecord_RejectsWrongSize(t *testing.T) {
	valid := (&StakeRecord{Owner: newKey(t)}).Marshal()

	for _, size := range []int{0, 8, 111, StakeRecordSize - 1, StakeRecordSize + 1, 200} {
		data := make([]byte, size)
		copy(data, valid)

		_, err := ParseAccount_StakeData(data)
		assert.ErrorIs(t, err, ErrMalformedRecord, "size %d", size)
	}
}

func TestStakeRecord_RejectsWrongDiscriminator(t *testing.T) {
	data := (&StakeRecord{Owner: newKey(t)}).Marshal()
	copy(data[:8], Account_Pool[:])

	_, err := ParseAccount_StakeData(data)
	assert.ErrorIs(t, err, ErrMalformedRecord)
}

func TestPoolConfig_RoundTrip(t *testing.T) {
	expected := testPoolConfig(t)

	actual, err := ParseAccount_Pool(poolData(t, expected))
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestPoolConfig_Malformed(t *testing.T) {
	pool := testPoolConfig(t)
	data := poolData(t, pool)

	t.Run("discriminator", func(t *testing.T) {
		bad := bytes.Clone(data)
		copy(bad[:8], Account_StakeData[:])
		_, err := ParseAccount_Pool(bad)
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := ParseAccount_Pool(data[:len(data)-3])
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})

	t.Run("zero period", func(t *testing.T) {
		zero := *pool
		zero.Period = 0
		_, err := ParseAccount_Pool(poolData(t, &zero))
		assert.ErrorIs(t, err, ErrMalformedRecord)
	})
}

func TestStakeRecord_UnlocksAt(t *testing.T) {
	record := &StakeRecord{StakeTime: 1000}
	pool := &PoolConfig{Period: 60, Withdrawable: 7}
	assert.EqualValues(t, 1420, record.UnlocksAt(pool))

	pool.Period = math.MaxInt64 / 2
	assert.EqualValues(t, int64(math.MaxInt64), record.UnlocksAt(pool))

	pool.Period = math.MaxInt64 / 7
	record.StakeTime = math.MaxInt64 - 10
	assert.EqualValues(t, int64(math.MaxInt64), record.UnlocksAt(pool))

	record.StakeTime = -1000
	pool.Period = 60
	assert.EqualValues(t, -580, record.UnlocksAt(pool))
}

func TestTokenAccount_Unmarshal(t *testing.T) {
	mint, owner := newKey(t), newKey(t)

	var token TokenAccount
	require.NoError(t, token.Unmarshal(tokenAccountData(mint, owner, 1)))
	assert.Equal(t, mint, token.Mint)
	assert.Equal(t, owner, token.Owner)
	assert.EqualValues(t, 1, token.Amount)

	assert.ErrorIs(t, token.Unmarshal(make([]byte, 164)), ErrMalformedRecord)
	assert.ErrorIs(t, token.Unmarshal(make([]byte, 166)), ErrMalformedRecord)
}

func TestMint_Unmarshal(t *testing.T) {
	var mint Mint
	require.NoError(t, mint.Unmarshal(mintData(6)))
	assert.EqualValues(t, 6, mint.Decimals)

	assert.ErrorIs(t, mint.Unmarshal(make([]byte, 81)), ErrMalformedRecord)

	assert.True(t, IsSingleUnitNft(&TokenAccount{Amount: 1}, &Mint{Decimals: 0}))
	assert.False(t, IsSingleUnitNft(&TokenAccount{Amount: 2}, &Mint{Decimals: 0}))
	assert.False(t, IsSingleUnitNft(&TokenAccount{Amount: 1}, &Mint{Decimals: 9}))
}
