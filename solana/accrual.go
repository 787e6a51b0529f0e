package staking_protocol

import (
	"math"
	"math/bits"
)

// AccruedPeriods returns the reward periods a record can claim at now:
// elapsed whole periods capped at maxWithdrawable, less those already
// withdrawn, never below zero. Negative elapsed time counts as zero.
func AccruedPeriods(now, stakeTime, period int64, withdrawn, maxWithdrawable uint8) uint64 {
	if period <= 0 {
		return 0
	}

	elapsed := now - stakeTime
	if elapsed < 0 {
		elapsed = 0
	}

	periods := elapsed / period
	if periods > int64(maxWithdrawable) {
		periods = int64(maxWithdrawable)
	}
	periods -= int64(withdrawn)
	if periods < 0 {
		return 0
	}
	return uint64(periods)
}

// ClaimableAmount converts accrued periods into reward token base units,
// saturating at math.MaxUint64.
func ClaimableAmount(periods, rewardPerPeriod uint64) uint64 {
	hi, lo := bits.Mul64(periods, rewardPerPeriod)
	if hi != 0 {
		return math.MaxUint64
	}
	return lo
}

// addAmounts sums reward amounts, saturating at math.MaxUint64.
func addAmounts(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

// RecordClaimable is the claimable amount of one record under pool.
func RecordClaimable(now int64, record *StakeRecord, pool *PoolConfig) uint64 {
	if record.Unstaked {
		return 0
	}
	periods := AccruedPeriods(now, record.StakeTime, pool.Period, record.WithdrawnNumber, pool.Withdrawable)
	return ClaimableAmount(periods, pool.RewardAmount)
}
