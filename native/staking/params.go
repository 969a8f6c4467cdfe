package staking

import "math/big"

const day = uint64(86_400)

// Supported lock durations in seconds. Stake requests must name one of these
// exactly; there is no tolerance window around them.
const (
	LockPeriod30Days  = 30 * day
	LockPeriod90Days  = 90 * day
	LockPeriod180Days = 180 * day
	LockPeriod365Days = 365 * day
)

// Reward multipliers in percent. 100 is the no-bonus baseline; longer locks
// scale the base accrual up to 3x.
const (
	Multiplier30Days  = uint32(100)
	Multiplier90Days  = uint32(150)
	Multiplier180Days = uint32(200)
	Multiplier365Days = uint32(300)

	baseMultiplier = uint32(100)
)

// Protocol-fixed rates in basis points.
const (
	EmergencyWithdrawalFeeBps = uint32(500)
	VestingCliffBps           = uint32(2_500)
)

// rewardRateScale is the fixed-point denominator of StakingPool.RewardRate:
// rewards accrue at RewardRate/1e9 tokens per staked token per second.
var rewardRateScale = big.NewInt(1_000_000_000)

// MultiplierForLockPeriod maps a lock duration to its reward multiplier. Only
// the four supported durations are valid; anything else returns 0.
func MultiplierForLockPeriod(lockPeriod uint64) uint32 {
	switch lockPeriod {
	case LockPeriod30Days:
		return Multiplier30Days
	case LockPeriod90Days:
		return Multiplier90Days
	case LockPeriod180Days:
		return Multiplier180Days
	case LockPeriod365Days:
		return Multiplier365Days
	default:
		return 0
	}
}

// LockPeriods returns the supported lock durations in ascending order.
func LockPeriods() []uint64 {
	return []uint64{LockPeriod30Days, LockPeriod90Days, LockPeriod180Days, LockPeriod365Days}
}
