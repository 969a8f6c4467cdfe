package staking

import (
	"errors"
	"math/big"
)

var (
	errNilPosition = errors.New("staking: nil position")
	errNilPool     = errors.New("staking: nil pool")
)

// CalculateRewards computes the rewards accrued by a position up to now. The
// computation is pure: it reads the position and pool and touches no state, so
// repeated calls with the same inputs always agree.
//
// Base rewards accrue over the window since the last claim, while the vesting
// fraction derives from the total time since the position was opened. A
// position that claims mid-schedule therefore restarts accrual but keeps its
// vesting progress.
func CalculateRewards(position *StakingPosition, pool *StakingPool, now uint64) (*RewardCalculation, error) {
	if position == nil {
		return nil, errNilPosition
	}
	if pool == nil {
		return nil, errNilPool
	}
	elapsed := saturatingElapsed(now, position.LastRewardTime)
	staked := saturatingElapsed(now, position.StartTime)

	base, err := checkedMul("reward base", pool.RewardRate, position.Amount)
	if err != nil {
		return nil, err
	}
	base, err = checkedMul("reward base", base, new(big.Int).SetUint64(elapsed))
	if err != nil {
		return nil, err
	}
	base.Quo(base, rewardRateScale)

	bonus := big.NewInt(0)
	if position.RewardMultiplier > baseMultiplier {
		pct := new(big.Int).SetUint64(uint64(position.RewardMultiplier - baseMultiplier))
		bonus, err = checkedMul("reward bonus", base, pct)
		if err != nil {
			return nil, err
		}
		bonus.Quo(bonus, big.NewInt(100))
	}

	total, err := checkedAdd("reward total", base, bonus)
	if err != nil {
		return nil, err
	}

	vesting := new(big.Int).Set(total)
	if position.HasVesting {
		vesting, err = vestingAmount(position, total, staked)
		if err != nil {
			return nil, err
		}
	}

	return &RewardCalculation{
		BaseRewards:     base,
		BonusRewards:    bonus,
		TotalRewards:    total,
		VestingAmount:   vesting,
		ClaimableAmount: new(big.Int).Set(vesting),
	}, nil
}

// vestingAmount applies the cliff-then-linear schedule to the accrued total.
// Nothing releases before the first period completes; from then on the greater
// of the cliff tranche and the linear fraction is available.
func vestingAmount(position *StakingPosition, total *big.Int, staked uint64) (*big.Int, error) {
	if position.VestingPeriodDuration == 0 || position.VestingTotalPeriods == 0 {
		return nil, newFault("vesting schedule", ErrDivisionByZero)
	}
	completed := staked / position.VestingPeriodDuration
	totalPeriods := uint64(position.VestingTotalPeriods)
	if completed >= totalPeriods {
		return new(big.Int).Set(total), nil
	}
	cliff := big.NewInt(0)
	if completed > 0 {
		c, err := checkedMul("vesting cliff", total, new(big.Int).SetUint64(uint64(position.VestingCliffBps)))
		if err != nil {
			return nil, err
		}
		cliff = c.Quo(c, basisPoints)
	}
	vested, err := checkedMul("vesting linear", total, new(big.Int).SetUint64(completed))
	if err != nil {
		return nil, err
	}
	vested.Quo(vested, new(big.Int).SetUint64(totalPeriods))
	if cliff.Cmp(vested) > 0 {
		return cliff, nil
	}
	return vested, nil
}
