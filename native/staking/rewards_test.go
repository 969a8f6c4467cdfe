package staking

import (
	"errors"
	"math/big"
	"testing"
)

func rewardPool(rate int64) *StakingPool {
	return &StakingPool{
		Token:       "STK",
		TotalStaked: big.NewInt(0),
		RewardRate:  big.NewInt(rate),
		MinStake:    big.NewInt(1),
		MaxStake:    big.NewInt(1_000_000_000),
	}
}

func rewardPosition(amount int64, multiplier uint32) *StakingPosition {
	return &StakingPosition{
		Owner:            newTestAddress(0x01),
		Amount:           big.NewInt(amount),
		StartTime:        0,
		LastRewardTime:   0,
		RewardMultiplier: multiplier,
		LockPeriod:       LockPeriod30Days,
	}
}

func TestCalculateRewardsNilArguments(t *testing.T) {
	if _, err := CalculateRewards(nil, rewardPool(1), 0); err == nil {
		t.Fatalf("expected error for nil position")
	}
	if _, err := CalculateRewards(rewardPosition(1, 100), nil, 0); err == nil {
		t.Fatalf("expected error for nil pool")
	}
}

func TestCalculateRewardsZeroElapsed(t *testing.T) {
	rewards, err := CalculateRewards(rewardPosition(1_000_000, 300), rewardPool(1_000), 0)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.TotalRewards.Sign() != 0 || rewards.ClaimableAmount.Sign() != 0 {
		t.Fatalf("expected zero rewards at zero elapsed, got %+v", rewards)
	}
}

func TestCalculateRewardsIdentityRate(t *testing.T) {
	// A rate equal to the fixed-point scale accrues one token per
	// token-second.
	rewards, err := CalculateRewards(rewardPosition(42, 100), rewardPool(1_000_000_000), 10)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.BaseRewards.Cmp(big.NewInt(420)) != 0 {
		t.Fatalf("unexpected base %s", rewards.BaseRewards)
	}
	if rewards.BonusRewards.Sign() != 0 {
		t.Fatalf("multiplier 100 must not produce a bonus")
	}
}

func TestCalculateRewardsTruncatesTowardZero(t *testing.T) {
	// 1 * 999 * 1 / 1e9 rounds down to nothing.
	rewards, err := CalculateRewards(rewardPosition(999, 100), rewardPool(1), 1)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.BaseRewards.Sign() != 0 {
		t.Fatalf("expected truncation to zero, got %s", rewards.BaseRewards)
	}

	rewards, err = CalculateRewards(rewardPosition(1_000_000_000, 100), rewardPool(1), 1)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.BaseRewards.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("expected a single unit, got %s", rewards.BaseRewards)
	}
}

func TestCalculateRewardsBonusSplit(t *testing.T) {
	rewards, err := CalculateRewards(rewardPosition(1_000_000, Multiplier365Days), rewardPool(1_000), 1_000)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// base = 1000 * 1e6 * 1000 / 1e9 = 1000; bonus doubles it at 300.
	if rewards.BaseRewards.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("unexpected base %s", rewards.BaseRewards)
	}
	if rewards.BonusRewards.Cmp(big.NewInt(2_000)) != 0 {
		t.Fatalf("unexpected bonus %s", rewards.BonusRewards)
	}
	if rewards.TotalRewards.Cmp(big.NewInt(3_000)) != 0 {
		t.Fatalf("unexpected total %s", rewards.TotalRewards)
	}
}

func TestCalculateRewardsSubBaseMultiplier(t *testing.T) {
	// A stored multiplier at or below the base yields no bonus rather than a
	// negative one.
	rewards, err := CalculateRewards(rewardPosition(1_000_000, 50), rewardPool(1_000), 1_000)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.BonusRewards.Sign() != 0 {
		t.Fatalf("expected zero bonus, got %s", rewards.BonusRewards)
	}
	if rewards.TotalRewards.Cmp(rewards.BaseRewards) != 0 {
		t.Fatalf("total must equal base without a bonus")
	}
}

func TestCalculateRewardsVestingFollowsStartTime(t *testing.T) {
	// A mid-schedule claim restarts accrual but not vesting progress: the
	// released fraction tracks time since the position opened.
	position := rewardPosition(1_000_000, 100)
	position.LastRewardTime = 500_000
	position.HasVesting = true
	position.VestingTotalPeriods = 20
	position.VestingPeriodDuration = 100_000
	position.VestingCliffBps = VestingCliffBps

	rewards, err := CalculateRewards(position, rewardPool(1_000), 1_000_000)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	// base covers the 500k window since the claim; 10 of 20 periods have
	// passed since the start, so half the accrued total is released.
	if rewards.TotalRewards.Cmp(big.NewInt(500_000)) != 0 {
		t.Fatalf("unexpected total %s", rewards.TotalRewards)
	}
	if rewards.ClaimableAmount.Cmp(big.NewInt(250_000)) != 0 {
		t.Fatalf("unexpected claimable %s", rewards.ClaimableAmount)
	}
}

func TestCalculateRewardsVestingZeroDurationFaults(t *testing.T) {
	position := rewardPosition(1_000_000, 100)
	position.HasVesting = true
	position.VestingTotalPeriods = 10
	position.VestingPeriodDuration = 0

	_, err := CalculateRewards(position, rewardPool(1_000), 1_000)
	if !IsFault(err) {
		t.Fatalf("expected fault, got %v", err)
	}
	if !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division-by-zero cause, got %v", err)
	}
}

func TestCalculateRewardsClockSkew(t *testing.T) {
	position := rewardPosition(1_000_000, 300)
	position.StartTime = 2_000
	position.LastRewardTime = 2_000

	rewards, err := CalculateRewards(position, rewardPool(1_000), 1_000)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if rewards.TotalRewards.Sign() != 0 {
		t.Fatalf("clock behind the position must accrue nothing")
	}
}
