package staking

import (
	"fmt"
	"math/big"
	"strings"
)

// StakingPool carries the global pool configuration together with the running
// total of staked principal.
type StakingPool struct {
	Token                  string
	TotalStaked            *big.Int
	RewardRate             *big.Int // per-second accrual rate, fixed-point x1e9
	BonusMultiplier        uint32
	MinStake               *big.Int
	MaxStake               *big.Int
	EmergencyWithdrawalFee uint32 // basis points
}

// Clone returns a deep copy so callers can mutate freely without affecting the
// stored instance.
func (p *StakingPool) Clone() *StakingPool {
	if p == nil {
		return nil
	}
	clone := *p
	clone.TotalStaked = cloneBigInt(p.TotalStaked)
	clone.RewardRate = cloneBigInt(p.RewardRate)
	clone.MinStake = cloneBigInt(p.MinStake)
	clone.MaxStake = cloneBigInt(p.MaxStake)
	return &clone
}

// StakingPosition records a single account's stake. The ledger keeps at most
// one position per account; closing it removes the record entirely.
type StakingPosition struct {
	Owner                 [20]byte
	Amount                *big.Int
	StartTime             uint64
	LastRewardTime        uint64
	RewardMultiplier      uint32
	LockPeriod            uint64
	HasVesting            bool
	VestingTotalPeriods   uint32
	VestingCurrentPeriod  uint32
	VestingPeriodDuration uint64
	VestingCliffBps       uint32
}

// Clone returns a deep copy of the position.
func (p *StakingPosition) Clone() *StakingPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = cloneBigInt(p.Amount)
	return &clone
}

// RewardCalculation is the ephemeral result of a reward computation. Nothing
// in it is persisted; claims re-run the computation at execution time.
type RewardCalculation struct {
	BaseRewards     *big.Int
	BonusRewards    *big.Int
	TotalRewards    *big.Int
	VestingAmount   *big.Int
	ClaimableAmount *big.Int
}

// VestingOption selects whether a new position vests its rewards and over how
// many periods within the lock window. The zero value means no vesting.
type VestingOption struct {
	enabled bool
	periods uint32
}

// NoVesting returns the option for an unvested position.
func NoVesting() VestingOption { return VestingOption{} }

// VestOver returns the option for a position vesting over the given number of
// periods.
func VestOver(periods uint32) VestingOption {
	return VestingOption{enabled: true, periods: periods}
}

// Enabled reports whether vesting was requested.
func (v VestingOption) Enabled() bool { return v.enabled }

// Periods returns the requested period count, 0 when vesting is disabled.
func (v VestingOption) Periods() uint32 {
	if !v.enabled {
		return 0
	}
	return v.periods
}

// NormalizeToken canonicalises a token symbol to its trimmed uppercase form.
func NormalizeToken(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("staking: empty token symbol")
	}
	return trimmed, nil
}

// SanitizePool validates and normalises a pool record, returning a clone with
// canonical token casing and non-nil amounts. The original is not mutated.
func SanitizePool(p *StakingPool) (*StakingPool, error) {
	if p == nil {
		return nil, fmt.Errorf("nil staking pool")
	}
	clone := p.Clone()
	token, err := NormalizeToken(clone.Token)
	if err != nil {
		return nil, err
	}
	clone.Token = token
	if clone.TotalStaked.Sign() < 0 {
		return nil, fmt.Errorf("staking pool total must be non-negative")
	}
	if clone.RewardRate.Sign() < 0 {
		return nil, fmt.Errorf("staking pool reward rate must be non-negative")
	}
	if clone.MinStake.Sign() < 0 || clone.MaxStake.Cmp(clone.MinStake) <= 0 {
		return nil, fmt.Errorf("staking pool stake bounds out of order")
	}
	if clone.EmergencyWithdrawalFee > 10_000 {
		return nil, fmt.Errorf("staking pool fee bps out of range: %d", clone.EmergencyWithdrawalFee)
	}
	return clone, nil
}

// SanitizePosition validates a position record, returning a clone with a
// non-nil amount. The original is not mutated.
func SanitizePosition(p *StakingPosition) (*StakingPosition, error) {
	if p == nil {
		return nil, fmt.Errorf("nil staking position")
	}
	clone := p.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("staking position amount must be non-negative")
	}
	if MultiplierForLockPeriod(clone.LockPeriod) == 0 {
		return nil, fmt.Errorf("staking position lock period unsupported: %d", clone.LockPeriod)
	}
	if clone.HasVesting && clone.VestingTotalPeriods == 0 {
		return nil, fmt.Errorf("staking position vesting periods must be positive")
	}
	return clone, nil
}
