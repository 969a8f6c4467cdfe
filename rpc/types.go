package rpc

import (
	"math/big"

	"stakeledger/crypto"
	"stakeledger/native/staking"
)

// poolInfoResult mirrors the pool configuration for RPC consumers. Amounts are
// base-10 strings so clients never lose precision to JSON numbers.
type poolInfoResult struct {
	Token                     string `json:"token"`
	TotalStaked               string `json:"totalStaked"`
	RewardRate                string `json:"rewardRate"`
	BonusMultiplier           uint32 `json:"bonusMultiplier"`
	MinStake                  string `json:"minStake"`
	MaxStake                  string `json:"maxStake"`
	EmergencyWithdrawalFeeBps uint32 `json:"emergencyWithdrawalFeeBps"`
	EmergencyMode             bool   `json:"emergencyMode"`
	Admin                     string `json:"admin"`
	VaultAddress              string `json:"vaultAddress"`
}

type positionResult struct {
	Owner                 string `json:"owner"`
	Amount                string `json:"amount"`
	StartTime             uint64 `json:"startTime"`
	LastRewardTime        uint64 `json:"lastRewardTime"`
	RewardMultiplier      uint32 `json:"rewardMultiplier"`
	LockPeriod            uint64 `json:"lockPeriod"`
	UnlockTime            uint64 `json:"unlockTime"`
	HasVesting            bool   `json:"hasVesting"`
	VestingTotalPeriods   uint32 `json:"vestingTotalPeriods,omitempty"`
	VestingCurrentPeriod  uint32 `json:"vestingCurrentPeriod,omitempty"`
	VestingPeriodDuration uint64 `json:"vestingPeriodDuration,omitempty"`
	VestingCliffBps       uint32 `json:"vestingCliffBps,omitempty"`
}

type pendingRewardsResult struct {
	BaseRewards     string `json:"baseRewards"`
	BonusRewards    string `json:"bonusRewards"`
	TotalRewards    string `json:"totalRewards"`
	VestingAmount   string `json:"vestingAmount"`
	ClaimableAmount string `json:"claimableAmount"`
}

type claimRewardsResult struct {
	Claimed string `json:"claimed"`
	Balance string `json:"balance"`
}

type unstakeResult struct {
	Rewards string `json:"rewards"`
	Balance string `json:"balance"`
}

type lockPeriodInfo struct {
	Seconds    uint64 `json:"seconds"`
	Multiplier uint32 `json:"multiplier"`
}

type emergencyModeResult struct {
	EmergencyMode bool `json:"emergencyMode"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type transferResult struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

// formatBig renders a big integer as base-10, defaulting nil to "0".
func formatBig(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bech32String(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.StakePrefix, addr[:]).String()
}

func poolInfoResultFrom(pool *staking.StakingPool, admin [20]byte, emergency bool, vault [20]byte) poolInfoResult {
	result := poolInfoResult{
		EmergencyMode: emergency,
		Admin:         bech32String(admin),
		VaultAddress:  bech32String(vault),
	}
	if pool != nil {
		result.Token = pool.Token
		result.TotalStaked = formatBig(pool.TotalStaked)
		result.RewardRate = formatBig(pool.RewardRate)
		result.BonusMultiplier = pool.BonusMultiplier
		result.MinStake = formatBig(pool.MinStake)
		result.MaxStake = formatBig(pool.MaxStake)
		result.EmergencyWithdrawalFeeBps = pool.EmergencyWithdrawalFee
	}
	return result
}

func positionResultFrom(position *staking.StakingPosition) positionResult {
	if position == nil {
		return positionResult{}
	}
	return positionResult{
		Owner:                 bech32String(position.Owner),
		Amount:                formatBig(position.Amount),
		StartTime:             position.StartTime,
		LastRewardTime:        position.LastRewardTime,
		RewardMultiplier:      position.RewardMultiplier,
		LockPeriod:            position.LockPeriod,
		UnlockTime:            position.StartTime + position.LockPeriod,
		HasVesting:            position.HasVesting,
		VestingTotalPeriods:   position.VestingTotalPeriods,
		VestingCurrentPeriod:  position.VestingCurrentPeriod,
		VestingPeriodDuration: position.VestingPeriodDuration,
		VestingCliffBps:       position.VestingCliffBps,
	}
}

func pendingRewardsResultFrom(calc *staking.RewardCalculation) pendingRewardsResult {
	if calc == nil {
		return pendingRewardsResult{}
	}
	return pendingRewardsResult{
		BaseRewards:     formatBig(calc.BaseRewards),
		BonusRewards:    formatBig(calc.BonusRewards),
		TotalRewards:    formatBig(calc.TotalRewards),
		VestingAmount:   formatBig(calc.VestingAmount),
		ClaimableAmount: formatBig(calc.ClaimableAmount),
	}
}
