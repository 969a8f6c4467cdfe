package events

import (
	"math/big"
	"strconv"

	"stakeledger/core/types"
	"stakeledger/crypto"
)

const (
	// TypeStakingPoolInitialized marks the one-time pool provisioning.
	TypeStakingPoolInitialized = "staking.poolInitialized"
	// TypeStakingStaked is emitted when an account opens a position.
	TypeStakingStaked = "staking.staked"
	// TypeStakingUnstaked is emitted when a position is closed and paid out.
	TypeStakingUnstaked = "staking.unstaked"
	// TypeStakingRewardsClaimed is emitted for non-zero reward claims.
	TypeStakingRewardsClaimed = "staking.rewardsClaimed"
	// TypeStakingPoolUpdated captures administrator parameter changes.
	TypeStakingPoolUpdated = "staking.poolUpdated"
)

// StakingPoolInitialized announces the pool configuration recorded at
// provisioning time.
type StakingPoolInitialized struct {
	Admin           [20]byte
	RewardRate      *big.Int
	BonusMultiplier uint32
}

// EventType satisfies the Event interface.
func (StakingPoolInitialized) EventType() string { return TypeStakingPoolInitialized }

// Event converts the structured payload into a broadcastable event.
func (e StakingPoolInitialized) Event() *types.Event {
	return &types.Event{Type: TypeStakingPoolInitialized, Attributes: map[string]string{
		"admin":           crypto.MustNewAddress(crypto.StakePrefix, e.Admin[:]).String(),
		"rewardRate":      formatAmount(e.RewardRate),
		"bonusMultiplier": strconv.FormatUint(uint64(e.BonusMultiplier), 10),
	}}
}

// StakingStaked captures a newly opened position.
type StakingStaked struct {
	Owner      [20]byte
	Amount     *big.Int
	LockPeriod uint64
	Multiplier uint32
	Timestamp  uint64
}

// EventType satisfies the Event interface.
func (StakingStaked) EventType() string { return TypeStakingStaked }

// Event converts the structured payload into a broadcastable event.
func (e StakingStaked) Event() *types.Event {
	return &types.Event{Type: TypeStakingStaked, Attributes: map[string]string{
		"addr":       crypto.MustNewAddress(crypto.StakePrefix, e.Owner[:]).String(),
		"amount":     formatAmount(e.Amount),
		"lockPeriod": strconv.FormatUint(e.LockPeriod, 10),
		"multiplier": strconv.FormatUint(uint64(e.Multiplier), 10),
		"timestamp":  strconv.FormatUint(e.Timestamp, 10),
	}}
}

// StakingUnstaked captures a closed position together with its payout split.
type StakingUnstaked struct {
	Owner     [20]byte
	Amount    *big.Int
	Rewards   *big.Int
	Fee       *big.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (StakingUnstaked) EventType() string { return TypeStakingUnstaked }

// Event converts the structured payload into a broadcastable event.
func (e StakingUnstaked) Event() *types.Event {
	return &types.Event{Type: TypeStakingUnstaked, Attributes: map[string]string{
		"addr":      crypto.MustNewAddress(crypto.StakePrefix, e.Owner[:]).String(),
		"amount":    formatAmount(e.Amount),
		"rewards":   formatAmount(e.Rewards),
		"fee":       formatAmount(e.Fee),
		"timestamp": strconv.FormatUint(e.Timestamp, 10),
	}}
}

// StakingRewardsClaimed captures a reward payout split into its base and
// bonus components.
type StakingRewardsClaimed struct {
	Owner        [20]byte
	BaseRewards  *big.Int
	BonusRewards *big.Int
	Timestamp    uint64
}

// EventType satisfies the Event interface.
func (StakingRewardsClaimed) EventType() string { return TypeStakingRewardsClaimed }

// Event converts the structured payload into a broadcastable event.
func (e StakingRewardsClaimed) Event() *types.Event {
	return &types.Event{Type: TypeStakingRewardsClaimed, Attributes: map[string]string{
		"addr":         crypto.MustNewAddress(crypto.StakePrefix, e.Owner[:]).String(),
		"baseRewards":  formatAmount(e.BaseRewards),
		"bonusRewards": formatAmount(e.BonusRewards),
		"timestamp":    strconv.FormatUint(e.Timestamp, 10),
	}}
}

// StakingPoolUpdated captures the pool parameters in force after an
// administrator update.
type StakingPoolUpdated struct {
	Admin           [20]byte
	RewardRate      *big.Int
	BonusMultiplier uint32
	Timestamp       uint64
}

// EventType satisfies the Event interface.
func (StakingPoolUpdated) EventType() string { return TypeStakingPoolUpdated }

// Event converts the structured payload into a broadcastable event.
func (e StakingPoolUpdated) Event() *types.Event {
	return &types.Event{Type: TypeStakingPoolUpdated, Attributes: map[string]string{
		"admin":           crypto.MustNewAddress(crypto.StakePrefix, e.Admin[:]).String(),
		"rewardRate":      formatAmount(e.RewardRate),
		"bonusMultiplier": strconv.FormatUint(uint64(e.BonusMultiplier), 10),
		"timestamp":       strconv.FormatUint(e.Timestamp, 10),
	}}
}
