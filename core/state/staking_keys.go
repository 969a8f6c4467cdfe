package state

import (
	"math/big"

	"stakeledger/native/staking"
)

var (
	stakingAdminKeyBytes     = []byte("staking/admin")
	stakingPoolKeyBytes      = []byte("staking/pool")
	stakingEmergencyKeyBytes = []byte("staking/emergency")
	stakingPositionPrefix    = []byte("staking/position/")
)

func stakingPositionKey(owner [20]byte) []byte {
	buf := make([]byte, len(stakingPositionPrefix)+len(owner))
	copy(buf, stakingPositionPrefix)
	copy(buf[len(stakingPositionPrefix):], owner[:])
	return buf
}

// storedStakingPool mirrors staking.StakingPool in the deterministic layout
// used for serialization. Amounts are always non-nil and non-negative by the
// time they reach this struct.
type storedStakingPool struct {
	Token                  string
	TotalStaked            *big.Int
	RewardRate             *big.Int
	BonusMultiplier        uint32
	MinStake               *big.Int
	MaxStake               *big.Int
	EmergencyWithdrawalFee uint32
}

func newStoredStakingPool(pool *staking.StakingPool) *storedStakingPool {
	if pool == nil {
		pool = &staking.StakingPool{}
	}
	stored := &storedStakingPool{
		Token:                  pool.Token,
		TotalStaked:            big.NewInt(0),
		RewardRate:             big.NewInt(0),
		BonusMultiplier:        pool.BonusMultiplier,
		MinStake:               big.NewInt(0),
		MaxStake:               big.NewInt(0),
		EmergencyWithdrawalFee: pool.EmergencyWithdrawalFee,
	}
	if pool.TotalStaked != nil {
		stored.TotalStaked = new(big.Int).Set(pool.TotalStaked)
	}
	if pool.RewardRate != nil {
		stored.RewardRate = new(big.Int).Set(pool.RewardRate)
	}
	if pool.MinStake != nil {
		stored.MinStake = new(big.Int).Set(pool.MinStake)
	}
	if pool.MaxStake != nil {
		stored.MaxStake = new(big.Int).Set(pool.MaxStake)
	}
	return stored
}

func (s *storedStakingPool) toStakingPool() *staking.StakingPool {
	if s == nil {
		return &staking.StakingPool{TotalStaked: big.NewInt(0), RewardRate: big.NewInt(0), MinStake: big.NewInt(0), MaxStake: big.NewInt(0)}
	}
	pool := &staking.StakingPool{
		Token:                  s.Token,
		TotalStaked:            big.NewInt(0),
		RewardRate:             big.NewInt(0),
		BonusMultiplier:        s.BonusMultiplier,
		MinStake:               big.NewInt(0),
		MaxStake:               big.NewInt(0),
		EmergencyWithdrawalFee: s.EmergencyWithdrawalFee,
	}
	if s.TotalStaked != nil {
		pool.TotalStaked = new(big.Int).Set(s.TotalStaked)
	}
	if s.RewardRate != nil {
		pool.RewardRate = new(big.Int).Set(s.RewardRate)
	}
	if s.MinStake != nil {
		pool.MinStake = new(big.Int).Set(s.MinStake)
	}
	if s.MaxStake != nil {
		pool.MaxStake = new(big.Int).Set(s.MaxStake)
	}
	return pool
}

// storedStakingPosition mirrors staking.StakingPosition for serialization.
type storedStakingPosition struct {
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

func newStoredStakingPosition(position *staking.StakingPosition) *storedStakingPosition {
	if position == nil {
		position = &staking.StakingPosition{}
	}
	stored := &storedStakingPosition{
		Owner:                 position.Owner,
		Amount:                big.NewInt(0),
		StartTime:             position.StartTime,
		LastRewardTime:        position.LastRewardTime,
		RewardMultiplier:      position.RewardMultiplier,
		LockPeriod:            position.LockPeriod,
		HasVesting:            position.HasVesting,
		VestingTotalPeriods:   position.VestingTotalPeriods,
		VestingCurrentPeriod:  position.VestingCurrentPeriod,
		VestingPeriodDuration: position.VestingPeriodDuration,
		VestingCliffBps:       position.VestingCliffBps,
	}
	if position.Amount != nil {
		stored.Amount = new(big.Int).Set(position.Amount)
	}
	return stored
}

func (s *storedStakingPosition) toStakingPosition() *staking.StakingPosition {
	if s == nil {
		return &staking.StakingPosition{Amount: big.NewInt(0)}
	}
	position := &staking.StakingPosition{
		Owner:                 s.Owner,
		Amount:                big.NewInt(0),
		StartTime:             s.StartTime,
		LastRewardTime:        s.LastRewardTime,
		RewardMultiplier:      s.RewardMultiplier,
		LockPeriod:            s.LockPeriod,
		HasVesting:            s.HasVesting,
		VestingTotalPeriods:   s.VestingTotalPeriods,
		VestingCurrentPeriod:  s.VestingCurrentPeriod,
		VestingPeriodDuration: s.VestingPeriodDuration,
		VestingCliffBps:       s.VestingCliffBps,
	}
	if s.Amount != nil {
		position.Amount = new(big.Int).Set(s.Amount)
	}
	return position
}

// StakingAdmin returns the recorded administrator address.
func (m *Manager) StakingAdmin() ([20]byte, bool) {
	var raw []byte
	ok, err := m.KVGet(stakingAdminKeyBytes, &raw)
	if err != nil || !ok || len(raw) != 20 {
		return [20]byte{}, false
	}
	var addr [20]byte
	copy(addr[:], raw)
	return addr, true
}

// SetStakingAdmin records the administrator address.
func (m *Manager) SetStakingAdmin(addr [20]byte) error {
	return m.KVPut(stakingAdminKeyBytes, addr[:])
}

// StakingPoolGet loads the pool configuration and totals.
func (m *Manager) StakingPoolGet() (*staking.StakingPool, bool) {
	stored := new(storedStakingPool)
	ok, err := m.KVGet(stakingPoolKeyBytes, stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toStakingPool(), true
}

// StakingPoolPut sanitises and persists the pool record.
func (m *Manager) StakingPoolPut(pool *staking.StakingPool) error {
	sanitized, err := staking.SanitizePool(pool)
	if err != nil {
		return err
	}
	return m.KVPut(stakingPoolKeyBytes, newStoredStakingPool(sanitized))
}

// StakingEmergency reports the emergency withdrawal flag. A pool that never
// toggled it reads as false.
func (m *Manager) StakingEmergency() bool {
	var flag bool
	ok, err := m.KVGet(stakingEmergencyKeyBytes, &flag)
	if err != nil || !ok {
		return false
	}
	return flag
}

// SetStakingEmergency stores the emergency withdrawal flag.
func (m *Manager) SetStakingEmergency(enabled bool) error {
	return m.KVPut(stakingEmergencyKeyBytes, enabled)
}

// StakingPositionGet loads the position recorded for owner.
func (m *Manager) StakingPositionGet(owner [20]byte) (*staking.StakingPosition, bool) {
	stored := new(storedStakingPosition)
	ok, err := m.KVGet(stakingPositionKey(owner), stored)
	if err != nil || !ok {
		return nil, false
	}
	return stored.toStakingPosition(), true
}

// StakingPositionPut sanitises and persists the position record.
func (m *Manager) StakingPositionPut(position *staking.StakingPosition) error {
	sanitized, err := staking.SanitizePosition(position)
	if err != nil {
		return err
	}
	return m.KVPut(stakingPositionKey(sanitized.Owner), newStoredStakingPosition(sanitized))
}

// StakingPositionRemove deletes the position recorded for owner.
func (m *Manager) StakingPositionRemove(owner [20]byte) error {
	return m.KVDelete(stakingPositionKey(owner))
}
