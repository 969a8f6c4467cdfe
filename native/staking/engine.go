package staking

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"stakeledger/core/events"
	"stakeledger/core/types"
)

var errNilState = errors.New("staking engine: state not configured")

// vaultAddress is the module account holding staked principal and the reward
// reserve between operations.
var vaultAddress = func() [20]byte {
	var addr [20]byte
	hash := ethcrypto.Keccak256([]byte("stakeledger/staking/vault"))
	copy(addr[:], hash[12:])
	return addr
}()

// VaultAddress returns the module account that custodies staked funds.
func VaultAddress() [20]byte { return vaultAddress }

// engineState abstracts the persistence the engine runs against. The node
// backs it with the state manager; tests back it with in-memory fakes.
type engineState interface {
	StakingAdmin() ([20]byte, bool)
	SetStakingAdmin(addr [20]byte) error
	StakingPoolGet() (*StakingPool, bool)
	StakingPoolPut(*StakingPool) error
	StakingEmergency() bool
	SetStakingEmergency(enabled bool) error
	StakingPositionGet(owner [20]byte) (*StakingPosition, bool)
	StakingPositionPut(*StakingPosition) error
	StakingPositionRemove(owner [20]byte) error
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

// Authorizer approves an operation claimed by a principal address. Hosts that
// authenticate callers install an implementation via SetAuthorizer; the
// default accepts every caller.
type Authorizer interface {
	RequireAuth(principal [20]byte) error
}

type allowAllAuthorizer struct{}

func (allowAllAuthorizer) RequireAuth([20]byte) error { return nil }

// Engine executes the staking state machine over an abstract state backend.
// Every operation follows the same order: validate and run all checked
// arithmetic first, then move balances, then persist records, then emit
// events. A failure at any point leaves no partial writes behind.
type Engine struct {
	state      engineState
	emitter    events.Emitter
	authorizer Authorizer
	nowFn      func() uint64
}

// NewEngine creates a staking engine with a no-op emitter and an allow-all
// authorizer. Callers override both via the setters.
func NewEngine() *Engine {
	return &Engine{
		emitter:    events.NoopEmitter{},
		authorizer: allowAllAuthorizer{},
		nowFn:      func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetAuthorizer configures caller authentication. Passing nil resets it to the
// allow-all default.
func (e *Engine) SetAuthorizer(authorizer Authorizer) {
	if authorizer == nil {
		e.authorizer = allowAllAuthorizer{}
		return
	}
	e.authorizer = authorizer
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() uint64) {
	if now == nil {
		e.nowFn = func() uint64 { return uint64(time.Now().Unix()) }
		return
	}
	e.nowFn = now
}

func (e *Engine) emit(event events.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(event)
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return e.nowFn()
}

func (e *Engine) requireAuth(principal [20]byte) error {
	if e == nil || e.authorizer == nil {
		return nil
	}
	if err := e.authorizer.RequireAuth(principal); err != nil {
		return ErrUnauthorized
	}
	return nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

func (e *Engine) transferToken(from, to [20]byte, amount *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if amt.Sign() < 0 {
		return fmt.Errorf("staking: negative transfer amount")
	}
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// Initialize provisions the pool exactly once and records the administrator.
// The emergency withdrawal fee is protocol-fixed rather than caller-supplied.
func (e *Engine) Initialize(admin [20]byte, token string, rewardRate *big.Int, bonusMultiplier uint32, minStake, maxStake *big.Int) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if _, ok := e.state.StakingAdmin(); ok {
		// The not-initialized variant doubles as the re-initialization
		// guard error.
		return ErrNotInitialized
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	normalized, err := NormalizeToken(token)
	if err != nil {
		return err
	}
	rate := cloneBigInt(rewardRate)
	min := cloneBigInt(minStake)
	max := cloneBigInt(maxStake)
	if rate.Sign() < 0 || min.Sign() < 0 || max.Cmp(min) <= 0 {
		return ErrInvalidPoolConfig
	}
	if err := e.state.SetStakingAdmin(admin); err != nil {
		return err
	}
	pool := &StakingPool{
		Token:                  normalized,
		TotalStaked:            big.NewInt(0),
		RewardRate:             rate,
		BonusMultiplier:        bonusMultiplier,
		MinStake:               min,
		MaxStake:               max,
		EmergencyWithdrawalFee: EmergencyWithdrawalFeeBps,
	}
	if err := e.state.StakingPoolPut(pool); err != nil {
		return err
	}
	if err := e.state.SetStakingEmergency(false); err != nil {
		return err
	}
	e.emit(events.StakingPoolInitialized{
		Admin:           admin,
		RewardRate:      cloneBigInt(rate),
		BonusMultiplier: bonusMultiplier,
	})
	return nil
}

// Stake opens a position for user, moving the principal into the module
// vault. Each account holds at most one position at a time.
func (e *Engine) Stake(user [20]byte, amount *big.Int, lockPeriod uint64, vesting VestingOption) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuth(user); err != nil {
		return err
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return ErrNotInitialized
	}
	if e.state.StakingEmergency() {
		return ErrEmergencyMode
	}
	amt := cloneBigInt(amount)
	if amt.Cmp(pool.MinStake) < 0 || amt.Cmp(pool.MaxStake) > 0 {
		return ErrInvalidAmount
	}
	multiplier := MultiplierForLockPeriod(lockPeriod)
	if multiplier == 0 {
		return ErrInvalidLockPeriod
	}
	if _, exists := e.state.StakingPositionGet(user); exists {
		return ErrAlreadyStaked
	}
	now := e.now()
	position := &StakingPosition{
		Owner:            user,
		Amount:           amt,
		StartTime:        now,
		LastRewardTime:   now,
		RewardMultiplier: multiplier,
		LockPeriod:       lockPeriod,
	}
	if vesting.Enabled() {
		periods := vesting.Periods()
		if periods == 0 {
			return newFault("vesting setup", ErrDivisionByZero)
		}
		position.HasVesting = true
		position.VestingTotalPeriods = periods
		position.VestingPeriodDuration = lockPeriod / uint64(periods)
		position.VestingCliffBps = VestingCliffBps
	}
	newTotal, err := checkedAdd("pool total", pool.TotalStaked, amt)
	if err != nil {
		return err
	}
	account, err := e.state.GetAccount(user[:])
	if err != nil {
		return err
	}
	if ensureAccount(account).Balance.Cmp(amt) < 0 {
		return ErrInsufficientBalance
	}
	if err := e.transferToken(user, vaultAddress, amt); err != nil {
		return err
	}
	pool.TotalStaked = newTotal
	if err := e.state.StakingPoolPut(pool); err != nil {
		return err
	}
	if err := e.state.StakingPositionPut(position); err != nil {
		return err
	}
	e.emit(events.StakingStaked{
		Owner:      user,
		Amount:     cloneBigInt(amt),
		LockPeriod: lockPeriod,
		Multiplier: multiplier,
		Timestamp:  now,
	})
	return nil
}

// Unstake closes the caller's position and pays out principal plus claimable
// rewards. The lock must have expired unless emergency mode is active.
func (e *Engine) Unstake(user [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuth(user); err != nil {
		return nil, err
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	position, ok := e.state.StakingPositionGet(user)
	if !ok {
		return nil, ErrNotStaked
	}
	now := e.now()
	emergency := e.state.StakingEmergency()
	timeStaked := saturatingElapsed(now, position.StartTime)
	if timeStaked < position.LockPeriod && !emergency {
		return nil, ErrLockPeriodNotExpired
	}
	rewards, err := CalculateRewards(position, pool, now)
	if err != nil {
		return nil, err
	}
	// Early withdrawals only reach this point in emergency mode, which
	// waives the fee, so the charge below never applies in practice.
	fee := big.NewInt(0)
	if timeStaked < position.LockPeriod && !emergency {
		fee, err = checkedMul("unstake fee", position.Amount, new(big.Int).SetUint64(uint64(pool.EmergencyWithdrawalFee)))
		if err != nil {
			return nil, err
		}
		fee.Quo(fee, basisPoints)
	}
	payout, err := checkedAdd("unstake payout", position.Amount, rewards.ClaimableAmount)
	if err != nil {
		return nil, err
	}
	payout, err = checkedSub("unstake payout", payout, fee)
	if err != nil {
		return nil, err
	}
	remaining, err := checkedSub("pool total", pool.TotalStaked, position.Amount)
	if err != nil {
		return nil, err
	}
	if err := e.transferToken(vaultAddress, user, payout); err != nil {
		return nil, err
	}
	pool.TotalStaked = remaining
	if err := e.state.StakingPoolPut(pool); err != nil {
		return nil, err
	}
	if err := e.state.StakingPositionRemove(user); err != nil {
		return nil, err
	}
	claimable := cloneBigInt(rewards.ClaimableAmount)
	e.emit(events.StakingUnstaked{
		Owner:     user,
		Amount:    cloneBigInt(position.Amount),
		Rewards:   cloneBigInt(claimable),
		Fee:       cloneBigInt(fee),
		Timestamp: now,
	})
	return claimable, nil
}

// ClaimRewards pays out the currently claimable rewards without touching the
// principal. A zero claimable amount is a complete no-op: no transfer, no
// state write, no event.
func (e *Engine) ClaimRewards(user [20]byte) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := e.requireAuth(user); err != nil {
		return nil, err
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	position, ok := e.state.StakingPositionGet(user)
	if !ok {
		return nil, ErrNotStaked
	}
	now := e.now()
	rewards, err := CalculateRewards(position, pool, now)
	if err != nil {
		return nil, err
	}
	claimable := cloneBigInt(rewards.ClaimableAmount)
	if claimable.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := e.transferToken(vaultAddress, user, claimable); err != nil {
		return nil, err
	}
	position.LastRewardTime = now
	if position.HasVesting && position.VestingCurrentPeriod < position.VestingTotalPeriods {
		// Progress counter only; the vesting math derives progress from
		// elapsed time, not from this field.
		position.VestingCurrentPeriod++
	}
	if err := e.state.StakingPositionPut(position); err != nil {
		return nil, err
	}
	e.emit(events.StakingRewardsClaimed{
		Owner:        user,
		BaseRewards:  cloneBigInt(rewards.BaseRewards),
		BonusRewards: cloneBigInt(rewards.BonusRewards),
		Timestamp:    now,
	})
	return claimable, nil
}

// GetPosition returns a copy of the user's position.
func (e *Engine) GetPosition(user [20]byte) (*StakingPosition, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, ok := e.state.StakingPositionGet(user)
	if !ok {
		return nil, ErrPositionNotFound
	}
	return position.Clone(), nil
}

// GetPoolInfo returns a copy of the pool configuration and totals.
func (e *Engine) GetPoolInfo() (*StakingPool, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	return pool.Clone(), nil
}

// GetPendingRewards computes the rewards the user could claim right now. The
// call never mutates state.
func (e *Engine) GetPendingRewards(user [20]byte) (*RewardCalculation, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	position, ok := e.state.StakingPositionGet(user)
	if !ok {
		return nil, ErrNotStaked
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return nil, ErrNotInitialized
	}
	return CalculateRewards(position, pool, e.now())
}

// Admin returns the recorded administrator address.
func (e *Engine) Admin() ([20]byte, error) {
	if e == nil || e.state == nil {
		return [20]byte{}, errNilState
	}
	admin, ok := e.state.StakingAdmin()
	if !ok {
		return [20]byte{}, ErrNotInitialized
	}
	return admin, nil
}

// EmergencyMode reports whether emergency withdrawals are enabled. A pool that
// was never toggled reads as false.
func (e *Engine) EmergencyMode() (bool, error) {
	if e == nil || e.state == nil {
		return false, errNilState
	}
	return e.state.StakingEmergency(), nil
}

// UpdatePool adjusts the reward rate and/or bonus multiplier. Nil fields are
// left untouched. Only the recorded administrator may call this.
func (e *Engine) UpdatePool(admin [20]byte, rewardRate *big.Int, bonusMultiplier *uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	stored, ok := e.state.StakingAdmin()
	if !ok {
		return ErrNotInitialized
	}
	if stored != admin {
		return ErrUnauthorized
	}
	pool, ok := e.state.StakingPoolGet()
	if !ok {
		return ErrNotInitialized
	}
	if rewardRate != nil {
		if rewardRate.Sign() < 0 {
			return ErrInvalidPoolConfig
		}
		pool.RewardRate = new(big.Int).Set(rewardRate)
	}
	if bonusMultiplier != nil {
		pool.BonusMultiplier = *bonusMultiplier
	}
	if err := e.state.StakingPoolPut(pool); err != nil {
		return err
	}
	e.emit(events.StakingPoolUpdated{
		Admin:           admin,
		RewardRate:      cloneBigInt(pool.RewardRate),
		BonusMultiplier: pool.BonusMultiplier,
		Timestamp:       e.now(),
	})
	return nil
}

// SetEmergencyMode toggles emergency withdrawals. Only the recorded
// administrator may call this. The toggle emits no event.
func (e *Engine) SetEmergencyMode(admin [20]byte, enabled bool) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := e.requireAuth(admin); err != nil {
		return err
	}
	stored, ok := e.state.StakingAdmin()
	if !ok {
		return ErrNotInitialized
	}
	if stored != admin {
		return ErrUnauthorized
	}
	return e.state.SetStakingEmergency(enabled)
}
