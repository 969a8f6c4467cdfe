package core

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"stakeledger/core/events"
	"stakeledger/core/eventstore"
	"stakeledger/core/state"
	"stakeledger/core/types"
	"stakeledger/crypto"
	"stakeledger/native/staking"
	"stakeledger/observability/metrics"
	"stakeledger/storage"
)

var (
	// ErrInvalidGenesisAlloc is returned when a genesis allocation entry
	// cannot be decoded or carries a negative amount.
	ErrInvalidGenesisAlloc = errors.New("core: invalid genesis allocation")
	// ErrInvalidTransfer is returned for malformed transfer requests.
	ErrInvalidTransfer = errors.New("core: invalid transfer")
	// ErrInsufficientFunds is returned when a transfer outruns the sender's
	// balance.
	ErrInsufficientFunds = errors.New("core: insufficient funds")
)

// Node is the central controller, wiring storage, state, and the staking
// engine together. Every state-touching operation serializes on stateMu so the
// ledger behaves as a single-writer machine.
type Node struct {
	db        storage.Database
	manager   *state.Manager
	engine    *staking.Engine
	journal   *eventstore.Store
	telemetry *metrics.StakingMetrics

	stateMu sync.Mutex

	streamMu      sync.Mutex
	streamSubs    map[uint64]chan eventstore.Entry
	streamNextID  uint64
	streamSeq     uint64
	streamHistory []eventstore.Entry
}

// NewNode opens the ledger state over db and wires the staking engine to it.
// The database is stamped with the current state version on first use.
func NewNode(db storage.Database) (*Node, error) {
	if db == nil {
		return nil, fmt.Errorf("core: nil database")
	}
	if err := state.EnsureStateVersion(db); err != nil {
		return nil, err
	}
	node := &Node{
		db:        db,
		manager:   state.NewManager(db),
		telemetry: metrics.Staking(),
	}
	engine := staking.NewEngine()
	engine.SetState(node.manager)
	engine.SetEmitter(ledgerEventEmitter{node: node})
	node.engine = engine
	return node, nil
}

// SetJournal attaches a durable event journal. Live sequence numbers continue
// from the journal tail, so websocket cursors stay valid across restarts.
func (n *Node) SetJournal(journal *eventstore.Store) error {
	if n == nil {
		return fmt.Errorf("core: node not initialised")
	}
	n.streamMu.Lock()
	defer n.streamMu.Unlock()
	n.journal = journal
	if journal == nil {
		return nil
	}
	last, err := journal.LastSequence()
	if err != nil {
		return err
	}
	if last > n.streamSeq {
		n.streamSeq = last
	}
	return nil
}

// SetAuthorizer installs caller authentication on the staking engine.
func (n *Node) SetAuthorizer(authorizer staking.Authorizer) {
	if n == nil || n.engine == nil {
		return
	}
	n.engine.SetAuthorizer(authorizer)
}

// ApplyGenesis credits the configured allocations exactly once. Addresses are
// bech32 strings under the ledger prefix; amounts are base-10 integers.
// Subsequent calls are no-ops, so restarts do not double-credit.
func (n *Node) ApplyGenesis(allocs map[string]string) error {
	if n == nil || n.manager == nil {
		return fmt.Errorf("core: node not initialised")
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	applied, err := n.manager.GenesisApplied()
	if err != nil {
		return err
	}
	if applied {
		return nil
	}
	for bech, raw := range allocs {
		addr, err := crypto.DecodeAddress(bech)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidGenesisAlloc, bech, err)
		}
		if addr.Prefix() != crypto.StakePrefix {
			return fmt.Errorf("%w: %q: unexpected prefix %q", ErrInvalidGenesisAlloc, bech, addr.Prefix())
		}
		amount, ok := new(big.Int).SetString(raw, 10)
		if !ok || amount.Sign() < 0 {
			return fmt.Errorf("%w: %q: bad amount %q", ErrInvalidGenesisAlloc, bech, raw)
		}
		account, err := n.manager.GetAccount(addr.Bytes())
		if err != nil {
			return err
		}
		account.Balance = new(big.Int).Add(account.Balance, amount)
		if err := n.manager.PutAccount(addr.Bytes(), account); err != nil {
			return err
		}
	}
	return n.manager.MarkGenesisApplied()
}

// ledgerEventEmitter bridges engine events into the node's journal and stream.
type ledgerEventEmitter struct {
	node *Node
}

type eventWithPayload interface {
	Event() *types.Event
}

func (e ledgerEventEmitter) Emit(evt events.Event) {
	if e.node == nil || evt == nil {
		return
	}
	payload, ok := evt.(eventWithPayload)
	if !ok {
		return
	}
	event := payload.Event()
	if event == nil {
		return
	}
	e.node.publishEvent(event)
}

// --- Staking operations ---

// StakingInitialize provisions the pool and records admin as its controller.
func (n *Node) StakingInitialize(admin [20]byte, token string, rewardRate *big.Int, bonusMultiplier uint32, minStake, maxStake *big.Int) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Initialize(admin, token, rewardRate, bonusMultiplier, minStake, maxStake)
}

// Stake opens a position for user with the given lock period.
func (n *Node) Stake(user [20]byte, amount *big.Int, lockPeriod uint64, vesting staking.VestingOption) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := n.engine.Stake(user, amount, lockPeriod, vesting); err != nil {
		return err
	}
	n.telemetry.RecordStake(n.stakedTotal())
	return nil
}

// Unstake closes the user's position, returning the rewards paid alongside the
// principal.
func (n *Node) Unstake(user [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	rewards, err := n.engine.Unstake(user)
	if err != nil {
		return nil, err
	}
	n.telemetry.RecordUnstake(n.stakedTotal())
	n.telemetry.RecordRewardsPaid(rewards)
	return rewards, nil
}

// ClaimRewards pays out the user's claimable rewards.
func (n *Node) ClaimRewards(user [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	claimed, err := n.engine.ClaimRewards(user)
	if err != nil {
		return nil, err
	}
	n.telemetry.RecordRewardsPaid(claimed)
	return claimed, nil
}

// StakingPosition returns the user's open position.
func (n *Node) StakingPosition(user [20]byte) (*staking.StakingPosition, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.GetPosition(user)
}

// StakingPoolInfo returns the pool configuration and totals.
func (n *Node) StakingPoolInfo() (*staking.StakingPool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.GetPoolInfo()
}

// PendingRewards computes the user's currently claimable rewards without
// mutating state.
func (n *Node) PendingRewards(user [20]byte) (*staking.RewardCalculation, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.GetPendingRewards(user)
}

// StakingAdmin returns the recorded pool administrator.
func (n *Node) StakingAdmin() ([20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.Admin()
}

// EmergencyMode reports whether emergency withdrawals are enabled.
func (n *Node) EmergencyMode() (bool, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.EmergencyMode()
}

// UpdateStakingPool adjusts the reward rate and/or bonus multiplier.
func (n *Node) UpdateStakingPool(admin [20]byte, rewardRate *big.Int, bonusMultiplier *uint32) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.engine.UpdatePool(admin, rewardRate, bonusMultiplier)
}

// SetEmergencyMode toggles emergency withdrawals.
func (n *Node) SetEmergencyMode(admin [20]byte, enabled bool) error {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	if err := n.engine.SetEmergencyMode(admin, enabled); err != nil {
		return err
	}
	n.telemetry.SetEmergency(enabled)
	return nil
}

// stakedTotal reads the pool's staked principal for the telemetry gauge.
// Callers hold stateMu.
func (n *Node) stakedTotal() *big.Int {
	pool, err := n.engine.GetPoolInfo()
	if err != nil {
		return nil
	}
	return pool.TotalStaked
}

// StakingVaultAddress returns the module account custodying staked funds and
// the reward reserve.
func (n *Node) StakingVaultAddress() [20]byte {
	return staking.VaultAddress()
}

// --- Ledger operations ---

// GetBalance returns the spendable balance of addr.
func (n *Node) GetBalance(addr [20]byte) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	account, err := n.manager.GetAccount(addr[:])
	if err != nil {
		return nil, err
	}
	if account.Balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(account.Balance), nil
}

// Transfer moves amount between two ledger accounts. It backs reward reserve
// top-ups as well as plain payments.
func (n *Node) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidTransfer
	}
	if from == to {
		return ErrInvalidTransfer
	}
	n.stateMu.Lock()
	defer n.stateMu.Unlock()

	sender, err := n.manager.GetAccount(from[:])
	if err != nil {
		return err
	}
	if sender.Balance == nil || sender.Balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	recipient, err := n.manager.GetAccount(to[:])
	if err != nil {
		return err
	}
	sender.Balance = new(big.Int).Sub(sender.Balance, amount)
	recipient.Balance = new(big.Int).Add(recipient.Balance, amount)
	if err := n.manager.PutAccount(from[:], sender); err != nil {
		return err
	}
	if err := n.manager.PutAccount(to[:], recipient); err != nil {
		return err
	}
	transfer := events.Transfer{
		From:      from,
		To:        to,
		Amount:    new(big.Int).Set(amount),
		Timestamp: uint64(time.Now().Unix()),
	}
	n.publishEvent(transfer.Event())
	return nil
}

// LockPeriods lists the supported lock tiers in ascending order.
func (n *Node) LockPeriods() []uint64 {
	return staking.LockPeriods()
}
