package events

import (
	"math/big"
	"strconv"

	"stakeledger/core/types"
	"stakeledger/crypto"
)

const (
	// TypeTransfer is emitted for direct balance movements between accounts.
	TypeTransfer = "ledger.transferred"
)

// Transfer captures a native balance movement outside the staking lifecycle.
type Transfer struct {
	From      [20]byte
	To        [20]byte
	Amount    *big.Int
	Timestamp uint64
}

// EventType satisfies the Event interface.
func (Transfer) EventType() string { return TypeTransfer }

// Event converts the structured payload into a broadcastable event.
func (e Transfer) Event() *types.Event {
	return &types.Event{Type: TypeTransfer, Attributes: map[string]string{
		"from":      crypto.MustNewAddress(crypto.StakePrefix, e.From[:]).String(),
		"to":        crypto.MustNewAddress(crypto.StakePrefix, e.To[:]).String(),
		"amount":    formatAmount(e.Amount),
		"timestamp": strconv.FormatUint(e.Timestamp, 10),
	}}
}
