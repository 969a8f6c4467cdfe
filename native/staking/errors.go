package staking

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized          = errors.New("staking: pool not initialized")
	ErrUnauthorized            = errors.New("staking: unauthorized")
	ErrInsufficientBalance     = errors.New("staking: insufficient balance")
	ErrInvalidAmount           = errors.New("staking: invalid amount")
	ErrInvalidLockPeriod       = errors.New("staking: invalid lock period")
	ErrPositionNotFound        = errors.New("staking: position not found")
	ErrAlreadyStaked           = errors.New("staking: position already exists")
	ErrNotStaked               = errors.New("staking: no active position")
	ErrLockPeriodNotExpired    = errors.New("staking: lock period not expired")
	ErrEmergencyMode           = errors.New("staking: emergency mode active")
	ErrInvalidPoolConfig       = errors.New("staking: invalid pool config")
	ErrRewardCalculationFailed = errors.New("staking: reward calculation failed")
)

// Causes carried by arithmetic faults. They only ever surface wrapped in a
// Fault, never on their own.
var (
	ErrArithmeticOverflow = errors.New("arithmetic overflow")
	ErrDivisionByZero     = errors.New("division by zero")
)

// Fault marks an unrecoverable arithmetic failure inside an operation. Unlike
// the sentinel errors above it signals corrupted inputs or impossible values
// rather than a rejected request; the engine aborts before writing any state
// and callers must treat the invocation as failed wholesale.
type Fault struct {
	Op  string
	Err error
}

func (f *Fault) Error() string {
	return fmt.Sprintf("staking: unrecoverable fault in %s: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func newFault(op string, err error) *Fault {
	return &Fault{Op: op, Err: err}
}

// IsFault reports whether err originated from checked arithmetic rather than
// request validation.
func IsFault(err error) bool {
	var fault *Fault
	return errors.As(err, &fault)
}
