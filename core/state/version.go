package state

import (
	"errors"
	"fmt"
	"math"

	"stakeledger/storage"
)

// StateVersion identifies the expected on-disk schema layout for the ledger
// state. Increment this constant whenever breaking changes are made to the
// stored structure.
const StateVersion uint32 = 1

var (
	stateVersionKey   = []byte("state/version")
	genesisAppliedKey = []byte("state/genesis-applied")

	// ErrStateVersionMismatch indicates the stored schema version does not
	// match the version supported by the current binary.
	ErrStateVersionMismatch = errors.New("state: schema version mismatch")
)

// SetStateVersion records the provided schema version in state.
func (m *Manager) SetStateVersion(version uint32) error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(stateVersionKey, uint64(version))
}

// StateVersion returns the stored schema version and a boolean indicating
// whether the value was present.
func (m *Manager) StateVersion() (uint32, bool, error) {
	if m == nil {
		return 0, false, fmt.Errorf("state: manager unavailable")
	}
	var stored uint64
	ok, err := m.KVGet(stateVersionKey, &stored)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, false, nil
	}
	if stored > uint64(math.MaxUint32) {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// EnsureStateVersion verifies that the on-disk state version matches the
// version supported by this binary, stamping fresh databases with the current
// version.
func EnsureStateVersion(db storage.Database) error {
	if db == nil {
		return fmt.Errorf("state: database must not be nil")
	}
	manager := NewManager(db)
	version, ok, err := manager.StateVersion()
	if err != nil {
		return err
	}
	if !ok {
		return manager.SetStateVersion(StateVersion)
	}
	if version != StateVersion {
		return fmt.Errorf("%w: on-disk=%d expected=%d", ErrStateVersionMismatch, version, StateVersion)
	}
	return nil
}

// GenesisApplied reports whether the one-time genesis allocation already ran
// against this database.
func (m *Manager) GenesisApplied() (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state: manager unavailable")
	}
	var flag bool
	ok, err := m.KVGet(genesisAppliedKey, &flag)
	if err != nil {
		return false, err
	}
	return ok && flag, nil
}

// MarkGenesisApplied records that genesis allocations have been written.
func (m *Manager) MarkGenesisApplied() error {
	if m == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	return m.KVPut(genesisAppliedKey, true)
}
