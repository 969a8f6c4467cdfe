package config

import (
	"fmt"
	"math/big"
	"strings"
)

// PoolSeed represents the parsed pool bootstrap parameters.
type PoolSeed struct {
	Token           string
	RewardRate      *big.Int
	BonusMultiplier uint32
	MinStake        *big.Int
	MaxStake        *big.Int
}

// Enabled reports whether the config asks the node to create the pool on
// first boot.
func (p Pool) Enabled() bool {
	return strings.TrimSpace(p.Token) != ""
}

// Seed parses the configured pool bootstrap values into runtime amounts.
func (p Pool) Seed() (PoolSeed, error) {
	seed := PoolSeed{Token: strings.TrimSpace(p.Token), BonusMultiplier: p.BonusMultiplier}
	rate, err := parseUintAmount(p.RewardRate)
	if err != nil {
		return seed, fmt.Errorf("invalid pool.RewardRate: %w", err)
	}
	seed.RewardRate = rate
	minStake, err := parseUintAmount(p.MinStake)
	if err != nil {
		return seed, fmt.Errorf("invalid pool.MinStake: %w", err)
	}
	seed.MinStake = minStake
	maxStake, err := parseUintAmount(p.MaxStake)
	if err != nil {
		return seed, fmt.Errorf("invalid pool.MaxStake: %w", err)
	}
	seed.MaxStake = maxStake
	return seed, nil
}

func parseUintAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("expected unsigned base-10 integer, got %q", raw)
	}
	return value, nil
}
