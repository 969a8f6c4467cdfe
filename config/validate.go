package config

import (
	"fmt"
	"strings"
)

var (
	MaxJWTSkewSeconds = 900
)

// ValidateConfig rejects configurations the node cannot safely run with.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return fmt.Errorf("server: ListenAddress empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("server: DataDir empty")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("ratelimit: RequestsPerMinute < 0")
	}
	if cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("ratelimit: Burst < 0")
	}
	if cfg.JWT.Enable {
		if strings.TrimSpace(cfg.JWT.HSSecretEnv) == "" {
			return fmt.Errorf("jwt: HSSecretEnv required when enabled")
		}
		if cfg.JWT.MaxSkewSeconds < 0 || cfg.JWT.MaxSkewSeconds > MaxJWTSkewSeconds {
			return fmt.Errorf("jwt: MaxSkewSeconds outside [0, %d]", MaxJWTSkewSeconds)
		}
	}
	if cfg.Pool.Enabled() {
		seed, err := cfg.Pool.Seed()
		if err != nil {
			return err
		}
		if seed.MaxStake.Cmp(seed.MinStake) <= 0 {
			return fmt.Errorf("pool: MaxStake <= MinStake")
		}
	}
	return nil
}
