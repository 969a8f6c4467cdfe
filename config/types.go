package config

// Pool seeds the staking pool created on first boot. An empty Token leaves
// pool creation to an explicit staking_initialize call.
type Pool struct {
	Token           string
	RewardRate      string
	BonusMultiplier uint32
	MinStake        string
	MaxStake        string
}

// JWT configures bearer-token verification for mutating RPC calls. When
// disabled the server falls back to the static token from the environment.
type JWT struct {
	Enable         bool
	Alg            string
	HSSecretEnv    string
	Issuer         string
	Audience       []string
	MaxSkewSeconds int
}

// RateLimit throttles mutating RPC calls per client source.
type RateLimit struct {
	RequestsPerMinute float64
	Burst             int
}

// Telemetry controls the OTLP exporters.
type Telemetry struct {
	Enable   bool
	Endpoint string
	Insecure bool
	Headers  string
	Metrics  bool
	Traces   bool
}
