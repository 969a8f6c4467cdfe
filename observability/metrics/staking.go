package metrics

import (
	"math"
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// StakingMetrics bundles collectors tracking the staking pool's health.
type StakingMetrics struct {
	positionsOpened prometheus.Counter
	positionsClosed prometheus.Counter
	rewardsPaid     prometheus.Counter
	totalStaked     prometheus.Gauge
	emergencyMode   prometheus.Gauge
}

var (
	stakingOnce     sync.Once
	stakingRegistry *StakingMetrics
)

// Staking returns the singleton metrics registry for the staking engine.
func Staking() *StakingMetrics {
	stakingOnce.Do(func() {
		stakingRegistry = &StakingMetrics{
			positionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_positions_opened_total",
				Help: "Count of staking positions opened since start.",
			}),
			positionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_positions_closed_total",
				Help: "Count of staking positions closed since start.",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "staking_rewards_paid_total",
				Help: "Cumulative rewards paid out of the vault in base units.",
			}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_total_staked",
				Help: "Principal currently held by the staking vault in base units.",
			}),
			emergencyMode: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "staking_emergency_mode",
				Help: "Indicates whether emergency mode is engaged (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			stakingRegistry.positionsOpened,
			stakingRegistry.positionsClosed,
			stakingRegistry.rewardsPaid,
			stakingRegistry.totalStaked,
			stakingRegistry.emergencyMode,
		)
	})
	return stakingRegistry
}

// RecordStake notes an opened position and refreshes the staked-total gauge.
func (m *StakingMetrics) RecordStake(totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.positionsOpened.Inc()
	m.totalStaked.Set(bigToFloat(totalStaked))
}

// RecordUnstake notes a closed position and refreshes the staked-total gauge.
func (m *StakingMetrics) RecordUnstake(totalStaked *big.Int) {
	if m == nil {
		return
	}
	m.positionsClosed.Inc()
	m.totalStaked.Set(bigToFloat(totalStaked))
}

// RecordRewardsPaid adds a completed payout to the cumulative counter.
func (m *StakingMetrics) RecordRewardsPaid(amount *big.Int) {
	if m == nil {
		return
	}
	value := bigToFloat(amount)
	if value < 0 {
		value = 0
	}
	m.rewardsPaid.Add(value)
}

// SetEmergency toggles the emergency_mode gauge.
func (m *StakingMetrics) SetEmergency(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.emergencyMode.Set(1)
		return
	}
	m.emergencyMode.Set(0)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
