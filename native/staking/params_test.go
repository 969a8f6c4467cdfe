package staking

import "testing"

func TestMultiplierForLockPeriod(t *testing.T) {
	cases := []struct {
		name   string
		period uint64
		want   uint32
	}{
		{"30 days", LockPeriod30Days, Multiplier30Days},
		{"90 days", LockPeriod90Days, Multiplier90Days},
		{"180 days", LockPeriod180Days, Multiplier180Days},
		{"365 days", LockPeriod365Days, Multiplier365Days},
		{"zero", 0, 0},
		{"one second short", LockPeriod30Days - 1, 0},
		{"one second long", LockPeriod30Days + 1, 0},
		{"between tiers", LockPeriod90Days + 42, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MultiplierForLockPeriod(tc.period); got != tc.want {
				t.Fatalf("want %d, got %d", tc.want, got)
			}
		})
	}
}

func TestLockPeriodsAscending(t *testing.T) {
	periods := LockPeriods()
	if len(periods) != 4 {
		t.Fatalf("expected four lock tiers, got %d", len(periods))
	}
	for i := 1; i < len(periods); i++ {
		if periods[i] <= periods[i-1] {
			t.Fatalf("lock tiers out of order at %d", i)
		}
	}
	if periods[0] != LockPeriod30Days || periods[3] != LockPeriod365Days {
		t.Fatalf("unexpected tier bounds %v", periods)
	}
}
