package entities

import "time"

// TimerConfig is the guest's request to schedule a named timer. Field names
// are guest-visible wire contract.
type TimerConfig struct {
	Name       string `json:"name"`
	IntervalMs uint64 `json:"interval_ms"`
	Repeating  bool   `json:"repeating"`
}

// ClampedInterval returns the effective firing interval, clamped to
// [MinTimerInterval, MaxTimerInterval].
func (c TimerConfig) ClampedInterval() time.Duration {
	d := time.Duration(c.IntervalMs) * time.Millisecond
	if d < MinTimerInterval {
		return MinTimerInterval
	}
	if d > MaxTimerInterval {
		return MaxTimerInterval
	}
	return d
}
