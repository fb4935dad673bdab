package domain

import "time"

// CachedSignalValue is one entry in a device's cached signal map (§3).
type CachedSignalValue struct {
	Value     TypedValue
	Quality   Quality
	Timestamp time.Time
}

// IsStale implements the derived predicate of §3: stale if the quality is
// already degraded, or the reading is older than 2x the poll interval.
func (c CachedSignalValue) IsStale(now time.Time, pollInterval time.Duration) bool {
	if c.Quality.IsDegraded() {
		return true
	}
	return now.Sub(c.Timestamp) > 2*pollInterval
}

// DeviceState is the cached live view of one device (§3).
type DeviceState struct {
	DeviceHandle     string
	ProviderAvailable bool
	LastPollTime     time.Time
	Signals          map[string]CachedSignalValue
}

// Clone returns an owned copy, the only form in which the State Cache hands
// state out to callers (§4.2 "Snapshots").
func (s DeviceState) Clone() DeviceState {
	out := DeviceState{
		DeviceHandle:      s.DeviceHandle,
		ProviderAvailable: s.ProviderAvailable,
		LastPollTime:      s.LastPollTime,
		Signals:           make(map[string]CachedSignalValue, len(s.Signals)),
	}
	for k, v := range s.Signals {
		out.Signals[k] = v
	}
	return out
}

// NewDeviceState builds an empty state slot for a freshly polled device.
func NewDeviceState(handle string) DeviceState {
	return DeviceState{
		DeviceHandle: handle,
		Signals:      make(map[string]CachedSignalValue),
	}
}
