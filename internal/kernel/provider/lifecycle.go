package provider

// SupervisionSnapshot is the read-only view the core observes of a
// provider's process-level supervision state (§4.8). The core never writes
// to this; the supervisor owns process lifecycle.
type SupervisionSnapshot struct {
	Available       bool
	UptimeMs        int64
	LastSeenAgoMs   int64
	AttemptCount    int
	MaxAttempts     int
	CrashDetected   bool
	CircuitOpen     bool
	NextRestartInMs int64
}

// LifecycleState is the core's derived view of a provider's process
// lifecycle, computed read-only from a SupervisionSnapshot (§4.8).
type LifecycleState string

const (
	LifecycleRunning     LifecycleState = "RUNNING"
	LifecycleRecovering  LifecycleState = "RECOVERING"
	LifecycleCircuitOpen LifecycleState = "CIRCUIT_OPEN"
	LifecycleRestarting  LifecycleState = "RESTARTING"
	LifecycleDown        LifecycleState = "DOWN"
)

// DeriveLifecycle implements the pure read-only derivation of §4.8:
//
//	AVAILABLE   -> RUNNING (or RECOVERING if attempt_count > 0)
//	UNAVAILABLE -> CIRCUIT_OPEN if circuit_open
//	            -> RESTARTING if crash_detected or attempts > 0 or a restart is scheduled
//	            -> DOWN otherwise
func DeriveLifecycle(s SupervisionSnapshot) LifecycleState {
	if s.Available {
		if s.AttemptCount > 0 {
			return LifecycleRecovering
		}
		return LifecycleRunning
	}
	if s.CircuitOpen {
		return LifecycleCircuitOpen
	}
	if s.CrashDetected || s.AttemptCount > 0 || s.NextRestartInMs > 0 {
		return LifecycleRestarting
	}
	return LifecycleDown
}
