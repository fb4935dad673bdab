package domain

import "time"

// EventKind tags the active arm of an Event (§3).
type EventKind string

const (
	EventStateUpdate         EventKind = "STATE_UPDATE"
	EventQualityChange       EventKind = "QUALITY_CHANGE"
	EventDeviceAvailability  EventKind = "DEVICE_AVAILABILITY"
	EventModeChange          EventKind = "MODE_CHANGE"
	EventParameterChange     EventKind = "PARAMETER_CHANGE"
	EventBTError             EventKind = "BT_ERROR"
	EventProviderHealthChange EventKind = "PROVIDER_HEALTH_CHANGE"
)

// Event is the tagged, immutable record every subscriber observes (§3).
// Every event carries a monotonic EventID assigned centrally by the Event
// Emitter at emission time; nothing upstream of emit() may set it.
type Event struct {
	EventID   uint64
	Kind      EventKind
	Timestamp time.Time

	// StateUpdate / QualityChange
	ProviderID string
	DeviceID   string
	SignalID   string
	Value      TypedValue
	Quality    Quality
	OldQuality Quality

	// DeviceAvailability
	Available bool

	// ModeChange
	PreviousMode RuntimeMode
	NewMode      RuntimeMode

	// ParameterChange
	ParameterName string
	OldValueStr   string
	NewValueStr   string

	// BTError
	BTNode string
	BTErr  string

	// ProviderHealthChange
	ProviderHealthState string
}

// Handle reconstructs the device handle an event pertains to, or "" for
// events without a device (ModeChange, ParameterChange).
func (e Event) Handle() string {
	if e.ProviderID == "" && e.DeviceID == "" {
		return ""
	}
	return BuildHandle(e.ProviderID, e.DeviceID)
}

// NewStateUpdate builds a StateUpdate event body stamped with the current
// time; the emitter assigns EventID at emission time.
func NewStateUpdate(providerID, deviceID, signalID string, value TypedValue, quality Quality) Event {
	return Event{
		Kind:       EventStateUpdate,
		ProviderID: providerID,
		DeviceID:   deviceID,
		SignalID:   signalID,
		Value:      value,
		Quality:    quality,
		Timestamp:  time.Now(),
	}
}

func NewQualityChange(providerID, deviceID, signalID string, oldQ, newQ Quality) Event {
	return Event{
		Kind:       EventQualityChange,
		ProviderID: providerID,
		DeviceID:   deviceID,
		SignalID:   signalID,
		OldQuality: oldQ,
		Quality:    newQ,
		Timestamp:  time.Now(),
	}
}

func NewDeviceAvailability(providerID, deviceID string, available bool) Event {
	return Event{
		Kind:       EventDeviceAvailability,
		ProviderID: providerID,
		DeviceID:   deviceID,
		Available:  available,
		Timestamp:  time.Now(),
	}
}

func NewModeChange(previous, newMode RuntimeMode) Event {
	return Event{
		Kind:         EventModeChange,
		PreviousMode: previous,
		NewMode:      newMode,
		Timestamp:    time.Now(),
	}
}

func NewParameterChange(name, oldStr, newStr string) Event {
	return Event{
		Kind:          EventParameterChange,
		ParameterName: name,
		OldValueStr:   oldStr,
		NewValueStr:   newStr,
		Timestamp:     time.Now(),
	}
}

func NewBTError(node, errMsg string) Event {
	return Event{
		Kind:      EventBTError,
		BTNode:    node,
		BTErr:     errMsg,
		Timestamp: time.Now(),
	}
}

func NewProviderHealthChange(providerID, state string) Event {
	return Event{
		Kind:                EventProviderHealthChange,
		ProviderID:          providerID,
		ProviderHealthState: state,
		Timestamp:           time.Now(),
	}
}
