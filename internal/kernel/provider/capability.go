// Package provider defines the capability the kernel consumes from every
// provider, and the read-only supervision snapshot the core derives a
// lifecycle state from. Nothing in this package speaks the framed wire
// protocol of §6 — that transport, like process-spawn and restart
// mechanics, is an external collaborator injected behind this interface
// (§1 Non-goals, §4.8).
package provider

import (
	"context"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
)

// StatusCode mirrors the provider transport's status codes (§6).
type StatusCode string

const (
	StatusOK                 StatusCode = "OK"
	StatusInvalidArgument    StatusCode = "INVALID_ARGUMENT"
	StatusOutOfRange         StatusCode = "OUT_OF_RANGE"
	StatusNotFound           StatusCode = "NOT_FOUND"
	StatusFailedPrecondition StatusCode = "FAILED_PRECONDITION"
	StatusUnavailable        StatusCode = "UNAVAILABLE"
	StatusResourceExhausted  StatusCode = "RESOURCE_EXHAUSTED"
	StatusDeadlineExceeded   StatusCode = "DEADLINE_EXCEEDED"
	StatusInternal           StatusCode = "INTERNAL"
	StatusUnknown            StatusCode = "UNKNOWN"
)

// CallResponse is what a provider returns from a Call (§6).
type CallResponse struct {
	Status  StatusCode
	Message string
	Values  map[string]domain.TypedValue
}

// SignalReading is one signal's value as returned by ReadSignals.
type SignalReading struct {
	SignalID  string
	Value     domain.TypedValue
	Quality   domain.Quality
	Timestamp *int64 // provider-supplied unix-nano timestamp, nil if absent
}

// DeviceDescriptor is what DescribeDevice returns for one device.
type DeviceDescriptor struct {
	DeviceID     string
	Capabilities domain.DeviceCapabilitySet
}

// Capability is the per-provider interface the kernel consumes (§4.8, §6).
// A provider process on the other side of the framed transport is not
// modeled here; only the calls the core needs to make against it are.
// Concrete implementations (internal/providers/*, internal/supervisor) sit
// entirely outside the kernel's own packages.
type Capability interface {
	// IsAvailable reports whether the provider is currently reachable.
	IsAvailable() bool

	// Call forwards a control call to the provider by function_id (§4.4).
	Call(ctx context.Context, deviceID string, functionID uint32, functionName string, args map[string]domain.TypedValue) (CallResponse, error)

	// ListDevices enumerates the provider's device IDs (§4.1 discovery).
	ListDevices(ctx context.Context) ([]string, error)

	// DescribeDevice returns a device's capability set (§4.1 discovery).
	DescribeDevice(ctx context.Context, deviceID string) (DeviceDescriptor, error)

	// ReadSignals polls a batch of signals for one device (§4.2).
	ReadSignals(ctx context.Context, deviceID string, signalIDs []string) ([]SignalReading, error)

	// LastError returns the most recent transport-level error, if any.
	LastError() error

	// LastStatusCode returns the most recent provider status code.
	LastStatusCode() StatusCode
}
