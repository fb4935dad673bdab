// Package registry implements the kernel's Device Registry (§4.1): a
// thread-safe, immutable-after-insert inventory of discovered devices.
package registry

import (
	"context"
	"sync"

	"github.com/nexus-edge/anolis/internal/kernel/domain"
	"github.com/nexus-edge/anolis/internal/kernel/provider"
	"github.com/nexus-edge/anolis/internal/kernelerr"
	"github.com/rs/zerolog"
)

// Registry is the thread-safe device inventory (§4.1).
//
// A single RWMutex guards the device slice and the handle index together,
// so a reader during provider restart observes either the old or the new
// capability set for a provider, never a torn mix (§4.1 "Concurrency
// discipline").
type Registry struct {
	mu      sync.RWMutex
	devices []domain.RegisteredDevice
	byHandle map[string]int // handle -> index into devices

	log zerolog.Logger
}

// New constructs an empty Registry.
func New(log zerolog.Logger) *Registry {
	return &Registry{
		byHandle: make(map[string]int),
		log:      log.With().Str("component", "registry").Logger(),
	}
}

// DiscoverProvider enumerates a provider's devices and commits their
// capability sets in one exclusive acquisition (§4.1). All network I/O
// (ListDevices, DescribeDevice) happens before the lock is taken; if any
// step fails, nothing for this provider is committed. A device whose handle
// is already registered has its entry replaced in place.
func (r *Registry) DiscoverProvider(ctx context.Context, providerID string, cap provider.Capability) error {
	deviceIDs, err := cap.ListDevices(ctx)
	if err != nil {
		return kernelerr.Wrap(kernelerr.Unavailable, "list_devices failed for provider "+providerID, err)
	}

	built := make([]domain.RegisteredDevice, 0, len(deviceIDs))
	for _, deviceID := range deviceIDs {
		desc, err := cap.DescribeDevice(ctx, deviceID)
		if err != nil {
			return kernelerr.Wrap(kernelerr.Unavailable, "describe_device failed for "+providerID+"/"+deviceID, err)
		}
		built = append(built, domain.RegisteredDevice{
			ProviderID:   providerID,
			DeviceID:     deviceID,
			Capabilities: desc.Capabilities,
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range built {
		handle := d.Handle()
		if idx, exists := r.byHandle[handle]; exists {
			r.devices[idx] = d
			continue
		}
		r.devices = append(r.devices, d)
		r.byHandle[handle] = len(r.devices) - 1
	}

	r.log.Info().Str("provider_id", providerID).Int("devices", len(built)).Msg("provider discovered")
	return nil
}

// GetDevice returns an owned copy of one device, or NotFound (§4.1).
func (r *Registry) GetDevice(providerID, deviceID string) (domain.RegisteredDevice, error) {
	return r.GetByHandle(domain.BuildHandle(providerID, deviceID))
}

// GetByHandle returns an owned copy of one device by handle, or NotFound.
// A copy, not a borrow, is required because providers can be evicted
// concurrently (§4.1, design note in §9).
func (r *Registry) GetByHandle(handle string) (domain.RegisteredDevice, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byHandle[handle]
	if !ok {
		return domain.RegisteredDevice{}, kernelerr.Newf(kernelerr.NotFound, "device %q not registered", handle)
	}
	return r.devices[idx].Clone(), nil
}

// AllDevices returns an owned snapshot of every registered device.
func (r *Registry) AllDevices() []domain.RegisteredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.RegisteredDevice, len(r.devices))
	for i, d := range r.devices {
		out[i] = d.Clone()
	}
	return out
}

// DevicesForProvider returns an owned snapshot of one provider's devices.
func (r *Registry) DevicesForProvider(providerID string) []domain.RegisteredDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RegisteredDevice
	for _, d := range r.devices {
		if d.ProviderID == providerID {
			out = append(out, d.Clone())
		}
	}
	return out
}

// ClearProviderDevices removes every device belonging to providerID and
// rebuilds the handle index, under one exclusive acquisition (§4.1).
func (r *Registry) ClearProviderDevices(providerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.devices[:0]
	removed := 0
	for _, d := range r.devices {
		if d.ProviderID == providerID {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	r.devices = kept

	r.byHandle = make(map[string]int, len(r.devices))
	for i, d := range r.devices {
		r.byHandle[d.Handle()] = i
	}

	if removed > 0 {
		r.log.Info().Str("provider_id", providerID).Int("removed", removed).Msg("provider devices cleared")
	}
	return removed
}

// DeviceCount is a shared read of the current device count.
func (r *Registry) DeviceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
