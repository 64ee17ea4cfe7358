package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gogpu/styletransfer/graph"
)

// Backend name constants.
const (
	// BackendSoftware is the CPU device (backend/software).
	BackendSoftware = "software"
	// BackendWGPU is the Pure Go GPU device (backend/wgpu over gogpu/wgpu hal).
	BackendWGPU = "wgpu"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered
	// or no registered backend could be opened.
	ErrBackendNotAvailable = errors.New("backend: not available")
)

// Factory opens a new device.
type Factory func() (graph.Device, error)

// registry holds registered backends.
var (
	registryMu sync.RWMutex
	backends   = make(map[string]Factory)
	// Priority order for backend selection (first available wins).
	backendPriority = []string{BackendWGPU, BackendSoftware}
)

// Register registers a device factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	backends[name] = factory
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(backends, name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := backends[name]
	return ok
}

// Open opens a device by name.
func Open(name string) (graph.Device, error) {
	registryMu.RLock()
	factory, ok := backends[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrBackendNotAvailable, name)
	}
	dev, err := factory()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", name, err)
	}
	return dev, nil
}

// OpenDefault opens the best available device based on priority.
// Priority order: wgpu > software. A backend whose factory fails (for
// example, no Vulkan adapter) is skipped.
func OpenDefault() (graph.Device, error) {
	registryMu.RLock()
	order := make([]string, 0, len(backends))
	for _, name := range backendPriority {
		if _, ok := backends[name]; ok {
			order = append(order, name)
		}
	}
	for name := range backends {
		if !contains(backendPriority, name) {
			order = append(order, name)
		}
	}
	registryMu.RUnlock()

	var errs []error
	for _, name := range order {
		dev, err := Open(name)
		if err == nil {
			return dev, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(append([]error{ErrBackendNotAvailable}, errs...)...)
}

// OpenNamed opens name when it is non-empty and the default device otherwise.
func OpenNamed(name string) (graph.Device, error) {
	if name == "" {
		return OpenDefault()
	}
	return Open(name)
}

// MustOpenDefault returns the default device or panics.
func MustOpenDefault() graph.Device {
	dev, err := OpenDefault()
	if err != nil {
		panic(err)
	}
	return dev
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
