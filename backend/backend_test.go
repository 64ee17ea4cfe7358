package backend

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/gogpu/styletransfer/graph"
)

type stubDevice struct{ name string }

func (d *stubDevice) Name() string { return d.name }
func (d *stubDevice) CreateBuffer(graph.BufferDesc) (graph.PooledBuffer, error) {
	return nil, nil
}
func (d *stubDevice) CreateImage(graph.ImageDesc) (graph.PooledImage, error) { return nil, nil }
func (d *stubDevice) ReleaseBuffer(graph.PooledBuffer) {}
func (d *stubDevice) ReleaseImage(graph.PooledImage) {}
func (d *stubDevice) WriteBuffer(graph.PooledBuffer, uint64, []byte) error { return nil }
func (d *stubDevice) ReadBuffer(graph.PooledBuffer, uint64, []byte) error { return nil }
func (d *stubDevice) WriteImage(graph.PooledImage, image.Image) error { return nil }
func (d *stubDevice) ReadImage(graph.PooledImage) (*image.RGBA64, error) { return nil, nil }
func (d *stubDevice) Execute(context.Context, *graph.Graph) error { return nil }
func (d *stubDevice) Close() {}

func withRegistry(t *testing.T, entries map[string]Factory) {
	t.Helper()
	registryMu.Lock()
	saved := backends
	backends = entries
	registryMu.Unlock()
	t.Cleanup(func() {
		registryMu.Lock()
		backends = saved
		registryMu.Unlock()
	})
}

func TestRegisterAndOpen(t *testing.T) {
	withRegistry(t, map[string]Factory{})

	Register("stub", func() (graph.Device, error) { return &stubDevice{name: "stub"}, nil })
	if !IsRegistered("stub") {
		t.Fatal("stub not registered")
	}
	dev, err := Open("stub")
	if err != nil || dev.Name() != "stub" {
		t.Fatalf("Open = %v, %v", dev, err)
	}

	Unregister("stub")
	if _, err := Open("stub"); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("err = %v, want ErrBackendNotAvailable", err)
	}
}

func TestOpenDefaultPriority(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendSoftware: func() (graph.Device, error) { return &stubDevice{name: BackendSoftware}, nil },
		BackendWGPU:     func() (graph.Device, error) { return &stubDevice{name: BackendWGPU}, nil },
	})
	dev, err := OpenDefault()
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name() != BackendWGPU {
		t.Errorf("default = %q, want %q", dev.Name(), BackendWGPU)
	}
}

func TestOpenDefaultSkipsFailingBackend(t *testing.T) {
	withRegistry(t, map[string]Factory{
		BackendSoftware: func() (graph.Device, error) { return &stubDevice{name: BackendSoftware}, nil },
		BackendWGPU:     func() (graph.Device, error) { return nil, errors.New("no adapter") },
	})
	dev, err := OpenDefault()
	if err != nil {
		t.Fatal(err)
	}
	if dev.Name() != BackendSoftware {
		t.Errorf("default = %q, want fallback %q", dev.Name(), BackendSoftware)
	}
}

func TestOpenDefaultEmpty(t *testing.T) {
	withRegistry(t, map[string]Factory{})
	if _, err := OpenDefault(); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("err = %v, want ErrBackendNotAvailable", err)
	}
	if len(Available()) != 0 {
		t.Error("Available() not empty")
	}
}

func TestOpenNamed(t *testing.T) {
	withRegistry(t, map[string]Factory{
		"a": func() (graph.Device, error) { return &stubDevice{name: "a"}, nil },
		"b": func() (graph.Device, error) { return &stubDevice{name: "b"}, nil },
	})
	dev, err := OpenNamed("b")
	if err != nil || dev.Name() != "b" {
		t.Fatalf("OpenNamed(b) = %v, %v", dev, err)
	}
	if got := Available(); len(got) != 2 || got[0] != "a" {
		t.Errorf("Available() = %v", got)
	}
}
