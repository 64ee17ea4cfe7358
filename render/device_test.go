// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package render

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

func TestNullDeviceHandle(t *testing.T) {
	var handle DeviceHandle = NullDeviceHandle{}

	if handle.Device() != nil {
		t.Error("NullDeviceHandle.Device() should return nil")
	}
	if handle.Queue() != nil {
		t.Error("NullDeviceHandle.Queue() should return nil")
	}
	if handle.Adapter() != nil {
		t.Error("NullDeviceHandle.Adapter() should return nil")
	}
	if handle.SurfaceFormat() != gputypes.TextureFormatUndefined {
		t.Error("NullDeviceHandle.SurfaceFormat() should return Undefined")
	}
}

func TestIsNull(t *testing.T) {
	if !IsNull(nil) {
		t.Error("IsNull(nil) = false")
	}
	if !IsNull(NullDeviceHandle{}) {
		t.Error("IsNull(NullDeviceHandle{}) = false")
	}
}

func TestNullDeviceHandleAdapterInfo(t *testing.T) {
	if info := (NullDeviceHandle{}).AdapterInfo(); info.Type != gpucontext.AdapterTypeUnknown {
		t.Errorf("AdapterInfo().Type = %v, want Unknown", info.Type)
	}
}
