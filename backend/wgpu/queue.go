// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package wgpu

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// pollInterval is the sleep between completion polls.
const pollInterval = 50 * time.Microsecond

// beginEncoder creates a command encoder and begins recording.
func (d *Device) beginEncoder(label string) (hal.CommandEncoder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		enc.Destroy()
		return nil, fmt.Errorf("wgpu: begin encoding: %w", err)
	}
	return enc, nil
}

// submit ends enc, submits it and waits for completion.
func (d *Device) submit(ctx context.Context, enc hal.CommandEncoder) error {
	defer enc.Destroy()
	cmd, err := enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("wgpu: end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)
	idx, err := d.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		return fmt.Errorf("wgpu: submit: %w", err)
	}
	return d.wait(ctx, idx)
}

// wait blocks until submission idx completes. Past the timeout it falls
// back to waiting for the whole device.
func (d *Device) wait(ctx context.Context, idx uint64) error {
	deadline := time.Now().Add(d.waitTimeout)
	for d.queue.PollCompleted() < idx {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			if err := d.device.WaitIdle(); err != nil {
				return fmt.Errorf("%w: %w", ErrTimeout, err)
			}
			return nil
		}
		time.Sleep(pollInterval)
	}
	return nil
}

// run records fn into a one-off encoder, then submits and waits.
func (d *Device) run(label string, fn func(enc hal.CommandEncoder)) error {
	enc, err := d.beginEncoder(label)
	if err != nil {
		return err
	}
	fn(enc)
	return d.submit(context.Background(), enc)
}

// mapWrite creates a host-visible buffer holding data.
func (d *Device) mapWrite(label string, usage gputypes.BufferUsage, data []byte) (hal.Buffer, error) {
	size := align4(uint64(len(data)))
	if size == 0 {
		size = 4
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage | gputypes.BufferUsageMapWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create %s: %w", label, err)
	}
	m, err := d.device.MapBuffer(buf, 0, size)
	if err != nil {
		d.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: map %s: %w", label, err)
	}
	copy(unsafe.Slice((*byte)(m.Ptr), size), data)
	if err := d.device.UnmapBuffer(buf); err != nil {
		d.device.DestroyBuffer(buf)
		return nil, fmt.Errorf("wgpu: unmap %s: %w", label, err)
	}
	return buf, nil
}

// writeRaw copies data into dst at offset through a staging buffer.
// offset and len(data) are multiples of 4.
func (d *Device) writeRaw(dst hal.Buffer, offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	staging, err := d.mapWrite("upload staging", gputypes.BufferUsageCopySrc, data)
	if err != nil {
		return err
	}
	defer d.device.DestroyBuffer(staging)
	return d.run("write buffer", func(enc hal.CommandEncoder) {
		enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: dst,
			Usage:  hal.BufferUsageTransition{OldUsage: gputypes.BufferUsageStorage, NewUsage: gputypes.BufferUsageCopyDst},
		}})
		enc.CopyBufferToBuffer(staging, dst, []hal.BufferCopy{{DstOffset: offset, Size: uint64(len(data))}})
		enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: dst,
			Usage:  hal.BufferUsageTransition{OldUsage: gputypes.BufferUsageCopyDst, NewUsage: gputypes.BufferUsageStorage},
		}})
	})
}

// readRaw copies len(dst) bytes of src at offset into dst. size is the
// allocated size of src. Copies are widened to 4-byte boundaries.
func (d *Device) readRaw(src hal.Buffer, size, offset uint64, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	start := offset &^ 3
	end := align4(offset + uint64(len(dst)))
	if end > size {
		end = size
	}
	n := end - start

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "readback staging",
		Size:  n,
		Usage: gputypes.BufferUsageCopyDst | gputypes.BufferUsageMapRead,
	})
	if err != nil {
		return fmt.Errorf("wgpu: create readback staging: %w", err)
	}
	defer d.device.DestroyBuffer(staging)

	err = d.run("read buffer", func(enc hal.CommandEncoder) {
		enc.TransitionBuffers([]hal.BufferBarrier{{
			Buffer: src,
			Usage:  hal.BufferUsageTransition{OldUsage: gputypes.BufferUsageStorage, NewUsage: gputypes.BufferUsageCopySrc},
		}})
		enc.CopyBufferToBuffer(src, staging, []hal.BufferCopy{{SrcOffset: start, Size: n}})
	})
	if err != nil {
		return err
	}

	m, err := d.device.MapBuffer(staging, 0, n)
	if err != nil {
		return fmt.Errorf("wgpu: map readback staging: %w", err)
	}
	copy(dst, unsafe.Slice((*byte)(m.Ptr), n)[offset-start:])
	return d.device.UnmapBuffer(staging)
}

// clearRaw zero fills size bytes of buf.
func (d *Device) clearRaw(buf hal.Buffer, size uint64) error {
	return d.run("clear buffer", func(enc hal.CommandEncoder) {
		enc.ClearBuffer(buf, 0, size)
	})
}
