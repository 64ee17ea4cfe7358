// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package style records the graphs that refresh the style encoding a
// transfer network is conditioned on: predicting it from a style image,
// uploading a pre-baked one, or blending two predicted encodings.
package style

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/bridge"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/tensor"
)

var (
	// ErrInvalidContext is returned when a required context handle is NoContext.
	ErrInvalidContext = errors.New("style: invalid inference context")

	// ErrSizeMismatch is returned when an encoding does not fit the
	// style input exactly.
	ErrSizeMismatch = errors.New("style: encoding size mismatch")

	// ErrSlotRange is returned for a slot index outside the style input.
	ErrSlotRange = errors.New("style: slot out of range")

	// ErrUntrackedSlot is returned when interpolating a context that is not
	// a tracked style slot.
	ErrUntrackedSlot = errors.New("style: context is not a tracked style slot")
)

// Scope names of the recorded graphs.
const (
	ScopeUpdate      = "StyleTransfer.UpdateStyle"
	ScopeUpload      = "StyleTransfer.UploadStyle"
	ScopeInterpolate = "StyleTransfer.InterpolateStyles"
)

// Pipeline records style updates for one prediction/transfer network pair.
// The transfer network must declare an input named
// inference.InputStyleParams.
type Pipeline struct {
	Prediction inference.Network
	Transfer   inference.Network
}

// StyleInput returns the style-params input tensor of a transfer context.
func (p *Pipeline) StyleInput(transferCtx inference.ContextHandle) (*tensor.Tensor, error) {
	if !transferCtx.Valid() {
		return nil, fmt.Errorf("%w: transfer context", ErrInvalidContext)
	}
	idx, err := inference.InputIndex(p.Transfer, inference.InputStyleParams)
	if err != nil {
		return nil, fmt.Errorf("style: %s: %w", p.Transfer.Name(), err)
	}
	return p.Transfer.InputTensorForContext(transferCtx, idx)
}

// Encoding returns output 0 of a prediction context.
func (p *Pipeline) Encoding(predictionCtx inference.ContextHandle) (*tensor.Tensor, error) {
	if !predictionCtx.Valid() {
		return nil, fmt.Errorf("%w: prediction context", ErrInvalidContext)
	}
	return p.Prediction.OutputTensorForContext(predictionCtx, 0)
}

// slotOffset checks that the style input is a whole number of encodings and
// that slot fits, and returns the slot's byte offset.
func slotOffset(styleIn *tensor.Tensor, encBytes uint64, slot int) (uint64, error) {
	total := styleIn.NumBytes()
	if encBytes == 0 || total%encBytes != 0 {
		return 0, fmt.Errorf("%w: %v holds %d bytes, encoding is %d", ErrSizeMismatch, styleIn, total, encBytes)
	}
	if slot < 0 || slot >= MaxSlots || uint64(slot+1)*encBytes > total {
		return 0, fmt.Errorf("%w: slot %d of %v", ErrSlotRange, slot, styleIn)
	}
	return uint64(slot) * encBytes, nil
}

// RecordUpdate records: style image -> prediction input 0 (RGB), prediction
// inference, and a copy of prediction output 0 into the slot's region of the
// transfer style input. Nothing is recorded when a precondition fails.
func (p *Pipeline) RecordUpdate(b graph.Builder, styleImage *graph.Image, slot int, predictionCtx, transferCtx inference.ContextHandle) error {
	if !transferCtx.Valid() || !predictionCtx.Valid() {
		return fmt.Errorf("%w: transfer %d, prediction %d", ErrInvalidContext, transferCtx, predictionCtx)
	}
	if !styleImage.IsValid() {
		return fmt.Errorf("style: %w", bridge.ErrInvalidImage)
	}
	predIn, err := p.Prediction.InputTensorForContext(predictionCtx, 0)
	if err != nil {
		return err
	}
	if got := predIn.Dim(3); len(predIn.Shape()) != 4 || got != kernel.ChannelRGB.Channels() {
		return fmt.Errorf("%w: prediction input %v is not an RGB image", bridge.ErrTensorShape, predIn)
	}
	enc, err := p.Encoding(predictionCtx)
	if err != nil {
		return err
	}
	styleIn, err := p.StyleInput(transferCtx)
	if err != nil {
		return err
	}
	offset, err := slotOffset(styleIn, enc.NumBytes(), slot)
	if err != nil {
		return err
	}

	b.BeginScope(ScopeUpdate)
	defer b.EndScope()

	if err := bridge.PixelsToTensor(b, styleImage, predIn, kernel.ChannelRGB); err != nil {
		return err
	}
	if err := p.Prediction.Run(b, predictionCtx); err != nil {
		return err
	}
	return b.AddCopyPass("CopyStyleEncoding", graph.CopyOp{
		Src:       enc.Register(b),
		Dst:       styleIn.Register(b),
		DstOffset: offset,
		Size:      enc.NumBytes(),
	})
}

// RecordUpload records an upload of a raw little-endian float32 encoding
// into the transfer style input. len(data) must equal the input's byte size.
func (p *Pipeline) RecordUpload(b graph.Builder, transferCtx inference.ContextHandle, data []byte) error {
	styleIn, err := p.StyleInput(transferCtx)
	if err != nil {
		return err
	}
	if uint64(len(data)) != styleIn.NumBytes() {
		return fmt.Errorf("%w: %d bytes for %v (%d bytes)", ErrSizeMismatch, len(data), styleIn, styleIn.NumBytes())
	}

	b.BeginScope(ScopeUpload)
	defer b.EndScope()
	return b.AddUploadPass("UploadStyleEncoding", styleIn.Register(b), 0, data)
}

// RecordInterpolate records a blend of the encodings last predicted by
// contexts a and c into slot 0 of the transfer style input:
// enc(a) + alpha*(enc(c)-enc(a)). Both contexts must be tracked in slots.
func (p *Pipeline) RecordInterpolate(b graph.Builder, transferCtx inference.ContextHandle, slots *Slots, a, c inference.ContextHandle, alpha float32) error {
	if !transferCtx.Valid() || !a.Valid() || !c.Valid() {
		return fmt.Errorf("%w: transfer %d, styles %d and %d", ErrInvalidContext, transferCtx, a, c)
	}
	for _, h := range []inference.ContextHandle{a, c} {
		if _, ok := slots.Find(h); !ok {
			return fmt.Errorf("%w: %d", ErrUntrackedSlot, h)
		}
	}
	encA, err := p.Encoding(a)
	if err != nil {
		return err
	}
	encC, err := p.Encoding(c)
	if err != nil {
		return err
	}
	if encA.NumBytes() != encC.NumBytes() {
		return fmt.Errorf("%w: %v and %v", ErrSizeMismatch, encA, encC)
	}
	styleIn, err := p.StyleInput(transferCtx)
	if err != nil {
		return err
	}
	if _, err := slotOffset(styleIn, encA.NumBytes(), 0); err != nil {
		return err
	}

	b.BeginScope(ScopeInterpolate)
	defer b.EndScope()

	dst := styleIn.Register(b)
	if styleIn.NumBytes() != encA.NumBytes() {
		dst = b.CreateTransientBuffer(graph.BufferDesc{
			Label: "InterpolatedStyle",
			Size:  encA.NumBytes(),
			Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
		})
	}
	if err := bridge.InterpolateBuffers(b, dst, encA.Register(b), encC.Register(b), alpha); err != nil {
		return err
	}
	if dst.IsExternal() {
		return nil
	}
	return b.AddCopyPass("CopyInterpolatedStyle", graph.CopyOp{
		Src:  dst,
		Dst:  styleIn.Register(b),
		Size: encA.NumBytes(),
	})
}
