package styletransfer

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/bridge"
	"github.com/gogpu/styletransfer/capture"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/style"
	"github.com/gogpu/styletransfer/tensor"
)

// styleImageDesc describes the uploaded copy of a style image.
func styleImageDesc(label string, img image.Image) graph.ImageDesc {
	b := img.Bounds()
	return graph.ImageDesc{
		Label:  label,
		Width:  tensor.Uint32(int64(b.Dx())),
		Height: tensor.Uint32(int64(b.Dy())),
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	}
}

// AddStyle predicts the encoding of img into the lowest free style slot of
// the session. It returns the slot, whose Context identifies it to
// UpdateStyle, RemoveStyle and InterpolateStyles.
func (s *Subsystem) AddStyle(img image.Image) (style.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return style.Slot{}, err
	}
	return s.addStyle(img)
}

func (s *Subsystem) addStyle(img image.Image) (style.Slot, error) {
	sess := s.session
	if sess.slots.Len() >= style.MaxSlots {
		return style.Slot{}, fmt.Errorf("%w: all %d slots in use", style.ErrSlotRange, style.MaxSlots)
	}
	pctx, err := s.createContext(s.predictionMgr)
	if err != nil {
		slogger().Error("styletransfer: create prediction context", "err", err)
		return style.Slot{}, err
	}
	slot, err := sess.slots.Add(pctx)
	if err == nil {
		err = s.updateStyle(img, slot.Index, pctx)
	}
	if err != nil {
		sess.slots.Remove(pctx)
		return style.Slot{}, errors.Join(err, s.destroyContext(s.predictionMgr, pctx))
	}
	slogger().Info("styletransfer: style added", "session", sess.id, "slot", slot.Index, "context", pctx)
	return slot, nil
}

// UpdateStyle re-predicts the encoding of the slot tracked by pctx from img.
func (s *Subsystem) UpdateStyle(img image.Image, pctx inference.ContextHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	slot, ok := s.session.slots.Find(pctx)
	if !ok {
		return fmt.Errorf("%w: %d", style.ErrUntrackedSlot, pctx)
	}
	return s.updateStyle(img, slot.Index, pctx)
}

// updateStyle records and executes the style update graph, bracketed by
// flushes of the rendering timeline and an optional capture.
func (s *Subsystem) updateStyle(img image.Image, slot int, pctx inference.ContextHandle) error {
	if img == nil || img.Bounds().Empty() {
		return fmt.Errorf("styletransfer: %w", bridge.ErrInvalidImage)
	}
	transferCtx := s.session.transfer.Load()
	if !transferCtx.Valid() || !pctx.Valid() {
		return fmt.Errorf("%w: transfer %d, prediction %d", style.ErrInvalidContext, transferCtx, pctx)
	}
	if err := s.thread.Flush(); err != nil {
		slogger().Warn("styletransfer: flush before style update", "err", err)
	}

	trace, err := capture.Begin("StylePrediction")
	if err != nil {
		slogger().Warn("styletransfer: begin capture", "err", err)
	}
	var pooled graph.PooledImage
	err = s.thread.Do("UpdateStyle", func(_ context.Context, rec *graph.Recorder) error {
		var err error
		pooled, err = rec.Device().CreateImage(styleImageDesc("StyleImage", img))
		if err != nil {
			return err
		}
		if err := rec.Device().WriteImage(pooled, img); err != nil {
			return err
		}
		if err := s.styles.RecordUpdate(rec, rec.RegisterExternalImage(pooled), slot, pctx, transferCtx); err != nil {
			return err
		}
		trace.AddPasses(rec.Passes())
		return nil
	})
	if cerr := trace.End(err); cerr != nil {
		slogger().Warn("styletransfer: end capture", "err", cerr)
	}
	if pooled != nil {
		s.releaseImage(pooled)
	}
	return errors.Join(err, s.thread.Flush())
}

func (s *Subsystem) releaseImage(img graph.PooledImage) {
	err := s.thread.Do("ReleaseStyleImage", func(_ context.Context, rec *graph.Recorder) error {
		rec.Device().ReleaseImage(img)
		return nil
	})
	if err != nil {
		slogger().Warn("styletransfer: release style image", "err", err)
	}
}

// RemoveStyle stops tracking the slot of pctx and destroys the context.
func (s *Subsystem) RemoveStyle(pctx inference.ContextHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	if !s.session.slots.Remove(pctx) {
		return fmt.Errorf("%w: %d", style.ErrUntrackedSlot, pctx)
	}
	if err := s.thread.Flush(); err != nil {
		slogger().Warn("styletransfer: flush before style removal", "err", err)
	}
	return s.destroyContext(s.predictionMgr, pctx)
}

func (s *Subsystem) destroyContext(m *inference.ContextManager, h inference.ContextHandle) error {
	return s.thread.Do("DestroyInferenceContext", func(context.Context, *graph.Recorder) error {
		return m.Destroy(&h)
	})
}

// UpdateStyleRaw uploads a pre-baked style encoding, flat little-endian
// float32, into the transfer style input. The byte count must equal the
// size of the style input.
func (s *Subsystem) UpdateStyleRaw(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	return s.updateStyleRaw(data)
}

func (s *Subsystem) updateStyleRaw(data []byte) error {
	transferCtx := s.session.transfer.Load()
	if err := s.thread.Flush(); err != nil {
		slogger().Warn("styletransfer: flush before style upload", "err", err)
	}
	err := s.thread.Do("UpdateStyleRaw", func(_ context.Context, rec *graph.Recorder) error {
		return s.styles.RecordUpload(rec, transferCtx, data)
	})
	return errors.Join(err, s.thread.Flush())
}

// UpdateStyleFile uploads a pre-baked encoding file. Files ending in .f16
// hold float16 values and are widened before upload.
func (s *Subsystem) UpdateStyleFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	return s.updateStyleFile(path)
}

func (s *Subsystem) updateStyleFile(path string) error {
	data, err := style.ReadEncodingFile(path)
	if err != nil {
		return err
	}
	if err := s.updateStyleRaw(data); err != nil {
		return fmt.Errorf("styletransfer: %s: %w", path, err)
	}
	return nil
}

// InterpolateStyles sets the transfer style input to the blend
// enc(a) + alpha*(enc(b)-enc(a)) of the encodings of two tracked slots.
func (s *Subsystem) InterpolateStyles(a, b inference.ContextHandle, alpha float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSession(); err != nil {
		return err
	}
	return s.interpolateStyles(a, b, alpha)
}

func (s *Subsystem) interpolateStyles(a, b inference.ContextHandle, alpha float32) error {
	sess := s.session
	transferCtx := sess.transfer.Load()
	if err := s.thread.Flush(); err != nil {
		slogger().Warn("styletransfer: flush before interpolation", "err", err)
	}
	err := s.thread.Do("InterpolateStyles", func(_ context.Context, rec *graph.Recorder) error {
		return s.styles.RecordInterpolate(rec, transferCtx, &sess.slots, a, b, alpha)
	})
	return errors.Join(err, s.thread.Flush())
}

// PredictEncoding runs style prediction on img in a temporary context and
// returns the encoding. It needs loaded networks but no session.
func (s *Subsystem) PredictEncoding(img image.Image) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.styles == nil {
		return nil, ErrNetworksNotLoaded
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("styletransfer: %w", bridge.ErrInvalidImage)
	}
	pctx, err := s.createContext(s.predictionMgr)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.destroyContext(s.predictionMgr, pctx); err != nil {
			slogger().Warn("styletransfer: destroy prediction context", "err", err)
		}
	}()

	prediction := s.styles.Prediction
	var pooled graph.PooledImage
	err = s.thread.Do("PredictStyle", func(_ context.Context, rec *graph.Recorder) error {
		in, err := prediction.InputTensorForContext(pctx, 0)
		if err != nil {
			return err
		}
		pooled, err = rec.Device().CreateImage(styleImageDesc("StyleImage", img))
		if err != nil {
			return err
		}
		if err := rec.Device().WriteImage(pooled, img); err != nil {
			return err
		}
		if err := bridge.PixelsToTensor(rec, rec.RegisterExternalImage(pooled), in, kernel.ChannelRGB); err != nil {
			return err
		}
		return prediction.Run(rec, pctx)
	})
	if pooled != nil {
		s.releaseImage(pooled)
	}
	if err != nil {
		return nil, err
	}

	enc, err := s.styles.Encoding(pctx)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, enc.NumBytes())
	err = s.thread.Do("ReadStyleEncoding", func(_ context.Context, rec *graph.Recorder) error {
		return rec.Device().ReadBuffer(enc.Storage(), 0, raw)
	})
	if err != nil {
		return nil, err
	}
	return tensor.BytesFloat32(raw), nil
}

func (s *Subsystem) checkSession() error {
	if s.closed {
		return ErrClosed
	}
	if s.session == nil {
		return ErrNoSession
	}
	return nil
}
