package styletransfer

import (
	"fmt"
	"image"
	"sync/atomic"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/styletransfer/bridge"
	"github.com/gogpu/styletransfer/capture"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/kernel"
	"github.com/gogpu/styletransfer/postprocess"
	"github.com/gogpu/styletransfer/tensor"
)

// ScopePostProcess is the event scope of the per-frame stylization passes.
const ScopePostProcess = "StyleTransfer.PostProcess"

// contextRef is a transfer context handle shared between the control
// timeline, which clears it on stop, and the rendering timeline.
type contextRef struct {
	v atomic.Int32
}

func newContextRef(h inference.ContextHandle) *contextRef {
	r := &contextRef{}
	r.Store(h)
	return r
}

func (r *contextRef) Load() inference.ContextHandle   { return inference.ContextHandle(r.v.Load()) }
func (r *contextRef) Store(h inference.ContextHandle) { r.v.Store(int32(h)) }

// Extension stylizes the scene color of matching views after one
// post-process stage.
//
// Extension methods are safe for concurrent use.
type Extension struct {
	scope   postprocess.Scope
	stage   postprocess.Stage
	network inference.Observer
	context *contextRef

	enabled       atomic.Bool
	captureFrames atomic.Int32
}

var _ postprocess.Extension = (*Extension)(nil)

func newExtension(scope postprocess.Scope, stage postprocess.Stage, network inference.Observer, ctx *contextRef) *Extension {
	return &Extension{scope: scope, stage: stage, network: network, context: ctx}
}

// Scope returns the views the extension applies to.
func (e *Extension) Scope() postprocess.Scope { return e.scope }

// SetEnabled turns stylization on or off. A disabled extension passes the
// scene color through without recording passes.
func (e *Extension) SetEnabled(v bool) { e.enabled.Store(v) }

// Enabled reports whether stylization is on.
func (e *Extension) Enabled() bool { return e.enabled.Load() }

// CaptureFrames captures the passes of the next n stylized frames with the
// registered capture providers.
func (e *Extension) CaptureFrames(n int) {
	if n < 0 {
		n = 0
	}
	e.captureFrames.Store(int32(min(n, 1<<30)))
}

// IsActiveThisFrame implements postprocess.Extension.
func (e *Extension) IsActiveThisFrame(view postprocess.View) bool {
	return e.enabled.Load() && e.scope.Matches(view.Scope)
}

// SubscribeToPass implements postprocess.Extension.
func (e *Extension) SubscribeToPass(stage postprocess.Stage) (postprocess.Callback, bool) {
	if stage != e.stage {
		return nil, false
	}
	return e.postProcess, true
}

// postProcess records the stylization of one frame. Steady-state
// conditions pass the scene color through. Errors while recording are
// contract violations and panic.
func (e *Extension) postProcess(b graph.Builder, view postprocess.View, in postprocess.Inputs) postprocess.Texture {
	network, ctx, ok := e.gate()
	if !ok {
		slogger().Debug("styletransfer: passthrough", "frame", view.Frame, "reason", "inactive")
		return in.SceneColor
	}
	scene := in.SceneColor
	if !scene.IsValid() || !scene.Image.Desc().HasUsage(gputypes.TextureUsageTextureBinding) {
		slogger().Debug("styletransfer: passthrough", "frame", view.Frame, "reason", "scene color not sampleable")
		return in.SceneColor
	}

	if e.takeCapture() {
		start := passCount(b)
		c, err := capture.Begin(fmt.Sprintf("StyleTransfer frame %d", view.Frame))
		if err != nil {
			slogger().Warn("styletransfer: begin capture", "err", err)
		}
		defer func() {
			c.AddPasses(passesSince(b, start))
			if err := c.End(nil); err != nil {
				slogger().Warn("styletransfer: end capture", "err", err)
			}
		}()
	}

	b.BeginScope(ScopePostProcess)
	defer b.EndScope()

	content, err := network.InputTensorForContext(ctx, 0)
	must(err, "content input")
	must(bridge.PixelsToTensor(b, scene.Image, content, kernel.ChannelRGB), "scene color to tensor")

	if idx, err := inference.InputIndex(network, inference.InputWeights); err == nil {
		weights, err := network.InputTensorForContext(ctx, idx)
		must(err, "weights input")
		if in.Mask.IsValid() {
			must(bridge.PixelsToTensor(b, in.Mask, weights, kernel.ChannelGrayscale), "mask to tensor")
		} else {
			// No mask stylizes every pixel fully.
			must(b.AddUploadPass("DefaultWeights", weights.Register(b), 0, onesBytes(weights.Volume())), "default weights")
		}
	}

	must(network.Run(b, ctx), "run transfer network")

	output, err := network.OutputTensorForContext(ctx, 0)
	must(err, "transfer output")
	stylized, err := bridge.TensorToPixels(b, output, scene.Image.Desc())
	must(err, "tensor to scene color")

	if in.HasOverride() {
		full := image.Rect(0, 0, int(stylized.Width()), int(stylized.Height()))
		must(bridge.RescalingCopy(b, stylized, full, in.OverrideOutput.Image, in.OverrideOutput.Rect()), "copy to override output")
		return in.OverrideOutput
	}
	return postprocess.Texture{Image: stylized}
}

// gate returns the transfer network and context when the extension may
// stylize this frame.
func (e *Extension) gate() (inference.Network, inference.ContextHandle, bool) {
	if !e.enabled.Load() {
		return nil, inference.NoContext, false
	}
	network, ok := e.network.Get()
	if !ok {
		return nil, inference.NoContext, false
	}
	ctx := e.context.Load()
	if !ctx.Valid() {
		return nil, inference.NoContext, false
	}
	return network, ctx, true
}

func (e *Extension) takeCapture() bool {
	for {
		n := e.captureFrames.Load()
		if n <= 0 {
			return false
		}
		if e.captureFrames.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// passLister is implemented by builders that expose their recorded passes.
type passLister interface {
	Passes() []*graph.Pass
}

func passCount(b graph.Builder) int {
	if pl, ok := b.(passLister); ok {
		return len(pl.Passes())
	}
	return 0
}

func passesSince(b graph.Builder, start int) []*graph.Pass {
	pl, ok := b.(passLister)
	if !ok {
		return nil
	}
	passes := pl.Passes()
	if start > len(passes) {
		return nil
	}
	return passes[start:]
}

// onesBytes encodes n float32 ones.
func onesBytes(n int64) []byte {
	ones := make([]float32, n)
	for i := range ones {
		ones[i] = 1
	}
	return tensor.Float32Bytes(ones)
}

// must panics with err wrapped in what.
func must(err error, what string) {
	if err != nil {
		panic(fmt.Errorf("styletransfer: %s: %w", what, err))
	}
}
