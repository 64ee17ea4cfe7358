package styletransfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/styletransfer/backend"
	"github.com/gogpu/styletransfer/config"
	_ "github.com/gogpu/styletransfer/backend/software" // registers the software backend
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/imageio"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/postprocess"
	"github.com/gogpu/styletransfer/render"
	"github.com/gogpu/styletransfer/style"
)

var (
	// ErrClosed is returned by operations on a closed subsystem.
	ErrClosed = errors.New("styletransfer: subsystem closed")

	// ErrNetworksNotLoaded is returned when stylization needs networks
	// that are not loaded.
	ErrNetworksNotLoaded = errors.New("styletransfer: networks not loaded")

	// ErrNoSession is returned by style operations without a session.
	ErrNoSession = errors.New("styletransfer: no stylization session")

	// ErrNoSettings is returned by LoadNetworks without settings.
	ErrNoSettings = errors.New("styletransfer: no settings")

	// ErrSessionActive is returned by Start while a session for another
	// scope is running.
	ErrSessionActive = errors.New("styletransfer: session active for another scope")
)

// Subsystem owns the style transfer networks and at most one stylization
// session.
//
// Subsystem methods are safe for concurrent use; they are serialized and
// form the control timeline.
type Subsystem struct {
	opts       options
	dev        graph.Device
	ownsDevice bool
	thread     *render.Thread
	pipeline   *postprocess.Pipeline

	mu          sync.Mutex
	unsubscribe func()
	closed      bool

	transfer      *inference.Owner
	prediction    *inference.Owner
	transferMgr   *inference.ContextManager
	predictionMgr *inference.ContextManager
	styles        *style.Pipeline

	session *Session
	elapsed time.Duration
}

// New creates a subsystem. Without WithDevice it opens the backend named
// by WithBackend, defaulting to STYLETRANSFER_BACKEND and then to the best
// available one.
func New(opts ...Option) (*Subsystem, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &Subsystem{opts: o, dev: o.device, pipeline: o.pipeline}
	if s.dev == nil {
		dev, err := backend.OpenNamed(o.backend)
		if err != nil {
			return nil, fmt.Errorf("styletransfer: open device: %w", err)
		}
		s.dev, s.ownsDevice = dev, true
	}
	if s.pipeline == nil {
		s.pipeline = postprocess.NewPipeline()
	}
	s.thread = render.NewThread(s.dev)
	if o.toggle != nil {
		s.unsubscribe = o.toggle.Subscribe(s.handleToggle)
	}
	slogger().Info("styletransfer: subsystem created", "device", s.dev.Name())
	return s, nil
}

// Device returns the device graphs execute on.
func (s *Subsystem) Device() graph.Device { return s.dev }

// Thread returns the rendering timeline.
func (s *Subsystem) Thread() *render.Thread { return s.thread }

// PostProcess returns the pipeline the extension registers with.
func (s *Subsystem) PostProcess() *postprocess.Pipeline { return s.pipeline }

// Session returns the active session, or nil.
func (s *Subsystem) Session() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Networks returns the transfer and prediction networks, nil when not
// loaded.
func (s *Subsystem) Networks() (transfer, prediction inference.Network) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfer.Network(), s.prediction.Network()
}

// LoadNetworks creates and loads the networks named by the settings,
// concurrently. Any running session is stopped first.
func (s *Subsystem) LoadNetworks(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.loadNetworks(ctx)
}

func (s *Subsystem) loadNetworks(ctx context.Context) error {
	settings := s.opts.settings
	if settings == nil {
		return ErrNoSettings
	}
	transfer := s.opts.newNetwork(s.dev)
	prediction := s.opts.newNetwork(s.dev)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loadNetwork(gctx, transfer, settings.TransferNetwork) })
	g.Go(func() error { return loadNetwork(gctx, prediction, settings.PredictionNetwork) })
	if err := g.Wait(); err != nil {
		slogger().Error("styletransfer: load networks", "err", err)
		s.closeNetworks(transfer, prediction)
		return err
	}
	return s.useNetworks(transfer, prediction)
}

func loadNetwork(ctx context.Context, n inference.Network, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := n.Load(path); err != nil {
		return fmt.Errorf("styletransfer: load %s: %w", path, err)
	}
	return nil
}

// UseNetworks installs already loaded networks, replacing the current ones.
// Any running session is stopped first. The transfer network must declare
// an input named inference.InputStyleParams.
func (s *Subsystem) UseNetworks(transfer, prediction inference.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.useNetworks(transfer, prediction)
}

func (s *Subsystem) useNetworks(transfer, prediction inference.Network) error {
	if transfer == nil || prediction == nil || !transfer.IsLoaded() || !prediction.IsLoaded() {
		return ErrNetworksNotLoaded
	}
	if _, err := inference.InputIndex(transfer, inference.InputStyleParams); err != nil {
		return fmt.Errorf("styletransfer: transfer network %s: %w", transfer.Name(), err)
	}
	for _, n := range []inference.Network{transfer, prediction} {
		if err := n.SetDeviceType(inference.DeviceGPU); err != nil {
			return fmt.Errorf("styletransfer: %s: %w", n.Name(), err)
		}
	}

	if err := s.stop(); err != nil {
		slogger().Warn("styletransfer: stop before network change", "err", err)
	}
	s.releaseNetworks()

	s.transfer = inference.NewOwner(transfer)
	s.prediction = inference.NewOwner(prediction)
	s.transferMgr = inference.NewContextManager(transfer)
	s.predictionMgr = inference.NewContextManager(prediction)
	s.transferMgr.SetLimit(config.MaxContexts)
	s.predictionMgr.SetLimit(config.MaxContexts)
	s.styles = &style.Pipeline{Prediction: prediction, Transfer: transfer}
	slogger().Info("styletransfer: networks ready", "transfer", transfer.Name(), "prediction", prediction.Name())
	return nil
}

// closer is implemented by networks holding device memory.
type closer interface {
	Close()
}

// closeNetworks releases network memory on the rendering timeline.
func (s *Subsystem) closeNetworks(ns ...inference.Network) {
	err := s.thread.Do("CloseNetworks", func(context.Context, *graph.Recorder) error {
		for _, n := range ns {
			if c, ok := n.(closer); ok {
				c.Close()
			}
		}
		return nil
	})
	if err != nil {
		slogger().Warn("styletransfer: close networks", "err", err)
	}
}

func (s *Subsystem) releaseNetworks() {
	transfer, prediction := s.transfer.Network(), s.prediction.Network()
	if transfer == nil && prediction == nil {
		return
	}
	s.transfer.Release()
	s.prediction.Release()
	s.closeNetworks(transfer, prediction)
	s.transfer, s.prediction = nil, nil
	s.transferMgr, s.predictionMgr = nil, nil
	s.styles = nil
}

// Start starts stylizing the views matching scope. It creates the transfer
// context, a prediction context per configured style image (up to
// style.MaxSlots) and registers the per-frame extension. A running session
// for the same scope is re-enabled instead; one for another scope is left
// untouched and ErrSessionActive is returned, so call Stop first to switch
// scopes. On failure no partial session remains.
func (s *Subsystem) Start(scope postprocess.Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.start(scope)
}

func (s *Subsystem) start(scope postprocess.Scope) error {
	if sess := s.session; sess != nil {
		if sess.scope != scope {
			return fmt.Errorf("%w: running for %+v, requested %+v", ErrSessionActive, sess.scope, scope)
		}
		sess.ext.SetEnabled(true)
		return nil
	}
	transfer, prediction := s.transfer.Network(), s.prediction.Network()
	if transfer == nil || prediction == nil || !transfer.IsLoaded() || !prediction.IsLoaded() {
		slogger().Error("styletransfer: not all networks were loaded, cannot stylize")
		return ErrNetworksNotLoaded
	}
	for _, n := range []inference.Network{transfer, prediction} {
		if err := inference.RequireGPU(n); err != nil {
			slogger().Error("styletransfer: start", "err", err)
			return err
		}
	}

	transferCtx, err := s.createContext(s.transferMgr)
	if err != nil {
		slogger().Error("styletransfer: create transfer context", "err", err)
		return err
	}
	sess := &Session{
		id:       uuid.NewString(),
		scope:    scope,
		transfer: newContextRef(transferCtx),
	}
	s.session = sess

	if err := s.applyConfiguredStyles(); err != nil {
		slogger().Error("styletransfer: initial style", "err", err)
		return errors.Join(err, s.stop())
	}

	sess.ext = newExtension(scope, s.opts.stage, s.transfer.Observer(), sess.transfer)
	sess.unregister = s.pipeline.Register(sess.ext)
	sess.ext.SetEnabled(true)
	slogger().Info("styletransfer: session started",
		"session", sess.id, "viewport", scope.Viewport, "world", scope.World, "styles", sess.slots.Len())
	return nil
}

// applyConfiguredStyles loads the style images of the settings into style
// slots, or uploads the first pre-baked encoding when there are none.
func (s *Subsystem) applyConfiguredStyles() error {
	settings := s.opts.settings
	if settings == nil {
		return nil
	}
	images := settings.StyleImages
	if len(images) > style.MaxSlots {
		slogger().Warn("styletransfer: extra style images ignored", "count", len(images), "slots", style.MaxSlots)
		images = images[:style.MaxSlots]
	}
	for _, path := range images {
		img, err := imageio.Load(path)
		if err != nil {
			return err
		}
		if _, err := s.addStyle(img); err != nil {
			return fmt.Errorf("styletransfer: style %s: %w", path, err)
		}
	}
	if len(images) == 0 && len(settings.StyleEncodings) > 0 {
		return s.updateStyleFile(settings.StyleEncodings[0])
	}
	return nil
}

// createContext creates an inference context on the rendering timeline.
func (s *Subsystem) createContext(m *inference.ContextManager) (inference.ContextHandle, error) {
	h := inference.NoContext
	err := s.thread.Do("CreateInferenceContext", func(context.Context, *graph.Recorder) error {
		var err error
		h, err = m.Create()
		return err
	})
	return h, err
}

// Stop stops stylizing: the extension is disabled, the rendering timeline
// flushed, and every context of the session destroyed. Stop without a
// session is a no-op.
func (s *Subsystem) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop()
}

func (s *Subsystem) stop() error {
	sess := s.session
	if sess == nil {
		return nil
	}
	if sess.ext != nil {
		sess.ext.SetEnabled(false)
	}
	flushErr := s.thread.Flush()
	if sess.unregister != nil {
		sess.unregister()
	}

	transferCtx := sess.transfer.Load()
	slots := sess.slots.All()
	destroyErr := s.thread.Do("DestroyInferenceContexts", func(context.Context, *graph.Recorder) error {
		var errs []error
		for _, sl := range slots {
			h := sl.Context
			errs = append(errs, s.predictionMgr.Destroy(&h))
		}
		errs = append(errs, s.transferMgr.Destroy(&transferCtx))
		return errors.Join(errs...)
	})
	sess.transfer.Store(inference.NoContext)
	sess.slots.Clear()
	s.session = nil
	s.elapsed = 0

	slogger().Info("styletransfer: session stopped", "session", sess.id)
	return errors.Join(flushErr, destroyErr)
}

// handleToggle follows the runtime toggle: any session is stopped; when
// switched on, missing networks are loaded and stylization starts.
func (s *Subsystem) handleToggle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if err := s.stop(); err != nil {
		slogger().Warn("styletransfer: stop on toggle", "err", err)
	}
	if !enabled {
		return
	}
	if s.transfer.Network() == nil || s.prediction.Network() == nil {
		if err := s.loadNetworks(context.Background()); err != nil {
			return
		}
	}
	if err := s.start(s.configuredScope()); err != nil {
		slogger().Error("styletransfer: start on toggle", "err", err)
	}
}

func (s *Subsystem) configuredScope() postprocess.Scope {
	if s.opts.settings == nil {
		return postprocess.Scope{}
	}
	return postprocess.Scope{Viewport: s.opts.settings.Viewport, World: s.opts.settings.World}
}

// Tick advances the interpolation curve by dt. With two style slots and a
// configured curve, the transfer style input is set to the blend of the two
// slots' encodings at the curve value.
func (s *Subsystem) Tick(dt time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	sess := s.session
	if sess == nil || sess.slots.Len() < 2 || s.opts.settings == nil || s.opts.settings.Curve.IsEmpty() {
		return nil
	}
	s.elapsed += dt
	alpha := float32(s.opts.settings.Curve.Eval(s.elapsed.Seconds()))

	var a, b inference.ContextHandle
	for _, sl := range sess.slots.All() {
		switch sl.Index {
		case 0:
			a = sl.Context
		case 1:
			b = sl.Context
		}
	}
	return s.interpolateStyles(a, b, alpha)
}

// RenderFrame runs the post-process chain for one frame on the rendering
// timeline. mask and output may be nil; with an output, the chain's result
// ends up in it.
func (s *Subsystem) RenderFrame(view postprocess.View, sceneColor, mask, output graph.PooledImage) error {
	if sceneColor == nil {
		return fmt.Errorf("styletransfer: %w: scene color", graph.ErrNilResource)
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.thread.Do("RenderFrame", func(_ context.Context, rec *graph.Recorder) error {
		f := postprocess.Frame{
			View:       view,
			SceneColor: postprocess.Texture{Image: rec.RegisterExternalImage(sceneColor)},
		}
		if mask != nil {
			f.Mask = rec.RegisterExternalImage(mask)
		}
		if output != nil {
			f.FinalOutput = postprocess.Texture{Image: rec.RegisterExternalImage(output)}
		}
		_, err := s.pipeline.Render(rec, f)
		return err
	})
}

// Close stops the session, releases the networks, stops the rendering
// timeline and closes a device the subsystem opened.
func (s *Subsystem) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	err := s.stop()
	s.releaseNetworks()
	err = errors.Join(err, s.thread.Close())
	if s.ownsDevice {
		s.dev.Close()
	}
	return err
}
