package styletransfer

import (
	"errors"
	"image/color"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/styletransfer/capture"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/postprocess"
)

type recordingCapture struct {
	p      *recordingProvider
	label  string
	passes []*graph.Pass
}

func (c *recordingCapture) AddPasses(passes []*graph.Pass) { c.passes = append(c.passes, passes...) }

func (c *recordingCapture) End(error) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.ended = append(c.p.ended, c)
	return nil
}

type recordingProvider struct {
	mu    sync.Mutex
	ended []*recordingCapture
}

func (*recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) BeginCapture(label string) (capture.Capture, error) {
	return &recordingCapture{p: p, label: label}, nil
}

func (p *recordingProvider) captures() []*recordingCapture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*recordingCapture(nil), p.ended...)
}

func TestExtensionSubscribesOneStage(t *testing.T) {
	ext := newExtension(postprocess.Scope{}, postprocess.StageTonemap, inference.Observer{}, newContextRef(inference.NoContext))
	if _, ok := ext.SubscribeToPass(postprocess.StageTonemap); !ok {
		t.Error("not subscribed to tonemap")
	}
	for _, s := range []postprocess.Stage{postprocess.StageMotionBlur, postprocess.StageFXAA, postprocess.StageVisualizeDepthOfField} {
		if _, ok := ext.SubscribeToPass(s); ok {
			t.Errorf("subscribed to %v", s)
		}
	}
}

func TestExtensionGate(t *testing.T) {
	s, dev := newSubsystem(t)
	transfer, _ := s.Networks()
	owner := inference.NewOwner(transfer)
	ref := newContextRef(inference.NoContext)
	ext := newExtension(postprocess.Scope{}, postprocess.StageTonemap, owner.Observer(), ref)

	tests := []struct {
		name    string
		enabled bool
		ctx     inference.ContextHandle
		release bool
	}{
		{"disabled", false, 0, false},
		{"no context", true, inference.NoContext, false},
		{"network released", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext.SetEnabled(tt.enabled)
			ref.Store(tt.ctx)
			if tt.release {
				owner.Release()
			}
			rec := graph.NewRecorder(dev)
			scene := postprocess.Texture{Image: rec.RegisterExternalImage(sceneImage(t, dev, color.White))}
			got := ext.postProcess(rec, postprocess.View{}, postprocess.Inputs{SceneColor: scene})
			if got != scene {
				t.Error("inactive extension replaced the scene color")
			}
			if n := len(rec.Passes()); n != 0 {
				t.Errorf("recorded %d passes", n)
			}
		})
	}
}

func TestExtensionPassesThroughUnsampleableScene(t *testing.T) {
	s, dev := newSubsystem(t)
	if err := s.Start(postprocess.Scope{}); err != nil {
		t.Fatal(err)
	}
	rec := graph.NewRecorder(dev)
	scene := postprocess.Texture{Image: rec.CreateTransientImage(graph.ImageDesc{Label: "scene", Width: 2, Height: 2})}
	got := s.Session().Extension().postProcess(rec, postprocess.View{}, postprocess.Inputs{SceneColor: scene})
	if got != scene || len(rec.Passes()) != 0 {
		t.Error("scene color without texture binding was stylized")
	}
}

func TestExtensionPanicsOnContractViolation(t *testing.T) {
	s, dev := newSubsystem(t)
	transfer, _ := s.Networks()
	owner := inference.NewOwner(transfer)
	defer owner.Release()
	ext := newExtension(postprocess.Scope{}, postprocess.StageTonemap, owner.Observer(), newContextRef(42))
	ext.SetEnabled(true)

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok {
			t.Fatalf("recovered %v, want an error panic", r)
		}
		if !errors.Is(err, inference.ErrUnknownContext) || !strings.HasPrefix(err.Error(), "styletransfer: content input") {
			t.Errorf("panic = %v", err)
		}
	}()
	rec := graph.NewRecorder(dev)
	scene := postprocess.Texture{Image: rec.RegisterExternalImage(sceneImage(t, dev, color.White))}
	ext.postProcess(rec, postprocess.View{}, postprocess.Inputs{SceneColor: scene})
}

func TestExtensionRecordsInOrder(t *testing.T) {
	s, dev := newSubsystem(t)
	if err := s.Start(postprocess.Scope{}); err != nil {
		t.Fatal(err)
	}
	rec := graph.NewRecorder(dev)
	scene := postprocess.Texture{Image: rec.RegisterExternalImage(sceneImage(t, dev, color.White))}
	out := postprocess.Texture{Image: rec.RegisterExternalImage(outputImage(t, dev))}
	got := s.Session().Extension().postProcess(rec, postprocess.View{}, postprocess.Inputs{SceneColor: scene, OverrideOutput: out})
	if got != out {
		t.Error("override output not returned")
	}

	want := []graph.PassKind{graph.PassCompute, graph.PassHost, graph.PassCompute, graph.PassRaster}
	passes := rec.Passes()
	if len(passes) != len(want) {
		t.Fatalf("recorded %d passes, want %d", len(passes), len(want))
	}
	for i, p := range passes {
		if p.Kind != want[i] {
			t.Errorf("pass %d (%s) is %v, want %v", i, p.Name, p.Kind, want[i])
		}
	}
}

func TestCaptureFrames(t *testing.T) {
	p := &recordingProvider{}
	capture.Register(p)
	t.Cleanup(func() { capture.Unregister(p.Name()) })

	s, dev := newSubsystem(t)
	if err := s.Start(postprocess.Scope{}); err != nil {
		t.Fatal(err)
	}
	s.Session().Extension().CaptureFrames(1)

	scene := sceneImage(t, dev, color.White)
	for frame := uint64(1); frame <= 2; frame++ {
		if err := s.RenderFrame(postprocess.View{Frame: frame}, scene, nil, nil); err != nil {
			t.Fatal(err)
		}
	}

	caps := p.captures()
	if len(caps) != 1 {
		t.Fatalf("captures = %d, want 1", len(caps))
	}
	if caps[0].label != "StyleTransfer frame 1" || len(caps[0].passes) == 0 {
		t.Errorf("capture %q with %d passes", caps[0].label, len(caps[0].passes))
	}
}
