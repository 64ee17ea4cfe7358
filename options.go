package styletransfer

import (
	"github.com/gogpu/styletransfer/config"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/postprocess"
)

// Option configures a Subsystem during creation.
//
// Example:
//
//	// Default: backend from STYLETRANSFER_BACKEND, no settings, no toggle.
//	s, err := styletransfer.New()
//
//	// Explicit device and runtime toggle.
//	s, err := styletransfer.New(
//	    styletransfer.WithDevice(software.New()),
//	    styletransfer.WithToggle(config.DefaultToggle()),
//	)
type Option func(*options)

// NetworkFactory creates an unloaded network whose tensors live on dev.
type NetworkFactory func(dev graph.Device) inference.Network

type options struct {
	device     graph.Device
	backend    string
	settings   *config.Settings
	toggle     *config.Toggle
	pipeline   *postprocess.Pipeline
	stage      postprocess.Stage
	newNetwork NetworkFactory
}

func defaultOptions() options {
	return options{
		backend: config.Backend,
		stage:   postprocess.StageTonemap,
		newNetwork: func(dev graph.Device) inference.Network {
			return inference.NewHostNetwork(dev)
		},
	}
}

// WithDevice sets the device graphs execute on. The subsystem does not
// close a device passed this way.
func WithDevice(dev graph.Device) Option {
	return func(o *options) {
		o.device = dev
	}
}

// WithBackend opens the named backend when no device is given.
// Empty selects the best available backend.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backend = name
	}
}

// WithSettings sets the network manifests, style sources and
// interpolation curve.
func WithSettings(s *config.Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithToggle subscribes the subsystem to a runtime enable toggle.
// Switching it on stops any session, loads missing networks and starts
// stylizing; switching it off stops.
func WithToggle(t *config.Toggle) Option {
	return func(o *options) {
		o.toggle = t
	}
}

// WithPostProcess sets the post-process pipeline the stylization extension
// registers with. By default the subsystem creates its own.
func WithPostProcess(p *postprocess.Pipeline) Option {
	return func(o *options) {
		o.pipeline = p
	}
}

// WithStage sets the stage after which frames are stylized.
// The default is postprocess.StageTonemap.
func WithStage(s postprocess.Stage) Option {
	return func(o *options) {
		o.stage = s
	}
}

// WithNetworkFactory sets how LoadNetworks creates networks. The default
// creates manifest-driven host networks.
func WithNetworkFactory(f NetworkFactory) Option {
	return func(o *options) {
		if f != nil {
			o.newNetwork = f
		}
	}
}
