// Package styletransfer stylizes rendered frames with a neural style
// transfer network inside a frame-graph post-process chain.
//
// # Overview
//
// Every frame, the scene color is converted to the transfer network's
// content tensor, the network runs, and its output is converted back into an
// image that replaces the scene color. The transfer network is conditioned on
// a style encoding predicted from a style image by a second network, or
// uploaded from a pre-baked encoding file.
//
// # Quick Start
//
//	import "github.com/gogpu/styletransfer"
//
//	settings, _ := config.LoadSettings("style.yaml")
//	s, err := styletransfer.New(styletransfer.WithSettings(settings))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	if err := s.LoadNetworks(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	if err := s.Start(postprocess.Scope{Viewport: "main"}); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Per frame:
//	s.Tick(dt)
//	s.RenderFrame(view, sceneColor, nil, output)
//
// # Architecture
//
// The module is organized into:
//   - Root: Subsystem (control timeline), Session, Extension (per frame)
//   - bridge: pixel/tensor conversion and interpolation passes
//   - style: style slots and the style update graphs
//   - inference: network contract, context manager, host networks
//   - graph, render: frame graph recording and the rendering timeline
//   - backend: software and wgpu devices
//
// # Timelines
//
// Subsystem methods run on the control timeline and are serialized by the
// subsystem. Graphs are recorded and executed on a render.Thread. Every
// control mutation of state the rendering timeline reads is bracketed by
// Thread.Flush.
package styletransfer
