package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/spf13/cobra"

	"github.com/gogpu/styletransfer"
	"github.com/gogpu/styletransfer/config"
	"github.com/gogpu/styletransfer/graph"
	"github.com/gogpu/styletransfer/imageio"
	"github.com/gogpu/styletransfer/postprocess"
)

func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run FRAME",
		Short: "Stylize a frame",
		Long: `Stylize a frame with the networks and styles of a settings file.

With --frames greater than one the frame is rendered repeatedly while the
interpolation curve advances by 1/--fps seconds per frame, and each result is
written with the frame number appended to the output name.`,
		Args: cobra.ExactArgs(1),
		RunE: runHandler,
	}
	cmd.Flags().StringP("settings", "s", "", "Settings file (required)")
	cmd.Flags().StringP("output", "o", "stylized.png", "Output image")
	cmd.Flags().String("mask", "", "Weighting mask image")
	cmd.Flags().String("backend", "", "Execution backend (default: STYLETRANSFER_BACKEND or best available)")
	cmd.Flags().String("encoding", "", "Pre-baked style encoding to use instead of style images")
	cmd.Flags().Int("frames", 1, "Number of frames to render")
	cmd.Flags().Float64("fps", 30, "Frame rate used to advance the interpolation curve")
	cmd.Flags().Int("capture-frames", 0, "Capture the passes of the first N frames (needs STYLETRANSFER_CAPTURE_DIR)")
	_ = cmd.MarkFlagRequired("settings")
	return cmd
}

type runOptions struct {
	settings      string
	output        string
	mask          string
	backend       string
	encoding      string
	frames        int
	fps           float64
	captureFrames int
}

func runFlags(cmd *cobra.Command) (runOptions, error) {
	var (
		o    runOptions
		errs []error
	)
	get := func(name string, dst *string) {
		v, err := cmd.Flags().GetString(name)
		errs = append(errs, err)
		*dst = v
	}
	get("settings", &o.settings)
	get("output", &o.output)
	get("mask", &o.mask)
	get("backend", &o.backend)
	get("encoding", &o.encoding)

	var err error
	o.frames, err = cmd.Flags().GetInt("frames")
	errs = append(errs, err)
	o.fps, err = cmd.Flags().GetFloat64("fps")
	errs = append(errs, err)
	o.captureFrames, err = cmd.Flags().GetInt("capture-frames")
	errs = append(errs, err)
	if err := errors.Join(errs...); err != nil {
		return o, err
	}
	if o.frames < 1 || o.fps <= 0 {
		return o, fmt.Errorf("frames must be positive and fps greater than zero")
	}
	return o, nil
}

func runHandler(cmd *cobra.Command, args []string) error {
	o, err := runFlags(cmd)
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(o.settings)
	if err != nil {
		return err
	}
	if o.encoding != "" {
		settings.StyleImages = nil
		settings.StyleEncodings = []string{o.encoding}
	}
	s, err := styletransfer.New(styletransfer.WithSettings(settings), styletransfer.WithBackend(backendName(o.backend, settings)))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.LoadNetworks(cmd.Context()); err != nil {
		return err
	}
	scope := postprocess.Scope{Viewport: settings.Viewport, World: settings.World}
	if err := s.Start(scope); err != nil {
		return err
	}
	s.Session().Extension().CaptureFrames(o.captureFrames)

	frame, err := imageio.Load(args[0])
	if err != nil {
		return err
	}
	var mask *image.RGBA64
	if o.mask != "" {
		if mask, err = imageio.Load(o.mask); err != nil {
			return err
		}
	}

	r := frameRenderer{s: s}
	defer r.release()
	if err := r.upload(frame, mask); err != nil {
		return err
	}

	step := time.Duration(float64(time.Second) / o.fps)
	for i := range o.frames {
		if i > 0 {
			if err := s.Tick(step); err != nil {
				return err
			}
		}
		view := postprocess.View{Scope: scope, Frame: uint64(i + 1)}
		if err := s.RenderFrame(view, r.scene, r.mask, r.output); err != nil {
			return err
		}
		img, err := r.read()
		if err != nil {
			return err
		}
		path := o.output
		if o.frames > 1 {
			path = numbered(o.output, i+1)
		}
		if err := imageio.Save(path, img); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
	}
	return nil
}

// backendName picks the flag, then the settings file, then the environment.
func backendName(flag string, settings *config.Settings) string {
	switch {
	case flag != "":
		return flag
	case settings.Backend != "":
		return settings.Backend
	}
	return config.Backend
}

func numbered(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s_%04d%s", strings.TrimSuffix(path, ext), n, ext)
}

// frameRenderer holds the device images of one stylized frame. Device
// access goes through the rendering timeline.
type frameRenderer struct {
	s                   *styletransfer.Subsystem
	scene, mask, output graph.PooledImage
}

func (r *frameRenderer) do(name string, fn func(dev graph.Device) error) error {
	return r.s.Thread().Do(name, func(_ context.Context, rec *graph.Recorder) error {
		return fn(rec.Device())
	})
}

func (r *frameRenderer) upload(frame, mask *image.RGBA64) error {
	return r.do("UploadFrame", func(dev graph.Device) error {
		var err error
		b := frame.Bounds()
		if r.scene, err = dev.CreateImage(imageDesc("SceneColor", b, gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)); err != nil {
			return err
		}
		if err := dev.WriteImage(r.scene, frame); err != nil {
			return err
		}
		if r.output, err = dev.CreateImage(imageDesc("FinalOutput", b, gputypes.TextureUsageRenderAttachment|gputypes.TextureUsageStorageBinding|gputypes.TextureUsageCopySrc)); err != nil {
			return err
		}
		if mask == nil {
			return nil
		}
		if r.mask, err = dev.CreateImage(imageDesc("Mask", mask.Bounds(), gputypes.TextureUsageTextureBinding|gputypes.TextureUsageCopyDst)); err != nil {
			return err
		}
		return dev.WriteImage(r.mask, mask)
	})
}

func (r *frameRenderer) read() (*image.RGBA64, error) {
	var img *image.RGBA64
	err := r.do("ReadOutput", func(dev graph.Device) error {
		var err error
		img, err = dev.ReadImage(r.output)
		return err
	})
	return img, err
}

func (r *frameRenderer) release() {
	_ = r.do("ReleaseFrame", func(dev graph.Device) error {
		for _, img := range []graph.PooledImage{r.scene, r.mask, r.output} {
			if img != nil {
				dev.ReleaseImage(img)
			}
		}
		return nil
	})
}

func imageDesc(label string, b image.Rectangle, usage gputypes.TextureUsage) graph.ImageDesc {
	return graph.ImageDesc{
		Label:  label,
		Width:  uint32(b.Dx()),
		Height: uint32(b.Dy()),
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage:  usage,
	}
}
