// Package imageio loads style and scene images and writes stylized frames.
//
// Decoding supports PNG, JPEG, GIF, BMP, TIFF and WebP. Images are converted
// to *image.RGBA64, the pixel layout the execution devices upload from.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// I/O errors.
var (
	// ErrUnsupportedFormat is returned when an image cannot be encoded in
	// the format named by a file extension.
	ErrUnsupportedFormat = errors.New("imageio: unsupported format")

	// ErrEmptyData is returned when image data is empty.
	ErrEmptyData = errors.New("imageio: empty data")
)

// Load loads an image from the given file path, detecting the format from
// its content.
func Load(path string) (*image.RGBA64, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("imageio: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, _, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadBytes decodes an image held in memory.
func LoadBytes(data []byte) (*image.RGBA64, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}
	img, _, err := Decode(bytes.NewReader(data))
	return img, err
}

// Decode decodes an image and returns it with its format name.
func Decode(r io.Reader) (*image.RGBA64, string, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("imageio: decode: %w", err)
	}
	return ToRGBA64(img), format, nil
}

// Save writes img to path, choosing PNG or JPEG from the extension.
func Save(path string, img image.Image) error {
	var encode func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		encode = png.Encode
	case ".jpg", ".jpeg":
		encode = func(w io.Writer, m image.Image) error {
			return jpeg.Encode(w, m, &jpeg.Options{Quality: 95})
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("imageio: create file: %w", err)
	}
	if err := encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("imageio: encode: %w", err)
	}
	return f.Close()
}

// ToRGBA64 returns img as an *image.RGBA64 with bounds starting at the
// origin. An RGBA64 already at the origin is returned as is.
func ToRGBA64(img image.Image) *image.RGBA64 {
	b := img.Bounds()
	if m, ok := img.(*image.RGBA64); ok && b.Min == (image.Point{}) {
		return m
	}
	dst := image.NewRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Resize scales img to w x h with bilinear filtering.
func Resize(img image.Image, w, h int) *image.RGBA64 {
	dst := image.NewRGBA64(image.Rect(0, 0, w, h))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

// Solid returns a w x h image filled with c.
func Solid(w, h int, c color.Color) *image.RGBA64 {
	dst := image.NewRGBA64(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, xdraw.Src)
	return dst
}
