// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/x448/float16"
)

// Encoding is the on-disk element format of a headerless tensor file.
type Encoding int

const (
	// Float32LE stores little-endian IEEE 754 binary32 elements.
	Float32LE Encoding = iota

	// Float16LE stores little-endian IEEE 754 binary16 elements.
	Float16LE
)

// ErrTruncated is returned when encoded data is not a whole number of elements.
var ErrTruncated = errors.New("tensor: truncated element data")

// String returns the encoding name.
func (e Encoding) String() string {
	if e == Float16LE {
		return "f16"
	}
	return "f32"
}

// ElementBytes returns the encoded size of one element.
func (e Encoding) ElementBytes() int {
	if e == Float16LE {
		return 2
	}
	return 4
}

// EncodingForPath picks the encoding from the file extension:
// ".f16" is half precision, anything else single precision.
func EncodingForPath(path string) Encoding {
	if strings.EqualFold(filepath.Ext(path), ".f16") {
		return Float16LE
	}
	return Float32LE
}

// Float32Bytes encodes values as little-endian float32.
func Float32Bytes(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesFloat32 decodes little-endian float32 values. Trailing bytes that
// do not form a whole element are ignored.
func BytesFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

// Decode reads all of r and returns the payload widened to little-endian
// float32 bytes, ready for upload into a tensor.
func Decode(r io.Reader, enc Encoding) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("tensor: read %s data: %w", enc, err)
	}
	if len(raw)%enc.ElementBytes() != 0 {
		return nil, fmt.Errorf("%w: %d bytes of %s", ErrTruncated, len(raw), enc)
	}
	if enc == Float32LE {
		return raw, nil
	}
	out := make([]byte, len(raw)*2)
	for i := 0; i < len(raw)/2; i++ {
		h := float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:]))
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(h.Float32()))
	}
	return out, nil
}

// Encode writes values to w in the given encoding.
func Encode(w io.Writer, enc Encoding, values []float32) error {
	var buf []byte
	if enc == Float16LE {
		buf = make([]byte, len(values)*2)
		for i, v := range values {
			binary.LittleEndian.PutUint16(buf[i*2:], float16.Fromfloat32(v).Bits())
		}
	} else {
		buf = Float32Bytes(values)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("tensor: write %s data: %w", enc, err)
	}
	return nil
}
