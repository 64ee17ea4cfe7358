// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package style

import (
	"fmt"
	"os"

	"github.com/gogpu/styletransfer/tensor"
)

// ReadEncodingFile reads a headerless pre-baked style encoding and returns
// it as little-endian float32 bytes. Files ending in ".f16" hold half
// precision values and are widened.
func ReadEncodingFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	defer f.Close()

	data, err := tensor.Decode(f, tensor.EncodingForPath(path))
	if err != nil {
		return nil, fmt.Errorf("style: %s: %w", path, err)
	}
	return data, nil
}

// WriteEncodingFile writes values as a headerless encoding file in the
// encoding selected by the path's extension.
func WriteEncodingFile(path string, values []float32) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("style: %w", err)
	}
	if err := tensor.Encode(f, tensor.EncodingForPath(path), values); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
