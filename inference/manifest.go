// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultMaxContexts bounds the contexts of a manifest that sets none.
const DefaultMaxContexts = 4

// ErrManifest is returned for an invalid network manifest.
var ErrManifest = errors.New("inference: invalid manifest")

// Manifest describes a HostNetwork model.
//
//	name: transfer
//	operator: adain
//	max_contexts: 2
//	inputs:
//	  - {name: content, shape: [1, 256, 256, 3]}
//	  - {name: style_params, shape: [2, 6]}
//	outputs:
//	  - {name: stylized, shape: [1, 256, 256, 3]}
//	params:
//	  strength: 0.8
type Manifest struct {
	Name        string             `mapstructure:"name" yaml:"name"`
	Operator    string             `mapstructure:"operator" yaml:"operator"`
	Device      string             `mapstructure:"device" yaml:"device,omitempty"`
	MaxContexts int                `mapstructure:"max_contexts" yaml:"max_contexts,omitempty"`
	Inputs      []TensorDesc       `mapstructure:"inputs" yaml:"inputs"`
	Outputs     []TensorDesc       `mapstructure:"outputs" yaml:"outputs"`
	Params      map[string]float64 `mapstructure:"params" yaml:"params,omitempty"`
}

// ParseManifest decodes a YAML manifest and validates it.
// Values are weakly typed, so "4" and 4 both decode as numbers.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}

	var m Manifest
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReadManifest reads and parses the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("inference: read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks the manifest and fills defaults.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: missing name", ErrManifest)
	}
	if _, err := ParseDeviceType(m.Device); err != nil {
		return fmt.Errorf("%w: %w", ErrManifest, err)
	}
	switch {
	case m.MaxContexts == 0:
		m.MaxContexts = DefaultMaxContexts
	case m.MaxContexts < 0:
		return fmt.Errorf("%w: max_contexts %d", ErrManifest, m.MaxContexts)
	}
	if len(m.Inputs) == 0 || len(m.Outputs) == 0 {
		return fmt.Errorf("%w: %s needs at least one input and one output", ErrManifest, m.Name)
	}
	seen := make(map[string]bool)
	for _, d := range append(append([]TensorDesc(nil), m.Inputs...), m.Outputs...) {
		if d.Name == "" || seen[d.Name] {
			return fmt.Errorf("%w: %s: empty or duplicate tensor name %q", ErrManifest, m.Name, d.Name)
		}
		seen[d.Name] = true
		if err := d.Shape.Validate(); err != nil || d.Shape.Volume() <= 0 {
			return fmt.Errorf("%w: %s: tensor %q has shape %v", ErrManifest, m.Name, d.Name, d.Shape)
		}
	}
	op, ok := lookupOperator(m.Operator)
	if !ok {
		return fmt.Errorf("%w: %s: unknown operator %q", ErrManifest, m.Name, m.Operator)
	}
	if op.Check != nil {
		if err := op.Check(m); err != nil {
			return fmt.Errorf("%w: %s: %s: %w", ErrManifest, m.Name, m.Operator, err)
		}
	}
	return nil
}

// Param returns a named operator parameter or def.
func (m *Manifest) Param(name string, def float64) float64 {
	if v, ok := m.Params[name]; ok {
		return v
	}
	return def
}
