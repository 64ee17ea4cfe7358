package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// ErrSettings is returned for an invalid settings file.
var ErrSettings = errors.New("config: invalid settings")

// Settings is the stylization settings file.
//
//	transfer_network: nets/transfer.yaml
//	prediction_network: nets/prediction.yaml
//	style_images: [styles/wave.png, styles/scream.jpg]
//	style_encodings: [styles/wave.f16]
//	viewport: main
//	curve:
//	  loop: true
//	  keys:
//	    - {time: 0, value: 0}
//	    - {time: 5, value: 1}
//	    - {time: 10, value: 0}
//
// Relative paths are resolved against the directory of the file.
type Settings struct {
	TransferNetwork   string   `mapstructure:"transfer_network" yaml:"transfer_network"`
	PredictionNetwork string   `mapstructure:"prediction_network" yaml:"prediction_network"`
	StyleImages       []string `mapstructure:"style_images" yaml:"style_images,omitempty"`
	StyleEncodings    []string `mapstructure:"style_encodings" yaml:"style_encodings,omitempty"`
	Backend           string   `mapstructure:"backend" yaml:"backend,omitempty"`
	Viewport          string   `mapstructure:"viewport" yaml:"viewport,omitempty"`
	World             string   `mapstructure:"world" yaml:"world,omitempty"`
	Curve             Curve    `mapstructure:"curve" yaml:"curve,omitempty"`
}

// ParseSettings decodes YAML settings. Values are weakly typed.
func ParseSettings(data []byte) (*Settings, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}

	var s Settings
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &s,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSettings, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadSettings reads the settings file at path and resolves relative paths
// against its directory.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read settings: %w", err)
	}
	s, err := ParseSettings(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.resolve(filepath.Dir(path))
	return s, nil
}

// Validate checks required fields and the curve.
func (s *Settings) Validate() error {
	if s.TransferNetwork == "" {
		return fmt.Errorf("%w: transfer_network is required", ErrSettings)
	}
	if s.PredictionNetwork == "" {
		return fmt.Errorf("%w: prediction_network is required", ErrSettings)
	}
	if err := s.Curve.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrSettings, err)
	}
	return nil
}

func (s *Settings) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	s.TransferNetwork = abs(s.TransferNetwork)
	s.PredictionNetwork = abs(s.PredictionNetwork)
	for i := range s.StyleImages {
		s.StyleImages[i] = abs(s.StyleImages[i])
	}
	for i := range s.StyleEncodings {
		s.StyleEncodings[i] = abs(s.StyleEncodings[i])
	}
}
