// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package inference

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// HostTensor is a tensor read back to the host for an operator.
type HostTensor struct {
	TensorDesc
	Data []float32
}

// Operator is the computation a HostNetwork performs.
type Operator struct {
	// Check validates a manifest for the operator. Optional.
	Check func(m *Manifest) error

	// Run fills out from in. Output data slices are zeroed and sized to
	// the declared shapes.
	Run func(m *Manifest, in, out []HostTensor) error
}

var (
	operatorsMu sync.RWMutex
	operators   = make(map[string]Operator)
)

// RegisterOperator registers an operator under name, replacing any
// previous registration.
func RegisterOperator(name string, op Operator) {
	operatorsMu.Lock()
	defer operatorsMu.Unlock()
	operators[name] = op
}

// Operators returns the registered operator names, sorted.
func Operators() []string {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()
	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupOperator(name string) (Operator, bool) {
	operatorsMu.RLock()
	defer operatorsMu.RUnlock()
	op, ok := operators[name]
	return op, ok
}

// Built-in operator names.
const (
	OperatorIdentity   = "identity"
	OperatorColorStats = "color-stats"
	OperatorAdaIN      = "adain"
)

// StatsSize is the number of leading encoding elements color-stats writes
// and adain reads: per-channel mean then per-channel standard deviation.
const StatsSize = 6

const stdEpsilon = 1e-5

func init() {
	RegisterOperator(OperatorIdentity, Operator{Check: checkIdentity, Run: runIdentity})
	RegisterOperator(OperatorColorStats, Operator{Check: checkColorStats, Run: runColorStats})
	RegisterOperator(OperatorAdaIN, Operator{Check: checkAdaIN, Run: runAdaIN})
}

var errOperatorShape = errors.New("operator shape mismatch")

func isRGBImage(d TensorDesc) bool {
	return len(d.Shape) == 4 && d.Shape[0] == 1 && d.Shape[3] == 3
}

// identity copies input 0 to output 0.
func checkIdentity(m *Manifest) error {
	if m.Inputs[0].Shape.Volume() != m.Outputs[0].Shape.Volume() {
		return fmt.Errorf("%w: %v -> %v", errOperatorShape, m.Inputs[0].Shape, m.Outputs[0].Shape)
	}
	return nil
}

func runIdentity(_ *Manifest, in, out []HostTensor) error {
	copy(out[0].Data, in[0].Data)
	return nil
}

// color-stats encodes an RGB image as its per-channel mean and standard
// deviation.
func checkColorStats(m *Manifest) error {
	if !isRGBImage(m.Inputs[0]) {
		return fmt.Errorf("%w: input %v is not [1 H W 3]", errOperatorShape, m.Inputs[0].Shape)
	}
	if m.Outputs[0].Shape.Volume() < StatsSize {
		return fmt.Errorf("%w: output %v holds fewer than %d values", errOperatorShape, m.Outputs[0].Shape, StatsSize)
	}
	return nil
}

func runColorStats(_ *Manifest, in, out []HostTensor) error {
	mean, std := channelStats(in[0].Data)
	enc := out[0].Data
	for c := 0; c < 3; c++ {
		enc[c] = mean[c]
		enc[3+c] = std[c]
	}
	return nil
}

func channelStats(rgb []float32) (mean, std [3]float32) {
	n := len(rgb) / 3
	if n == 0 {
		return mean, std
	}
	var sum, sq [3]float64
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			v := float64(rgb[i*3+c])
			sum[c] += v
			sq[c] += v * v
		}
	}
	for c := 0; c < 3; c++ {
		mu := sum[c] / float64(n)
		variance := math.Max(sq[c]/float64(n)-mu*mu, 0)
		mean[c] = float32(mu)
		std[c] = float32(math.Sqrt(variance))
	}
	return mean, std
}

// adain re-normalizes the content image to the statistics stored in slot 0
// of style_params, blended per pixel by the optional weights input and
// globally by the "strength" parameter (default 1).
func checkAdaIN(m *Manifest) error {
	if !isRGBImage(m.Inputs[0]) {
		return fmt.Errorf("%w: content %v is not [1 H W 3]", errOperatorShape, m.Inputs[0].Shape)
	}
	if !m.Outputs[0].Shape.Equal(m.Inputs[0].Shape) {
		return fmt.Errorf("%w: output %v differs from content %v", errOperatorShape, m.Outputs[0].Shape, m.Inputs[0].Shape)
	}
	i, err := indexOf(m.Inputs, InputStyleParams)
	if err != nil {
		return err
	}
	if s := m.Inputs[i].Shape; s.Dim(len(s)-1) < StatsSize {
		return fmt.Errorf("%w: %s %v rows hold fewer than %d values", errOperatorShape, InputStyleParams, s, StatsSize)
	}
	if w, err := indexOf(m.Inputs, InputWeights); err == nil {
		cs, ws := m.Inputs[0].Shape, m.Inputs[w].Shape
		if len(ws) != 4 || ws[1] != cs[1] || ws[2] != cs[2] || ws[3] != 1 {
			return fmt.Errorf("%w: %s %v does not match content %v", errOperatorShape, InputWeights, ws, cs)
		}
	}
	return nil
}

func runAdaIN(m *Manifest, in, out []HostTensor) error {
	content := in[0].Data
	si, err := indexOf(m.Inputs, InputStyleParams)
	if err != nil {
		return err
	}
	style := in[si].Data
	var weights []float32
	if wi, err := indexOf(m.Inputs, InputWeights); err == nil {
		weights = in[wi].Data
	}
	strength := float32(m.Param("strength", 1))

	cMean, cStd := channelStats(content)
	dst := out[0].Data
	for i := 0; i < len(content)/3; i++ {
		w := strength
		if weights != nil {
			w *= weights[i]
		}
		for c := 0; c < 3; c++ {
			x := content[i*3+c]
			norm := (x - cMean[c]) / (cStd[c] + stdEpsilon)
			styled := norm*style[3+c] + style[c]
			dst[i*3+c] = clamp01(x + w*(styled-x))
		}
	}
	return nil
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
