package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrCurve is returned for a malformed interpolation curve.
var ErrCurve = errors.New("config: invalid curve")

// Key is one point of a Curve.
type Key struct {
	Time  float64 `mapstructure:"time" yaml:"time"`
	Value float64 `mapstructure:"value" yaml:"value"`
}

// Curve is a piecewise-linear function of time. Keys are sorted by Time.
type Curve struct {
	Keys []Key `mapstructure:"keys" yaml:"keys"`
	// Loop wraps time into the key range instead of clamping.
	Loop bool `mapstructure:"loop" yaml:"loop,omitempty"`
}

// Validate sorts the keys and rejects duplicate or non-finite times.
func (c *Curve) Validate() error {
	sort.SliceStable(c.Keys, func(i, j int) bool { return c.Keys[i].Time < c.Keys[j].Time })
	for i, k := range c.Keys {
		if math.IsNaN(k.Time) || math.IsInf(k.Time, 0) || math.IsNaN(k.Value) {
			return fmt.Errorf("%w: key %d is not finite", ErrCurve, i)
		}
		if i > 0 && c.Keys[i-1].Time == k.Time {
			return fmt.Errorf("%w: duplicate time %g", ErrCurve, k.Time)
		}
	}
	return nil
}

// IsEmpty reports whether the curve has no keys.
func (c Curve) IsEmpty() bool { return len(c.Keys) == 0 }

// Eval returns the curve value at t. An empty curve evaluates to 0.
func (c Curve) Eval(t float64) float64 {
	n := len(c.Keys)
	switch n {
	case 0:
		return 0
	case 1:
		return c.Keys[0].Value
	}
	first, last := c.Keys[0], c.Keys[n-1]
	if c.Loop {
		span := last.Time - first.Time
		t = first.Time + math.Mod(t-first.Time, span)
		if t < first.Time {
			t += span
		}
	}
	if t <= first.Time {
		return first.Value
	}
	if t >= last.Time {
		return last.Value
	}
	i := sort.Search(n, func(i int) bool { return c.Keys[i].Time > t })
	a, b := c.Keys[i-1], c.Keys[i]
	f := (t - a.Time) / (b.Time - a.Time)
	return a.Value + f*(b.Value-a.Value)
}
