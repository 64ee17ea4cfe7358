// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tensor

import (
	"math"

	"github.com/gogpu/styletransfer/internal/debug"
)

// Int32 narrows v, saturating at the int32 range.
// Out of range values fail an assertion in debug builds and are logged at
// Warn otherwise.
func Int32(v int64) int32 {
	if v >= math.MinInt32 && v <= math.MaxInt32 {
		return int32(v)
	}
	saturated("int32", v)
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return math.MinInt32
}

// Uint32 narrows v, saturating at the uint32 range.
// Out of range values fail an assertion in debug builds and are logged at
// Warn otherwise.
func Uint32(v int64) uint32 {
	if v >= 0 && v <= math.MaxUint32 {
		return uint32(v)
	}
	saturated("uint32", v)
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return 0
}

func saturated(kind string, v int64) {
	debug.Assertf(false, "%s cast of %d saturates", kind, v)
	slogger().Warn("tensor: saturated cast", "type", kind, "value", v)
}
