// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package debug holds assertions that only fire in builds tagged
// styledebug. Release builds compile them down to no-ops so callers can
// leave checks on hot render paths.
package debug

import "fmt"

// Assertf panics with the formatted message when assertions are enabled
// and cond is false.
func Assertf(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Sprintf("styletransfer: assertion failed: "+format, args...))
	}
}
