// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package tensor

import (
	"log/slog"

	"github.com/gogpu/styletransfer/internal/logging"
)

var logger logging.Var

// SetLogger sets the logger reporting saturated casts. Nil restores silent
// behavior.
func SetLogger(l *slog.Logger) { logger.Store(l) }

func slogger() *slog.Logger { return logger.Load() }
