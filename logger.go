package styletransfer

import (
	"log/slog"

	"github.com/gogpu/styletransfer/backend/wgpu"
	"github.com/gogpu/styletransfer/inference"
	"github.com/gogpu/styletransfer/internal/logging"
	"github.com/gogpu/styletransfer/render"
	"github.com/gogpu/styletransfer/tensor"
)

// logger stores the active logger. Accessed atomically so that SetLogger
// can be called concurrently with logging from any goroutine.
var logger logging.Var

// SetLogger configures the logger for styletransfer and all its
// sub-packages. By default, styletransfer produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the default
// silent behavior.
//
// Log levels used by styletransfer:
//   - [slog.LevelDebug]: per-pass diagnostics, passthrough frames
//   - [slog.LevelInfo]: session start and stop, device opened
//   - [slog.LevelWarn]: recoverable issues (capture failures, saturated casts)
//   - [slog.LevelError]: aborted session starts
//
// Example:
//
//	styletransfer.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logger.Store(l)
	l = logger.Load()

	inference.SetLogger(l)
	render.SetLogger(l)
	tensor.SetLogger(l)
	wgpu.SetLogger(l)
}

// Logger returns the current logger used by styletransfer.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logger.Load()
}

func slogger() *slog.Logger { return logger.Load() }
