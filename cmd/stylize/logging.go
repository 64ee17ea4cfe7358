package main

import (
	"io"
	"log/slog"
	"path/filepath"

	"github.com/gogpu/styletransfer/config"
)

func logLevel(verbose bool) slog.Level {
	if verbose || config.Debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.SourceKey {
				source := attr.Value.Any().(*slog.Source)
				source.File = filepath.Base(source.File)
			}
			return attr
		},
	}))
}
