// Package config holds the process configuration: environment variables,
// the settings file, the runtime enable toggle and the interpolation curve.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// Set via STYLETRANSFER_DEBUG in the environment
	Debug bool
	// Set via STYLETRANSFER_BACKEND in the environment
	Backend string
	// Set via STYLETRANSFER_CAPTURE_DIR in the environment
	CaptureDir string
	// Set via STYLETRANSFER_ENABLED in the environment
	Enabled bool
	// Set via STYLETRANSFER_MAX_CONTEXTS in the environment
	MaxContexts int
)

type EnvVar struct {
	Name        string
	Value       any
	Description string
}

func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"STYLETRANSFER_DEBUG":        {"STYLETRANSFER_DEBUG", Debug, "Show additional debug information (e.g. STYLETRANSFER_DEBUG=1)"},
		"STYLETRANSFER_BACKEND":      {"STYLETRANSFER_BACKEND", Backend, "Execution backend: wgpu or software (default: best available)"},
		"STYLETRANSFER_CAPTURE_DIR":  {"STYLETRANSFER_CAPTURE_DIR", CaptureDir, "Directory for compressed pass traces"},
		"STYLETRANSFER_ENABLED":      {"STYLETRANSFER_ENABLED", Enabled, "Initial state of the stylization toggle"},
		"STYLETRANSFER_MAX_CONTEXTS": {"STYLETRANSFER_MAX_CONTEXTS", MaxContexts, "Maximum inference contexts per network (0 uses the manifest value)"},
	}
}

func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

// Clean quotes and spaces from the value
func clean(key string) string {
	return strings.Trim(os.Getenv(key), "\"' ")
}

func init() {
	LoadConfig()
}

// LoadConfig reads the environment into the package variables.
func LoadConfig() {
	Debug = false
	if debug := clean("STYLETRANSFER_DEBUG"); debug != "" {
		d, err := strconv.ParseBool(debug)
		if err == nil {
			Debug = d
		} else {
			Debug = true
		}
	}

	Backend = strings.ToLower(clean("STYLETRANSFER_BACKEND"))
	CaptureDir = clean("STYLETRANSFER_CAPTURE_DIR")

	Enabled = false
	if en := clean("STYLETRANSFER_ENABLED"); en != "" {
		e, err := strconv.ParseBool(en)
		if err != nil {
			slog.Error("invalid setting, ignoring", "STYLETRANSFER_ENABLED", en, "error", err)
		} else {
			Enabled = e
		}
	}

	MaxContexts = 0
	if mc := clean("STYLETRANSFER_MAX_CONTEXTS"); mc != "" {
		m, err := strconv.Atoi(mc)
		if err != nil || m < 0 {
			slog.Error("invalid setting must not be negative", "STYLETRANSFER_MAX_CONTEXTS", mc, "error", err)
		} else {
			MaxContexts = m
		}
	}
}
