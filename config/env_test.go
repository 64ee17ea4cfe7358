package config

import (
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("STYLETRANSFER_DEBUG", "")
	t.Setenv("STYLETRANSFER_BACKEND", "")
	t.Setenv("STYLETRANSFER_ENABLED", "")
	t.Setenv("STYLETRANSFER_MAX_CONTEXTS", "")
	LoadConfig()
	if Debug || Enabled || Backend != "" || MaxContexts != 0 {
		t.Errorf("defaults: Debug=%v Enabled=%v Backend=%q MaxContexts=%d", Debug, Enabled, Backend, MaxContexts)
	}

	t.Setenv("STYLETRANSFER_DEBUG", "yes")
	t.Setenv("STYLETRANSFER_BACKEND", "\"Software\"")
	t.Setenv("STYLETRANSFER_ENABLED", "true")
	t.Setenv("STYLETRANSFER_MAX_CONTEXTS", "3")
	t.Setenv("STYLETRANSFER_CAPTURE_DIR", " /tmp/captures ")
	LoadConfig()
	if !Debug {
		t.Error("unparseable STYLETRANSFER_DEBUG should enable debug")
	}
	if Backend != "software" {
		t.Errorf("Backend = %q", Backend)
	}
	if !Enabled || MaxContexts != 3 || CaptureDir != "/tmp/captures" {
		t.Errorf("Enabled=%v MaxContexts=%d CaptureDir=%q", Enabled, MaxContexts, CaptureDir)
	}

	t.Setenv("STYLETRANSFER_MAX_CONTEXTS", "-1")
	LoadConfig()
	if MaxContexts != 0 {
		t.Errorf("negative MaxContexts accepted: %d", MaxContexts)
	}
}

func TestValues(t *testing.T) {
	t.Setenv("STYLETRANSFER_BACKEND", "wgpu")
	LoadConfig()
	vals := Values()
	if vals["STYLETRANSFER_BACKEND"] != "wgpu" {
		t.Errorf("Values()[BACKEND] = %q", vals["STYLETRANSFER_BACKEND"])
	}
	for k, v := range AsMap() {
		if k != v.Name {
			t.Errorf("key %s names %s", k, v.Name)
		}
		if v.Description == "" {
			t.Errorf("%s has no description", k)
		}
	}
}
