package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadRequiresMilestoneCredentials(t *testing.T) {
	clearEnv(t, "MILESTONE_SERVER_URL", "MILESTONE_USERNAME", "MILESTONE_PASSWORD")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() error = nil, want error for missing required fields")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	os.Setenv("MILESTONE_SERVER_URL", "https://vms.example.com")
	os.Setenv("MILESTONE_USERNAME", "user")
	os.Setenv("MILESTONE_PASSWORD", "pass")
	t.Cleanup(func() {
		os.Unsetenv("MILESTONE_SERVER_URL")
		os.Unsetenv("MILESTONE_USERNAME")
		os.Unsetenv("MILESTONE_PASSWORD")
	})
	clearEnv(t, "PIPELINE_DEPTH", "HTTP_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PipelineDepth != 8 {
		t.Fatalf("PipelineDepth = %d, want default 8", cfg.PipelineDepth)
	}
	if cfg.HTTPPort != 8080 {
		t.Fatalf("HTTPPort = %d, want default 8080", cfg.HTTPPort)
	}
}

func TestLoadClampsPipelineDepth(t *testing.T) {
	os.Setenv("MILESTONE_SERVER_URL", "https://vms.example.com")
	os.Setenv("MILESTONE_USERNAME", "user")
	os.Setenv("MILESTONE_PASSWORD", "pass")
	os.Setenv("PIPELINE_DEPTH", "999")
	t.Cleanup(func() {
		os.Unsetenv("MILESTONE_SERVER_URL")
		os.Unsetenv("MILESTONE_USERNAME")
		os.Unsetenv("MILESTONE_PASSWORD")
		os.Unsetenv("PIPELINE_DEPTH")
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PipelineDepth != 32 {
		t.Fatalf("PipelineDepth = %d, want clamped to 32", cfg.PipelineDepth)
	}
}
