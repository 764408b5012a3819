package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"harvester/internal/config"
	"harvester/internal/log"
)

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("CACHE_DB_PATH", filepath.Join(t.TempDir(), "harvester.db"))
	t.Setenv("LOG_FORMAT", "json")
	cfg, err := LoadAndValidateConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "9090" {
		t.Fatalf("expected port 9090, got %s", cfg.Port)
	}

	t.Setenv("LOG_FORMAT", "xml")
	if _, err := LoadAndValidateConfig(); err == nil {
		t.Fatal("expected validation error for unknown log format")
	}
}

func TestSetupLoggerStampsComponent(t *testing.T) {
	cfg := &config.Config{LogLevel: "debug", LogFormat: "text"}
	logger := SetupLogger(cfg, log.ComponentCLI)
	if logger.Component() != log.ComponentCLI {
		t.Fatalf("component = %q", logger.Component())
	}

	var buf bytes.Buffer
	l := log.New(log.Config{Format: "json", Output: &buf, Component: log.ComponentCLI})
	l.Info("hello")
	if !strings.Contains(buf.String(), `"component":"cli"`) {
		t.Fatalf("missing component in %s", buf.String())
	}
}
