package config

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	cfg, err := parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Model != "gemini-2.5-flash" || cfg.HTTPAddr != ":9779" || cfg.Storage != "file" {
		t.Errorf("Unexpected defaults %+v", cfg)
	}
	if cfg.MaxTurns != 30 || cfg.ProviderTimeout != 45*time.Second {
		t.Errorf("Expected 30 turns and 45s timeout, got %d and %v", cfg.MaxTurns, cfg.ProviderTimeout)
	}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("Expected missing API key to be reported")
	}
}

func TestOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("ATELOS_STORAGE", "sqlite")
	t.Setenv("ATELOS_MAX_TURNS", "12")
	t.Setenv("ATELOS_LOG_LEVEL", "DEBUG")
	cfg, err := parse()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage != "sqlite" || cfg.MaxTurns != 12 || cfg.LogLevel != "debug" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if err := cfg.RequireAPIKey(); err != nil {
		t.Errorf("Expected API key to be accepted, got %v", err)
	}
}

func TestInvalidValues(t *testing.T) {
	for name, kv := range map[string][2]string{
		"storage":   {"ATELOS_STORAGE", "postgres"},
		"turns":     {"ATELOS_MAX_TURNS", "-1"},
		"log level": {"ATELOS_LOG_LEVEL", "loud"},
		"timeout":   {"ATELOS_PROVIDER_TIMEOUT", "soon"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := parse(); err == nil {
				t.Errorf("Expected %s=%s to be rejected", kv[0], kv[1])
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogLevel: "warn", LogFormat: "json"}
	var buf bytes.Buffer
	logger, closer, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("Unexpected log output %q", out)
	}
}

func TestNewLoggerToFile(t *testing.T) {
	cfg := &Config{LogLevel: "info", LogFormat: "text", LogFile: filepath.Join(t.TempDir(), "atelos.log")}
	var buf bytes.Buffer
	logger, closer, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("to file")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected nothing on the writer, got %q", buf.String())
	}
}
