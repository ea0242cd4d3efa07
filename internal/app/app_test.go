package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/config"
	"github.com/tatianab/atelos/internal/seed"
)

func TestOpenStoreAndSeed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			cfg := &config.Config{Storage: backend, SaveDir: filepath.Join(dir, backend), SQLitePath: filepath.Join(dir, "atelos.db")}
			store, err := OpenStore(ctx, cfg, slog.Default())
			if err != nil {
				t.Fatal(err)
			}
			defer store.Close()

			for i := 0; i < 2; i++ {
				if err := SeedStore(ctx, store, slog.Default()); err != nil {
					t.Fatalf("SeedStore: %v", err)
				}
			}
			list, err := store.ListActive(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 1 || list[0].ScenarioID != seed.ShelterZero {
				t.Errorf("Expected the seed scenario once, got %+v", list)
			}
		})
	}
}

func TestImportScenario(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, &config.Config{Storage: "file", SaveDir: t.TempDir()}, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	good := filepath.Join(t.TempDir(), "good.yaml")
	if err := os.WriteFile(good, []byte("scenarioId: tiny\ntitle: Tiny\nstatus: draft\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	id, err := ImportScenario(ctx, store, good)
	if err != nil || id != "tiny" {
		t.Fatalf("Expected draft import to succeed, got %q %v", id, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("scenarioId: tiny\ntitle: Tiny\nstatus: active\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ImportScenario(ctx, store, bad); !apperrors.IsCode(err, apperrors.Validation) {
		t.Errorf("Expected incomplete active scenario to be rejected, got %v", err)
	}
}

func TestNewEngineRejectsMissingKeywordsFile(t *testing.T) {
	cfg := &config.Config{GeminiAPIKey: "k", KeywordsFile: filepath.Join(t.TempDir(), "missing.yaml")}
	if _, _, err := NewEngine(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("Expected a missing keywords file to be reported")
	}
}
