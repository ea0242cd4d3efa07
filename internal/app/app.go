// Package app wires configuration into the stores and engine shared by the
// binaries.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/tatianab/atelos/internal/apperrors"
	"github.com/tatianab/atelos/internal/config"
	"github.com/tatianab/atelos/internal/disclosure"
	"github.com/tatianab/atelos/internal/engine"
	"github.com/tatianab/atelos/internal/seed"
	"github.com/tatianab/atelos/internal/storage"
	"github.com/tatianab/atelos/internal/storage/filestore"
	"github.com/tatianab/atelos/internal/storage/sqlite"
	"github.com/tatianab/atelos/internal/validation"
)

// OpenStore opens the backend selected by cfg.Storage.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "sqlite":
		return sqlite.Open(ctx, cfg.SQLitePath, logger)
	case "file", "":
		return filestore.New(cfg.SaveDir, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

// SeedStore saves each built-in scenario the store does not have yet.
func SeedStore(ctx context.Context, store storage.Store, logger *slog.Logger) error {
	defs, err := seed.Scenarios()
	if err != nil {
		return err
	}
	for _, def := range defs {
		_, err := store.Load(ctx, def.ScenarioID)
		if err == nil {
			continue
		}
		if !apperrors.IsCode(err, apperrors.NotFound) {
			return err
		}
		if err := store.Save(ctx, def); err != nil {
			return fmt.Errorf("seed %q: %w", def.ScenarioID, err)
		}
		logger.Info("seeded built-in scenario", "scenario_id", def.ScenarioID)
	}
	return nil
}

// ImportScenario reads a YAML scenario from path and saves it. Scenarios
// marked testing or active must validate.
func ImportScenario(ctx context.Context, store storage.Store, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	def, err := seed.Parse(data)
	if err != nil {
		return "", err
	}
	if def.Status.Playable() {
		if err := validation.Check(def); err != nil {
			return "", err
		}
	}
	if err := store.Save(ctx, def); err != nil {
		return "", err
	}
	return def.ScenarioID, nil
}

// NewEngine builds the engine with a Gemini provider and the disclosure
// keywords from cfg.KeywordsFile, if set. The returned closer releases the
// provider's client.
func NewEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, io.Closer, error) {
	keywords, err := disclosure.LoadKeywords(cfg.KeywordsFile)
	if err != nil {
		return nil, nil, err
	}
	provider, err := engine.NewGeminiProvider(ctx, cfg.GeminiAPIKey,
		engine.WithModel(cfg.Model),
		engine.WithTimeout(cfg.ProviderTimeout),
		engine.WithRateLimit(cfg.ProviderRPM, 2),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	tracker := disclosure.NewTracker(keywords, logger)
	return engine.New(provider, tracker, logger, cfg.MaxTurns), provider, nil
}
