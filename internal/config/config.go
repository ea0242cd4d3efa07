package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey    string        `env:"GEMINI_API_KEY"`
	Model           string        `env:"ATELOS_MODEL"            envDefault:"gemini-2.5-flash" validate:"required"`
	HTTPAddr        string        `env:"ATELOS_HTTP_ADDR"        envDefault:":9779"            validate:"required"`
	Storage         string        `env:"ATELOS_STORAGE"          envDefault:"file"             validate:"oneof=file sqlite"`
	SaveDir         string        `env:"ATELOS_SAVE_DIR"         envDefault:".saves"           validate:"required"`
	SQLitePath      string        `env:"ATELOS_SQLITE_PATH"      envDefault:".saves/atelos.db" validate:"required_if=Storage sqlite"`
	MaxTurns        int           `env:"ATELOS_MAX_TURNS"        envDefault:"30"               validate:"gte=0"`
	ProviderTimeout time.Duration `env:"ATELOS_PROVIDER_TIMEOUT" envDefault:"45s"              validate:"gt=0"`
	ProviderRPM     int           `env:"ATELOS_PROVIDER_RPM"     envDefault:"30"               validate:"gte=0"`
	LogLevel        string        `env:"ATELOS_LOG_LEVEL"        envDefault:"info"             validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"ATELOS_LOG_FORMAT"       envDefault:"text"             validate:"oneof=text json"`
	LogFile         string        `env:"ATELOS_LOG_FILE"`
	KeywordsFile    string        `env:"ATELOS_KEYWORDS_FILE"`
	OTelEndpoint    string        `env:"ATELOS_OTEL_ENDPOINT"`
	OTelEnabled     bool          `env:"ATELOS_OTEL_ENABLED"     envDefault:"true"`
}

// LoadConfig loads the configuration from the environment, after reading a
// .env file in the working directory if one exists.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()
	return parse()
}

func parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// RequireAPIKey reports an error when no Gemini API key is configured.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	return nil
}

// NewLogger builds the process logger. When LogFile is set output goes there
// instead of w, which keeps the terminal free for the TUI. The returned
// closer releases the file.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, io.Closer, error) {
	var closer io.Closer = io.NopCloser(nil)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w, closer = f, f
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler), closer, nil
}
