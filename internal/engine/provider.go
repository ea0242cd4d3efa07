package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

// Provider produces narrative text for a prompt.
type Provider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ErrEmptyResponse is returned when the model answers without text.
var ErrEmptyResponse = errors.New("no content returned from model")

// GeminiProvider calls a Gemini model through the generative-ai-go client.
type GeminiProvider struct {
	client    *genai.Client
	model     *genai.GenerativeModel
	modelName string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*GeminiProvider)

func WithModel(name string) Option {
	return func(p *GeminiProvider) {
		if name != "" {
			p.modelName = name
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(p *GeminiProvider) {
		p.timeout = timeout
	}
}

// WithRateLimit caps outgoing requests. requestsPerMinute <= 0 disables the cap.
func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(p *GeminiProvider) {
		if requestsPerMinute <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *GeminiProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewGeminiProvider connects to the Gemini API with apiKey.
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...Option) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	p := &GeminiProvider{
		modelName: "gemini-2.5-flash",
		timeout:   45 * time.Second,
		limiter:   rate.NewLimiter(rate.Limit(0.5), 1),
		logger:    slog.Default(),
		tracer:    otel.Tracer("github.com/tatianab/atelos/internal/engine"),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "gemini")

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	p.client = client
	p.model = client.GenerativeModel(p.modelName)

	p.logger.Debug("gemini provider initialized",
		"model", p.modelName,
		"timeout", p.timeout,
		"rate_limit", fmt.Sprintf("%v req/s", p.limiter.Limit()))
	return p, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

func (p *GeminiProvider) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "gemini.generate", trace.WithAttributes(
		attribute.String("model", p.modelName),
		attribute.Int("prompt_length", len(prompt)),
	))
	defer span.End()

	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rate limit wait")
		return "", fmt.Errorf("rate limit wait failed: %w", err)
	}
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		p.logger.Warn("generation failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		span.SetStatus(codes.Error, "empty response")
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		span.SetStatus(codes.Error, "empty response")
		return "", ErrEmptyResponse
	}
	p.logger.Debug("generation succeeded",
		"duration_ms", time.Since(start).Milliseconds(),
		"response_length", b.Len())
	return b.String(), nil
}
