package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	completionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "nalar",
		Subsystem: "llm",
		Name:      "completion_duration_seconds",
		Help:      "Duration of model completion requests",
	}, []string{"model"})

	completionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nalar",
		Subsystem: "llm",
		Name:      "completion_failures_total",
		Help:      "Number of failed model completion requests",
	}, []string{"model", "reason"})

	completionRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nalar",
		Subsystem: "llm",
		Name:      "completion_retries_total",
		Help:      "Number of transport-level completion retries",
	}, []string{"model"})
)

// Params controls generation determinism and length for a single completion.
type Params struct {
	Temperature float32
	MaxTokens   int
	JSONMode    bool
}

// Gateway sends prompts to a completion endpoint. Retrying a syntactically
// valid but unhelpful reply is not its concern; it only guards transport.
type Gateway interface {
	Complete(ctx context.Context, prompt string, params Params) (string, error)
	IsAvailable(ctx context.Context) bool
}

// Config defines configuration options for the OpenAI-compatible gateway.
// Local inference servers (LM Studio, Ollama, llama.cpp) all speak this wire
// format.
type Config struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	Logger         zerolog.Logger
}

// OpenAIGateway implements Gateway against any OpenAI-compatible chat
// completion endpoint.
type OpenAIGateway struct {
	client *openai.Client
	cfg    Config
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGateway builds a gateway using the provided configuration.
func NewOpenAIGateway(cfg Config) (*OpenAIGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("model base url is required")
	}

	if cfg.Model == "" {
		return nil, fmt.Errorf("model identifier is required")
	}

	if cfg.APIKey == "" {
		cfg.APIKey = "local"
	}

	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	client := openai.NewClientWithConfig(clientConfig)

	return &OpenAIGateway{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/nalar-edu/nalar-api/pkg/llm"),
		logger: cfg.Logger.With().Str("component", "llm_gateway").Logger(),
	}, nil
}

// Complete sends the prompt and returns the raw reply text. Transport faults
// (connection refused, timeout, 5xx) are retried up to MaxRetries with linear
// backoff; a reply that parses badly is returned as-is for the extractor.
func (g *OpenAIGateway) Complete(parent context.Context, prompt string, params Params) (string, error) {
	ctx, span := g.tracer.Start(parent, "llm.complete", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       g.cfg.Model,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.JSONMode {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	var lastErr error
	timedOut := false

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			completionRetries.WithLabelValues(g.cfg.Model).Inc()
			if err := sleepWithContext(ctx, time.Duration(attempt)*g.cfg.RetryBackoff); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "canceled")
				return "", err
			}
		}

		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
		resp, err := g.client.CreateChatCompletion(callCtx, request)
		cancel()
		completionDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())

		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("no choices returned from model")
				continue
			}

			span.SetAttributes(attribute.Int("llm.attempts", attempt+1))
			return resp.Choices[0].Message.Content, nil
		}

		if ctx.Err() != nil {
			span.RecordError(ctx.Err())
			span.SetStatus(codes.Error, "canceled")
			return "", ctx.Err()
		}

		if isTimeout(err) {
			timedOut = true
			lastErr = err
			g.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("model request timed out")
			continue
		}

		if !isRetryable(err) {
			completionFailures.WithLabelValues(g.cfg.Model, "rejected").Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("model completion rejected: %w", err)
		}

		timedOut = false
		lastErr = err
		g.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("model request failed")
	}

	if timedOut {
		completionFailures.WithLabelValues(g.cfg.Model, "timeout").Inc()
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, "timeout")
		return "", fmt.Errorf("%w after %d attempts: %v", ErrModelTimeout, g.cfg.MaxRetries+1, lastErr)
	}

	completionFailures.WithLabelValues(g.cfg.Model, "unavailable").Inc()
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "unavailable")
	return "", fmt.Errorf("%w after %d attempts: %v", ErrModelUnavailable, g.cfg.MaxRetries+1, lastErr)
}

// IsAvailable probes the endpoint's model listing. It carries no side effects
// on the pipeline and exists for status reporting.
func (g *OpenAIGateway) IsAvailable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	models, err := g.client.ListModels(probeCtx)
	if err != nil {
		return false
	}

	for _, model := range models.Models {
		if model.ID == g.cfg.Model {
			return true
		}
	}

	// Some local servers list under aliases; an answering endpoint counts.
	return len(models.Models) > 0
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode >= 500:
			return true
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode == 408:
			return true
		default:
			return false
		}
	}

	// Anything that is not an API-level rejection is a transport fault.
	return true
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
