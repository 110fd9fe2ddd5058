package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ErrEmptyResponse is returned when a successful response carries no
// completion text.
var ErrEmptyResponse = errors.New("empty response from completion endpoint")

// APIError reports a non-2xx response
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: %s - %s", e.Status, e.Body)
}

// Client posts chat-completion requests to one OpenAI-compatible endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer

	duration metric.Float64Histogram
	tokens   metric.Int64Counter
	failures metric.Int64Counter
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (which has no timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each request; zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient = &http.Client{Timeout: d} }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithMeter registers the client's instruments on meter.
func WithMeter(meter metric.Meter) Option {
	return func(c *Client) { c.registerInstruments(meter) }
}

// NewClient creates a client for endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		tracer:     tracenoop.NewTracerProvider().Tracer("epsilon"),
	}
	c.registerInstruments(metricnoop.NewMeterProvider().Meter("epsilon"))
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) registerInstruments(meter metric.Meter) {
	var err error
	if c.duration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		c.duration, _ = metricnoop.Meter{}.Float64Histogram("")
	}
	if c.tokens, err = meter.Int64Counter(
		"llm.usage.tokens",
		metric.WithDescription("Tokens reported by the completion endpoint"),
	); err != nil {
		c.tokens, _ = metricnoop.Meter{}.Int64Counter("")
	}
	if c.failures, err = meter.Int64Counter(
		"llm.request.failures",
		metric.WithDescription("Completion requests that did not yield a reply"),
	); err != nil {
		c.failures, _ = metricnoop.Meter{}.Int64Counter("")
	}
}

// Complete sends req with credential as the bearer token and returns the
// first choice's text.
func (c *Client) Complete(ctx context.Context, credential string, req ChatRequest) (Completion, error) {
	ctx, span := c.tracer.Start(ctx, "openrouter_api_call",
		trace.WithAttributes(
			attribute.String("llm.model", req.Model),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	completion, err := c.do(ctx, credential, req)
	elapsed := time.Since(start)

	c.duration.Record(ctx, float64(elapsed.Milliseconds()), metric.WithAttributes(attribute.String("llm.model", req.Model)))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		c.failures.Add(ctx, 1)
		c.logger.Warn("completion request failed", "model", req.Model, "duration_ms", elapsed.Milliseconds(), "error", err)
		return Completion{}, err
	}

	c.recordUsage(ctx, completion.Usage)
	c.logger.Info("completion received",
		"model", completion.Model,
		"duration_ms", elapsed.Milliseconds(),
		"prompt_tokens", completion.Usage.PromptTokens,
		"completion_tokens", completion.Usage.CompletionTokens,
	)
	return completion, nil
}

func (c *Client) do(ctx context.Context, credential string, req ChatRequest) (Completion, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+credential)
	httpReq.Header.Set("HTTP-Referer", Referer)
	httpReq.Header.Set("X-Title", Title)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Completion{}, &APIError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}

	var apiResp ChatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResp.Choices) == 0 || apiResp.Choices[0].Message.Content == nil {
		return Completion{}, ErrEmptyResponse
	}

	return Completion{
		Text:  *apiResp.Choices[0].Message.Content,
		Model: apiResp.Model,
		Usage: apiResp.Usage,
	}, nil
}

func (c *Client) recordUsage(ctx context.Context, usage Usage) {
	if usage.PromptTokens > 0 {
		c.tokens.Add(ctx, usage.PromptTokens, metric.WithAttributes(attribute.String("llm.token.type", "prompt")))
	}
	if usage.CompletionTokens > 0 {
		c.tokens.Add(ctx, usage.CompletionTokens, metric.WithAttributes(attribute.String("llm.token.type", "completion")))
	}
}
