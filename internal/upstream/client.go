// Package upstream issues streaming chat completion requests to an OpenAI
// compatible language model provider.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"relay-api/internal/metrics"
	"relay-api/internal/shared"

	"go.uber.org/zap"
)

type Config struct {
	Endpoint     string
	APIKey       string
	Model        string
	SystemPrompt string
	Temperature  float32
	MaxTokens    int
	TopP         float32
}

// Response is owned by the caller once returned. On success Body must be
// closed; on failure it is already closed and ErrorText holds the bounded
// provider error body for logs only.
type Response struct {
	OK        bool
	Status    int
	Body      io.ReadCloser
	ErrorText string
	Err       error
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.SugaredLogger
}

func NewClient(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = shared.DefaultUpstreamEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = shared.DefaultUpstreamModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = shared.DefaultTemperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = shared.DefaultMaxTokens
	}
	if cfg.TopP == 0 {
		cfg.TopP = shared.DefaultTopP
	}

	// No overall client timeout, the stream lifetime is bound by the
	// request context instead.
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   shared.DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: shared.DefaultResponseTimeout,
		DisableKeepAlives:     false,
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Transport: tr},
		log:  log,
	}
}

// WithHTTPClient swaps the transport, mostly for tests
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// BuildMessages converts history plus the new user message into the
// provider's message list. The "model" role maps to "assistant".
func (c *Client) BuildMessages(message string, history []shared.Turn) []shared.ChatMessage {
	messages := make([]shared.ChatMessage, 0, len(history)+2)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, shared.ChatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	for _, turn := range history {
		role := "user"
		if turn.Role == "model" {
			role = "assistant"
		}
		texts := make([]string, 0, len(turn.Parts))
		for _, p := range turn.Parts {
			texts = append(texts, p.Text)
		}
		messages = append(messages, shared.ChatMessage{Role: role, Content: strings.Join(texts, "")})
	}
	return append(messages, shared.ChatMessage{Role: "user", Content: message})
}

func (c *Client) buildBody(message string, history []shared.Turn) ([]byte, error) {
	return json.Marshal(shared.CompletionBody{
		Model:       c.cfg.Model,
		Messages:    c.BuildMessages(message, history),
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
		Stream:      true,
	})
}

// StreamCompletion returns as soon as response headers arrive. A returned
// error means the request could not be built; transport failures (503, or
// 504 on deadline) and non 2xx statuses come back as Response.OK == false.
func (c *Client) StreamCompletion(ctx context.Context, message string, history []shared.Turn) (*Response, error) {
	body, err := c.buildBody(message, history)
	if err != nil {
		return nil, fmt.Errorf("failed marshaling completion body: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed building request: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json",
		"Accept":        "text/event-stream",
		"Authorization": "Bearer " + c.cfg.APIKey,
	}
	for key, value := range headers {
		r.Header.Set(key, value)
	}

	start := time.Now()
	res, err := c.http.Do(r)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		metrics.UpstreamStatus.WithLabelValues("transport_error").Inc()
		return &Response{OK: false, Status: status, Err: errors.Join(shared.ErrUpstreamRequest, err)}, nil
	}
	metrics.UpstreamStatus.WithLabelValues(fmt.Sprintf("%d", res.StatusCode)).Inc()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		errorText := readErrorText(res.Body)
		if closeErr := res.Body.Close(); closeErr != nil {
			c.log.Warnw("Failed to close upstream error body", "error", closeErr)
		}
		return &Response{
			OK:        false,
			Status:    res.StatusCode,
			ErrorText: errorText,
			Err:       errors.Join(shared.ErrUpstreamStatus, fmt.Errorf("upstream status %d", res.StatusCode)),
		}, nil
	}

	c.log.Debugw("Upstream headers received", "status_code", res.StatusCode, "duration_ms", time.Since(start).Milliseconds())
	return &Response{OK: true, Status: res.StatusCode, Body: res.Body}, nil
}

func readErrorText(body io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(body, shared.MaxUpstreamErrorBody))
	if err != nil && len(b) == 0 {
		return fmt.Sprintf("failed reading error body: %v", err)
	}
	return string(b)
}
