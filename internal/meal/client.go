package meal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultModel     = "llama3"
	defaultURL       = "http://localhost:11434/api/generate"
	defaultMealCount = 3
	maxErrorBody     = 4 << 10
	pingTimeout      = 3 * time.Second
)

// NothingReturned is the text of a degraded result.
const NothingReturned = "[service returned nothing]"

// Config captures the runtime settings required to talk to the meal service.
type Config struct {
	URL            string
	Model          string
	TimeoutSeconds int
	MealCount      int
	Structured     bool
}

// Kind classifies the outcome of one request.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindDegraded     Kind = "degraded"
	KindServiceError Kind = "service_error"
	KindUnreachable  Kind = "unreachable"
)

// Result is the classified outcome of a meal request.
type Result struct {
	Kind       Kind          `json:"kind"`
	Text       string        `json:"text"`
	Meals      []Meal        `json:"meals,omitempty"`
	StatusCode int           `json:"status_code,omitempty"`
	Body       string        `json:"body,omitempty"`
	Err        error         `json:"-"`
	Duration   time.Duration `json:"-"`
}

// OK reports whether the service produced an answer (possibly degraded).
func (r Result) OK() bool {
	return r.Kind == KindSuccess || r.Kind == KindDegraded
}

// Diagnostic is the human description of a failed result.
func (r Result) Diagnostic() string {
	switch r.Kind {
	case KindServiceError:
		return fmt.Sprintf("meal service returned status %d: %s", r.StatusCode, r.Body)
	case KindUnreachable:
		if r.Err != nil {
			return r.Err.Error()
		}
		return "meal service unreachable"
	default:
		return ""
	}
}

// StatusError is the cause recorded for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("meal request: http %d: %s", e.StatusCode, e.Body)
}

// Client talks to the meal generation endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. The caller owns its timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithClock overrides the time source used for the time-of-day hint.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient constructs a meal client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			URL:            strings.TrimSpace(cfg.URL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
			MealCount:      cfg.MealCount,
			Structured:     cfg.Structured,
		},
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.URL == "" {
		client.cfg.URL = defaultURL
	}
	if client.cfg.Model == "" {
		client.cfg.Model = defaultModel
	}
	if client.cfg.MealCount <= 0 {
		client.cfg.MealCount = defaultMealCount
	}
	return client
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// Suggest builds the prompt for delta and p and performs one generate request.
func (c *Client) Suggest(ctx context.Context, delta inventory.Delta, p profile.UserProfile) Result {
	prompt := BuildPrompt(delta, p, PromptOptions{
		MealCount:  c.cfg.MealCount,
		Structured: c.cfg.Structured,
		Now:        c.now(),
	})
	result := c.Generate(ctx, prompt)
	if result.Kind == KindSuccess && c.cfg.Structured {
		result.Meals = ParseMeals(result.Text)
	}
	return result
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response *string `json:"response"`
}

// Generate sends prompt as-is and classifies the exchange. It is not retried.
func (c *Client) Generate(ctx context.Context, prompt string) Result {
	start := time.Now()
	result := c.generate(ctx, prompt)
	result.Duration = time.Since(start)
	return result
}

func (c *Client) generate(ctx context.Context, prompt string) Result {
	encoded, err := json.Marshal(generateRequest{Model: c.cfg.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return unreachable(fmt.Errorf("meal request: encode body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(encoded))
	if err != nil {
		return unreachable(fmt.Errorf("meal request: new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return unreachable(fmt.Errorf("meal request: http error (timeout=%s): %w", c.timeoutDuration(), err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return unreachable(fmt.Errorf("meal request: read body (timeout=%s): %w", c.timeoutDuration(), err))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := truncate(strings.TrimSpace(string(body)), maxErrorBody)
		cause := &StatusError{StatusCode: resp.StatusCode, Body: snippet}
		return Result{
			Kind:       KindServiceError,
			StatusCode: resp.StatusCode,
			Body:       snippet,
			Err:        services.Wrap(services.ErrMealServiceError, "meal", "generate", fmt.Sprintf("status %d", resp.StatusCode), cause),
		}
	}

	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil || decoded.Response == nil || strings.TrimSpace(*decoded.Response) == "" {
		return Result{Kind: KindDegraded, Text: NothingReturned, StatusCode: resp.StatusCode}
	}
	return Result{Kind: KindSuccess, Text: strings.TrimSpace(*decoded.Response), StatusCode: resp.StatusCode}
}

// Ping checks that the service host answers HTTP at all. Any status counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	parsed, err := url.Parse(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("meal ping: parse url: %w", err)
	}
	root := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/"}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, root.String(), nil)
	if err != nil {
		return fmt.Errorf("meal ping: new request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrMealServiceUnreachable, "meal", "ping", root.Host, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
	return nil
}

func (c *Client) timeoutDuration() time.Duration {
	if c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultTimeout
	}
	return c.httpClient.Timeout
}

func unreachable(err error) Result {
	return Result{
		Kind: KindUnreachable,
		Err:  services.Wrap(services.ErrMealServiceUnreachable, "meal", "generate", "", err),
	}
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
