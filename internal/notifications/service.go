package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"nutriflow/internal/config"
)

const userAgent = "nutriflow/0.1"

// Event names a notification kind.
type Event string

const (
	EventAllergyWarning Event = "allergy_warning"
	EventMealReady      Event = "meal_ready"
	EventMealFailed     Event = "meal_failed"
	EventTest           Event = "test"
)

// Payload carries event fields. Known keys: items, warnings, meals, error.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.NtfyURL), "/")
	return &ntfyService{
		endpoint: base + "/" + topic,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 3),
		enabled: map[Event]bool{
			EventAllergyWarning: cfg.AllergyWarning,
			EventMealReady:      cfg.MealReady,
			EventMealFailed:     cfg.MealFailed,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return fmt.Errorf("unknown notification event %q", event)
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ntfy rate limit: %w", err)
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	items := stringValue(payload["items"])
	switch event {
	case EventAllergyWarning:
		body := "Allergy warning"
		if items != "" {
			body += " for " + items
		}
		if warnings := stringList(payload["warnings"]); len(warnings) > 0 {
			body += "\n" + strings.Join(warnings, "\n")
		}
		return message{
			title:    "Nutriflow - Allergy Warning",
			body:     body,
			tags:     []string{"nutriflow", "allergy", "warning"},
			priority: "high",
		}, true
	case EventMealReady:
		body := "Meal suggestions ready"
		if items != "" {
			body += " for " + items
		}
		if meals := stringList(payload["meals"]); len(meals) > 0 {
			body += ":\n- " + strings.Join(meals, "\n- ")
		}
		return message{
			title: "Nutriflow - Meals Ready",
			body:  body,
			tags:  []string{"nutriflow", "meal", "ready"},
		}, true
	case EventMealFailed:
		body := "Meal suggestions failed"
		if errText := stringValue(payload["error"]); errText != "" {
			body += ": " + errText
		}
		return message{
			title:    "Nutriflow - Meal Request Failed",
			body:     body,
			tags:     []string{"nutriflow", "meal", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Nutriflow - Test",
			body:     "Notification system test",
			tags:     []string{"nutriflow", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(v any) string {
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value)
	case fmt.Stringer:
		return strings.TrimSpace(value.String())
	default:
		return ""
	}
}

func stringList(v any) []string {
	switch value := v.(type) {
	case []string:
		return value
	case string:
		if value == "" {
			return nil
		}
		return []string{value}
	default:
		return nil
	}
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
