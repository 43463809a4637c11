package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"nutriflow/internal/capture"
	"nutriflow/internal/config"
	"nutriflow/internal/logging"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Transport is the subset of an MQTT client the emitter needs.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Close()
}

// CycleEvent is the JSON document published on <prefix>/cycles.
type CycleEvent struct {
	CycleID    string         `json:"cycle_id"`
	Source     string         `json:"source"`
	Outcome    string         `json:"outcome"`
	Message    string         `json:"message"`
	Taken      map[string]int `json:"taken"`
	Warnings   []string       `json:"warnings,omitempty"`
	MealKind   string         `json:"meal_kind,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Emitter implements capture.Observer over MQTT. A zero broker makes every
// method a no-op.
type Emitter struct {
	capture.NopObserver

	prefix string
	qos    byte
	logger *slog.Logger

	mu        sync.Mutex
	transport Transport
	published uint64
	failures  uint64
}

// Option customizes an Emitter.
type Option func(*Emitter)

// WithTransport injects a ready transport and skips dialing the broker.
func WithTransport(t Transport) Option {
	return func(e *Emitter) { e.transport = t }
}

// New builds an emitter for cfg. Call Connect before publishing.
func New(cfg config.MQTT, logger *slog.Logger, opts ...Option) *Emitter {
	e := &Emitter{
		prefix: strings.Trim(cfg.TopicPrefix, "/"),
		qos:    byte(cfg.QoS),
		logger: logging.NewComponentLogger(logger, "events"),
	}
	if e.prefix == "" {
		e.prefix = "nutriflow"
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Connect dials the broker. It returns nil without dialing when no broker is
// configured or a transport was injected.
func (e *Emitter) Connect(ctx context.Context, cfg config.MQTT) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.transport != nil || cfg.Broker == "" {
		return nil
	}
	t, err := dial(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	e.transport = t
	return nil
}

// Enabled reports whether a transport is attached.
func (e *Emitter) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transport != nil
}

// Stats returns publish counters.
func (e *Emitter) Stats() (published, failures uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.published, e.failures
}

// CycleFinished publishes the cycle summary.
func (e *Emitter) CycleFinished(ctx context.Context, r capture.Result) {
	event := CycleEvent{
		CycleID:    r.CycleID,
		Source:     string(r.Source),
		Outcome:    string(r.Outcome),
		Message:    r.Message,
		Taken:      r.Taken.Map(),
		ErrorKind:  r.ErrorKind(),
		FinishedAt: r.FinishedAt.UTC(),
	}
	for _, w := range r.Warnings {
		event.Warnings = append(event.Warnings, w.Message)
	}
	if r.Meal != nil {
		event.MealKind = string(r.Meal.Kind)
	}
	e.publish(ctx, "cycles", false, event)
}

// StateChanged publishes the status as a retained message.
func (e *Emitter) StateChanged(ctx context.Context, s capture.Status) {
	e.publish(ctx, "state", true, s)
}

// Close disconnects from the broker.
func (e *Emitter) Close() {
	e.mu.Lock()
	t := e.transport
	e.transport = nil
	e.mu.Unlock()
	if t != nil {
		t.Close()
	}
}

func (e *Emitter) publish(ctx context.Context, suffix string, retained bool, v any) {
	e.mu.Lock()
	t := e.transport
	e.mu.Unlock()
	if t == nil {
		return
	}
	topic := e.prefix + "/" + suffix
	payload, err := json.Marshal(v)
	if err == nil {
		err = t.Publish(topic, e.qos, retained, payload)
	}
	e.mu.Lock()
	if err != nil {
		e.failures++
	} else {
		e.published++
	}
	e.mu.Unlock()
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, e.logger), "mqtt publish failed", "events.publish_failed",
			logging.String("topic", topic),
			logging.String(logging.FieldErrorHint, "check the broker address and that it is reachable"),
			logging.String(logging.FieldImpact, "subscribers miss this event"),
			logging.Error(err),
		)
		return
	}
	e.logger.Debug("mqtt event published", logging.String("topic", topic), logging.Int("size", len(payload)))
}

type pahoTransport struct {
	client mqtt.Client
}

func dial(ctx context.Context, cfg config.MQTT, logger *slog.Logger) (*pahoTransport, error) {
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established",
			logging.String("broker", broker),
			logging.String(logging.FieldEventType, "events.connected"),
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logging.WarnWithContext(logger, "mqtt connection lost, will auto-reconnect", "events.connection_lost",
			logging.String("broker", broker),
			logging.String(logging.FieldErrorHint, "broker restarted or network dropped"),
			logging.String(logging.FieldImpact, "events are dropped until reconnect"),
			logging.Error(err),
		)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		client.Disconnect(0)
		return nil, fmt.Errorf("mqtt connect to %s: timeout", broker)
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", broker, err)
	}
	return &pahoTransport{client: client}, nil
}

func (p *pahoTransport) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	return token.Error()
}

func (p *pahoTransport) Close() {
	p.client.Disconnect(250)
}
