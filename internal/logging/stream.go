package logging

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// LogEvent is one structured log line retained by a StreamHub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CycleID       string            `json:"cycle_id,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in memory so the API can serve
// them, and wakes followers when new events arrive.
type StreamHub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []LogEvent
	nextSeq  uint64
}

// NewStreamHub constructs a hub retaining up to capacity events.
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &StreamHub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish assigns the next sequence number to evt and stores it.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
}

// Fetch returns up to limit events with sequence greater than since, plus the
// latest sequence. When wait is true it blocks until an event is available or
// ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	stopWake := make(chan struct{})
	defer close(stopWake)
	if wait {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-stopWake:
			}
		}()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait {
			return events, next, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
	}
}

// Tail returns the most recent limit events without blocking.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.buffer)-limit, 0)
	return append([]LogEvent(nil), h.buffer[start:]...), h.nextSeq
}

func (h *StreamHub) snapshotLocked(since uint64, limit int) ([]LogEvent, uint64) {
	start := len(h.buffer)
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			start = i
			break
		}
	}
	end := min(start+limit, len(h.buffer))
	if start == end {
		return nil, h.nextSeq
	}
	return append([]LogEvent(nil), h.buffer[start:end]...), h.nextSeq
}

// streamHandler copies every record it passes on into a hub.
type streamHandler struct {
	next   slog.Handler
	hub    *StreamHub
	attrs  []field
	groups []string
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	fields := append([]field(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		flattenAttr(&fields, h.groups, attr)
		return true
	})
	h.hub.Publish(eventFromFields(record, fields))
	return h.next.Handle(ctx, record)
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = append([]field(nil), h.attrs...)
	flattenAttrs(&clone.attrs, h.groups, attrs)
	return &clone
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// eventFromFields lifts the well-known keys out of fields. Later values win.
func eventFromFields(record slog.Record, fields []field) LogEvent {
	event := LogEvent{
		Timestamp: record.Time.UTC(),
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	for _, f := range fields {
		value := valueString(f.value)
		switch f.key {
		case FieldComponent:
			event.Component = value
		case FieldEventType:
			event.EventType = value
		case FieldCycleID:
			event.CycleID = value
		case FieldCorrelationID:
			event.CorrelationID = value
		default:
			if event.Fields == nil {
				event.Fields = make(map[string]string)
			}
			event.Fields[f.key] = value
		}
	}
	return event
}
