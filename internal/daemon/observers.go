package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nutriflow/internal/capture"
	"nutriflow/internal/history"
	"nutriflow/internal/logging"
	"nutriflow/internal/notifications"
)

const (
	recordTimeout = 5 * time.Second
	notifyTimeout = 30 * time.Second
)

// HistoryRecorder stores every finished cycle.
type HistoryRecorder struct {
	capture.NopObserver
	store  *history.Store
	logger *slog.Logger
}

// NewHistoryRecorder returns an observer writing to store.
func NewHistoryRecorder(store *history.Store, logger *slog.Logger) *HistoryRecorder {
	return &HistoryRecorder{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

// CycleFinished records r. The write is detached from the request context so
// a client disconnect does not lose the row.
func (h *HistoryRecorder) CycleFinished(ctx context.Context, r capture.Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := h.store.Record(ctx, CycleFromResult(r)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "cycle not recorded", "history.record_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.history_db permissions and free space"),
			logging.String(logging.FieldImpact, "cycle missing from history"),
		)
	}
}

// CycleFromResult converts a finished capture result into a history row.
func CycleFromResult(r capture.Result) history.Cycle {
	c := history.Cycle{
		ID:           r.CycleID,
		Source:       string(r.Source),
		Outcome:      string(r.Outcome),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		Before:       r.Before,
		After:        r.After,
		Taken:        r.Taken,
		Warnings:     r.Warnings,
		ErrorKind:    r.ErrorKind(),
		ErrorMessage: r.ErrorMessage(),
	}
	if r.Meal != nil {
		c.MealKind = string(r.Meal.Kind)
		c.MealText = r.Meal.Text
		c.Meals = r.Meal.Meals
	}
	return c
}

// Notifier forwards allergy warnings and meal outcomes to the phone. Sends
// run in the background; Wait blocks until they finish.
type Notifier struct {
	capture.NopObserver
	service notifications.Service
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewNotifier wraps service.
func NewNotifier(service notifications.Service, logger *slog.Logger) *Notifier {
	return &Notifier{service: service, logger: logging.NewComponentLogger(logger, "notifications")}
}

// CycleFinished notifies warnings (unless already sent when the cycle was
// parked for confirmation) and meal results.
func (n *Notifier) CycleFinished(ctx context.Context, r capture.Result) {
	if len(r.Warnings) > 0 && r.Command != capture.CommandConfirm && r.Command != capture.CommandCancel {
		n.AllergyWarning(ctx, r)
	}
	if r.Meal == nil {
		return
	}
	items := r.Taken.ItemsText()
	if r.Outcome == capture.OutcomeSuccess {
		names := make([]string, 0, len(r.Meal.Meals))
		for _, m := range r.Meal.Meals {
			names = append(names, m.Name)
		}
		n.publish(ctx, notifications.EventMealReady, notifications.Payload{"items": items, "meals": names})
		return
	}
	n.publish(ctx, notifications.EventMealFailed, notifications.Payload{"items": items, "error": r.Meal.Diagnostic()})
}

// AllergyWarning sends the warnings of r.
func (n *Notifier) AllergyWarning(ctx context.Context, r capture.Result) {
	messages := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		messages = append(messages, w.Message)
	}
	n.publish(ctx, notifications.EventAllergyWarning, notifications.Payload{
		"items":    r.Taken.ItemsText(),
		"warnings": messages,
	})
}

// Wait blocks until queued notifications finish.
func (n *Notifier) Wait() { n.wg.Wait() }

func (n *Notifier) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := n.service.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, n.logger), "notification failed", "notifications.send_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_url and topic"),
				logging.String(logging.FieldImpact, "phone not notified"),
			)
		}
	}()
}
