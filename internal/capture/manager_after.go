package capture

import (
	"context"
	"errors"

	"nutriflow/internal/allergy"
	"nutriflow/internal/inventory"
	"nutriflow/internal/logging"
	"nutriflow/internal/meal"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

// CaptureAfter ends the monitoring window and evaluates what was taken.
//
// From idle it reuses a stale after-frame left by an earlier failed attempt,
// falling back to the live frame. A detection failure or missing frame keeps
// the before snapshot so the command can simply be retried.
func (m *Manager) CaptureAfter(ctx context.Context, opts AfterOptions) Result {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	snap := m.session.read()
	result := Result{
		Command:   CommandCaptureAfter,
		Source:    SourceCapture,
		CycleID:   snap.cycleID,
		Before:    snap.before,
		StartedAt: snap.startedAt,
	}
	if result.StartedAt.IsZero() {
		result.StartedAt = m.now()
	}
	if _, err := Next(snap.state, CommandCaptureAfter); err != nil {
		return m.fail(result, err, err.Error())
	}
	if result.CycleID == "" {
		result.CycleID = m.newID()
	}
	ctx = services.WithCycleID(services.WithCommand(ctx, string(CommandCaptureAfter)), result.CycleID)
	logger := logging.WithContext(ctx, m.logger)

	if stopped := m.session.endMonitoring(); stopped != nil {
		<-stopped
	}
	frame := m.session.read().latestAfter
	if frame == nil {
		frame = m.frames.Current()
	}
	if frame == nil {
		m.session.setStatus(StatusNoFrame)
		m.stateChanged(ctx)
		return m.fail(result, services.Wrap(services.ErrNoFrameAvailable, "capture", "capture_after", "no monitored or live frame", nil), StatusNoFrame)
	}

	m.session.setStatus(StatusAnalyzing)
	after, err := m.detect(ctx, PhaseAfter, frame.Data)
	if err != nil {
		m.session.setStatus(StatusDetectionFailed)
		logging.WarnWithContext(logger, "after detection failed", "capture.detection_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the detector, then run capture after again"),
			logging.String(logging.FieldImpact, "before snapshot kept for retry"),
		)
		m.stateChanged(ctx)
		return m.fail(result, err, StatusDetectionFailed)
	}
	result.After = after

	if len(snap.before) == 0 {
		result.Outcome = OutcomeNothingToCompare
		return m.complete(ctx, result, StatusNothingToCompare)
	}

	taken := inventory.Diff(snap.before, after)
	result.Taken = taken
	logger.Info("inventory diff computed",
		logging.Int("before_items", len(snap.before)),
		logging.Int("after_items", len(after)),
		logging.String("taken", taken.ItemsText()),
	)
	if taken.Empty() {
		result.Outcome = OutcomeNothingTaken
		return m.complete(ctx, result, StatusNothingTaken)
	}

	current := m.profiles.Get()
	warnings := m.allergy.Check(taken, current)
	result.Warnings = warnings
	if len(warnings) > 0 {
		logger.Info("allergy warnings raised",
			logging.Int("warnings", len(warnings)),
			logging.Strings("messages", allergy.Messages(warnings)),
		)
	}
	if len(warnings) > 0 && m.cfg.RequireConfirmation && !opts.Acknowledged {
		m.session.park(&pending{
			cycleID:   result.CycleID,
			startedAt: result.StartedAt,
			before:    snap.before,
			after:     after,
			taken:     taken,
			warnings:  warnings,
			profile:   current,
		})
		m.session.reset(StatusAwaitingConfirm, false)
		result.Outcome = OutcomeConfirmationRequired
		result.Message = StatusAwaitingConfirm
		result.FinishedAt = m.now()
		m.stateChanged(ctx)
		return result
	}

	return m.requestMeals(ctx, result, current)
}

// Confirm resolves a confirmation_required cycle. proceed=false discards the
// meal request.
func (m *Manager) Confirm(ctx context.Context, cycleID string, proceed bool) Result {
	m.cmdMu.Lock()
	defer m.cmdMu.Unlock()

	snap := m.session.read()
	result := Result{Command: CommandConfirm, Source: SourceCapture, CycleID: cycleID, StartedAt: m.now()}
	if _, err := Next(snap.state, CommandConfirm); err != nil {
		return m.fail(result, err, err.Error())
	}
	p := m.session.takePending(cycleID)
	if p == nil {
		return m.fail(result, services.Wrap(services.ErrNotFound, "capture", "confirm", "no pending confirmation for cycle "+cycleID, nil), "No meal request is waiting for confirmation")
	}
	ctx = services.WithCycleID(services.WithCommand(ctx, string(CommandConfirm)), p.cycleID)

	result.CycleID = p.cycleID
	result.StartedAt = p.startedAt
	result.Before = p.before
	result.After = p.after
	result.Taken = p.taken
	result.Warnings = p.warnings

	if !proceed {
		logging.WithContext(ctx, m.logger).Info("meal request rejected after allergy warning")
		result.Outcome = OutcomeCancelled
		return m.complete(ctx, result, StatusMealsCancelled)
	}
	return m.requestMeals(ctx, result, p.profile)
}

// Suggest runs the allergy check and meal request for an explicit set of
// items without a capture cycle. It does not touch the session.
func (m *Manager) Suggest(ctx context.Context, taken inventory.Delta) Result {
	result := Result{
		CycleID:   m.newID(),
		Command:   CommandSuggest,
		Source:    SourceManual,
		Taken:     taken,
		StartedAt: m.now(),
	}
	ctx = services.WithCycleID(services.WithCommand(ctx, string(CommandSuggest)), result.CycleID)
	if taken.Empty() {
		result.Outcome = OutcomeNothingTaken
		result.Message = "No items given"
		result.FinishedAt = m.now()
		m.cycleFinished(ctx, result)
		return result
	}
	current := m.profiles.Get()
	result.Warnings = m.allergy.Check(taken, current)
	res := m.meals.Suggest(ctx, taken, current)
	return m.finishMeal(ctx, result, res, false)
}

func (m *Manager) requestMeals(ctx context.Context, result Result, p profile.UserProfile) Result {
	m.session.setStatus(statusGenerating(result.Taken))
	m.stateChanged(ctx)
	res := m.meals.Suggest(ctx, result.Taken, p)
	return m.finishMeal(ctx, result, res, true)
}

func (m *Manager) finishMeal(ctx context.Context, result Result, res meal.Result, session bool) Result {
	result.Meal = &res
	logger := logging.WithContext(ctx, m.logger)
	if res.OK() {
		result.Outcome = OutcomeSuccess
		logger.Info("meal suggestions received",
			logging.String("kind", string(res.Kind)),
			logging.Int("meals", len(res.Meals)),
			logging.Duration("duration", res.Duration),
		)
		if session {
			return m.complete(ctx, result, StatusMealsReady)
		}
		result.Message = StatusMealsReady
		result.FinishedAt = m.now()
		m.cycleFinished(ctx, result)
		return result
	}

	result.Outcome = OutcomeFailed
	result.Err = res.Err
	if result.Err == nil {
		result.Err = errors.New(res.Diagnostic())
	}
	logging.WarnWithContext(logger, "meal request failed", "meal.request_failed",
		logging.String("kind", string(res.Kind)),
		logging.String("diagnostic", res.Diagnostic()),
		logging.String(logging.FieldErrorHint, "check that the meal service is running and the model is pulled"),
		logging.String(logging.FieldImpact, "no meal suggestions for this cycle"),
	)
	if session {
		return m.complete(ctx, result, StatusMealFailed)
	}
	result.Message = StatusMealFailed
	result.FinishedAt = m.now()
	m.cycleFinished(ctx, result)
	return result
}

// complete closes a capture cycle: the session is reset, observers are told,
// and the final status line is kept for get_status.
func (m *Manager) complete(ctx context.Context, result Result, status string) Result {
	m.session.reset(status, false)
	result.Message = status
	result.FinishedAt = m.now()
	logging.WithContext(ctx, m.logger).Info("capture cycle finished",
		logging.String("outcome", string(result.Outcome)),
		logging.Duration("elapsed", result.FinishedAt.Sub(result.StartedAt)),
	)
	m.cycleFinished(ctx, result)
	m.stateChanged(ctx)
	return result
}
