package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"nutriflow/internal/api"
	"nutriflow/internal/capture"
	"nutriflow/internal/history"
	"nutriflow/internal/inventory"
	"nutriflow/internal/logging"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

const (
	maxBodyBytes  = 64 << 10
	logFollowWait = 25 * time.Second
)

type apiServer struct {
	daemon *Daemon
	logger *slog.Logger
	server *http.Server
}

func newAPIServer(d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		daemon: d,
		logger: logging.NewComponentLogger(logger, "api-server"),
	}
	srv.server = &http.Server{
		Handler:           srv.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Covers a detection plus a full meal request; the video feed clears
		// its own deadline.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/capture/before", s.handleCaptureBefore)
	mux.HandleFunc("POST /api/capture/after", s.handleCaptureAfter)
	mux.HandleFunc("POST /api/capture/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/capture/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/profile", s.handleGetProfile)
	mux.HandleFunc("POST /api/profile", s.handleUpdateProfile)
	mux.HandleFunc("POST /api/suggest", s.handleSuggest)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistoryCycle)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	mux.HandleFunc("GET /api/logs", s.handleLogs)
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("GET /api/video-feed", s.handleVideoFeed)

	// Routes used by the original fridge dashboard.
	mux.HandleFunc("POST /capture-before", s.handleCaptureBefore)
	mux.HandleFunc("POST /capture-after", s.handleCaptureAfter)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /get-profile", s.handleGetProfile)
	mux.HandleFunc("POST /update-profile", s.handleUpdateProfile)
	mux.HandleFunc("GET /get-frame", s.handleFrameBase64)
	mux.HandleFunc("GET /video-feed", s.handleVideoFeed)

	if s.daemon.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.daemon.deps.Metrics.Handler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found", "not_found")
	})

	authed := authMiddleware(s.daemon.cfg.API.Token, mux, func(w http.ResponseWriter) {
		s.writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	})
	return s.withRequestID(authed)
}

func (s *apiServer) serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errCh
		return nil
	}
}

func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(api.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(api.RequestIDHeader, id)
		ctx := services.WithRequestID(r.Context(), id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *apiServer) handleCaptureBefore(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.daemon.deps.Capture.CaptureBefore(r.Context()))
}

func (s *apiServer) handleCaptureAfter(w http.ResponseWriter, r *http.Request) {
	var req api.AfterRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	result := s.daemon.deps.Capture.CaptureAfter(r.Context(), capture.AfterOptions{Acknowledged: req.Acknowledged})
	if result.Outcome == capture.OutcomeConfirmationRequired && s.daemon.deps.Notifier != nil {
		s.daemon.deps.Notifier.AllergyWarning(r.Context(), result)
	}
	s.writeResult(w, result)
}

func (s *apiServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req api.ConfirmRequest
	if !s.decodeOptional(w, r, &req) {
		return
	}
	s.writeResult(w, s.daemon.deps.Capture.Confirm(r.Context(), req.CycleID, req.Proceed))
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, s.daemon.deps.Capture.Cancel(r.Context()))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := api.FromStatus(s.daemon.deps.Capture.Status(), s.daemon.deps.Profiles.Get())
	resp.Daemon = s.daemon.Info()
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, api.ProfileResponse{Success: true, Profile: s.daemon.deps.Profiles.Get()})
}

func (s *apiServer) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var update profile.Partial
	if !s.decode(w, r, &update) {
		return
	}
	updated, err := s.daemon.deps.Profiles.Update(update)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "validation")
		return
	}
	logging.WithContext(r.Context(), s.logger).Info("profile updated",
		logging.String("name", updated.Name),
		logging.Strings("allergies", updated.Allergies),
	)
	s.writeJSON(w, http.StatusOK, api.ProfileResponse{Success: true, Profile: updated})
}

func (s *apiServer) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req api.SuggestRequest
	if !s.decode(w, r, &req) {
		return
	}
	delta, err := inventory.NewDelta(req.Items)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "validation")
		return
	}
	s.writeResult(w, s.daemon.deps.Capture.Suggest(r.Context(), delta))
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "validation")
			return
		}
		limit = parsed
	}
	store := s.daemon.deps.History
	cycles, err := store.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "internal")
		return
	}
	total, err := store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "internal")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryListResponse{Cycles: api.FromCycles(cycles), Total: total})
}

func (s *apiServer) handleHistoryCycle(w http.ResponseWriter, r *http.Request) {
	cycle, err := s.daemon.deps.History.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, history.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "cycle not found", "not_found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "internal")
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryCycleResponse{Cycle: api.FromCycle(cycle)})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.TestNotification(r.Context()); err != nil {
		s.writeJSON(w, http.StatusOK, api.ErrorResponse{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	hub := s.daemon.deps.LogHub
	if hub == nil {
		s.writeError(w, http.StatusNotFound, "log streaming is not enabled", "not_found")
		return
	}
	q := r.URL.Query()
	since, err := parseUintParam(q.Get("since"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer", "validation")
		return
	}
	limit, err := parseUintParam(q.Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "validation")
		return
	}
	follow := q.Get("follow") == "1" || q.Get("follow") == "true"

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, logFollowWait)
		defer cancel()
	}
	events, next, err := hub.Fetch(ctx, since, int(limit), follow)
	if err != nil && r.Context().Err() != nil {
		return
	}
	if events == nil {
		events = []logging.LogEvent{}
	}
	s.writeJSON(w, http.StatusOK, api.LogsResponse{Events: events, Next: next})
}

func parseUintParam(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *apiServer) writeResult(w http.ResponseWriter, result capture.Result) {
	s.writeJSON(w, http.StatusOK, api.FromResult(result))
}

// decode reads a required JSON body.
func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error(), "validation")
		return false
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, "request body is required", "validation")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "validation")
		return false
	}
	return true
}

// decodeOptional reads a JSON body when one is present.
func (s *apiServer) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error(), "validation")
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error(), "validation")
		return false
	}
	return true
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message, kind string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message, ErrorKind: kind})
}
