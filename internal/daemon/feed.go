package daemon

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"nutriflow/internal/api"
	"nutriflow/internal/logging"
)

const feedBoundary = "frame"

func (s *apiServer) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "base64" {
		s.handleFrameBase64(w, r)
		return
	}
	frame := s.daemon.deps.Frames.Current()
	if frame == nil {
		s.writeError(w, http.StatusNotFound, "no frame available", "no_frame_available")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(frame.Seq, 10))
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	_, _ = w.Write(frame.Data)
}

func (s *apiServer) handleFrameBase64(w http.ResponseWriter, r *http.Request) {
	frame := s.daemon.deps.Frames.Current()
	if frame == nil {
		s.writeError(w, http.StatusNotFound, "no frame available", "no_frame_available")
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromFrame(frame))
}

// handleVideoFeed streams the current frame as multipart MJPEG until the
// client disconnects. A part is written only when the frame sequence advances.
func (s *apiServer) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+feedBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	limiter := rate.NewLimiter(rate.Limit(s.daemon.cfg.API.FeedFPS), 1)
	var lastSeq uint64
	sent := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		frame := s.daemon.deps.Frames.Current()
		if frame == nil || frame.Seq == lastSeq {
			continue
		}
		lastSeq = frame.Seq
		if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", feedBoundary, len(frame.Data)); err != nil {
			break
		}
		if _, err := w.Write(frame.Data); err != nil {
			break
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			break
		}
		if err := rc.Flush(); err != nil {
			break
		}
		sent++
	}
	logging.WithContext(ctx, s.logger).Debug("video feed closed", logging.Int("frames_sent", sent))
}
