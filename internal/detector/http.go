package detector

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"nutriflow/internal/config"
	"nutriflow/internal/imaging"
)

const maxErrorBody = 2 << 10

// HTTPDetector posts base64 images to a hosted detection model and reads
// predictions[].class from the response.
type HTTPDetector struct {
	endpoint   string
	apiKey     string
	opts       imaging.Options
	httpClient *http.Client
}

type prediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

type predictionResponse struct {
	Predictions []prediction `json:"predictions"`
}

// NewHTTP returns a detector for cfg.URL authenticated with cfg.APIKey.
func NewHTTP(cfg config.Detector) *HTTPDetector {
	return &HTTPDetector{
		endpoint:   strings.TrimSpace(cfg.URL),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		opts:       imaging.Options{MaxWidth: cfg.MaxWidth, MaxHeight: cfg.MaxHeight},
		httpClient: &http.Client{Timeout: timeoutFor(cfg)},
	}
}

// Detect performs one request. Failures are not retried.
func (d *HTTPDetector) Detect(ctx context.Context, image []byte) ([]string, error) {
	payload, err := prepare(image, d.opts)
	if err != nil {
		return nil, err
	}
	target, err := url.Parse(d.endpoint)
	if err != nil || target.Host == "" {
		return nil, failed("build request", fmt.Errorf("invalid detector url %q", d.endpoint))
	}
	if d.apiKey != "" {
		query := target.Query()
		query.Set("api_key", d.apiKey)
		target.RawQuery = query.Encode()
	}

	body := []byte(base64.StdEncoding.EncodeToString(payload))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, failed("build request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, failed("detect", fmt.Errorf("http error: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed("detect", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := clip(strings.TrimSpace(string(raw)), maxErrorBody)
		return nil, failed("detect", fmt.Errorf("status %d: %s", resp.StatusCode, snippet))
	}

	var decoded predictionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, failed("detect", fmt.Errorf("decode response: %w", err))
	}
	classes := make([]string, 0, len(decoded.Predictions))
	for _, p := range decoded.Predictions {
		classes = append(classes, p.Class)
	}
	return normalizeLabels(classes), nil
}

// Close is a no-op.
func (d *HTTPDetector) Close() error { return nil }

// clip shortens s to at most limit bytes, backing off to a rune boundary.
func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit] + "..."
}
