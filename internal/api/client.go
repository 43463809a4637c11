package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"nutriflow/internal/profile"
)

// RequestIDHeader carries the caller's correlation id.
const RequestIDHeader = "X-Request-ID"

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// HTTPError is a non-2xx daemon response.
type HTTPError struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// NewClient returns a client for baseURL. Meal requests can take as long as
// the meal service timeout, so the HTTP timeout is generous.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// CaptureBefore takes the before snapshot.
func (c *Client) CaptureBefore(ctx context.Context) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/capture/before", nil, &resp)
	return resp, err
}

// CaptureAfter takes the after snapshot and evaluates the cycle.
func (c *Client) CaptureAfter(ctx context.Context, acknowledged bool) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/capture/after", AfterRequest{Acknowledged: acknowledged}, &resp)
	return resp, err
}

// Confirm resolves a pending allergy confirmation.
func (c *Client) Confirm(ctx context.Context, cycleID string, proceed bool) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/capture/confirm", ConfirmRequest{CycleID: cycleID, Proceed: proceed}, &resp)
	return resp, err
}

// Cancel abandons the current cycle.
func (c *Client) Cancel(ctx context.Context) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/capture/cancel", nil, &resp)
	return resp, err
}

// Status fetches the get_status view.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp)
	return resp, err
}

// Profile fetches the current profile.
func (c *Client) Profile(ctx context.Context) (profile.UserProfile, error) {
	var resp ProfileResponse
	err := c.do(ctx, http.MethodGet, "/api/profile", nil, &resp)
	return resp.Profile, err
}

// UpdateProfile merges update into the daemon's profile.
func (c *Client) UpdateProfile(ctx context.Context, update profile.Partial) (profile.UserProfile, error) {
	var resp ProfileResponse
	err := c.do(ctx, http.MethodPost, "/api/profile", update, &resp)
	return resp.Profile, err
}

// Suggest requests meals for explicit items.
func (c *Client) Suggest(ctx context.Context, items map[string]int) (CommandResponse, error) {
	var resp CommandResponse
	err := c.do(ctx, http.MethodPost, "/api/suggest", SuggestRequest{Items: items}, &resp)
	return resp, err
}

// History lists recent cycles.
func (c *Client) History(ctx context.Context, limit int) (HistoryListResponse, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp HistoryListResponse
	err := c.do(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// HistoryCycle fetches one recorded cycle.
func (c *Client) HistoryCycle(ctx context.Context, id string) (CycleView, error) {
	var resp HistoryCycleResponse
	err := c.do(ctx, http.MethodGet, "/api/history/"+url.PathEscape(id), nil, &resp)
	return resp.Cycle, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) error {
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("test notification: %s", resp.Error)
	}
	return nil
}

// Logs fetches daemon log events newer than since. With follow set the
// daemon holds the request until an event arrives.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, follow bool) (LogsResponse, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		q.Set("follow", "1")
	}
	var resp LogsResponse
	err := c.do(ctx, http.MethodGet, "/api/logs?"+q.Encode(), nil, &resp)
	return resp, err
}

// Frame downloads the current JPEG frame.
func (c *Client) Frame(ctx context.Context) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/frame", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request frame: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set(RequestIDHeader, uuid.NewString())
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	httpErr := &HTTPError{StatusCode: resp.StatusCode}
	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		httpErr.Message = payload.Error
		httpErr.Kind = payload.ErrorKind
	} else {
		httpErr.Message = strings.TrimSpace(string(data))
	}
	return httpErr
}

// IsUnauthorized reports whether err is a 401 from the daemon.
func IsUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized
}
