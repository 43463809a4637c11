package daemon

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"nutriflow/internal/api"
	"nutriflow/internal/testsupport"
)

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestCaptureCycleOverAPI(t *testing.T) {
	td := newTestDaemon(t, testsupport.WithConfirmation(false))
	td.frames.show("apple,apple,apple,milk,milk")

	w := td.do(t, http.MethodPost, "/api/capture/before", "")
	if w.Code != http.StatusOK {
		t.Fatalf("capture before status = %d", w.Code)
	}
	before := decodeBody[api.CommandResponse](t, w)
	if !before.Success || before.Outcome != "captured" || len(before.BeforeItems) != 5 {
		t.Fatalf("unexpected before response: %+v", before)
	}

	status := decodeBody[api.StatusResponse](t, td.do(t, http.MethodGet, "/api/status", ""))
	if status.State != "monitoring" || !status.CaptureRunning || status.BeforeItemsCount != 5 {
		t.Fatalf("unexpected status while monitoring: %+v", status)
	}
	if status.Daemon.LockFilePath != td.cfg.LockPath() {
		t.Fatalf("lock path = %q", status.Daemon.LockFilePath)
	}

	td.frames.show("apple,apple,milk")
	td.waitForPoll()
	after := decodeBody[api.CommandResponse](t, td.do(t, http.MethodPost, "/api/capture/after", ""))
	if !after.Success || after.Outcome != "success" {
		t.Fatalf("unexpected after response: %+v", after)
	}
	if after.TakenItems["apple"] != 1 || after.TakenItems["milk"] != 1 {
		t.Fatalf("taken = %v", after.TakenItems)
	}
	if len(after.AllergyWarnings) != 1 || !strings.Contains(after.AllergyWarnings[0], "milk") {
		t.Fatalf("warnings = %v", after.AllergyWarnings)
	}
	if after.MealSuggestion != "Apple milk smoothie" {
		t.Fatalf("meal = %q", after.MealSuggestion)
	}

	hist := decodeBody[api.HistoryListResponse](t, td.do(t, http.MethodGet, "/api/history?limit=5", ""))
	if hist.Total != 1 || len(hist.Cycles) != 1 || hist.Cycles[0].ID != after.CycleID {
		t.Fatalf("unexpected history: %+v", hist)
	}
	one := decodeBody[api.HistoryCycleResponse](t, td.do(t, http.MethodGet, "/api/history/"+after.CycleID, ""))
	if one.Cycle.Outcome != "success" {
		t.Fatalf("history cycle outcome = %q", one.Cycle.Outcome)
	}
}

func TestCaptureAfterWhileIdleHasNothingToCompare(t *testing.T) {
	td := newTestDaemon(t)
	td.frames.show("apple")

	w := td.do(t, http.MethodPost, "/api/capture/after", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeBody[api.CommandResponse](t, w)
	if !resp.Success || resp.Outcome != "nothing_to_compare" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConfirmWithoutPendingCycleIsRejected(t *testing.T) {
	td := newTestDaemon(t)

	resp := decodeBody[api.CommandResponse](t, td.do(t, http.MethodPost, "/api/capture/confirm", `{"cycle_id":"nope","proceed":true}`))
	if resp.Success || resp.ErrorKind == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestConfirmationOverAPI(t *testing.T) {
	td := newTestDaemon(t, testsupport.WithConfirmation(true))
	td.frames.show("milk,bread")
	td.do(t, http.MethodPost, "/capture-before", "")

	td.frames.show("bread")
	td.waitForPoll()
	parked := decodeBody[api.CommandResponse](t, td.do(t, http.MethodPost, "/capture-after", ""))
	if parked.Outcome != "confirmation_required" || parked.CycleID == "" {
		t.Fatalf("expected confirmation_required, got %+v", parked)
	}
	status := decodeBody[api.StatusResponse](t, td.do(t, http.MethodGet, "/status", ""))
	if status.PendingCycleID != parked.CycleID {
		t.Fatalf("pending cycle = %q, want %q", status.PendingCycleID, parked.CycleID)
	}

	body := `{"cycle_id":"` + parked.CycleID + `","proceed":true}`
	done := decodeBody[api.CommandResponse](t, td.do(t, http.MethodPost, "/api/capture/confirm", body))
	if !done.Success || done.Outcome != "success" || done.MealSuggestion != "Apple milk smoothie" {
		t.Fatalf("unexpected confirm response: %+v", done)
	}
	if len(done.AllergyWarnings) != 1 || !strings.Contains(done.AllergyWarnings[0], "milk") {
		t.Fatalf("warnings = %v", done.AllergyWarnings)
	}

	hist := decodeBody[api.HistoryListResponse](t, td.do(t, http.MethodGet, "/api/history", ""))
	if hist.Total != 1 || hist.Cycles[0].ID != parked.CycleID || hist.Cycles[0].Outcome != "success" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestProfileEndpoints(t *testing.T) {
	td := newTestDaemon(t)

	w := td.do(t, http.MethodPost, "/update-profile", `{"name":"Ana","allergies":["peanuts"],"food_cusine":["thai"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d body=%s", w.Code, w.Body.String())
	}
	got := decodeBody[api.ProfileResponse](t, td.do(t, http.MethodGet, "/api/profile", ""))
	if got.Profile.Name != "Ana" || got.Profile.Age != 34 {
		t.Fatalf("unexpected profile: %+v", got.Profile)
	}
	if len(got.Profile.Allergies) != 1 || got.Profile.Allergies[0] != "peanuts" {
		t.Fatalf("allergies = %v", got.Profile.Allergies)
	}

	w = td.do(t, http.MethodPost, "/api/profile", `{"age":-4}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid profile status = %d", w.Code)
	}
	if w = td.do(t, http.MethodPost, "/api/profile", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d", w.Code)
	}
}

func TestSuggestEndpoint(t *testing.T) {
	td := newTestDaemon(t)

	resp := decodeBody[api.CommandResponse](t, td.do(t, http.MethodPost, "/api/suggest", `{"items":{"cheese":2}}`))
	if !resp.Success || resp.Source != "manual" || resp.TakenItems["cheese"] != 2 {
		t.Fatalf("unexpected suggest response: %+v", resp)
	}
	if len(resp.AllergyWarnings) == 0 {
		t.Fatal("expected dairy warning for cheese")
	}
	if w := td.do(t, http.MethodPost, "/api/suggest", `{"items":{"cheese":-1}}`); w.Code != http.StatusBadRequest {
		t.Fatalf("negative count status = %d", w.Code)
	}
}

func TestHistoryErrors(t *testing.T) {
	td := newTestDaemon(t)
	if w := td.do(t, http.MethodGet, "/api/history/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("missing cycle status = %d", w.Code)
	}
	if w := td.do(t, http.MethodGet, "/api/history?limit=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", w.Code)
	}
}

func TestFrameEndpoints(t *testing.T) {
	td := newTestDaemon(t)
	if w := td.do(t, http.MethodGet, "/api/frame", ""); w.Code != http.StatusNotFound {
		t.Fatalf("no frame status = %d", w.Code)
	}

	td.frames.show("apple")
	w := td.do(t, http.MethodGet, "/api/frame", "")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("frame status = %d type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if w.Body.String() != "apple" {
		t.Fatalf("frame body = %q", w.Body.String())
	}

	resp := decodeBody[api.FrameResponse](t, td.do(t, http.MethodGet, "/get-frame", ""))
	data, err := base64.StdEncoding.DecodeString(resp.Frame)
	if err != nil || string(data) != "apple" {
		t.Fatalf("base64 frame = %q err=%v", data, err)
	}
	if resp.Seq != 1 || resp.Width != 4 {
		t.Fatalf("unexpected frame metadata: %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	td := newTestDaemon(t, testsupport.WithAPIToken("s3cret"))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	td.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	td.handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token status = %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/frame?access_token=s3cret", nil)
	w = httptest.NewRecorder()
	td.handler.ServeHTTP(w, req)
	if w.Code == http.StatusUnauthorized {
		t.Fatal("query token should be accepted for GET")
	}

	if w := td.do(t, http.MethodGet, "/api/status", ""); w.Code != http.StatusOK {
		t.Fatalf("bearer token status = %d", w.Code)
	}
}

func TestRequestIDEchoed(t *testing.T) {
	td := newTestDaemon(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(api.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	td.handler.ServeHTTP(w, req)
	if got := w.Header().Get(api.RequestIDHeader); got != "req-42" {
		t.Fatalf("request id = %q", got)
	}

	w = td.do(t, http.MethodGet, "/api/status", "")
	if w.Header().Get(api.RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	td := newTestDaemon(t)
	td.frames.show("apple")
	td.do(t, http.MethodPost, "/api/capture/before", "")

	w := td.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "nutriflow_monitoring 1") {
		t.Fatalf("expected monitoring gauge, got:\n%s", w.Body.String())
	}
}

func TestUnknownRoute(t *testing.T) {
	td := newTestDaemon(t)
	w := td.do(t, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeBody[api.ErrorResponse](t, w); resp.ErrorKind != "not_found" {
		t.Fatalf("error kind = %q", resp.ErrorKind)
	}
}

func TestLogsEndpoint(t *testing.T) {
	td := newTestDaemon(t)
	td.frames.show("apple")
	td.do(t, http.MethodPost, "/api/capture/before", "")

	resp := decodeBody[api.LogsResponse](t, td.do(t, http.MethodGet, "/api/logs?limit=500", ""))
	if len(resp.Events) == 0 || resp.Next == 0 {
		t.Fatalf("expected buffered events, got %+v", resp)
	}
	found := false
	for _, evt := range resp.Events {
		if evt.Component == "capture" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected capture component events")
	}

	later := decodeBody[api.LogsResponse](t, td.do(t, http.MethodGet, "/api/logs?since="+strconv.FormatUint(resp.Next+1000, 10), ""))
	if len(later.Events) != 0 {
		t.Fatalf("expected no events past the end, got %d", len(later.Events))
	}
	if w := td.do(t, http.MethodGet, "/api/logs?since=abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad since status = %d", w.Code)
	}
}
