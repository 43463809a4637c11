package meal

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"nutriflow/internal/inventory"
	"nutriflow/internal/profile"
	"nutriflow/internal/services"
)

func testDelta(t *testing.T) inventory.Delta {
	t.Helper()
	return inventory.Diff(
		inventory.Snapshot{"apple", "milk", "egg"},
		inventory.Snapshot{"egg"},
	)
}

func testProfile() profile.UserProfile {
	return profile.UserProfile{
		Name:               "John",
		Age:                30,
		Allergies:          []string{"peanuts"},
		PreferredItems:     []string{"vegetables"},
		RiskFactors:        []string{"diabetes"},
		CuisinePreferences: []string{"italian"},
	}
}

func TestSuggestSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method %s", r.Method)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body["model"] != "llama3" {
			t.Fatalf("model = %v", body["model"])
		}
		if stream, ok := body["stream"].(bool); !ok || stream {
			t.Fatalf("stream = %v, want false", body["stream"])
		}
		prompt, _ := body["prompt"].(string)
		if !strings.Contains(prompt, "1 apple, 1 milk") {
			t.Fatalf("prompt missing items: %q", prompt)
		}
		if !strings.Contains(prompt, "peanuts") || !strings.Contains(prompt, "diabetes") {
			t.Fatalf("prompt missing profile: %q", prompt)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "Apple milk smoothie"})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, Model: "llama3"})
	result := client.Suggest(context.Background(), testDelta(t), testProfile())
	if result.Kind != KindSuccess {
		t.Fatalf("kind = %s, err = %v", result.Kind, result.Err)
	}
	if result.Text != "Apple milk smoothie" {
		t.Fatalf("text = %q", result.Text)
	}
	if !result.OK() {
		t.Fatal("expected OK result")
	}
	if result.Meals != nil {
		t.Fatalf("unstructured result should not carry meals: %+v", result.Meals)
	}
}

func TestSuggestStructuredParsesMeals(t *testing.T) {
	text := "MEAL 1: Apple Oats\nDESCRIPTION: Warm oats.\nCALORIES: 320\nINGREDIENTS:\n- apple\n- milk\nINSTRUCTIONS:\n1. Slice apple\n2. Heat milk\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"response": text})
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL, Structured: true})
	result := client.Suggest(context.Background(), testDelta(t), testProfile())
	if result.Kind != KindSuccess {
		t.Fatalf("kind = %s", result.Kind)
	}
	if len(result.Meals) != 1 || result.Meals[0].Name != "Apple Oats" {
		t.Fatalf("meals = %+v", result.Meals)
	}
}

func TestGenerateDegraded(t *testing.T) {
	cases := map[string]string{
		"missing field": `{"done":true}`,
		"not json":      `<html>oops</html>`,
		"empty text":    `{"response":"   "}`,
		"null":          `{"response":null}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(payload))
			}))
			defer server.Close()

			result := NewClient(Config{URL: server.URL}).Generate(context.Background(), "hi")
			if result.Kind != KindDegraded {
				t.Fatalf("kind = %s, want degraded", result.Kind)
			}
			if result.Text != NothingReturned {
				t.Fatalf("text = %q", result.Text)
			}
			if result.Err != nil {
				t.Fatalf("degraded result should not carry an error: %v", result.Err)
			}
		})
	}
}

func TestGenerateServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("model not loaded"))
	}))
	defer server.Close()

	result := NewClient(Config{URL: server.URL}).Generate(context.Background(), "hi")
	if result.Kind != KindServiceError {
		t.Fatalf("kind = %s", result.Kind)
	}
	if result.StatusCode != http.StatusInternalServerError || result.Body != "model not loaded" {
		t.Fatalf("status=%d body=%q", result.StatusCode, result.Body)
	}
	if !errors.Is(result.Err, services.ErrMealServiceError) {
		t.Fatalf("expected ErrMealServiceError, got %v", result.Err)
	}
	var statusErr *StatusError
	if !errors.As(result.Err, &statusErr) || statusErr.StatusCode != 500 {
		t.Fatalf("expected StatusError cause, got %v", result.Err)
	}
	if !strings.Contains(result.Diagnostic(), "500") {
		t.Fatalf("diagnostic = %q", result.Diagnostic())
	}
}

func TestServiceErrorBodyKeepsRunesWhole(t *testing.T) {
	long := "x" + strings.Repeat("é", maxErrorBody)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(long))
	}))
	defer server.Close()

	result := NewClient(Config{URL: server.URL}).Generate(context.Background(), "hi")
	if result.Kind != KindServiceError {
		t.Fatalf("kind = %s", result.Kind)
	}
	if !utf8.ValidString(result.Body) {
		t.Fatalf("body split a rune: %q", result.Body[len(result.Body)-8:])
	}
	if !strings.HasSuffix(result.Body, "é...") || len(result.Body) > maxErrorBody+len("...") {
		t.Fatalf("body length %d, tail %q", len(result.Body), result.Body[len(result.Body)-8:])
	}
}

func TestGenerateUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	result := NewClient(Config{URL: "http://" + addr + "/api/generate"}).Generate(context.Background(), "hi")
	if result.Kind != KindUnreachable {
		t.Fatalf("kind = %s", result.Kind)
	}
	if !errors.Is(result.Err, services.ErrMealServiceUnreachable) {
		t.Fatalf("expected ErrMealServiceUnreachable, got %v", result.Err)
	}
	if result.Diagnostic() == "" {
		t.Fatal("expected diagnostic text")
	}
	if result.OK() {
		t.Fatal("unreachable result must not be OK")
	}
}

func TestGenerateTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{URL: server.URL}, WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	result := client.Generate(context.Background(), "hi")
	if result.Kind != KindUnreachable {
		t.Fatalf("kind = %s", result.Kind)
	}
	if !strings.Contains(result.Err.Error(), "timeout=50ms") {
		t.Fatalf("error should report timeout: %v", result.Err)
	}
}

func TestGenerateNoRetry(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	NewClient(Config{URL: server.URL}).Generate(context.Background(), "hi")
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte("Ollama is running"))
	}))
	defer server.Close()

	client := NewClient(Config{URL: server.URL + "/api/generate"})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping returned error: %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})
	if client.Model() != defaultModel {
		t.Fatalf("model = %q", client.Model())
	}
	if client.cfg.URL != defaultURL || client.cfg.MealCount != defaultMealCount {
		t.Fatalf("unexpected defaults: %+v", client.cfg)
	}
	if client.httpClient.Timeout != defaultTimeout {
		t.Fatalf("timeout = %s", client.httpClient.Timeout)
	}
}
