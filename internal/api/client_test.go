package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nutriflow/internal/profile"
)

func TestClientSendsTokenAndDecodesEnvelope(t *testing.T) {
	var gotAuth, gotPath, gotRequestID string
	var gotBody AfterRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get(RequestIDHeader)
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(CommandResponse{
			Success:    true,
			Outcome:    "success",
			TakenItems: map[string]int{"milk": 1},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", "secret")
	resp, err := client.CaptureAfter(context.Background(), true)
	if err != nil {
		t.Fatalf("CaptureAfter: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization = %q", gotAuth)
	}
	if gotPath != "/api/capture/after" || !gotBody.Acknowledged {
		t.Fatalf("unexpected request path=%q body=%+v", gotPath, gotBody)
	}
	if gotRequestID == "" {
		t.Fatal("expected request id header")
	}
	if !resp.Success || resp.TakenItems["milk"] != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestClientDecodesErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "unauthorized"})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Status(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestClientUpdateProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var update profile.Partial
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			t.Errorf("decode: %v", err)
		}
		p := profile.UserProfile{Name: "Jane"}
		if update.Age != nil {
			p.Age = *update.Age
		}
		_ = json.NewEncoder(w).Encode(ProfileResponse{Success: true, Profile: p})
	}))
	defer srv.Close()

	age := 41
	got, err := NewClient(srv.URL, "").UpdateProfile(context.Background(), profile.Partial{Age: &age})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.Name != "Jane" || got.Age != 41 {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestClientHistoryLimitQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(HistoryListResponse{Cycles: []CycleView{{ID: "a"}}, Total: 1})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "").History(context.Background(), 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if gotQuery != "limit=5" || len(resp.Cycles) != 1 {
		t.Fatalf("query=%q resp=%+v", gotQuery, resp)
	}
}
