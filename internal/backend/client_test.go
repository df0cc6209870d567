package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/grandhotel/concierge/internal/backend"
	"github.com/grandhotel/concierge/internal/tools"
)

func spec(t *testing.T, name string) *tools.Spec {
	t.Helper()
	r, err := tools.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	s := r.Get(name)
	if s == nil {
		t.Fatalf("tool %q missing from catalogue", name)
	}
	return s
}

func TestCall_GetWithPathArg(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodGet {
			t.Errorf("method: want GET, got %s", r.Method)
		}
		if body, _ := io.ReadAll(r.Body); len(body) != 0 {
			t.Errorf("body: want empty for GET, got %q", body)
		}
		w.Write([]byte(`{"id":5,"type":"SUITE"}`))
	}))
	defer srv.Close()

	c := backend.New(srv.URL, nil)
	out, err := c.Call(context.Background(), spec(t, "rooms_get"),
		map[string]any{"id": float64(5)}, "guest-token")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if gotPath != "/api/v1/rooms/5" {
		t.Errorf("path: want /api/v1/rooms/5, got %s", gotPath)
	}
	if gotAuth != "Bearer guest-token" {
		t.Errorf("authorization: want bearer passthrough, got %q", gotAuth)
	}
	if string(out) != `{"id":5,"type":"SUITE"}` {
		t.Errorf("body passthrough: got %s", out)
	}
}

func TestCall_PostProjectsBody(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type: want application/json, got %q", ct)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := backend.New(srv.URL, nil)
	args := map[string]any{
		"checkInDate":      "2025-10-15",
		"checkOutDate":     "2025-10-18",
		"numberOfAdults":   float64(2),
		"numberOfChildren": float64(0),
	}
	if _, err := c.Call(context.Background(), spec(t, "rooms_filter"), args, ""); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if gotBody["checkInDate"] != "2025-10-15" || gotBody["numberOfAdults"] != float64(2) {
		t.Errorf("body: want all args projected, got %v", gotBody)
	}
}

func TestCall_PutSplitsPathAndBody(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := backend.New(srv.URL, nil)
	args := map[string]any{"id": float64(7), "status": "CANCELLED"}
	if _, err := c.Call(context.Background(), spec(t, "reservations_update"), args, ""); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if gotPath != "/api/v1/reservations/7" {
		t.Errorf("path: want /api/v1/reservations/7, got %s", gotPath)
	}
	if _, ok := gotBody["id"]; ok {
		t.Error("body: path argument must not leak into the body")
	}
	if gotBody["status"] != "CANCELLED" {
		t.Errorf("body: want status CANCELLED, got %v", gotBody)
	}
}

func TestCall_ClassifiesBackendStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantClass backend.ErrorClass
	}{
		{http.StatusNotFound, backend.ClassBackend4xx},
		{http.StatusConflict, backend.ClassBackend4xx},
		{http.StatusInternalServerError, backend.ClassBackend5xx},
		{http.StatusBadGateway, backend.ClassBackend5xx},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"code":"NOT_FOUND","message":"no such room","status":404}`))
		}))

		c := backend.New(srv.URL, nil)
		_, err := c.Call(context.Background(), spec(t, "rooms_list"), nil, "")
		srv.Close()

		var berr *backend.Error
		if !errors.As(err, &berr) {
			t.Fatalf("status %d: want *backend.Error, got %v", tt.status, err)
		}
		if berr.Class != tt.wantClass {
			t.Errorf("status %d: want class %s, got %s", tt.status, tt.wantClass, berr.Class)
		}
		if berr.Status != tt.status {
			t.Errorf("status: want %d, got %d", tt.status, berr.Status)
		}
		if len(berr.Body) == 0 {
			t.Error("want backend body preserved in error")
		}
	}
}

func TestCall_ClassifiesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := backend.New(srv.URL, nil, backend.WithTimeout(20*time.Millisecond))
	_, err := c.Call(context.Background(), spec(t, "rooms_list"), nil, "")

	var berr *backend.Error
	if !errors.As(err, &berr) {
		t.Fatalf("want *backend.Error, got %v", err)
	}
	if berr.Class != backend.ClassTimeout {
		t.Errorf("class: want %s, got %s", backend.ClassTimeout, berr.Class)
	}
}

func TestCall_ClassifiesNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens here anymore

	c := backend.New(srv.URL, nil)
	_, err := c.Call(context.Background(), spec(t, "rooms_list"), nil, "")

	var berr *backend.Error
	if !errors.As(err, &berr) {
		t.Fatalf("want *backend.Error, got %v", err)
	}
	if berr.Class != backend.ClassNetwork {
		t.Errorf("class: want %s, got %s", backend.ClassNetwork, berr.Class)
	}
}

func TestCall_NoAuthHeaderWithoutToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("authorization header must be absent without a token")
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := backend.New(srv.URL, nil)
	if _, err := c.Call(context.Background(), spec(t, "rooms_list"), nil, ""); err != nil {
		t.Fatalf("Call: %v", err)
	}
}
