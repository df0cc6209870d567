package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/grandhotel/concierge/internal/agent"
	"github.com/grandhotel/concierge/internal/backend"
	"github.com/grandhotel/concierge/internal/gateway"
	"github.com/grandhotel/concierge/internal/health"
	"github.com/grandhotel/concierge/internal/lang"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/ratelimit"
	"github.com/grandhotel/concierge/internal/session"
	"github.com/grandhotel/concierge/internal/tools"
	"github.com/grandhotel/concierge/internal/turn"
	"github.com/grandhotel/concierge/pkg/provider/llm"
	llmmock "github.com/grandhotel/concierge/pkg/provider/llm/mock"
)

// stack wires the full pipeline against in-memory fakes: miniredis for
// state, scripted LLM mocks, and an httptest hotel backend.
type stack struct {
	handler http.Handler
	main    *llmmock.Provider
	detect  *llmmock.Provider
	redis   *miniredis.Miniredis
	backend *recordedBackend
}

type recordedBackend struct {
	srv      *httptest.Server
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

func newRecordedBackend(t *testing.T) *recordedBackend {
	t.Helper()
	rb := &recordedBackend{}
	rb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&body)
		}
		rb.requests = append(rb.requests, recordedRequest{
			Method: r.Method, Path: r.URL.Path, Body: body,
		})
		w.Write([]byte(`[{"id":1,"type":"DOUBLE","pricePerNight":450}]`))
	}))
	t.Cleanup(rb.srv.Close)
	return rb
}

func newStack(t *testing.T, main, detect *llmmock.Provider) *stack {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	reg, err := tools.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	rb := newRecordedBackend(t)
	store := session.NewRedisStore(client, time.Hour, nil)
	limiter := ratelimit.NewRedisLimiter(client, 30, nil)
	orch := agent.New(main, reg, backend.New(rb.srv.URL, nil), 6, metrics, nil)
	ctrl := turn.NewController(store, limiter, lang.New(detect, nil), orch, nil, 20, time.Minute, metrics, nil)

	return &stack{
		handler: gateway.NewServer(ctrl, health.New("e2e"), metrics, nil).Router(),
		main:    main,
		detect:  detect,
		redis:   mr,
		backend: rb,
	}
}

func (s *stack) chat(t *testing.T, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(b))
	req.Header.Set("Authorization", "Bearer guest-jwt")
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestE2E_ColdSessionPolishNoToolUse(t *testing.T) {
	main := &llmmock.Provider{Response: &llm.CompletionResponse{
		Content: "Dzień dobry! W czym mogę pomóc?",
	}}
	detect := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "pl-PL"}}
	s := newStack(t, main, detect)

	rec := s.chat(t, map[string]any{
		"sessionId": "S1",
		"message":   "Cześć, szukam informacji o hotelu",
		"voiceMode": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["language"] != "pl-PL" {
		t.Errorf("language: %v", resp["language"])
	}
	if resp["reply"] == "" {
		t.Error("reply: want non-empty")
	}

	// The session document landed in Redis with language and both turns.
	raw, err := s.redis.Get("sessions:S1")
	if err != nil {
		t.Fatalf("session missing in redis: %v", err)
	}
	var sess struct {
		Language string `json:"language"`
		Messages []any  `json:"messages"`
	}
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		t.Fatalf("session doc: %v", err)
	}
	if sess.Language != "pl-PL" || len(sess.Messages) != 2 {
		t.Errorf("session: language %q, %d messages", sess.Language, len(sess.Messages))
	}
}

func TestE2E_RoomsFilterShape(t *testing.T) {
	main := &llmmock.Provider{Script: []*llm.CompletionResponse{
		{ToolCalls: []llm.ToolCall{{
			ID:   "c1",
			Name: "rooms_filter",
			Arguments: `{"checkInDate":"2025-10-15","checkOutDate":"2025-10-18",` +
				`"numberOfAdults":2,"numberOfChildren":0}`,
		}}},
		{Content: "We have a double room for those dates."},
	}}
	detect := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "en-US"}}
	s := newStack(t, main, detect)

	rec := s.chat(t, map[string]any{
		"sessionId": "S2",
		"message":   "Room for 2 adults Oct 15-18",
		"voiceMode": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	trace := resp["toolTrace"].([]any)
	if len(trace) != 1 {
		t.Fatalf("toolTrace: want one entry, got %v", trace)
	}
	entry := trace[0].(map[string]any)
	if entry["name"] != "rooms_filter" || entry["status"] != "OK" {
		t.Errorf("trace entry: %v", entry)
	}

	if len(s.backend.requests) != 1 {
		t.Fatalf("backend requests: want 1, got %d", len(s.backend.requests))
	}
	got := s.backend.requests[0]
	if got.Method != http.MethodPost || got.Path != "/api/v1/rooms/filter" {
		t.Errorf("backend request: %s %s", got.Method, got.Path)
	}
	want := map[string]any{
		"checkInDate":      "2025-10-15",
		"checkOutDate":     "2025-10-18",
		"numberOfAdults":   float64(2),
		"numberOfChildren": float64(0),
	}
	for k, v := range want {
		if got.Body[k] != v {
			t.Errorf("backend body[%s]: want %v, got %v", k, v, got.Body[k])
		}
	}
}

func TestE2E_RateLimitBoundary(t *testing.T) {
	main := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "ok"}}
	detect := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "en-US"}}
	s := newStack(t, main, detect)

	for i := 1; i <= 30; i++ {
		rec := s.chat(t, map[string]any{"sessionId": "S3", "message": "hi"})
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: want 200, got %d", i, rec.Code)
		}
	}

	rec := s.chat(t, map[string]any{"sessionId": "S3", "message": "hi"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("31st request: want 429, got %d", rec.Code)
	}
	var env map[string]any
	json.NewDecoder(rec.Body).Decode(&env)
	retry := env["details"].(map[string]any)["retryAfter"].(float64)
	if retry < 1 || retry > 60 {
		t.Errorf("retryAfter: want within [1, 60], got %v", retry)
	}

	// A different session is unaffected.
	if rec := s.chat(t, map[string]any{"sessionId": "S4", "message": "hi"}); rec.Code != http.StatusOK {
		t.Errorf("other session: want 200, got %d", rec.Code)
	}
}

func TestE2E_SessionOutageStillAnswers(t *testing.T) {
	main := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Happy to help!"}}
	detect := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "en-US"}}
	s := newStack(t, main, detect)

	s.redis.Close()

	rec := s.chat(t, map[string]any{"sessionId": "S5", "message": "hello"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status during redis outage: want 200, got %d", rec.Code)
	}
	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["reply"] == "" {
		t.Error("reply: want non-empty during outage")
	}
}
