package gateway_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/grandhotel/concierge/internal/agent"
	"github.com/grandhotel/concierge/internal/gateway"
	"github.com/grandhotel/concierge/internal/health"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/turn"
	"github.com/grandhotel/concierge/pkg/provider/tts"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// stubTurns scripts the controller behind the gateway.
type stubTurns struct {
	out  *turn.Output
	err  error
	last turn.Input
}

func (s *stubTurns) Handle(_ context.Context, in turn.Input) (*turn.Output, error) {
	s.last = in
	if s.err != nil {
		return nil, s.err
	}
	return s.out, nil
}

func newServer(t *testing.T, turns gateway.TurnHandler) http.Handler {
	t.Helper()
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return gateway.NewServer(turns, health.New("test"), m, nil).Router()
}

func okOutput() *turn.Output {
	return &turn.Output{
		SessionID: "S1",
		Language:  "en-US",
		Reply:     "Welcome!",
	}
}

func chatBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(b)
}

func doChat(t *testing.T, h http.Handler, body *bytes.Reader, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", body)
	req.Header.Set("Authorization", "Bearer guest-token")
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestChat_Success(t *testing.T) {
	st := &stubTurns{out: &turn.Output{
		SessionID: "S1",
		Language:  "pl-PL",
		Reply:     "Dzień dobry!",
		ToolTrace: []agent.ToolTrace{{Name: "rooms_list", Status: "OK", DurationMs: 42}},
	}}
	h := newServer(t, st)

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "Cześć", "voiceMode": false,
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status: want 200, got %d, body %s", rec.Code, rec.Body)
	}
	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["sessionId"] != "S1" || resp["language"] != "pl-PL" || resp["reply"] != "Dzień dobry!" {
		t.Errorf("response: %v", resp)
	}
	trace := resp["toolTrace"].([]any)
	if len(trace) != 1 || trace[0].(map[string]any)["name"] != "rooms_list" {
		t.Errorf("toolTrace: %v", resp["toolTrace"])
	}
	if st.last.Bearer != "guest-token" {
		t.Errorf("bearer: want passthrough, got %q", st.last.Bearer)
	}
}

func TestChat_MissingBearer(t *testing.T) {
	h := newServer(t, &stubTurns{out: okOutput()})

	req := httptest.NewRequest(http.MethodPost, "/chat",
		chatBody(t, map[string]any{"sessionId": "S1", "message": "hi"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status: want 401, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["code"] != gateway.CodeUnauthorized || env["status"] != float64(401) {
		t.Errorf("envelope: %v", env)
	}
}

func TestChat_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing sessionId", map[string]any{"message": "hi"}},
		{"no message or audio", map[string]any{"sessionId": "S1"}},
		{"audio without data", map[string]any{"sessionId": "S1", "audio": map[string]any{"mimeType": "audio/webm"}}},
		{"audio bad base64", map[string]any{"sessionId": "S1", "audio": map[string]any{"mimeType": "audio/webm", "data": "!!!"}}},
		{"trace id too long", map[string]any{"sessionId": "S1", "message": "hi",
			"client": map[string]any{"traceId": strings.Repeat("x", 65)}}},
	}
	h := newServer(t, &stubTurns{out: okOutput()})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doChat(t, h, chatBody(t, tt.body))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status: want 400, got %d", rec.Code)
			}
			env := decodeEnvelope(t, rec)
			if env["code"] != gateway.CodeBadRequest {
				t.Errorf("code: %v", env["code"])
			}
		})
	}
}

func TestChat_MalformedJSON(t *testing.T) {
	h := newServer(t, &stubTurns{out: okOutput()})
	rec := doChat(t, h, bytes.NewReader([]byte("{not json")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want 400, got %d", rec.Code)
	}
}

// paddedBody builds a syntactically valid chat request of exactly n bytes.
func paddedBody(t *testing.T, n int) *bytes.Reader {
	t.Helper()
	const skeleton = `{"sessionId":"S1","voiceMode":false,"message":"%s"}`
	fill := n - len(fmt.Sprintf(skeleton, ""))
	if fill < 0 {
		t.Fatalf("target size %d too small", n)
	}
	return bytes.NewReader([]byte(fmt.Sprintf(skeleton, strings.Repeat("a", fill))))
}

func TestChat_PayloadSizeBoundary(t *testing.T) {
	h := newServer(t, &stubTurns{out: okOutput()})

	if rec := doChat(t, h, paddedBody(t, 20<<20)); rec.Code != http.StatusOK {
		t.Errorf("exactly 20 MiB: want 200, got %d", rec.Code)
	}

	rec := doChat(t, h, paddedBody(t, 20<<20+1))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("20 MiB + 1: want 413, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["code"] != gateway.CodePayloadTooLarge {
		t.Errorf("code: %v", env["code"])
	}
}

func TestChat_RateLimited(t *testing.T) {
	h := newServer(t, &stubTurns{err: &turn.RateLimitedError{RetryAfter: 23}})

	rec := doChat(t, h, chatBody(t, map[string]any{"sessionId": "S1", "message": "hi"}))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status: want 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "23" {
		t.Errorf("Retry-After: want 23, got %q", got)
	}
	env := decodeEnvelope(t, rec)
	if env["code"] != gateway.CodeRateLimited {
		t.Errorf("code: %v", env["code"])
	}
	details := env["details"].(map[string]any)
	if details["retryAfter"] != float64(23) {
		t.Errorf("details: %v", env["details"])
	}
}

func TestChat_InternalError(t *testing.T) {
	h := newServer(t, &stubTurns{err: errors.New("model exploded")})

	rec := doChat(t, h, chatBody(t, map[string]any{"sessionId": "S1", "message": "hi"}))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status: want 500, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["code"] != gateway.CodeInternalError {
		t.Errorf("code: %v", env["code"])
	}
	if strings.Contains(env["message"].(string), "exploded") {
		t.Error("internal details must not leak into the envelope")
	}
}

func TestChat_ClientTraceIDEchoedInEnvelope(t *testing.T) {
	h := newServer(t, &stubTurns{err: errors.New("boom")})

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "hi",
		"client": map[string]any{"traceId": "trace-123"},
	}))
	env := decodeEnvelope(t, rec)
	if env["traceId"] != "trace-123" {
		t.Errorf("traceId: want client value echoed, got %v", env["traceId"])
	}
}

func TestChat_JSONAudioIsBase64(t *testing.T) {
	audio := []byte{0xff, 0xf3, 0x01, 0x02}
	st := &stubTurns{out: &turn.Output{
		SessionID: "S1", Language: "en-US", Reply: "Hello",
		Audio: &tts.Result{Audio: audio, MimeType: "audio/mpeg"},
	}}
	h := newServer(t, st)

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "hi", "voiceMode": true,
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp struct {
		Audio *struct {
			MimeType string `json:"mimeType"`
			Data     string `json:"data"`
		} `json:"audio"`
	}
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Audio == nil || resp.Audio.MimeType != "audio/mpeg" {
		t.Fatal("audio missing from JSON response")
	}
	decoded, err := base64.StdEncoding.DecodeString(resp.Audio.Data)
	if err != nil || !bytes.Equal(decoded, audio) {
		t.Errorf("audio round-trip failed: %v", err)
	}
}

func TestChat_AcceptAudioReturnsRawBytes(t *testing.T) {
	audio := []byte("mp3-data")
	st := &stubTurns{out: &turn.Output{
		SessionID: "S1", Language: "pl-PL", Reply: "Dzień dobry & zapraszamy",
		Audio: &tts.Result{Audio: audio, MimeType: "audio/mpeg"},
	}}
	h := newServer(t, st)

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "hi", "voiceMode": true,
	}), func(r *http.Request) { r.Header.Set("Accept", "audio/mpeg") })

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("content type: %q", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), audio) {
		t.Error("body: want raw audio bytes")
	}
	text, err := url.QueryUnescape(rec.Header().Get("X-Agent-Text"))
	if err != nil || text != "Dzień dobry & zapraszamy" {
		t.Errorf("X-Agent-Text: got %q (err %v)", text, err)
	}
}

func TestChat_AcceptAudioRequiresVoiceMode(t *testing.T) {
	h := newServer(t, &stubTurns{out: okOutput()})

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "hi", "voiceMode": false,
	}), func(r *http.Request) { r.Header.Set("Accept", "audio/mpeg") })

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want 400, got %d", rec.Code)
	}
}

func TestChat_AcceptAudioFallsBackToJSONWithoutAudio(t *testing.T) {
	// TTS failed upstream; the reply still reaches the client as JSON.
	st := &stubTurns{out: &turn.Output{
		SessionID: "S1", Language: "en-US", Reply: "Hello",
		Warnings: []turn.Warning{{Code: turn.WarnTTSUnavailable}},
	}}
	h := newServer(t, st)

	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1", "message": "hi", "voiceMode": true,
	}), func(r *http.Request) { r.Header.Set("Accept", "audio/mpeg") })

	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("want JSON fallback, got %v", err)
	}
	warnings := resp["warnings"].([]any)
	if len(warnings) != 1 {
		t.Errorf("warnings: %v", resp["warnings"])
	}
}

func TestChat_AudioOnlyInputForwarded(t *testing.T) {
	st := &stubTurns{out: okOutput()}
	h := newServer(t, st)

	data := base64.StdEncoding.EncodeToString([]byte("opus-bytes"))
	rec := doChat(t, h, chatBody(t, map[string]any{
		"sessionId": "S1",
		"audio":     map[string]any{"mimeType": "audio/webm", "data": data},
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: %d, body %s", rec.Code, rec.Body)
	}
	if !st.last.HasAudio || st.last.UserText != "" {
		t.Errorf("turn input: want audio-only, got %+v", st.last)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	h := newServer(t, &stubTurns{out: okOutput()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/health: want 200, got %d", rec.Code)
	}
	var body map[string]any
	json.NewDecoder(rec.Body).Decode(&body)
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("/health body: %v", body)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/metrics: want 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz: want 200, got %d", rec.Code)
	}
}
