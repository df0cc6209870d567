package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/grandhotel/concierge/internal/backend"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/turn"
)

// maxBodyBytes caps the inline request payload. A body of exactly this size
// is accepted.
const maxBodyBytes = 20 << 20

// maxTraceIDLen bounds the client-supplied trace identifier.
const maxTraceIDLen = 64

// chatRequest is the POST /chat body.
type chatRequest struct {
	SessionID string        `json:"sessionId"`
	Message   string        `json:"message,omitempty"`
	Audio     *audioPayload `json:"audio,omitempty"`
	VoiceMode bool          `json:"voiceMode"`
	Client    *clientInfo   `json:"client,omitempty"`
}

type audioPayload struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type clientInfo struct {
	TraceID string `json:"traceId"`
}

// chatResponse is the POST /chat JSON body on success.
type chatResponse struct {
	SessionID string            `json:"sessionId"`
	Language  string            `json:"language"`
	Reply     string            `json:"reply"`
	Audio     *audioPayload     `json:"audio,omitempty"`
	ToolTrace []toolTraceEntry  `json:"toolTrace,omitempty"`
	Warnings  []turn.Warning    `json:"warnings,omitempty"`
}

type toolTraceEntry struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	traceID := observe.CorrelationID(ctx)
	if traceID == "" {
		// No active span (tracing disabled); mint an id so error envelopes
		// and logs still correlate.
		traceID = uuid.NewString()
	}

	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized,
			"a bearer credential is required", traceID, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", maxBodyBytes), traceID, nil)
			return
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest,
			"request body is not valid JSON", traceID, nil)
		return
	}

	if req.Client != nil && req.Client.TraceID != "" {
		if len(req.Client.TraceID) > maxTraceIDLen {
			writeError(w, http.StatusBadRequest, CodeBadRequest,
				"client.traceId is too long", traceID, nil)
			return
		}
		traceID = req.Client.TraceID
	}

	if msg, code := validateChat(&req, r); msg != "" {
		writeError(w, http.StatusBadRequest, code, msg, traceID, nil)
		return
	}

	out, err := s.turns.Handle(ctx, turn.Input{
		SessionID: req.SessionID,
		UserText:  req.Message,
		HasAudio:  req.Audio != nil,
		VoiceMode: req.VoiceMode,
		Bearer:    bearer,
	})
	if err != nil {
		s.writeTurnError(w, err, traceID)
		return
	}

	if wantsAudio(r) && out.Audio != nil {
		w.Header().Set("Content-Type", out.Audio.MimeType)
		w.Header().Set("X-Agent-Text", url.QueryEscape(out.Reply))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Audio.Audio)
		return
	}

	resp := chatResponse{
		SessionID: out.SessionID,
		Language:  out.Language,
		Reply:     out.Reply,
		Warnings:  out.Warnings,
	}
	if out.Audio != nil {
		resp.Audio = &audioPayload{
			MimeType: out.Audio.MimeType,
			Data:     base64.StdEncoding.EncodeToString(out.Audio.Audio),
		}
	}
	for _, t := range out.ToolTrace {
		resp.ToolTrace = append(resp.ToolTrace, toolTraceEntry{
			Name:       t.Name,
			Status:     t.Status,
			DurationMs: t.DurationMs,
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// validateChat returns a message and error code for an invalid request, or
// an empty message when the request is acceptable.
func validateChat(req *chatRequest, r *http.Request) (msg, code string) {
	if strings.TrimSpace(req.SessionID) == "" {
		return "sessionId is required", CodeBadRequest
	}
	if strings.TrimSpace(req.Message) == "" && req.Audio == nil {
		return "one of message or audio is required", CodeBadRequest
	}
	if req.Audio != nil {
		if req.Audio.MimeType == "" || req.Audio.Data == "" {
			return "audio requires both mimeType and data", CodeBadRequest
		}
		if _, err := base64.StdEncoding.DecodeString(req.Audio.Data); err != nil {
			return "audio.data is not valid base64", CodeBadRequest
		}
	}
	if wantsAudio(r) && !req.VoiceMode {
		return "Accept: audio/mpeg requires voiceMode", CodeBadRequest
	}
	return "", ""
}

func (s *Server) writeTurnError(w http.ResponseWriter, err error, traceID string) {
	var rle *turn.RateLimitedError
	var berr *backend.Error
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.Itoa(rle.RetryAfter))
		writeError(w, http.StatusTooManyRequests, CodeRateLimited,
			"too many requests for this session", traceID,
			map[string]any{"retryAfter": rle.RetryAfter})
	case errors.As(err, &berr) && berr.Class == backend.ClassBackend5xx:
		writeError(w, http.StatusBadGateway, CodeBackend5xx,
			"the hotel system failed", traceID, nil)
	case errors.As(err, &berr) && berr.Class == backend.ClassBackend4xx:
		writeError(w, http.StatusUnprocessableEntity, CodeUnprocessable,
			"the hotel system rejected the request", traceID, nil)
	default:
		s.logger.Error("turn failed", "err", err, "trace_id", traceID)
		writeError(w, http.StatusInternalServerError, CodeInternalError,
			"an unexpected error occurred", traceID, nil)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	if !found || strings.TrimSpace(token) == "" {
		return "", false
	}
	return token, true
}

func wantsAudio(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "audio/mpeg")
}
