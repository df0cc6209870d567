// Package turn coordinates one conversational turn end to end: admission,
// session memory, language detection, the function-calling run, persistence,
// and optional speech synthesis.
package turn

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grandhotel/concierge/internal/agent"
	"github.com/grandhotel/concierge/internal/lang"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/ratelimit"
	"github.com/grandhotel/concierge/internal/session"
	"github.com/grandhotel/concierge/pkg/provider/tts"
)

//go:embed prompt.txt
var basePrompt string

// audioPlaceholder stands in for the user turn in persisted history when the
// guest sent only audio.
const audioPlaceholder = "[voice message]"

// WarnTTSUnavailable is attached when voice output was requested but
// synthesis failed; the turn still succeeds with text only.
const WarnTTSUnavailable = "TTS_UNAVAILABLE"

// RateLimitedError rejects a turn before any model work happens.
type RateLimitedError struct {
	// RetryAfter is the suggested wait in whole seconds, within [1, 60].
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("turn: rate limited, retry after %ds", e.RetryAfter)
}

// Input is one parsed chat request.
type Input struct {
	SessionID string
	UserText  string
	HasAudio  bool
	VoiceMode bool
	Bearer    string
}

// Warning is a non-fatal condition reported alongside a successful turn.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Output is the result of a completed turn.
type Output struct {
	SessionID string
	Language  string
	Reply     string
	Audio     *tts.Result
	ToolTrace []agent.ToolTrace
	Warnings  []Warning
}

// Controller runs turns. Synth may be nil when voice output is not
// configured; voiceMode requests then degrade to text with a warning.
type Controller struct {
	store        session.Store
	limiter      ratelimit.Limiter
	detector     *lang.Detector
	orchestrator *agent.Orchestrator
	synth        tts.Provider
	metrics      *observe.Metrics
	maxMessages  int
	deadline     time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewController wires a Controller. metrics and logger may be nil.
func NewController(
	store session.Store,
	limiter ratelimit.Limiter,
	detector *lang.Detector,
	orchestrator *agent.Orchestrator,
	synth tts.Provider,
	maxMessages int,
	deadline time.Duration,
	metrics *observe.Metrics,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		store:        store,
		limiter:      limiter,
		detector:     detector,
		orchestrator: orchestrator,
		synth:        synth,
		metrics:      metrics,
		maxMessages:  maxMessages,
		deadline:     deadline,
		logger:       logger,
		now:          time.Now,
	}
}

// Handle runs one turn. A *RateLimitedError means the turn was rejected
// before any model work; any other error is an internal fault. Session
// persistence and TTS failures never fail the turn once a reply exists.
func (c *Controller) Handle(ctx context.Context, in Input) (*Output, error) {
	start := c.now()

	if d := c.limiter.Admit(ctx, in.SessionID); !d.Allowed {
		// The session was referenced but not modified; keep it alive so the
		// guest's history survives a burst of rejected requests.
		c.store.Touch(ctx, in.SessionID)
		return nil, &RateLimitedError{RetryAfter: d.RetryAfter}
	}

	sess := c.store.Load(ctx, in.SessionID)
	if sess == nil {
		sess = session.New()
	}

	userText := strings.TrimSpace(in.UserText)
	if userText == "" && in.HasAudio {
		userText = audioPlaceholder
	}

	language := sess.Language
	if language == "" {
		if userText == "" || userText == audioPlaceholder {
			language = lang.DefaultTag
		} else {
			language = c.detector.Detect(ctx, userText)
		}
		sess.Language = language
	}

	runCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	res, err := c.orchestrator.Run(runCtx, agent.RunInput{
		System:   c.systemPrompt(language),
		History:  sess.Messages,
		UserText: userText,
		Language: language,
		Bearer:   in.Bearer,
	})
	if err != nil {
		c.recordTurn(ctx, c.now().Sub(start), "error")
		return nil, fmt.Errorf("turn: orchestration: %w", err)
	}

	// The reply is fixed; persistence is best effort from here on.
	sess.Append(userText, res.Reply, c.maxMessages)
	c.store.Save(ctx, in.SessionID, sess)

	out := &Output{
		SessionID: in.SessionID,
		Language:  language,
		Reply:     res.Reply,
		ToolTrace: res.Trace,
	}

	if in.VoiceMode {
		out.Audio = c.synthesize(ctx, res.Reply, out)
	}

	outcome := "ok"
	if res.Aborted {
		outcome = "aborted"
	}
	c.recordTurn(ctx, c.now().Sub(start), outcome)
	return out, nil
}

func (c *Controller) synthesize(ctx context.Context, text string, out *Output) *tts.Result {
	if c.synth == nil {
		out.Warnings = append(out.Warnings, Warning{
			Code:    WarnTTSUnavailable,
			Message: "voice output is not configured",
		})
		return nil
	}

	start := c.now()
	audio, err := c.synth.Synthesize(ctx, text)
	if c.metrics != nil {
		c.metrics.RecordTTSCall(ctx, c.now().Sub(start), err)
	}
	if err != nil {
		c.logger.Warn("speech synthesis failed, returning text only", "err", err)
		out.Warnings = append(out.Warnings, Warning{
			Code:    WarnTTSUnavailable,
			Message: "speech synthesis failed",
		})
		return nil
	}
	return audio
}

// systemPrompt combines the static persona with the runtime datetime and
// language directives.
func (c *Controller) systemPrompt(language string) string {
	now := c.now().UTC()
	var b strings.Builder
	b.WriteString(basePrompt)
	fmt.Fprintf(&b, "\n\n[Runtime Context]\nCURRENT_DATETIME_UTC = %s\nToday's date (UTC): %s\n",
		now.Format(time.RFC3339), now.Format("2006-01-02"))
	if language != "" {
		fmt.Fprintf(&b, "\n[Runtime Instruction]\nLANG = %s\nAnswer exclusively in LANG. Do not mix languages.\n",
			language)
	}
	return b.String()
}

func (c *Controller) recordTurn(ctx context.Context, d time.Duration, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordTurn(ctx, d, outcome)
}
