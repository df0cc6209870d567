// Package lang detects the language of a user utterance as a BCP-47 tag.
//
// Detection is a single deterministic call to a cheap LLM, made at most once
// per session: the detected tag is cached in the session document and reused
// for every later turn. Any failure (transport error, empty input, or a
// response that is not a plausible tag) falls back to "en-US" with a logged
// warning, never an error.
package lang

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/grandhotel/concierge/pkg/provider/llm"
)

// DefaultTag is the fallback language when detection is impossible.
const DefaultTag = "en-US"

// detectPrompt constrains the model to emit nothing but a tag.
const detectPrompt = "You are a strict language detector. " +
	"Return ONLY the primary BCP-47 language code of the provided text. " +
	"Examples: 'en-US', 'pl-PL', 'de-DE'. Do not add explanations."

// tagPattern accepts a 2–3 letter primary subtag with an optional region.
var tagPattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)

// Detector resolves the dominant language of a text sample.
type Detector struct {
	provider llm.Provider
	logger   *slog.Logger
}

// New creates a Detector backed by the given (typically cheaper) LLM provider.
// logger may be nil, in which case slog.Default() is used.
func New(provider llm.Provider, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{provider: provider, logger: logger}
}

// Detect returns the BCP-47 tag for the dominant language of text, or
// [DefaultTag] when text is empty or detection fails.
func (d *Detector) Detect(ctx context.Context, text string) string {
	if strings.TrimSpace(text) == "" {
		return DefaultTag
	}

	resp, err := d.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: detectPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		Temperature:  llm.Float(0),
		MaxTokens:    8,
	})
	if err != nil {
		d.logger.Warn("language detection failed, using default",
			"default", DefaultTag, "err", err)
		return DefaultTag
	}

	tag := strings.TrimSpace(resp.Content)
	if !tagPattern.MatchString(tag) {
		d.logger.Warn("language detector returned an invalid tag, using default",
			"tag", tag, "default", DefaultTag)
		return DefaultTag
	}
	return tag
}
