package resilience

import (
	"context"

	"github.com/grandhotel/concierge/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker, so a down
// voice API fails fast and the turn degrades to text-only output instead of
// waiting out a timeout on every request.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertion.
var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *TTSFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text through the first healthy provider.
func (f *TTSFallback) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (*tts.Result, error) {
		return p.Synthesize(ctx, text)
	})
}
