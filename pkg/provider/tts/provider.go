// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs) and
// converts a finished reply into a single encoded audio clip. Synthesis
// failures are expected to be non-fatal for callers: the turn controller
// degrades to a text-only response when a provider returns an error.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Result is the outcome of a successful synthesis call.
type Result struct {
	// Audio is the encoded audio clip.
	Audio []byte

	// MimeType is the MIME type of Audio (e.g., "audio/mpeg").
	MimeType string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into a single audio clip. It returns an error
	// if the text is empty, the provider is unreachable, or ctx is cancelled
	// before synthesis completes.
	Synthesize(ctx context.Context, text string) (*Result, error)
}
