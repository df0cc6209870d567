// Package mock provides a test double for the tts.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/grandhotel/concierge/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
}

// Provider is a mock implementation of tts.Provider.
// Zero values return a small fixed MP3 result; set Err to inject failures.
type Provider struct {
	mu sync.Mutex

	// Audio is the clip returned by Synthesize. Defaults to []byte("mp3-bytes").
	Audio []byte

	// MimeType is the MIME type returned by Synthesize. Defaults to "audio/mpeg".
	MimeType string

	// Err, if non-nil, is returned by every Synthesize call.
	Err error

	// SynthesizeCalls records every invocation of Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string) (*tts.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Text: text})

	if p.Err != nil {
		return nil, p.Err
	}

	audio := p.Audio
	if audio == nil {
		audio = []byte("mp3-bytes")
	}
	mime := p.MimeType
	if mime == "" {
		mime = "audio/mpeg"
	}
	return &tts.Result{Audio: audio, MimeType: mime}, nil
}

// Calls returns the number of Synthesize invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}
