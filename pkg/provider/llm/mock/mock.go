// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the orchestrator sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. Responses are consumed from a script, one per Complete call, which
// makes multi-round function-calling dialogues easy to drive:
//
//	p := &mock.Provider{
//	    Script: []*llm.CompletionResponse{
//	        {ToolCalls: []llm.ToolCall{{ID: "1", Name: "rooms_list", Arguments: "{}"}}},
//	        {Content: "We have 12 rooms available."},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/grandhotel/concierge/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Provider is a mock implementation of llm.Provider.
//
// Each Complete call consumes the next entry of Script. When the script is
// exhausted (or empty), Response is returned instead; a nil Response yields an
// empty completion. Set Err to make every call fail.
type Provider struct {
	mu sync.Mutex

	// Script is a queue of responses returned by successive Complete calls.
	Script []*llm.CompletionResponse

	// Response is returned when Script is exhausted.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// Caps is returned by Capabilities. A zero value reports tool calling
	// support with generous limits.
	Caps llm.ModelCapabilities

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall

	next int
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})

	if p.Err != nil {
		return nil, p.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.next < len(p.Script) {
		resp := p.Script[p.next]
		p.next++
		if resp != nil {
			return resp, nil
		}
	}
	if p.Response != nil {
		return p.Response, nil
	}
	return &llm.CompletionResponse{}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	if p.Caps == (llm.ModelCapabilities{}) {
		return llm.ModelCapabilities{
			ContextWindow:       128_000,
			MaxOutputTokens:     16_384,
			SupportsToolCalling: true,
		}
	}
	return p.Caps
}

// Calls returns the number of Complete invocations so far.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
