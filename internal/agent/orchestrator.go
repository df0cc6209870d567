// Package agent runs the function-calling loop between the LLM and the hotel
// backend.
//
// A run is a bounded state machine: the model is called with the conversation
// so far, any tool invocations it returns are validated, dispatched, and fed
// back as tool results, and the loop repeats until the model answers in plain
// text or the round budget is spent. Tool failures never escape the loop; they
// are returned to the model as structured results so it can recover or
// apologise in the guest's language.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/grandhotel/concierge/internal/backend"
	"github.com/grandhotel/concierge/internal/observe"
	"github.com/grandhotel/concierge/internal/session"
	"github.com/grandhotel/concierge/internal/tools"
	"github.com/grandhotel/concierge/pkg/provider/llm"
)

// Trace statuses reported per dispatched tool call.
const (
	StatusOK      = "OK"
	StatusError   = "ERROR"
	StatusTimeout = "TIMEOUT"
)

// ToolTrace records one tool dispatch for the client. It carries no argument
// values and no backend payloads.
type ToolTrace struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
}

// RunInput is everything one orchestration run needs.
type RunInput struct {
	// System is the full system instruction, already assembled by the caller.
	System string

	// History is the persisted conversation, oldest first.
	History []session.Message

	// UserText is the current utterance.
	UserText string

	// Language is the session's BCP-47 tag, used to pick the apology string
	// when the run aborts.
	Language string

	// Bearer is the guest's backend credential, forwarded verbatim.
	Bearer string
}

// RunResult is the outcome of a run.
type RunResult struct {
	// Reply is the model's final text, or a locale apology after an abort.
	Reply string

	// Trace lists the backend calls made, in dispatch order.
	Trace []ToolTrace

	// Aborted reports that the round budget or turn deadline was hit and
	// Reply is the apology rather than a model answer.
	Aborted bool
}

// Orchestrator drives the model/tool loop.
type Orchestrator struct {
	provider  llm.Provider
	registry  *tools.Registry
	runner    tools.Runner
	metrics   *observe.Metrics
	maxRounds int
	logger    *slog.Logger
}

// New creates an Orchestrator. maxRounds bounds the number of model calls per
// run. metrics and logger may be nil.
func New(provider llm.Provider, registry *tools.Registry, runner tools.Runner, maxRounds int, metrics *observe.Metrics, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		provider:  provider,
		registry:  registry,
		runner:    runner,
		metrics:   metrics,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// Run executes the loop until the model emits plain text, the round budget is
// spent, or ctx expires. Deadline expiry mid-run aborts into the apology
// reply; any other model transport error is returned to the caller.
func (o *Orchestrator) Run(ctx context.Context, in RunInput) (*RunResult, error) {
	convo := make([]llm.Message, 0, len(in.History)+1)
	for _, m := range in.History {
		convo = append(convo, llm.Message{Role: m.Role, Content: m.Content})
	}
	convo = append(convo, llm.Message{Role: "user", Content: in.UserText})

	decls := o.registry.Declarations()
	var trace []ToolTrace

	for round := 0; round < o.maxRounds; round++ {
		start := time.Now()
		resp, err := o.provider.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: in.System,
			Messages:     convo,
			Tools:        decls,
		})
		o.observeLLM(ctx, time.Since(start), err)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				o.logger.Warn("turn deadline hit mid-run, aborting", "round", round)
				return o.abort(in.Language, trace), nil
			}
			return nil, fmt.Errorf("agent: model call: %w", err)
		}

		// A tool call wins over accompanying text; discarding the text keeps
		// the loop deterministic.
		if len(resp.ToolCalls) == 0 {
			return &RunResult{Reply: resp.Content, Trace: trace}, nil
		}

		convo = append(convo, llm.Message{
			Role:      "assistant",
			Content:   "",
			ToolCalls: resp.ToolCalls,
		})

		results, entries := o.dispatch(ctx, resp.ToolCalls, in.Bearer)
		trace = append(trace, entries...)
		convo = append(convo, results...)
	}

	o.logger.Warn("round budget spent without a final answer",
		"max_rounds", o.maxRounds, "tool_calls", len(trace))
	return o.abort(in.Language, trace), nil
}

// dispatch executes the calls of one model response in order. A network
// failure aborts the remaining calls of the batch; every other failure is
// reported back to the model and the batch continues.
func (o *Orchestrator) dispatch(ctx context.Context, calls []llm.ToolCall, bearer string) ([]llm.Message, []ToolTrace) {
	results := make([]llm.Message, 0, len(calls))
	var entries []ToolTrace

	shortCircuit := false
	for _, call := range calls {
		if shortCircuit {
			results = append(results, toolResult(call.ID, errorResult("SKIPPED",
				"not executed, a previous call failed to reach the backend")))
			continue
		}

		args, err := decodeArgs(call.Arguments)
		if err == nil {
			err = o.registry.Validate(call.Name, args)
		}
		if err != nil {
			o.logger.Warn("tool call rejected", "tool", call.Name, "err", err)
			results = append(results, toolResult(call.ID, errorResult("INVALID_ARGS", err.Error())))
			continue
		}

		spec := o.registry.Get(call.Name)
		start := time.Now()
		payload, callErr := o.runner.Call(ctx, spec, args, bearer)
		elapsed := time.Since(start)

		entry := ToolTrace{Name: call.Name, Status: StatusOK, DurationMs: elapsed.Milliseconds()}
		var berr *backend.Error
		switch {
		case callErr == nil:
			results = append(results, toolResult(call.ID, json.RawMessage(payload)))
		case errors.As(callErr, &berr):
			switch berr.Class {
			case backend.ClassTimeout:
				entry.Status = StatusTimeout
				results = append(results, toolResult(call.ID, errorResult("TIMEOUT",
					"the hotel system did not answer in time")))
			case backend.ClassNetwork:
				entry.Status = StatusError
				results = append(results, toolResult(call.ID, errorResult("NETWORK",
					"the hotel system is unreachable")))
				shortCircuit = true
			default:
				entry.Status = StatusError
				results = append(results, toolResult(call.ID, backendResult(berr)))
			}
		default:
			entry.Status = StatusError
			results = append(results, toolResult(call.ID, errorResult("ERROR", callErr.Error())))
		}

		o.observeTool(ctx, call.Name, entry.Status, elapsed)
		entries = append(entries, entry)
	}
	return results, entries
}

func (o *Orchestrator) abort(language string, trace []ToolTrace) *RunResult {
	return &RunResult{Reply: Apology(language), Trace: trace, Aborted: true}
}

func (o *Orchestrator) observeLLM(ctx context.Context, d time.Duration, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLLMCall(ctx, d, err)
}

func (o *Orchestrator) observeTool(ctx context.Context, name, status string, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordToolCall(ctx, name, status, d)
}

func decodeArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	return args, nil
}

// toolResult wraps a payload as the tool-role message the model expects.
func toolResult(callID string, payload json.RawMessage) llm.Message {
	return llm.Message{
		Role:       "tool",
		Content:    string(payload),
		ToolCallID: callID,
	}
}

func errorResult(code, detail string) json.RawMessage {
	out, _ := json.Marshal(map[string]string{"error": code, "detail": detail})
	return out
}

// backendResult relays a 4xx/5xx backend envelope to the model so it can
// explain the refusal to the guest.
func backendResult(berr *backend.Error) json.RawMessage {
	wrapped := map[string]any{
		"error":  "BACKEND",
		"status": berr.Status,
	}
	if json.Valid(berr.Body) {
		wrapped["response"] = json.RawMessage(berr.Body)
	} else {
		wrapped["response"] = string(berr.Body)
	}
	out, _ := json.Marshal(wrapped)
	return out
}
