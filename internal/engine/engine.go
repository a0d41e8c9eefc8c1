// Package engine drives the reasoning engine for one user turn: it feeds the
// serialized conversation to the model provider, pulls tool calls through the
// registry as they stream in, and returns the provider's updated serialization
// of the whole exchange.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/penlab/workpen/internal/tools"
)

// ErrTurnBudgetExceeded is returned when the engine uses more internal
// tool-call cycles than permitted within one user turn.
var ErrTurnBudgetExceeded = errors.New("engine: turn budget exceeded")

// ItemKind classifies a streamed engine item.
type ItemKind string

const (
	ItemToolCall         ItemKind = "tool_call"
	ItemToolResult       ItemKind = "tool_result"
	ItemAssistantMessage ItemKind = "assistant_message"
	ItemReasoning        ItemKind = "reasoning"
	ItemUnknown          ItemKind = "unknown"
)

// Item is one typed element of the engine's live per-turn stream.
type Item struct {
	Kind ItemKind

	// Tool call / tool result linkage.
	CallID    string
	ToolName  string
	Arguments json.RawMessage

	// Assistant message, tool output, or reasoning summary text.
	Text string

	// Raw provider payload for reasoning and unrecognized items.
	Raw json.RawMessage
}

// ToolCall is a tool invocation issued by the provider during a cycle.
type ToolCall struct {
	CallID    string
	Name      string
	Arguments json.RawMessage
}

// recordKind is the structural role of one serialized history record.
type recordKind string

const (
	recordUserMessage      recordKind = "user_message"
	recordAssistantMessage recordKind = "assistant_message"
	recordFunctionCall     recordKind = "function_call"
	recordFunctionOutput   recordKind = "function_call_output"
	recordReasoning        recordKind = "reasoning"
)

type record struct {
	kind     recordKind
	text     string
	callID   string
	toolName string
	argsJSON string
	output   string
	// Raw provider payload, kept verbatim for record kinds that must be
	// echoed back to the provider unmodified (reasoning items).
	raw string
}

// History is the engine-owned serialization of the whole exchange. Callers
// hold it as an opaque token: it is only ever constructed and extended inside
// this package, and replaced wholesale after each completed turn. That
// discipline is what keeps tool-call linkage intact across turns.
type History struct {
	records []record
}

// Len reports the number of serialized records.
func (h History) Len() int {
	return len(h.records)
}

func (h History) append(rs ...record) History {
	next := make([]record, 0, len(h.records)+len(rs))
	next = append(next, h.records...)
	next = append(next, rs...)
	return History{records: next}
}

// Provider runs a single model cycle over the serialized history, emitting
// each typed output item in arrival order, and returns the extended
// serialization plus any tool calls the model issued.
type Provider interface {
	Turn(ctx context.Context, h History, defs []tools.Definition, onItem func(Item)) (History, []ToolCall, error)
}

// Runner executes one user turn end to end against a provider and a tool
// registry, within a hard budget of model cycles.
type Runner struct {
	provider Provider
	registry *tools.Registry
	budget   int
}

func NewRunner(provider Provider, registry *tools.Registry, budget int) *Runner {
	return &Runner{provider: provider, registry: registry, budget: budget}
}

// Run appends the user message to the serialization and cycles the provider
// until it completes a cycle with no tool calls. Every item the provider
// emits, and every tool result the runner produces, is handed to onItem in
// order. On success the returned History is the provider-extended
// serialization of the whole exchange; on budget exhaustion no partial
// history is returned.
func (r *Runner) Run(ctx context.Context, h History, userText string, onItem func(Item)) (History, error) {
	cur := h.append(record{kind: recordUserMessage, text: userText})

	for cycle := 0; cycle < r.budget; cycle++ {
		next, calls, err := r.provider.Turn(ctx, cur, r.registry.Definitions(), onItem)
		if err != nil {
			return History{}, fmt.Errorf("engine.Runner.Run: cycle %d: %w", cycle, err)
		}
		cur = next

		if len(calls) == 0 {
			return cur, nil
		}

		for _, call := range calls {
			out := r.registry.Dispatch(ctx, call.Name, call.Arguments)
			onItem(Item{
				Kind:     ItemToolResult,
				CallID:   call.CallID,
				ToolName: call.Name,
				Text:     out,
			})
			cur = cur.append(record{kind: recordFunctionOutput, callID: call.CallID, output: out})
		}
	}

	log.Warn().Int("budget", r.budget).Msg("turn budget exhausted")
	return History{}, fmt.Errorf("engine.Runner.Run: %w", ErrTurnBudgetExceeded)
}
