// Package tools implements the fixed set of capabilities exposed to the
// reasoning engine: read_file, write_file and execute_command, all confined
// to the sandbox root.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ErrUnknownTool is returned when a requested tool name is not registered.
var ErrUnknownTool = errors.New("tools: unknown tool")

// Tool is a single callable capability with a declared argument schema.
type Tool interface {
	Name() string
	Description() string
	// InputSchema is the JSON schema for the tool's arguments object.
	InputSchema() json.RawMessage

	// Invoke executes the tool. A returned error describes a local tool
	// failure (escaped path, missing file); the registry converts it to
	// textual output so the engine can see it and react.
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// Definition is the declared shape of a tool as advertised to the engine.
type Definition struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Registry is the fixed, statically declared tool set. It performs pure
// lookup; authorization is whatever each tool already enforces.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry over a fixed set of tools.
func NewRegistry(ts ...Tool) *Registry {
	m := make(map[string]Tool, len(ts))
	for _, t := range ts {
		m[t.Name()] = t
	}
	return &Registry{tools: m}
}

// Definitions returns the declared tool shapes in sorted name order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Dispatch invokes a tool by name and always returns textual output.
// Tool-level failures become the tool's output rather than an error, so the
// engine can decide whether to retry or change course; the session never
// fails because a tool did.
func (r *Registry) Dispatch(ctx context.Context, name string, args json.RawMessage) string {
	t, ok := r.tools[name]
	if !ok {
		log.Warn().Str("tool", name).Msg("dispatch of unregistered tool")
		return fmt.Sprintf("Error: %v: %s", ErrUnknownTool, name)
	}

	out, err := t.Invoke(ctx, args)
	if err != nil {
		log.Debug().Err(err).Str("tool", name).Msg("tool invocation failed")
		return "Error: " + err.Error()
	}
	return out
}
