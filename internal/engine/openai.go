package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/penlab/workpen/internal/tools"
)

const instructions = `You are a command-line assistant working inside an isolated directory.
- Only files under the working directory are accessible.
- Use the provided tools to inspect or modify files and run shell commands for the user.
- Prefer small, verifiable steps; show the user what you did.`

// OpenAI is the Responses API implementation of Provider.
type OpenAI struct {
	client openai.Client
	model  string
}

// NewOpenAI creates a provider for the given credential and model.
// baseURL overrides the API endpoint when non-empty (gateways, test servers).
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Turn streams one model cycle. Output items are emitted through onItem in
// the exact order the API delivers them; the returned History extends h with
// this cycle's output in the provider's own serialized form.
func (p *OpenAI) Turn(ctx context.Context, h History, defs []tools.Definition, onItem func(Item)) (History, []ToolCall, error) {
	params := responses.ResponseNewParams{
		Model:             shared.ResponsesModel(p.model),
		Instructions:      openai.String(instructions),
		ParallelToolCalls: openai.Bool(false),
		Input:             responses.ResponseNewParamsInputUnion{OfInputItemList: buildInput(h)},
	}
	if ts := buildTools(defs); len(ts) > 0 {
		params.Tools = ts
	}

	stream := p.client.Responses.NewStreaming(ctx, params)
	defer stream.Close()

	next := h
	var calls []ToolCall

	for stream.Next() {
		event := stream.Current()
		if event.Type != "response.output_item.done" {
			continue
		}

		item := event.Item
		switch item.Type {
		case "function_call":
			call := ToolCall{
				CallID:    item.CallID,
				Name:      item.Name,
				Arguments: json.RawMessage(item.Arguments),
			}
			calls = append(calls, call)
			next = next.append(record{
				kind:     recordFunctionCall,
				callID:   item.CallID,
				toolName: item.Name,
				argsJSON: item.Arguments,
			})
			onItem(Item{
				Kind:      ItemToolCall,
				CallID:    call.CallID,
				ToolName:  call.Name,
				Arguments: call.Arguments,
			})

		case "message":
			text := messageText(item)
			next = next.append(record{kind: recordAssistantMessage, text: text})
			onItem(Item{Kind: ItemAssistantMessage, Text: text})

		case "reasoning":
			// Reasoning items must travel with their function calls: with
			// client-managed conversation state the API rejects a resubmitted
			// function_call whose reasoning item is missing, so the raw item
			// is serialized and echoed back verbatim.
			next = next.append(record{kind: recordReasoning, raw: item.RawJSON()})
			onItem(Item{
				Kind: ItemReasoning,
				Text: reasoningSummary(item),
				Raw:  json.RawMessage(item.RawJSON()),
			})

		default:
			onItem(Item{Kind: ItemUnknown, Raw: json.RawMessage(item.RawJSON())})
		}
	}
	if err := stream.Err(); err != nil {
		return History{}, nil, fmt.Errorf("engine.OpenAI.Turn: %w", err)
	}

	return next, calls, nil
}

func buildInput(h History) responses.ResponseInputParam {
	items := make(responses.ResponseInputParam, 0, len(h.records))
	for _, r := range h.records {
		switch r.kind {
		case recordUserMessage:
			items = append(items, responses.ResponseInputItemParamOfMessage(r.text, responses.EasyInputMessageRoleUser))
		case recordAssistantMessage:
			if r.text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(r.text, responses.EasyInputMessageRoleAssistant))
			}
		case recordReasoning:
			var reasoning responses.ResponseReasoningItemParam
			if err := json.Unmarshal([]byte(r.raw), &reasoning); err != nil {
				continue
			}
			items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &reasoning})
		case recordFunctionCall:
			args := r.argsJSON
			if args == "" || !json.Valid([]byte(args)) {
				args = "{}"
			}
			items = append(items, responses.ResponseInputItemParamOfFunctionCall(args, r.callID, r.toolName))
		case recordFunctionOutput:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(r.callID, r.output))
		}
	}
	return items
}

func buildTools(defs []tools.Definition) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := map[string]any{}
		if len(def.InputSchema) > 0 {
			_ = json.Unmarshal(def.InputSchema, &schema)
		}
		out = append(out, responses.ToolParamOfFunction(def.Name, schema, false))
	}
	return out
}

func messageText(item responses.ResponseOutputItemUnion) string {
	var sb strings.Builder
	msg := item.AsMessage()
	for _, part := range msg.Content {
		if part.Type != "output_text" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

func reasoningSummary(item responses.ResponseOutputItemUnion) string {
	reasoning := item.AsReasoning()
	parts := make([]string, 0, len(reasoning.Summary))
	for _, s := range reasoning.Summary {
		if txt := strings.TrimSpace(s.Text); txt != "" {
			parts = append(parts, txt)
		}
	}
	return strings.Join(parts, "\n")
}
