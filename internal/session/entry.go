package session

import (
	"encoding/json"
	"time"

	"github.com/penlab/workpen/internal/engine"
)

// Role tags a render-log entry for the chat surface.
type Role string

const (
	RoleUser       Role = "user"
	RoleTool       Role = "tool"
	RoleToolResult Role = "tool_result"
	RoleAssistant  Role = "assistant"
	RoleReasoning  Role = "reasoning"
	RoleError      Role = "error"
	RoleUnknown    Role = "unknown"
)

// Entry is one render-log record. Seq increases monotonically per session;
// insertion order is the only meaningful order.
type Entry struct {
	Seq       int       `json:"seq"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// renderItem classifies a streamed engine item into exactly one role and
// formatted content pair. Unrecognized item kinds never crash the pipeline;
// they render under a generic fallback label.
func renderItem(item engine.Item) (Role, string) {
	switch item.Kind {
	case engine.ItemToolCall:
		return RoleTool, item.ToolName + " " + prettyArgs(item.Arguments)
	case engine.ItemToolResult:
		return RoleToolResult, item.Text
	case engine.ItemAssistantMessage:
		return RoleAssistant, item.Text
	case engine.ItemReasoning:
		if item.Text != "" {
			return RoleReasoning, item.Text
		}
		return RoleReasoning, string(item.Raw)
	default:
		return RoleUnknown, string(item.Raw)
	}
}

func prettyArgs(raw json.RawMessage) string {
	var buf map[string]any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}
