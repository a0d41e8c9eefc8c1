package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/penlab/workpen/internal/sandbox"
)

// Output-volume cap: a captured stream over maxOutputLines lines is reduced
// to the first keepLines, one synthetic omitted-count line, and the last
// keepLines. Unbounded output would overwhelm both the engine's input budget
// and the render surface.
const (
	maxOutputLines = 100
	keepLines      = 50
)

// ExecCommand runs an arbitrary shell command with the sandbox root as the
// working directory. stderr is merged into stdout and the combined stream is
// returned as text. The exit code is not surfaced: a non-zero exit is not a
// tool-level error, the engine infers failure from the output content.
// No timeout is enforced; a hung command blocks the tool call.
type ExecCommand struct {
	root *sandbox.Root
}

func NewExecCommand(root *sandbox.Root) *ExecCommand {
	return &ExecCommand{root: root}
}

func (t *ExecCommand) Name() string { return "execute_command" }

func (t *ExecCommand) Description() string {
	return "Run a shell command inside the working directory and return the combined stdout/stderr output."
}

func (t *ExecCommand) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Shell command to execute"}
		},
		"required": ["command"],
		"additionalProperties": false
	}`)
}

func (t *ExecCommand) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("tools.ExecCommand: invalid arguments: %w", err)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	cmd.Dir = t.root.Dir()

	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", fmt.Errorf("tools.ExecCommand: %w", err)
		}
		// The process ran and exited non-zero; its output is the result.
		log.Debug().Int("exit_code", exitErr.ExitCode()).Str("command", in.Command).Msg("command exited non-zero")
	}

	return TruncateOutput(string(out)), nil
}

// TruncateOutput applies the output-volume policy: text of at most
// maxOutputLines lines passes through unchanged; anything longer is reduced
// to the first and last keepLines around a single line reporting the omitted
// count.
func TruncateOutput(text string) string {
	trimmed := strings.TrimSuffix(text, "\n")
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= maxOutputLines {
		return text
	}

	omitted := len(lines) - 2*keepLines
	result := make([]string, 0, 2*keepLines+1)
	result = append(result, lines[:keepLines]...)
	result = append(result, fmt.Sprintf("... [%d lines omitted] ...", omitted))
	result = append(result, lines[len(lines)-keepLines:]...)
	return strings.Join(result, "\n")
}
