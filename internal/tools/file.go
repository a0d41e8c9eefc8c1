package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/penlab/workpen/internal/sandbox"
)

// Sentinel errors for file tool failures.
var (
	ErrNotFound     = errors.New("tools: file not found")
	ErrAccessDenied = errors.New("tools: access denied")
)

// ReadFile returns the full contents of a file inside the sandbox root.
// Full-file semantics: no size cap.
type ReadFile struct {
	root *sandbox.Root
}

func NewReadFile(root *sandbox.Root) *ReadFile {
	return &ReadFile{root: root}
}

func (t *ReadFile) Name() string { return "read_file" }

func (t *ReadFile) Description() string {
	return "Return the full contents of a file inside the working directory."
}

func (t *ReadFile) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path relative to the working directory"}
		},
		"required": ["path"],
		"additionalProperties": false
	}`)
}

func (t *ReadFile) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("tools.ReadFile: invalid arguments: %w", err)
	}

	abs, err := t.root.Resolve(in.Path)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", classifyFSError(in.Path, err)
	}
	return string(data), nil
}

// WriteFile creates or overwrites a file inside the sandbox root, creating
// missing intermediate directories. Overwrite is unconditional: no diffing,
// no backup, no confirmation step.
type WriteFile struct {
	root *sandbox.Root
}

func NewWriteFile(root *sandbox.Root) *WriteFile {
	return &WriteFile{root: root}
}

func (t *WriteFile) Name() string { return "write_file" }

func (t *WriteFile) Description() string {
	return "Create or overwrite a file inside the working directory with the supplied content."
}

func (t *WriteFile) InputSchema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path relative to the working directory"},
			"content": {"type": "string", "description": "Full file content to write"}
		},
		"required": ["path", "content"],
		"additionalProperties": false
	}`)
}

func (t *WriteFile) Invoke(_ context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("tools.WriteFile: invalid arguments: %w", err)
	}

	abs, err := t.root.Resolve(in.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", classifyFSError(in.Path, err)
	}
	if err := os.WriteFile(abs, []byte(in.Content), 0o644); err != nil {
		return "", classifyFSError(in.Path, err)
	}
	return fmt.Sprintf("Wrote %d bytes to %s", len(in.Content), in.Path), nil
}

func classifyFSError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s", ErrAccessDenied, path)
	default:
		return err
	}
}
