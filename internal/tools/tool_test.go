package tools_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penlab/workpen/internal/sandbox"
	"github.com/penlab/workpen/internal/tools"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	root, err := sandbox.NewRoot(t.TempDir())
	require.NoError(t, err)
	return tools.NewRegistry(
		tools.NewReadFile(root),
		tools.NewWriteFile(root),
		tools.NewExecCommand(root),
	)
}

func TestRegistry_Definitions(t *testing.T) {
	t.Parallel()

	defs := newRegistry(t).Definitions()

	require.Len(t, defs, 3)
	assert.Equal(t, "execute_command", defs[0].Name)
	assert.Equal(t, "read_file", defs[1].Name)
	assert.Equal(t, "write_file", defs[2].Name)

	for _, d := range defs {
		assert.NotEmpty(t, d.Description, d.Name)

		var schema map[string]any
		require.NoError(t, json.Unmarshal(d.InputSchema, &schema), d.Name)
		assert.Equal(t, "object", schema["type"], d.Name)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	t.Parallel()

	t.Run("routes to the named tool", func(t *testing.T) {
		t.Parallel()

		r := newRegistry(t)

		out := r.Dispatch(context.Background(), "write_file", json.RawMessage(`{"path":"a.txt","content":"hi"}`))
		assert.Equal(t, "Wrote 2 bytes to a.txt", out)

		out = r.Dispatch(context.Background(), "read_file", json.RawMessage(`{"path":"a.txt"}`))
		assert.Equal(t, "hi", out)
	})

	t.Run("unknown tool becomes textual output", func(t *testing.T) {
		t.Parallel()

		out := newRegistry(t).Dispatch(context.Background(), "delete_everything", json.RawMessage(`{}`))

		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "delete_everything")
	})

	t.Run("tool failure becomes textual output", func(t *testing.T) {
		t.Parallel()

		out := newRegistry(t).Dispatch(context.Background(), "read_file", json.RawMessage(`{"path":"../../etc/passwd"}`))

		assert.Contains(t, out, "Error:")
		assert.Contains(t, out, "escapes")
		assert.NotContains(t, out, "root:")
	})
}
