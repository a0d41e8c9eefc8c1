package sandbox_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penlab/workpen/internal/sandbox"
)

func TestNewRoot(t *testing.T) {
	t.Parallel()

	t.Run("relative path rejected", func(t *testing.T) {
		t.Parallel()

		root, err := sandbox.NewRoot("workdir")

		require.Error(t, err)
		assert.Nil(t, root)
	})

	t.Run("trailing slash cleaned", func(t *testing.T) {
		t.Parallel()

		root, err := sandbox.NewRoot("/workdir/")

		require.NoError(t, err)
		assert.Equal(t, "/workdir", root.Dir())
	})
}

func TestResolve_Contained(t *testing.T) {
	t.Parallel()

	root, err := sandbox.NewRoot("/workdir")
	require.NoError(t, err)

	cases := []struct {
		name string
		rel  string
		want string
	}{
		{"plain file", "a.txt", "/workdir/a.txt"},
		{"nested file", "src/app/main.go", "/workdir/src/app/main.go"},
		{"dot segment", "./a.txt", "/workdir/a.txt"},
		{"dotdot that stays inside", "src/../a.txt", "/workdir/a.txt"},
		{"root itself", ".", "/workdir"},
		{"empty path is root", "", "/workdir"},
		{"deep up and back down", "a/b/c/../../b/x.txt", "/workdir/a/b/x.txt"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, resolveErr := root.Resolve(tc.rel)

			require.NoError(t, resolveErr)
			assert.Equal(t, tc.want, got)
			assert.True(t, got == root.Dir() || filepath.Dir(got) == root.Dir() || len(got) > len(root.Dir()))
		})
	}
}

func TestResolve_Escapes(t *testing.T) {
	t.Parallel()

	root, err := sandbox.NewRoot("/workdir")
	require.NoError(t, err)

	cases := []struct {
		name string
		rel  string
	}{
		{"parent", ".."},
		{"etc passwd", "../../etc/passwd"},
		{"buried dotdot", "a/../../../etc/passwd"},
		{"absolute outside", "/etc/passwd"},
		{"sibling with shared prefix", "../workdir2/a.txt"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, resolveErr := root.Resolve(tc.rel)

			require.Error(t, resolveErr)
			assert.ErrorIs(t, resolveErr, sandbox.ErrPathEscape)
			assert.Empty(t, got)
		})
	}
}

func TestResolve_SiblingPrefixNotContained(t *testing.T) {
	t.Parallel()

	// "/workdir-extra" shares the string prefix "/workdir" but is not a
	// descendant; containment must be segment-aware.
	root, err := sandbox.NewRoot("/workdir")
	require.NoError(t, err)

	_, resolveErr := root.Resolve("../workdir-extra/file")

	assert.ErrorIs(t, resolveErr, sandbox.ErrPathEscape)
}
