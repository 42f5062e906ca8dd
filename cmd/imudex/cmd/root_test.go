package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "imudex")
	assert.Contains(t, out, "dev")
}

func TestIndexCommand_RejectsConflictingFlags(t *testing.T) {
	t.Setenv("IMUDEX_DATABASE", filepath.Join(t.TempDir(), "imudex.db"))
	_, err := execute(t, "index", "--manifests-only", "--optimization-only")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mutually exclusive")
}

func TestIndexCommand_EmptyRootsSucceeds(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("IMUDEX_DATABASE", filepath.Join(dir, "imudex.db"))
	t.Setenv("IMUDEX_DATA_ROOT", filepath.Join(dir, "data"))
	t.Setenv("IMUDEX_OPTIMIZATION_ROOT", filepath.Join(dir, "opt"))

	out, err := execute(t, "index")
	require.NoError(t, err)
	assert.Contains(t, out, "manifests: 0 found")
	assert.Contains(t, out, "optimization: 0 parameters")
}

func TestSearchCommand_EmptyIndex(t *testing.T) {
	t.Setenv("IMUDEX_DATABASE", filepath.Join(t.TempDir(), "imudex.db"))

	out, err := execute(t, "search", "--subject-id", "sub_001")
	require.NoError(t, err)
	assert.Contains(t, out, "no tests matched")
}

func TestRootCommand_ExplicitMissingConfigFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	_, err := execute(t, "--config", missing, "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}
