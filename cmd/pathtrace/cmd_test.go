package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/heyvito/pathtrace/resources"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(t, context.Background(), args...)
}

func executeContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		resetFlags(rootCmd.PersistentFlags())
		for _, c := range rootCmd.Commands() {
			resetFlags(c.Flags())
		}
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// resetFlags restores every flag in fs, and the variable behind it, to its
// default value.
func resetFlags(fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func writeExample(t *testing.T, name string) string {
	t.Helper()
	data, err := resources.Topology(name)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name+".yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestExampleCommand(t *testing.T) {
	out, err := execute(t, "example", "diamond")
	require.NoError(t, err)
	assert.Contains(t, out, "source: 1")

	_, err = execute(t, "example", "nope")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "--topology", writeExample(t, "walled-line"))
	require.NoError(t, err)
	assert.Contains(t, out, "3 nodes, 2 edges, source 1, targets [3], walls [2]")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("nodes: [{id: 1}, {id: 1}]\n"), 0o600))
	out, err = execute(t, "validate", "--topology", bad)
	assert.Error(t, err)
	assert.Contains(t, out, "declared more than once")
	assert.Contains(t, out, "no source")
}

func TestRunCommand(t *testing.T) {
	out, err := execute(t, "run", "--topology", writeExample(t, "line"), "--seed", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "path 3: 3 -> 2 -> 1\n")
	assert.Regexp(t, `2\s+Plain\s+1\s+PredecessorConfirmed\s+1\s+OnShortestPath`, out)
}

func TestRunCommand_FlagsDoNotLeak(t *testing.T) {
	path := writeExample(t, "line")
	t.Run("with flags", func(t *testing.T) {
		out, err := execute(t, "run", "--topology", path, "--drop", "1", "--target-rederives", "--verbose")
		require.NoError(t, err)
		assert.Contains(t, out, "path 3: 3 (incomplete)\n")
		assert.True(t, verbose)
		assert.True(t, runFlags.targetRederives)
	})

	assert.Empty(t, topologyPath)
	assert.False(t, verbose)
	assert.False(t, runFlags.targetRederives)
	assert.Zero(t, runFlags.drop)

	out, err := execute(t, "run", "--topology", path)
	require.NoError(t, err)
	assert.Contains(t, out, "path 3: 3 -> 2 -> 1\n")
}

func TestRunCommand_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := executeContext(t, ctx, "run", "--topology", writeExample(t, "line"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, out, "NODE")
	assert.Regexp(t, `1\s+Source\s+0\s+`, out)
}
