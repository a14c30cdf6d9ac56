package topology

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func parse(t *testing.T, doc string) *Config {
	t.Helper()
	cfg, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

func TestConfig_Build(t *testing.T) {
	t.Run("line", func(t *testing.T) {
		cfg := parse(t, `
source: 1
nodes:
  - id: 1
  - id: 2
    wall: true
  - id: 3
    target: true
edges:
  - 1, 2
  - 2,3
`)
		g, roles, err := cfg.Build()
		require.NoError(t, err)
		assert.Equal(t, []proto.NodeID{1, 2, 3}, g.Nodes())
		assert.Equal(t, 2, g.EdgeCount())
		assert.Equal(t, Assignment{1: core.RoleSource, 2: core.RoleWall, 3: core.RoleTarget}, roles)
		assert.Equal(t, []proto.NodeID{3}, roles.Targets())
		assert.Equal(t, []proto.NodeID{2}, roles.Walls())
	})

	t.Run("groups are cliques", func(t *testing.T) {
		cfg := parse(t, `
source: 1
nodes: [{id: 1}, {id: 2}, {id: 3}, {id: 4, target: true}]
edges: ["1, 2, 3", "2, 3, 4"]
`)
		g, _, err := cfg.Build()
		require.NoError(t, err)
		assert.Equal(t, []proto.NodeID{1, 3, 4}, g.Neighbors(2))
		assert.Equal(t, 5, g.EdgeCount())
	})

	t.Run("grid", func(t *testing.T) {
		cfg := parse(t, `
source: 1
grid: {width: 4, height: 3}
nodes:
  - {id: 6, wall: true}
  - {id: 12, target: true}
edges: ["1, 12"]
`)
		g, roles, err := cfg.Build()
		require.NoError(t, err)
		assert.Len(t, g.Nodes(), 12)
		assert.Equal(t, 18, g.EdgeCount())
		assert.Equal(t, core.RolePlain, roles[2])
		assert.Equal(t, core.RoleWall, roles[6])
		assert.Equal(t, core.RoleSource, roles[1])
	})

	t.Run("grid too large", func(t *testing.T) {
		cfg := parse(t, `
source: 1
grid: {width: 65536, height: 65537}
`)
		_, _, err := cfg.Build()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "grid 65536x65537 exceeds 4294967295 nodes")
	})

	t.Run("reports every problem", func(t *testing.T) {
		cfg := parse(t, `
source: 7
nodes:
  - id: 1
  - id: 1
  - id: 2
    target: true
    wall: true
  - id: 0
edges:
  - 1, 9
  - 1, 1
  - "1"
  - 1, x
`)
		_, _, err := cfg.Build()
		require.Error(t, err)
		errs := multierr.Errors(err)
		assert.Len(t, errs, 8)

		var unknown UnknownNodeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, proto.NodeID(9), unknown.ID)
		assert.ErrorIs(t, err, core.ErrConflictingRole)
		assert.NotErrorIs(t, err, ErrNoSource)
	})

	t.Run("no source", func(t *testing.T) {
		_, _, err := parse(t, "nodes: [{id: 1}]").Build()
		assert.ErrorIs(t, err, ErrNoSource)
	})

	t.Run("empty", func(t *testing.T) {
		_, _, err := parse(t, "source: 1").Build()
		assert.ErrorIs(t, err, ErrEmpty)
	})

	t.Run("source flags", func(t *testing.T) {
		_, _, err := parse(t, "source: 1\nnodes: [{id: 1, target: true}]").Build()
		assert.ErrorIs(t, err, core.ErrConflictingRole)
	})
}

func TestParse(t *testing.T) {
	_, err := Parse(strings.NewReader("source: 1\nbogus: true\n"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: 1\nnodes: [{id: 1}]\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, proto.NodeID(1), cfg.Source)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
