package pathtrace

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"github.com/heyvito/pathtrace/internal/topology"
	"github.com/heyvito/pathtrace/resources"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sample(t *testing.T, name string) *topology.Config {
	t.Helper()
	data, err := resources.Topology(name)
	require.NoError(t, err)
	cfg, err := topology.Parse(strings.NewReader(string(data)))
	require.NoError(t, err)
	return cfg
}

func parseTopology(t *testing.T, doc string) *topology.Config {
	t.Helper()
	cfg, err := topology.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return cfg
}

// runNetwork runs cfg to quiescence and returns its Result.
func runNetwork(t *testing.T, cfg *topology.Config, opts *Options) (*Network, *Result) {
	t.Helper()
	n, err := NewNetwork(cfg, opts)
	require.NoError(t, err)
	t.Cleanup(n.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, n.Run(ctx))
	res, err := n.Result(ctx)
	require.NoError(t, err)
	return n, res
}

func liveOptions(seed int64) *Options {
	return &Options{
		Mode:           ModeLive,
		Seed:           seed,
		BroadcastDelay: core.Delay{Min: time.Millisecond, Max: 3 * time.Millisecond},
		DirectDelay:    core.Delay{Max: time.Millisecond},
	}
}

func assertLine(t *testing.T, res *Result) {
	t.Helper()
	assert.Equal(t, map[proto.NodeID]int32{1: 0, 2: 1, 3: 2}, res.Distances())
	assert.Equal(t, map[proto.NodeID]core.Marker{
		1: core.SourceStart,
		2: core.OnShortestPath,
		3: core.TargetWaiting,
	}, res.Markers)

	target, _ := res.Node(3)
	assert.True(t, target.PathConfirmed)
	assert.Equal(t, core.PhasePredecessorConfirmed, target.Phase)
	source, _ := res.Node(1)
	assert.False(t, source.PathConfirmed)
	assert.False(t, source.OnPath)

	require.Len(t, res.Paths, 1)
	assert.Equal(t, []proto.NodeID{3, 2, 1}, res.Paths[0].Hops)
	assert.True(t, res.Paths[0].Complete)
}

func TestNetwork_Line(t *testing.T) {
	t.Run("simulated", func(t *testing.T) {
		for seed := int64(0); seed < 10; seed++ {
			_, res := runNetwork(t, sample(t, "line"), &Options{Seed: seed})
			assertLine(t, res)
		}
	})

	t.Run("live", func(t *testing.T) {
		_, res := runNetwork(t, sample(t, "line"), liveOptions(1))
		assertLine(t, res)
	})

	t.Run("live over sealed udp", func(t *testing.T) {
		opts := liveOptions(1)
		opts.Transport = TransportUDP
		opts.CryptoKey = []byte("0123456789abcdef")
		_, res := runNetwork(t, sample(t, "line"), opts)
		assertLine(t, res)
		assert.Zero(t, res.Stats.TotalDropped())
	})

	t.Run("marker history", func(t *testing.T) {
		n, res := runNetwork(t, sample(t, "line"), nil)
		assert.Equal(t, map[core.Marker]int{
			core.SourceStart:    1,
			core.TargetWaiting:  1,
			core.WallInert:      0,
			core.Unvisited:      0,
			core.OnShortestPath: 1,
		}, res.MarkerCounts)
		assert.Equal(t, []core.Marker{core.SourceStart, core.TargetWaiting, core.Unvisited, core.OnShortestPath}, res.MarkersSeen)
		assert.Equal(t, []core.Marker{core.Unvisited, core.OnShortestPath}, n.MarkerHistory(2))
		assert.Equal(t, []core.Marker{core.SourceStart}, n.MarkerHistory(1))
	})
}

func TestNetwork_WalledLine(t *testing.T) {
	for _, opts := range []*Options{{}, {LegacyUnknownReplies: true, SourceReprobes: true}, liveOptions(2)} {
		_, res := runNetwork(t, sample(t, "walled-line"), opts)
		assert.Equal(t, map[proto.NodeID]int32{1: 0, 2: -1, 3: -1}, res.Distances())
		assert.Equal(t, map[proto.NodeID]core.Marker{
			1: core.SourceStart,
			2: core.WallInert,
			3: core.TargetWaiting,
		}, res.Markers)
		require.Len(t, res.Paths, 1)
		assert.False(t, res.Paths[0].Complete)
		assert.Equal(t, []proto.NodeID{3}, res.Paths[0].Hops)
	}
}

func TestNetwork_Diamond(t *testing.T) {
	check := func(t *testing.T, res *Result) {
		t.Helper()
		onPath := 0
		for _, id := range []proto.NodeID{2, 3} {
			if res.Markers[id] == core.OnShortestPath {
				onPath++
			}
		}
		require.Equal(t, 1, onPath)
		require.True(t, res.Paths[0].Complete)
		require.Len(t, res.Paths[0].Hops, 3)
	}

	t.Run("simulated", func(t *testing.T) {
		seen := map[proto.NodeID]bool{}
		for seed := int64(0); seed < 100; seed++ {
			_, res := runNetwork(t, sample(t, "diamond"), &Options{
				Seed:        seed,
				DirectDelay: core.Delay{Max: 150 * time.Millisecond},
			})
			check(t, res)
			seen[res.Paths[0].Hops[1]] = true
		}
		assert.Equal(t, map[proto.NodeID]bool{2: true, 3: true}, seen)
	})

	t.Run("live", func(t *testing.T) {
		for seed := int64(0); seed < 5; seed++ {
			_, res := runNetwork(t, sample(t, "diamond"), liveOptions(seed))
			check(t, res)
		}
	})
}

func TestNetwork_GridDistances(t *testing.T) {
	cfg := sample(t, "grid")
	graph, roles, err := cfg.Build()
	require.NoError(t, err)
	want := graph.HopDistances(cfg.Source, func(id proto.NodeID) bool { return roles[id] != core.RoleWall })

	for seed := int64(0); seed < 5; seed++ {
		_, res := runNetwork(t, cfg, &Options{
			Seed:           seed,
			BroadcastDelay: core.Delay{Min: 10 * time.Millisecond, Max: 10 * time.Millisecond},
			DirectDelay:    core.Delay{Max: 5 * time.Millisecond},
		})

		for _, s := range res.Nodes {
			d, ok := want[s.ID]
			if !ok {
				d = proto.UnknownDistance
			}
			assert.Equal(t, d, s.Distance, "node %s", s.ID)
			assert.False(t, s.OnPath && s.Role == core.RoleSource)
		}

		require.Len(t, res.Paths, 2)
		for _, p := range res.Paths {
			require.True(t, p.Complete, p.String())
			target, _ := res.Node(p.Target)
			assert.Len(t, p.Hops, int(target.Distance)+1)
			for i := 1; i < len(p.Hops); i++ {
				assert.True(t, graph.Adjacent(p.Hops[i-1], p.Hops[i]))
				prev, _ := res.Node(p.Hops[i-1])
				cur, _ := res.Node(p.Hops[i])
				assert.Equal(t, prev.Distance-1, cur.Distance)
				if i < len(p.Hops)-1 {
					assert.Equal(t, core.OnShortestPath, res.Markers[cur.ID])
				}
			}
		}
	}
}

func TestNetwork_MultipleTargets(t *testing.T) {
	cfg := parseTopology(t, `
source: 1
nodes:
  - id: 1
  - id: 2
  - id: 3
    target: true
  - id: 4
  - id: 5
    target: true
edges: ["1, 2", "2, 3", "3, 4", "4, 5"]
`)
	_, res := runNetwork(t, cfg, nil)
	require.Len(t, res.Paths, 2)
	assert.Equal(t, []proto.NodeID{3, 2, 1}, res.Paths[0].Hops)
	assert.Equal(t, []proto.NodeID{5, 4, 3, 2, 1}, res.Paths[1].Hops)
	assert.Equal(t, core.OnShortestPath, res.Markers[3])
	assert.Equal(t, core.OnShortestPath, res.Markers[4])
	assert.Equal(t, core.TargetWaiting, res.Markers[5])
}

func TestNetwork_UnknownReplyRegimes(t *testing.T) {
	// The source's only other neighbor is a wall, which always reports an
	// unknown distance.
	doc := `
source: 1
nodes:
  - id: 1
  - id: 2
  - id: 3
    target: true
  - id: 4
    wall: true
edges: ["1, 2", "2, 3", "1, 4"]
`
	t.Run("sentinel", func(t *testing.T) {
		_, res := runNetwork(t, parseTopology(t, doc), &Options{SourceReprobes: true})
		source, _ := res.Node(1)
		assert.False(t, source.PathConfirmed)
		assert.False(t, source.HasPredecessor)
		assert.Equal(t, core.SourceStart, res.Markers[1])
	})

	t.Run("legacy", func(t *testing.T) {
		_, res := runNetwork(t, parseTopology(t, doc), &Options{SourceReprobes: true, LegacyUnknownReplies: true})
		source, _ := res.Node(1)
		assert.True(t, source.PathConfirmed)
		assert.Equal(t, proto.NodeID(4), source.Predecessor)
		assert.Equal(t, core.SourceStart, res.Markers[1])
		assert.Equal(t, core.WallInert, res.Markers[4])
		wall, _ := res.Node(4)
		assert.False(t, wall.OnPath)
		assert.False(t, wall.PathConfirmed)
		assert.Equal(t, []proto.NodeID{3, 2, 1}, res.Paths[0].Hops)
		assert.True(t, res.Paths[0].Complete)
	})

	t.Run("source halts without reprobes", func(t *testing.T) {
		_, res := runNetwork(t, parseTopology(t, doc), &Options{LegacyUnknownReplies: true})
		source, _ := res.Node(1)
		assert.False(t, source.PathConfirmed)
		assert.Equal(t, 2, res.Stats.Sent[proto.CNFM])
	})
}

func TestNetwork_TargetRederiveRegimes(t *testing.T) {
	// The target sits between the source and node 4, so node 4's relay
	// reaches it after it has confirmed node 2.
	doc := `
source: 1
nodes:
  - id: 1
  - id: 2
  - id: 3
    target: true
  - id: 4
edges: ["1, 2", "2, 3", "3, 4"]
`
	hop := core.Delay{Min: 100 * time.Millisecond, Max: 100 * time.Millisecond}

	t.Run("first flood only", func(t *testing.T) {
		_, res := runNetwork(t, parseTopology(t, doc), &Options{BroadcastDelay: hop})
		assert.Equal(t, map[proto.NodeID]int32{1: 0, 2: 1, 3: 2, 4: 3}, res.Distances())
		assert.Equal(t, 4, res.Stats.Sent[proto.PROB])
		assert.Equal(t, []proto.NodeID{3, 2, 1}, res.Paths[0].Hops)
		assert.True(t, res.Paths[0].Complete)
	})

	t.Run("every flood", func(t *testing.T) {
		_, res := runNetwork(t, parseTopology(t, doc), &Options{BroadcastDelay: hop, TargetRederives: true})
		assert.Equal(t, map[proto.NodeID]int32{1: 0, 2: 1, 3: 4, 4: 3}, res.Distances())
		assert.Equal(t, 6, res.Stats.Sent[proto.PROB])
		target, _ := res.Node(3)
		assert.True(t, target.PathConfirmed)
		assert.Equal(t, proto.NodeID(2), target.Predecessor)
		assert.Equal(t, []proto.NodeID{3, 2, 1}, res.Paths[0].Hops)
		assert.True(t, res.Paths[0].Complete)
	})
}

func TestNetwork_Loss(t *testing.T) {
	_, res := runNetwork(t, sample(t, "line"), &Options{DropProbability: 1})
	assert.Equal(t, map[proto.NodeID]int32{1: 0, 2: -1, 3: -1}, res.Distances())
	assert.Equal(t, 1, res.Stats.TotalSent())
	assert.Equal(t, 1, res.Stats.TotalDropped())
	assert.False(t, res.Paths[0].Complete)
}

func TestNetwork_Lifecycle(t *testing.T) {
	t.Run("invalid topology", func(t *testing.T) {
		_, err := NewNetwork(parseTopology(t, "nodes: [{id: 1}]"), nil)
		assert.ErrorIs(t, err, topology.ErrNoSource)
	})

	t.Run("runs once", func(t *testing.T) {
		n, _ := runNetwork(t, sample(t, "line"), nil)
		assert.Error(t, n.Run(context.Background()))
	})

	t.Run("result after shutdown", func(t *testing.T) {
		n, _ := runNetwork(t, sample(t, "line"), nil)
		n.Shutdown()
		n.Shutdown()
		_, err := n.Result(context.Background())
		assert.ErrorIs(t, err, core.ErrLoopStopped)
	})

	t.Run("result before run", func(t *testing.T) {
		n, err := NewNetwork(sample(t, "diamond"), nil)
		require.NoError(t, err)
		defer n.Shutdown()
		res, err := n.Result(context.Background())
		require.NoError(t, err)
		for _, s := range res.Nodes {
			assert.Equal(t, core.PhaseRoleAssigned, s.Phase)
		}
		assert.Empty(t, res.Markers)
	})
}

func TestNetwork_Handler(t *testing.T) {
	n, _ := runNetwork(t, sample(t, "line"), nil)
	srv := httptest.NewServer(n.Handler())
	defer srv.Close()

	get := func(path string) (int, string) {
		res, err := srv.Client().Get(srv.URL + path)
		require.NoError(t, err)
		defer res.Body.Close()
		body, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return res.StatusCode, string(body)
	}

	code, body := get("/state")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "Mode: simulated")
	assert.Contains(t, body, "  - 2 Plain distance=1 phase=PredecessorConfirmed predecessor=1 marker=OnShortestPath\n")
	assert.Contains(t, body, "  - 3 -> 2 -> 1\n")
	assert.Contains(t, body, "  - OnShortestPath: 1\n")
	assert.Contains(t, body, "Seen: SourceStart, TargetWaiting, Unvisited, OnShortestPath\n")

	code, body = get("/")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, `<tr class="OnShortestPath"><td>2</td>`)

	code, body = get("/metrics")
	assert.Equal(t, 200, code)
	assert.Contains(t, body, "pathtrace_messages_delivered_total")

	code, _ = get("/nope")
	assert.Equal(t, 404, code)
}
