package pathtrace

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/heyvito/pathtrace/internal/containers"
	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/fabric"
	"github.com/heyvito/pathtrace/internal/logutil"
	"github.com/heyvito/pathtrace/internal/proto"
	"github.com/heyvito/pathtrace/internal/topology"
	"go.uber.org/zap"
)

// Network runs the flood and backtrace protocol over every node of a
// topology. Each node is owned by its own core.RunLoop; nodes only interact
// through the fabric.
type Network struct {
	opts     *Options
	log      *zap.Logger
	graph    *topology.Graph
	roles    topology.Assignment
	fabric   fabric.Fabric
	recorder *core.Recorder
	loops    map[proto.NodeID]core.RunLoop

	shutdownOnce sync.Once
}

// NewNetwork validates cfg, and builds a node, a RunLoop and a fabric
// endpoint for every node it declares. The returned Network is idle until
// Run is called.
func NewNetwork(cfg *topology.Config, opts *Options) (*Network, error) {
	if opts == nil {
		opts = &Options{}
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	graph, roles, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("invalid topology: %w", err)
	}

	logger := opts.LogHandler.With(zap.String("facility", "network"))
	fab, err := newFabric(opts, graph)
	if err != nil {
		return nil, err
	}

	n := &Network{
		opts:     opts,
		log:      logger,
		graph:    graph,
		roles:    roles,
		fabric:   fab,
		recorder: core.NewRecorder(opts.LogHandler),
		loops:    map[proto.NodeID]core.RunLoop{},
	}

	policy := opts.policy()
	for _, id := range graph.Nodes() {
		node := core.NewNode(opts.LogHandler, id, roles[id], fab, n.recorder, policy)
		loop := core.NewRunLoop(opts.LogHandler, node, fab, opts.MailboxSize)
		if err = fab.Register(id, loop); err != nil {
			n.Shutdown()
			return nil, fmt.Errorf("registering node %s: %w", id, err)
		}
		loop.Start()
		n.loops[id] = loop
	}

	logger.Info("Network ready",
		zap.Int("nodes", len(n.loops)),
		zap.Int("edges", graph.EdgeCount()),
		zap.Stringer("mode", opts.Mode),
		logutil.StringerArr("targets", roles.Targets()))
	return n, nil
}

func newFabric(opts *Options, graph *topology.Graph) (fabric.Fabric, error) {
	fOpts := fabric.Options{
		Seed:            opts.Seed,
		DropProbability: opts.DropProbability,
		CryptoKey:       opts.CryptoKey,
	}
	if opts.Mode == ModeSimulated {
		return fabric.NewSimulated(opts.LogHandler, graph, fOpts)
	}

	var link fabric.Link
	switch opts.Transport {
	case TransportUDP:
		var err error
		if link, err = fabric.NewUDPLink(opts.LogHandler, opts.UDPBindAddress); err != nil {
			return nil, err
		}
	default:
		link = fabric.NewMemoryLink()
	}
	return fabric.NewLive(opts.LogHandler, graph, link, fOpts)
}

// Run boots every node and blocks until no message is in flight, or ctx is
// done. The protocol has no termination signal of its own: quiescence of
// the fabric is the only way to tell it finished. Run may only be called
// once.
func (n *Network) Run(ctx context.Context) error {
	n.log.Info("Starting protocol")
	if err := n.fabric.Run(ctx); err != nil {
		n.log.Error("Protocol did not quiesce", zap.Error(err))
		return err
	}
	stats := n.fabric.Stats()
	n.log.Info("Protocol quiesced",
		zap.Int("sent", stats.TotalSent()),
		zap.Int("delivered", stats.TotalDelivered()),
		zap.Int("dropped", stats.TotalDropped()),
		zap.Duration("elapsed", stats.Elapsed))
	return nil
}

// Path is the chain of confirmed predecessors starting at a target.
type Path struct {
	Target proto.NodeID

	// Hops lists the target, then every confirmed predecessor in order.
	Hops []proto.NodeID

	// Complete reports whether Hops ends at the source.
	Complete bool
}

func (p Path) String() string {
	s := strings.Join(containers.StrMapper(p.Hops), " -> ")
	if !p.Complete {
		s += " (incomplete)"
	}
	return s
}

// Result is a snapshot of every node, taken after (or while) the protocol
// runs.
type Result struct {
	Nodes   []core.Snapshot
	Markers map[proto.NodeID]core.Marker

	// MarkerCounts holds how many nodes currently carry each marker.
	// MarkersSeen lists, in core.AllMarkers order, every marker assigned
	// at least once.
	MarkerCounts map[core.Marker]int
	MarkersSeen  []core.Marker

	Paths []Path
	Stats fabric.Stats
}

// Node returns the snapshot of id.
func (r *Result) Node(id proto.NodeID) (core.Snapshot, bool) {
	i := sort.Search(len(r.Nodes), func(i int) bool { return r.Nodes[i].ID >= id })
	if i < len(r.Nodes) && r.Nodes[i].ID == id {
		return r.Nodes[i], true
	}
	return core.Snapshot{}, false
}

// Distances returns the distance of every node.
func (r *Result) Distances() map[proto.NodeID]int32 {
	res := make(map[proto.NodeID]int32, len(r.Nodes))
	for _, s := range r.Nodes {
		res[s.ID] = s.Distance
	}
	return res
}

// Result inspects every node through its RunLoop and assembles their
// states, markers and the path of every target.
func (n *Network) Result(ctx context.Context) (*Result, error) {
	res := &Result{
		Markers:      n.recorder.All(),
		MarkerCounts: map[core.Marker]int{},
		Stats:        n.fabric.Stats(),
	}
	for _, m := range core.AllMarkers {
		res.MarkerCounts[m] = n.recorder.Count(m)
		if n.recorder.Ever(m) {
			res.MarkersSeen = append(res.MarkersSeen, m)
		}
	}
	for _, id := range n.graph.Nodes() {
		snap, err := n.loops[id].Inspect(ctx)
		if err != nil {
			return nil, fmt.Errorf("inspecting node %s: %w", id, err)
		}
		res.Nodes = append(res.Nodes, snap)
	}

	for _, target := range n.roles.Targets() {
		res.Paths = append(res.Paths, n.tracePath(res, target))
	}
	return res, nil
}

func (n *Network) tracePath(res *Result, target proto.NodeID) Path {
	p := Path{Target: target, Hops: []proto.NodeID{target}}
	seen := map[proto.NodeID]bool{target: true}
	cur, _ := res.Node(target)
	for cur.HasPredecessor && n.roles[cur.ID] != core.RoleSource {
		next := cur.Predecessor
		if seen[next] {
			n.log.Warn("Predecessor chain loops", logutil.Node(target), zap.Stringer("at", next))
			break
		}
		seen[next] = true
		p.Hops = append(p.Hops, next)
		cur, _ = res.Node(next)
	}
	p.Complete = n.roles[p.Hops[len(p.Hops)-1]] == core.RoleSource
	return p
}

// Markers returns the current diagnostic marker of every node.
func (n *Network) Markers() map[proto.NodeID]core.Marker {
	return n.recorder.All()
}

// MarkerHistory returns every marker id carried, oldest first.
func (n *Network) MarkerHistory(id proto.NodeID) []core.Marker {
	return n.recorder.History(id)
}

// Stats returns the fabric's traffic counters.
func (n *Network) Stats() fabric.Stats {
	return n.fabric.Stats()
}

// Shutdown stops every RunLoop and closes the fabric. Messages still in
// flight are discarded.
func (n *Network) Shutdown() {
	n.shutdownOnce.Do(func() {
		for _, loop := range n.loops {
			loop.Shutdown()
		}
		if err := n.fabric.Close(); err != nil {
			n.log.Error("Failed closing fabric", zap.Error(err))
		}
	})
}
