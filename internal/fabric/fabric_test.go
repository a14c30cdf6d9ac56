package fabric

import (
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testGraph map[proto.NodeID][]proto.NodeID

func (g testGraph) Nodes() []proto.NodeID {
	ids := make([]proto.NodeID, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (g testGraph) Neighbors(id proto.NodeID) []proto.NodeID { return g[id] }

func (g testGraph) Adjacent(a, b proto.NodeID) bool { return slices.Contains(g[a], b) }

// lineGraph connects 1-2-...-n.
func lineGraph(n int) testGraph {
	g := testGraph{}
	for i := 1; i <= n; i++ {
		id := proto.NodeID(i)
		g[id] = nil
		if i > 1 {
			g[id] = append(g[id], id-1)
		}
		if i < n {
			g[id] = append(g[id], id+1)
		}
	}
	return g
}

// testEndpoint records every packet it receives and reports completion of
// each job to its fabric.
type testEndpoint struct {
	id       proto.NodeID
	fabric   Fabric
	onBoot   func(e *testEndpoint)
	onPacket func(e *testEndpoint, pkt *proto.Packet)

	mu       sync.Mutex
	received []*proto.Packet
	booted   bool
}

func (e *testEndpoint) Boot() {
	e.mu.Lock()
	e.booted = true
	e.mu.Unlock()
	if e.onBoot != nil {
		e.onBoot(e)
	}
	e.fabric.JobDone(e.id)
}

func (e *testEndpoint) ReceiveMessage(pkt *proto.Packet) {
	e.mu.Lock()
	e.received = append(e.received, pkt)
	e.mu.Unlock()
	if e.onPacket != nil {
		e.onPacket(e, pkt)
	}
	e.fabric.JobDone(e.id)
}

func (e *testEndpoint) packets() []*proto.Packet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*proto.Packet(nil), e.received...)
}

var hop = core.Delay{Min: 10, Max: 10}

// relayFlood makes every endpoint forward the first FloodDistance it sees,
// and node 1 start one on boot.
func relayFlood(t *testing.T, f Fabric, g testGraph) map[proto.NodeID]*testEndpoint {
	t.Helper()
	eps := map[proto.NodeID]*testEndpoint{}
	for _, id := range g.Nodes() {
		ep := &testEndpoint{id: id, fabric: f}
		if id == 1 {
			ep.onBoot = func(e *testEndpoint) {
				f.SendToAllNeighbors(e.id, &proto.FloodDistance{Distance: 0}, hop)
			}
		}
		ep.onPacket = func(e *testEndpoint, pkt *proto.Packet) {
			if e.id == 1 || len(e.packets()) > 1 {
				return
			}
			d := pkt.Message.(*proto.FloodDistance).Distance
			f.SendToAllNeighbors(e.id, &proto.FloodDistance{Distance: d + 1}, hop)
		}
		require.NoError(t, f.Register(id, ep))
		eps[id] = ep
	}
	return eps
}
