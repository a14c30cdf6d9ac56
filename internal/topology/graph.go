package topology

import (
	"math"
	"slices"

	"github.com/heyvito/pathtrace/internal/proto"
)

// Graph is an undirected, static topology. Node and neighbor lists are kept
// sorted so that iteration order is deterministic.
type Graph struct {
	nodes     []proto.NodeID
	adjacency map[proto.NodeID][]proto.NodeID
}

func NewGraph() *Graph {
	return &Graph{adjacency: map[proto.NodeID][]proto.NodeID{}}
}

// AddNode adds id to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(id proto.NodeID) {
	if g.Has(id) {
		return
	}
	i, _ := slices.BinarySearch(g.nodes, id)
	g.nodes = slices.Insert(g.nodes, i, id)
	g.adjacency[id] = nil
}

// Connect adds an edge between a and b, adding either node when missing.
// Self loops and repeated edges are ignored.
func (g *Graph) Connect(a, b proto.NodeID) {
	g.AddNode(a)
	g.AddNode(b)
	if a == b || g.Adjacent(a, b) {
		return
	}
	g.adjacency[a] = insertSorted(g.adjacency[a], b)
	g.adjacency[b] = insertSorted(g.adjacency[b], a)
}

func insertSorted(list []proto.NodeID, id proto.NodeID) []proto.NodeID {
	i, _ := slices.BinarySearch(list, id)
	return slices.Insert(list, i, id)
}

func (g *Graph) Has(id proto.NodeID) bool {
	_, ok := g.adjacency[id]
	return ok
}

func (g *Graph) Nodes() []proto.NodeID {
	return slices.Clone(g.nodes)
}

func (g *Graph) Neighbors(id proto.NodeID) []proto.NodeID {
	return slices.Clone(g.adjacency[id])
}

func (g *Graph) Adjacent(a, b proto.NodeID) bool {
	_, ok := slices.BinarySearch(g.adjacency[a], b)
	return ok
}

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, v := range g.adjacency {
		n += len(v)
	}
	return n / 2
}

// HopDistances runs a breadth-first search from source, expanding only
// through nodes for which passable returns true. The source is always
// expanded. Impassable nodes are neither reached nor relayed through; nodes
// that cannot be reached are absent from the result.
func (g *Graph) HopDistances(source proto.NodeID, passable func(proto.NodeID) bool) map[proto.NodeID]int32 {
	dist := map[proto.NodeID]int32{}
	if !g.Has(source) {
		return dist
	}
	dist[source] = 0
	queue := []proto.NodeID{source}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range g.adjacency[cur] {
			if _, seen := dist[next]; seen {
				continue
			}
			if passable != nil && !passable(next) {
				continue
			}
			dist[next] = dist[cur] + 1
			queue = append(queue, next)
		}
	}
	return dist
}

// MaxGridNodes is the largest lattice whose identifiers fit a proto.NodeID.
const MaxGridNodes = math.MaxUint32

// GridFits reports whether a width x height lattice can be numbered without
// overflowing proto.NodeID.
func GridFits(width, height int) bool {
	if width < 1 || height < 1 {
		return false
	}
	return uint64(width) <= MaxGridNodes/uint64(height)
}

// Grid returns a width x height lattice where every node is connected to
// its horizontal and vertical neighbors. Identifiers are assigned row-major
// starting at 1, so (x, y) is GridID(width, x, y). The lattice must satisfy
// GridFits.
func Grid(width, height int) *Graph {
	g := NewGraph()
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			id := GridID(width, x, y)
			g.AddNode(id)
			if x > 0 {
				g.Connect(id, GridID(width, x-1, y))
			}
			if y > 0 {
				g.Connect(id, GridID(width, x, y-1))
			}
		}
	}
	return g
}

// GridID returns the identifier Grid assigns to column x of row y.
func GridID(width, x, y int) proto.NodeID {
	return proto.NodeID(y*width + x + 1)
}
