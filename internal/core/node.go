package core

import (
	"time"

	"github.com/heyvito/pathtrace/internal/logutil"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

// Policy carries the per-network knobs every node shares.
type Policy struct {
	// LegacyUnknownReplies makes askers accept a ReportDistance carrying
	// proto.UnknownDistance whenever it equals distance-1. With it, a Source
	// probed by an unvisited neighbor confirms that neighbor, and a Wall
	// confirmed that way broadcasts ProbePredecessor in turn. When false,
	// reports of unknown distance never match.
	LegacyUnknownReplies bool

	// TargetRederives makes a Target take d+1 as its distance and broadcast
	// ProbePredecessor on every FloodDistance it receives. When false, a
	// Target keeps the first distance it learns and probes once.
	TargetRederives bool

	// SourceReprobes makes the Source broadcast ProbePredecessor when it
	// receives a ConfirmPredecessor, like every other node. When false, the
	// backtrace stops at the Source.
	SourceReprobes bool

	// BroadcastDelay is applied to FloodDistance and ProbePredecessor
	// broadcasts.
	BroadcastDelay Delay

	// DirectDelay is applied to ReportDistance and ConfirmPredecessor.
	DirectDelay Delay
}

// DefaultPolicy returns the Policy used when no override is provided.
func DefaultPolicy() Policy {
	return Policy{
		BroadcastDelay: Delay{Min: 100 * time.Millisecond, Max: 200 * time.Millisecond},
	}
}

// Snapshot is a point-in-time copy of a node's state.
type Snapshot struct {
	ID             proto.NodeID
	Role           Role
	Distance       int32
	PathConfirmed  bool
	Predecessor    proto.NodeID
	HasPredecessor bool
	OnPath         bool
	Phase          Phase
}

// Node implements the flood/backtrace state machine of a single network
// participant. A Node is not safe for concurrent use; its RunLoop is the
// only caller of Startup and Handle.
type Node struct {
	log        *zap.Logger
	id         proto.NodeID
	role       Role
	fabric     Fabric
	projection Projection
	policy     Policy

	started        bool
	distance       int32
	pathConfirmed  bool
	predecessor    proto.NodeID
	hasPredecessor bool
	onPath         bool
}

// NewNode returns a Node in PhaseRoleAssigned. Its distance is unknown until
// Startup runs.
func NewNode(logger *zap.Logger, id proto.NodeID, role Role, fabric Fabric, projection Projection, policy Policy) *Node {
	return &Node{
		log:        logger.With(zap.String("facility", "node"), logutil.Node(id)),
		id:         id,
		role:       role,
		fabric:     fabric,
		projection: projection,
		policy:     policy,
		distance:   proto.UnknownDistance,
	}
}

func (n *Node) ID() proto.NodeID { return n.id }
func (n *Node) Role() Role       { return n.role }

// Startup runs the node's one-time start action. Calling it again has no
// effect.
func (n *Node) Startup() {
	if n.started {
		return
	}
	n.started = true

	switch n.role {
	case RoleSource:
		n.distance = 0
		n.projection.Mark(n.id, SourceStart)
		n.log.Debug("Starting flood")
		n.fabric.SendToAllNeighbors(n.id, &proto.FloodDistance{Distance: n.distance}, n.policy.BroadcastDelay)
	case RoleTarget:
		n.projection.Mark(n.id, TargetWaiting)
	case RoleWall:
		n.projection.Mark(n.id, WallInert)
	default:
		n.projection.Mark(n.id, Unvisited)
	}
}

// Handle dispatches an inbound packet to the handler of its message kind.
func (n *Node) Handle(pkt *proto.Packet) {
	from := pkt.Sender()
	switch msg := pkt.Message.(type) {
	case *proto.FloodDistance:
		n.handleFlood(from, msg.Distance)
	case *proto.ProbePredecessor:
		n.handleProbe(from)
	case *proto.ReportDistance:
		n.handleReport(from, msg)
	case *proto.ConfirmPredecessor:
		n.handleConfirm(from)
	default:
		n.log.Warn("Node cannot handle packet",
			zap.String("opcode", pkt.Header.OpCode.String()),
			logutil.Node(from))
	}
}

func (n *Node) handleFlood(from proto.NodeID, d int32) {
	if n.role == RoleWall {
		return
	}
	if d < 0 {
		n.log.Debug("Ignoring flood with negative distance", logutil.Node(from), zap.Int32("distance", d))
		return
	}
	if n.distance == proto.UnknownDistance {
		n.distance = d + 1
		n.log.Debug("Learned distance", zap.Int32("distance", n.distance), zap.Stringer("via", from))
		n.fabric.SendToAllNeighbors(n.id, &proto.FloodDistance{Distance: n.distance}, n.policy.BroadcastDelay)
		if n.role == RoleTarget {
			n.log.Debug("Starting backtrace")
			n.probe()
		}
		return
	}

	if n.role == RoleTarget && n.policy.TargetRederives {
		n.distance = d + 1
		n.log.Debug("Rederived distance", zap.Int32("distance", n.distance), zap.Stringer("via", from))
		n.probe()
	}
}

func (n *Node) handleProbe(from proto.NodeID) {
	n.fabric.SendToOne(n.id, from, &proto.ReportDistance{Distance: n.distance}, n.policy.DirectDelay)
}

func (n *Node) handleReport(from proto.NodeID, msg *proto.ReportDistance) {
	if n.role == RoleWall || n.pathConfirmed {
		return
	}
	if msg.Distance != n.distance-1 {
		return
	}
	if !msg.Known() && !n.policy.LegacyUnknownReplies {
		return
	}

	n.pathConfirmed = true
	n.predecessor = from
	n.hasPredecessor = true
	n.log.Debug("Confirmed predecessor", zap.Stringer("predecessor", from), zap.Int32("distance", n.distance))
	n.fabric.SendToOne(n.id, from, &proto.ConfirmPredecessor{}, n.policy.DirectDelay)
}

func (n *Node) handleConfirm(from proto.NodeID) {
	switch n.role {
	case RoleWall:
		if !n.policy.LegacyUnknownReplies {
			return
		}
	case RoleSource:
		n.log.Debug("Backtrace reached source", logutil.Node(from))
		if !n.policy.SourceReprobes {
			return
		}
	default:
		if !n.onPath {
			n.onPath = true
			n.projection.Mark(n.id, OnShortestPath)
		}
	}
	n.probe()
}

func (n *Node) probe() {
	n.fabric.SendToAllNeighbors(n.id, &proto.ProbePredecessor{Distance: n.distance}, n.policy.BroadcastDelay)
}

// Snapshot returns a copy of the node's current state.
func (n *Node) Snapshot() Snapshot {
	return Snapshot{
		ID:             n.id,
		Role:           n.role,
		Distance:       n.distance,
		PathConfirmed:  n.pathConfirmed,
		Predecessor:    n.predecessor,
		HasPredecessor: n.hasPredecessor,
		OnPath:         n.onPath,
		Phase:          derivePhase(n.started, n.role, n.distance, n.pathConfirmed),
	}
}
