package core

import (
	"strconv"
	"sync"

	"github.com/heyvito/pathtrace/internal/logutil"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

// Marker is the externally observable diagnostic projection of a node's
// state. Markers never feed back into the protocol.
type Marker uint8

const (
	MarkerNone Marker = iota
	SourceStart
	TargetWaiting
	WallInert
	Unvisited
	OnShortestPath
)

// AllMarkers lists every marker a node may carry, MarkerNone excluded.
var AllMarkers = []Marker{SourceStart, TargetWaiting, WallInert, Unvisited, OnShortestPath}

func (m Marker) String() string {
	switch m {
	case MarkerNone:
		return "None"
	case SourceStart:
		return "SourceStart"
	case TargetWaiting:
		return "TargetWaiting"
	case WallInert:
		return "WallInert"
	case Unvisited:
		return "Unvisited"
	case OnShortestPath:
		return "OnShortestPath"
	}
	return "Marker(" + strconv.Itoa(int(m)) + ")"
}

// Projection receives marker transitions from nodes. Implementations must
// be safe for concurrent use, since every node's RunLoop writes to it from
// its own goroutine.
type Projection interface {
	Mark(id proto.NodeID, m Marker)
}

// Recorder is an in-memory Projection keeping the current marker and the
// full marker history of every node.
type Recorder struct {
	log     *zap.Logger
	mu      sync.RWMutex
	current map[proto.NodeID]Marker
	history map[proto.NodeID][]Marker
}

func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{
		log:     logger.With(zap.String("facility", "projection")),
		current: map[proto.NodeID]Marker{},
		history: map[proto.NodeID][]Marker{},
	}
}

func (r *Recorder) Mark(id proto.NodeID, m Marker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current[id] = m
	r.history[id] = append(r.history[id], m)
	r.log.Debug("Marked node", logutil.Node(id), zap.Stringer("marker", m))
}

// Current returns the last marker set for id, or MarkerNone.
func (r *Recorder) Current(id proto.NodeID) Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current[id]
}

// History returns a copy of every marker set for id, oldest first.
func (r *Recorder) History(id proto.NodeID) []Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Marker(nil), r.history[id]...)
}

// All returns a copy of the current marker of every marked node.
func (r *Recorder) All() map[proto.NodeID]Marker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make(map[proto.NodeID]Marker, len(r.current))
	for k, v := range r.current {
		res[k] = v
	}
	return res
}

// Count returns how many nodes currently carry m.
func (r *Recorder) Count(m Marker) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, v := range r.current {
		if v == m {
			n++
		}
	}
	return n
}

// Ever reports whether any node was marked m at any point.
func (r *Recorder) Ever(m Marker) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.history {
		for _, v := range h {
			if v == m {
				return true
			}
		}
	}
	return false
}
