package core

import (
	"time"

	"github.com/heyvito/pathtrace/internal/proto"
)

// Delay describes how long the fabric should hold a message before
// delivering it: a value drawn uniformly from [Min, Max], plus Extra.
type Delay struct {
	Min   time.Duration
	Max   time.Duration
	Extra time.Duration
}

// Span returns Max-Min, or zero when the range is empty or inverted.
func (d Delay) Span() time.Duration {
	if d.Max <= d.Min {
		return 0
	}
	return d.Max - d.Min
}

// Fabric is the part of the message fabric visible to nodes. Sends never
// block waiting for delivery; the fabric owns neighbor sets and may deliver
// messages in any order.
type Fabric interface {
	// SendToOne delivers msg from `from` to the single neighbor `to`.
	SendToOne(from, to proto.NodeID, msg proto.Message, delay Delay)

	// SendToAllNeighbors delivers msg from `from` to every node currently
	// adjacent to it.
	SendToAllNeighbors(from proto.NodeID, msg proto.Message, delay Delay)
}
