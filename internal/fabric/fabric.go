package fabric

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/heyvito/pathtrace/internal/containers"
	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

var (
	// ErrAlreadyRunning is returned by Run when called more than once.
	ErrAlreadyRunning = errors.New("fabric already ran")

	// ErrDuplicateEndpoint is returned by Register for an identifier that
	// already has an Endpoint.
	ErrDuplicateEndpoint = errors.New("endpoint already registered")

	// ErrClosed is returned by operations on a closed fabric.
	ErrClosed = errors.New("fabric is closed")
)

// Endpoint is the recipient side of a node: usually its core.RunLoop.
type Endpoint interface {
	Boot()
	ReceiveMessage(packet *proto.Packet)
}

// Neighbors is the topology a fabric routes over.
type Neighbors interface {
	// Nodes returns every node identifier, in ascending order.
	Nodes() []proto.NodeID

	// Neighbors returns the nodes adjacent to id, in ascending order.
	Neighbors(id proto.NodeID) []proto.NodeID

	// Adjacent reports whether a and b share an edge.
	Adjacent(a, b proto.NodeID) bool
}

// Fabric carries messages between registered nodes.
type Fabric interface {
	core.Fabric
	core.RunLoopDelegate

	// Register associates an Endpoint with a node identifier. Every node
	// must be registered before Run.
	Register(id proto.NodeID, endpoint Endpoint) error

	// Run boots every registered node in ascending identifier order, and
	// blocks until no message is in flight or ctx is done.
	Run(ctx context.Context) error

	// Stats returns a copy of the fabric's traffic counters.
	Stats() Stats

	// Handler exposes the fabric's metrics.
	Handler() http.Handler

	// Close releases the fabric's resources. Messages still in flight are
	// dropped.
	Close() error
}

// Options configures behavior shared by every fabric implementation.
type Options struct {
	// Seed feeds the random source used to draw delays and losses.
	Seed int64

	// DropProbability is the chance, in [0, 1], that any single message is
	// lost.
	DropProbability float64

	// CryptoKey, when set, seals every packet with ASCON. See NewSealer.
	CryptoKey []byte
}

// router holds what both fabrics share: the topology, registered endpoints,
// the codec path and randomness.
type router struct {
	log       *zap.Logger
	neighbors Neighbors
	sealer    Sealer
	metrics   *Metrics
	dropP     float64

	rngMu sync.Mutex
	rng   *rand.Rand

	endpoints containers.SyncMap[proto.NodeID, Endpoint]
}

func newRouter(logger *zap.Logger, neighbors Neighbors, opts Options) (*router, error) {
	if opts.DropProbability < 0 || opts.DropProbability > 1 {
		return nil, errors.New("drop probability must be within [0, 1]")
	}
	sealer, err := NewSealer(opts.CryptoKey)
	if err != nil {
		return nil, err
	}
	return &router{
		log:       logger,
		neighbors: neighbors,
		sealer:    sealer,
		metrics:   NewMetrics(),
		dropP:     opts.DropProbability,
		rng:       rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

func (r *router) register(id proto.NodeID, endpoint Endpoint) error {
	if _, loaded := r.endpoints.LoadOrStore(id, endpoint); loaded {
		return ErrDuplicateEndpoint
	}
	return nil
}

func (r *router) endpoint(id proto.NodeID) (Endpoint, bool) {
	return r.endpoints.Load(id)
}

// bootOrder returns every registered node in ascending order.
func (r *router) bootOrder() []proto.NodeID {
	var ids []proto.NodeID
	for _, id := range r.neighbors.Nodes() {
		if _, ok := r.endpoint(id); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// drop counts and logs a message that will not be delivered.
func (r *router) drop(reason DropReason, fields ...zap.Field) {
	r.metrics.recordDropped(reason)
	r.log.Debug("Dropped message", append(fields, zap.String("reason", string(reason)))...)
}

// prepare runs the sender side of a delivery to `to`: routing checks,
// encoding, sealing, loss and delay draw. It returns false when the message
// was dropped.
func (r *router) prepare(from, to proto.NodeID, msg proto.Message, delay core.Delay) ([]byte, time.Duration, bool) {
	r.metrics.recordSent(msg.OpCode())
	fields := []zap.Field{
		zap.Stringer("kind", msg.OpCode()),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	}
	if dc, ok := msg.(proto.DistanceCarrier); ok {
		fields = append(fields, zap.Int32("distance", dc.GetDistance()))
	}

	if _, ok := r.endpoint(to); !ok {
		r.drop(DropUnknownNode, fields...)
		return nil, 0, false
	}
	if !r.neighbors.Adjacent(from, to) {
		r.drop(DropNotNeighbor, fields...)
		return nil, 0, false
	}

	data, err := r.sealer.Seal(proto.EncPkt(from, msg))
	if err != nil {
		r.log.Error("Failed sealing packet", append(fields, zap.Error(err))...)
		r.drop(DropSeal, fields...)
		return nil, 0, false
	}

	lost, wait := r.draw(delay)
	if lost {
		r.drop(DropLoss, fields...)
		return nil, 0, false
	}
	r.metrics.recordScheduled(msg.OpCode(), wait)
	return data, wait, true
}

// draw decides whether a message is lost, and how long it takes to arrive.
func (r *router) draw(delay core.Delay) (bool, time.Duration) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	if r.dropP > 0 && r.rng.Float64() < r.dropP {
		return true, 0
	}
	wait := delay.Min + delay.Extra
	if span := delay.Span(); span > 0 {
		wait += time.Duration(r.rng.Int63n(int64(span) + 1))
	}
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// open runs the recipient side of a delivery, returning the decoded packet,
// or nil when it was dropped.
func (r *router) open(to proto.NodeID, data []byte) (*proto.Packet, Endpoint) {
	ep, ok := r.endpoint(to)
	if !ok {
		r.drop(DropUnknownNode, zap.Stringer("to", to))
		return nil, nil
	}
	plain := r.sealer.Open(data)
	if plain == nil {
		r.drop(DropSeal, zap.Stringer("to", to))
		return nil, nil
	}
	pkt, err := proto.ParsePacket(plain)
	if err != nil {
		r.log.Warn("Failed decoding packet", zap.Stringer("to", to), zap.Error(err))
		r.drop(DropDecode, zap.Stringer("to", to))
		return nil, nil
	}
	r.metrics.recordDelivered(pkt.Header.OpCode)
	return pkt, ep
}
