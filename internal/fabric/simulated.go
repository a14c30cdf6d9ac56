package fabric

import (
	"container/heap"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

// event is a delivery scheduled on the virtual timeline.
type event struct {
	at   time.Duration
	seq  uint64
	from proto.NodeID
	to   proto.NodeID
	data []byte
}

// timeline orders events by delivery time, then by scheduling order.
type timeline []*event

func (t timeline) Len() int { return len(t) }
func (t timeline) Less(i, j int) bool {
	if t[i].at != t[j].at {
		return t[i].at < t[j].at
	}
	return t[i].seq < t[j].seq
}
func (t timeline) Swap(i, j int) { t[i], t[j] = t[j], t[i] }
func (t *timeline) Push(x any)   { *t = append(*t, x.(*event)) }
func (t *timeline) Pop() any {
	old := *t
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*t = old[:n-1]
	return ev
}

// NewSimulated returns a discrete-event Fabric. Delays are virtual: Run
// advances a clock from one delivery to the next, handing a single message
// to a single node at a time and waiting for it to be handled before moving
// on. Given the same seed, topology and registration, runs are identical.
func NewSimulated(logger *zap.Logger, neighbors Neighbors, opts Options) (Fabric, error) {
	log := logger.With(zap.String("facility", "fabric"), zap.String("mode", "simulated"))
	r, err := newRouter(log, neighbors, opts)
	if err != nil {
		return nil, err
	}
	return &simulated{
		router:    r,
		processed: make(chan proto.NodeID, 1),
	}, nil
}

type simulated struct {
	*router

	mu      sync.Mutex
	now     time.Duration
	seq     uint64
	events  timeline
	running bool
	closed  bool

	// processed receives the identifier of the node that completed the job
	// Run is waiting on.
	processed chan proto.NodeID
}

func (s *simulated) Register(id proto.NodeID, endpoint Endpoint) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.register(id, endpoint)
}

func (s *simulated) SendToOne(from, to proto.NodeID, msg proto.Message, delay core.Delay) {
	s.schedule(from, to, msg, delay)
}

func (s *simulated) SendToAllNeighbors(from proto.NodeID, msg proto.Message, delay core.Delay) {
	for _, to := range s.neighbors.Neighbors(from) {
		s.schedule(from, to, msg, delay)
	}
}

func (s *simulated) schedule(from, to proto.NodeID, msg proto.Message, delay core.Delay) {
	data, wait, ok := s.prepare(from, to, msg, delay)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.drop(DropClosed, zap.Stringer("to", to))
		return
	}
	s.seq++
	heap.Push(&s.events, &event{
		at:   s.now + wait,
		seq:  s.seq,
		from: from,
		to:   to,
		data: data,
	})
}

func (s *simulated) JobDone(id proto.NodeID) {
	select {
	case s.processed <- id:
	default:
		s.log.Warn("Unexpected job completion", zap.Stringer("node", id))
	}
}

func (s *simulated) await(ctx context.Context, id proto.NodeID) error {
	select {
	case got := <-s.processed:
		if got != id {
			s.log.Warn("Job completed by unexpected node",
				zap.Stringer("expected", id),
				zap.Stringer("got", got))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *simulated) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	for _, id := range s.bootOrder() {
		ep, _ := s.endpoint(id)
		ep.Boot()
		if err := s.await(ctx, id); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.mu.Lock()
		if len(s.events) == 0 || s.closed {
			s.mu.Unlock()
			return nil
		}
		ev := heap.Pop(&s.events).(*event)
		s.now = ev.at
		s.mu.Unlock()
		s.metrics.setElapsed(ev.at)

		pkt, ep := s.open(ev.to, ev.data)
		if pkt == nil {
			continue
		}
		ep.ReceiveMessage(pkt)
		if err := s.await(ctx, ev.to); err != nil {
			return err
		}
	}
}

// Now returns the current virtual time.
func (s *simulated) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

func (s *simulated) Stats() Stats          { return s.metrics.Stats() }
func (s *simulated) Handler() http.Handler { return s.metrics.Handler() }

func (s *simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, ev := range s.events {
		s.drop(DropClosed, zap.Stringer("from", ev.from), zap.Stringer("to", ev.to))
	}
	s.events = nil
	return nil
}
