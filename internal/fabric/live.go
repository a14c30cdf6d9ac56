package fabric

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

// NewLive returns a Fabric delivering messages in real time over link. Each
// message waits for its drawn delay on its own timer, so deliveries to
// different nodes run concurrently.
func NewLive(logger *zap.Logger, neighbors Neighbors, link Link, opts Options) (Fabric, error) {
	log := logger.With(zap.String("facility", "fabric"), zap.String("mode", "live"))
	r, err := newRouter(log, neighbors, opts)
	if err != nil {
		return nil, err
	}
	quiet := make(chan struct{})
	close(quiet)
	return &live{
		router: r,
		link:   link,
		timers: map[uint64]*time.Timer{},
		quiet:  quiet,
	}, nil
}

type live struct {
	*router
	link Link

	mu      sync.Mutex
	running bool
	closed  bool
	started time.Time

	// inflight counts boot jobs and messages that were scheduled but not
	// yet handled or dropped. quiet is closed whenever inflight is zero.
	inflight int
	quiet    chan struct{}

	nextTimer uint64
	timers    map[uint64]*time.Timer
}

func (l *live) Register(id proto.NodeID, endpoint Endpoint) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := l.register(id, endpoint); err != nil {
		return err
	}
	return l.link.Attach(id, l)
}

// acquire must be called with mu held.
func (l *live) acquire() {
	if l.inflight == 0 {
		l.quiet = make(chan struct{})
	}
	l.inflight++
}

func (l *live) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight == 0 {
		return
	}
	l.inflight--
	if l.inflight == 0 {
		close(l.quiet)
	}
}

func (l *live) SendToOne(from, to proto.NodeID, msg proto.Message, delay core.Delay) {
	l.schedule(from, to, msg, delay)
}

func (l *live) SendToAllNeighbors(from proto.NodeID, msg proto.Message, delay core.Delay) {
	for _, to := range l.neighbors.Neighbors(from) {
		l.schedule(from, to, msg, delay)
	}
}

func (l *live) schedule(from, to proto.NodeID, msg proto.Message, delay core.Delay) {
	data, wait, ok := l.prepare(from, to, msg, delay)
	if !ok {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		l.drop(DropClosed, zap.Stringer("to", to))
		return
	}
	l.acquire()
	l.nextTimer++
	id := l.nextTimer
	l.timers[id] = time.AfterFunc(wait, func() {
		l.mu.Lock()
		delete(l.timers, id)
		l.mu.Unlock()
		l.transmit(from, to, data)
	})
}

func (l *live) transmit(from, to proto.NodeID, data []byte) {
	if err := l.link.Transmit(from, to, data); err != nil {
		l.log.Error("Failed transmitting datagram",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Error(err))
		l.drop(DropTransport, zap.Stringer("to", to))
		l.release()
	}
}

// HandleDatagram implements LinkDelegate.
func (l *live) HandleDatagram(to proto.NodeID, data []byte) {
	pkt, ep := l.open(to, data)
	if pkt == nil {
		l.release()
		return
	}
	ep.ReceiveMessage(pkt)
}

func (l *live) JobDone(proto.NodeID) { l.release() }

func (l *live) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.running {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.started = time.Now()
	ids := l.bootOrder()
	for range ids {
		l.acquire()
	}
	l.mu.Unlock()
	defer func() { l.metrics.setElapsed(time.Since(l.started)) }()

	for _, id := range ids {
		ep, _ := l.endpoint(id)
		ep.Boot()
	}

	for {
		l.mu.Lock()
		if l.inflight == 0 || l.closed {
			l.mu.Unlock()
			return nil
		}
		quiet := l.quiet
		l.mu.Unlock()

		select {
		case <-quiet:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *live) Stats() Stats          { return l.metrics.Stats() }
func (l *live) Handler() http.Handler { return l.metrics.Handler() }

func (l *live) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	for id, t := range l.timers {
		if t.Stop() {
			l.drop(DropClosed)
		}
		delete(l.timers, id)
	}
	l.inflight = 0
	select {
	case <-l.quiet:
	default:
		close(l.quiet)
	}
	l.mu.Unlock()

	return l.link.Close()
}
