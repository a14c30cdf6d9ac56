package core

import (
	"context"
	"errors"
	"sync"

	"github.com/heyvito/pathtrace/internal/containers"
	"github.com/heyvito/pathtrace/internal/logutil"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/zap"
)

// ErrLoopStopped is returned by Inspect when the RunLoop is not servicing
// its mailbox.
var ErrLoopStopped = errors.New("runloop is not running")

type RunLoop interface {
	// Start starts the RunLoop in another routine, servicing its mailbox.
	Start()

	// Boot enqueues the node's startup action.
	Boot()

	// ReceiveMessage enqueues a given packet to be handled by the node.
	ReceiveMessage(packet *proto.Packet)

	// Inspect returns a Snapshot of the node, taken between two jobs.
	Inspect(ctx context.Context) (Snapshot, error)

	// Shutdown signals that the current RunLoop should stop in the next
	// iteration. This method blocks until the loop has stopped. Jobs still
	// in the mailbox are discarded.
	Shutdown()
}

type RunLoopDelegate interface {
	// JobDone signals that the node identified by id has finished handling a
	// boot job or a packet, including every send that handling caused.
	JobDone(id proto.NodeID)
}

type jobKind uint8

const (
	jobBoot jobKind = iota
	jobPacket
	jobInspect
)

type job struct {
	kind    jobKind
	packet  *proto.Packet
	inspect chan Snapshot
}

// NewRunLoop returns a RunLoop owning node. mailboxSize bounds how many jobs
// may be queued before ReceiveMessage blocks.
func NewRunLoop(log *zap.Logger, node *Node, delegate RunLoopDelegate, mailboxSize int) RunLoop {
	if mailboxSize < 1 {
		mailboxSize = 1
	}
	return &runLoop{
		log:      log.With(zap.String("facility", "runloop"), logutil.Node(node.ID())),
		node:     node,
		delegate: delegate,
		mailbox:  make(chan job, mailboxSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

type runLoop struct {
	// log is the configured logger to emit any messages
	log *zap.Logger

	// node is owned exclusively by the loop goroutine once Start is called.
	node *Node

	// delegate is notified after every boot and packet job.
	delegate RunLoopDelegate

	// mailbox holds jobs waiting to be serviced.
	mailbox chan job

	// stop is closed by Shutdown; done is closed once loop returns.
	stop chan struct{}
	done chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
}

func (r *runLoop) Start() {
	r.startOnce.Do(func() { go r.loop() })
}

func (r *runLoop) Boot() {
	r.enqueue(job{kind: jobBoot})
}

func (r *runLoop) ReceiveMessage(packet *proto.Packet) {
	r.enqueue(job{kind: jobPacket, packet: packet})
}

func (r *runLoop) enqueue(j job) {
	select {
	case r.mailbox <- j:
	case <-r.stop:
		r.log.Debug("Dropping job for stopped loop")
	}
}

func (r *runLoop) Inspect(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case r.mailbox <- job{kind: jobInspect, inspect: reply}:
	case <-r.stop:
		return Snapshot{}, ErrLoopStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case s := <-reply:
		return s, nil
	case <-r.done:
		return Snapshot{}, ErrLoopStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

func (r *runLoop) loop() {
	defer close(r.done)
	for {
		select {
		case <-r.stop:
			return
		case j := <-r.mailbox:
			r.service(j)
		}
	}
}

func (r *runLoop) service(j job) {
	switch j.kind {
	case jobBoot:
		r.node.Startup()
	case jobPacket:
		r.node.Handle(j.packet)
	case jobInspect:
		j.inspect <- r.node.Snapshot()
		return
	}
	r.delegate.JobDone(r.node.ID())
}

func (r *runLoop) Shutdown() {
	r.stopOnce.Do(func() {
		close(r.stop)
		// A loop that never started has nothing to wait for.
		r.startOnce.Do(func() { close(r.done) })
		<-r.done
		if n := containers.DrainChan(r.mailbox); n > 0 {
			r.log.Debug("Discarded pending jobs", zap.Int("count", n))
		}
	})
}
