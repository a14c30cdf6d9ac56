package fabric

import (
	"errors"
	"sync"

	"github.com/heyvito/pathtrace/internal/proto"
)

// ErrUnknownPeer is returned by Link.Transmit when either end was never
// attached.
var ErrUnknownPeer = errors.New("peer is not attached to link")

// LinkDelegate receives every datagram a Link delivers.
type LinkDelegate interface {
	HandleDatagram(to proto.NodeID, data []byte)
}

// Link moves encoded packets between attached nodes for the live fabric.
type Link interface {
	// Attach prepares id to send and receive datagrams, reporting inbound
	// ones to delegate.
	Attach(id proto.NodeID, delegate LinkDelegate) error

	// Transmit hands data from `from` to `to`.
	Transmit(from, to proto.NodeID, data []byte) error

	// Close detaches every node and releases resources.
	Close() error
}

// NewMemoryLink returns a Link handing datagrams over within the process.
func NewMemoryLink() Link {
	return &memoryLink{delegates: map[proto.NodeID]LinkDelegate{}}
}

type memoryLink struct {
	mu        sync.RWMutex
	delegates map[proto.NodeID]LinkDelegate
}

func (m *memoryLink) Attach(id proto.NodeID, delegate LinkDelegate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegates[id] = delegate
	return nil
}

func (m *memoryLink) Transmit(from, to proto.NodeID, data []byte) error {
	m.mu.RLock()
	_, okFrom := m.delegates[from]
	delegate, okTo := m.delegates[to]
	m.mu.RUnlock()
	if !okFrom || !okTo {
		return ErrUnknownPeer
	}
	delegate.HandleDatagram(to, append([]byte(nil), data...))
	return nil
}

func (m *memoryLink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delegates = map[proto.NodeID]LinkDelegate{}
	return nil
}
