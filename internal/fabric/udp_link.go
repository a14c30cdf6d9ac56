package fabric

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/heyvito/pathtrace/internal/logutil"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// NewUDPLink returns a Link giving each attached node its own UDP socket on
// bindAddress, with a kernel-assigned port.
func NewUDPLink(logger *zap.Logger, bindAddress string) (Link, error) {
	ip := net.ParseIP(bindAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid bind address %q", bindAddress)
	}
	network := "udp4"
	if ip.To4() == nil {
		network = "udp6"
	}
	log := logger.With(zap.String("facility", "udp_link"), zap.String("network", network))
	return &udpLink{
		log:     log,
		network: network,
		ip:      ip,
		peers:   map[proto.NodeID]*udpPeer{},
		listenConfig: net.ListenConfig{
			Control: func(network, address string, c syscall.RawConn) error {
				var opErr error
				err := c.Control(func(fd uintptr) {
					opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, udpReceiveBuffer)
				})
				if err != nil {
					log.Error("Error applying SO_RCVBUF to socket", zap.Error(err))
					return err
				}
				return opErr
			},
		},
	}, nil
}

// udpReceiveBuffer is the SO_RCVBUF requested for every socket.
const udpReceiveBuffer = 1 << 20

type udpPeer struct {
	conn *net.UDPConn
	addr *net.UDPAddr
}

type udpLink struct {
	log          *zap.Logger
	listenConfig net.ListenConfig
	network      string
	ip           net.IP
	stopping     atomic.Bool
	readers      sync.WaitGroup

	mu    sync.RWMutex
	peers map[proto.NodeID]*udpPeer
}

func (u *udpLink) Attach(id proto.NodeID, delegate LinkDelegate) error {
	if u.stopping.Load() {
		return ErrClosed
	}
	pc, err := u.listenConfig.ListenPacket(context.Background(), u.network, net.JoinHostPort(u.ip.String(), "0"))
	if err != nil {
		return fmt.Errorf("failed initializing socket for node %s: %w", id, err)
	}
	conn := pc.(*net.UDPConn)

	peer := &udpPeer{conn: conn, addr: conn.LocalAddr().(*net.UDPAddr)}
	u.mu.Lock()
	u.peers[id] = peer
	u.mu.Unlock()

	u.log.Debug("Now listening for datagrams",
		logutil.Node(id),
		zap.String("address", peer.addr.String()))

	u.readers.Add(1)
	go u.readLoop(id, conn, delegate)
	return nil
}

func (u *udpLink) readLoop(id proto.NodeID, conn *net.UDPConn, delegate LinkDelegate) {
	defer u.readers.Done()
	buf := make([]byte, 4096)
	for !u.stopping.Load() {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}

			u.log.Error("Error reading datagram", logutil.Node(id), zap.Error(err))
			continue
		}

		delegate.HandleDatagram(id, append([]byte(nil), buf[:n]...))
	}
}

func (u *udpLink) Transmit(from, to proto.NodeID, data []byte) error {
	u.mu.RLock()
	src, okFrom := u.peers[from]
	dst, okTo := u.peers[to]
	u.mu.RUnlock()
	if !okFrom || !okTo {
		return ErrUnknownPeer
	}
	_, err := src.conn.WriteToUDP(data, dst.addr)
	return err
}

func (u *udpLink) Close() error {
	if u.stopping.Swap(true) {
		return nil
	}

	u.mu.Lock()
	var err error
	for _, p := range u.peers {
		if cErr := p.conn.Close(); cErr != nil && !errors.Is(cErr, net.ErrClosed) {
			err = multierr.Append(err, cErr)
		}
	}
	u.peers = map[proto.NodeID]*udpPeer{}
	u.mu.Unlock()

	u.readers.Wait()
	if err != nil {
		u.log.Error("Failed closing UDP sockets", zap.Error(err))
	}
	return err
}
