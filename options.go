package pathtrace

import (
	"fmt"
	"net"

	"github.com/heyvito/pathtrace/internal/core"
	"go.uber.org/zap"
)

// Mode selects how delays elapse.
type Mode int

const (
	// ModeSimulated runs the protocol on a virtual clock: one message is
	// handled at a time, in delivery-time order, and runs are reproducible
	// for a given Seed.
	ModeSimulated Mode = iota

	// ModeLive waits for real delays, and nodes handle messages
	// concurrently.
	ModeLive
)

func (m Mode) String() string {
	switch m {
	case ModeSimulated:
		return "simulated"
	case ModeLive:
		return "live"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Transport selects how live-mode messages travel between nodes.
type Transport int

const (
	// TransportMemory hands packets over within the process.
	TransportMemory Transport = iota

	// TransportUDP gives each node its own UDP socket.
	TransportUDP
)

func (t Transport) String() string {
	switch t {
	case TransportMemory:
		return "memory"
	case TransportUDP:
		return "udp"
	}
	return fmt.Sprintf("Transport(%d)", int(t))
}

// Options represents a set of options to tune and configure a Network.
type Options struct {
	// LogHandler represents the logger used by this library. A nil logger
	// will emit no messages.
	LogHandler *zap.Logger

	// Mode selects a simulated or live fabric. Defaults to ModeSimulated.
	Mode Mode

	// Transport selects how packets travel in ModeLive. TransportUDP requires
	// ModeLive. Defaults to TransportMemory.
	Transport Transport

	// Seed feeds the random source used to draw delays and losses. In
	// ModeSimulated, identical seeds yield identical runs.
	Seed int64

	// BroadcastDelay bounds the delay of FloodDistance and ProbePredecessor
	// broadcasts. Defaults to 100ms..200ms when zero. Use equal Min and Max
	// to have distances match true hop counts.
	BroadcastDelay core.Delay

	// DirectDelay bounds the delay of ReportDistance and ConfirmPredecessor.
	// Defaults to no delay.
	DirectDelay core.Delay

	// DropProbability is the chance, in [0, 1], that any single message is
	// lost. Lost messages are never retried. Defaults to 0.
	DropProbability float64

	// MailboxSize bounds how many jobs may wait on a single node before
	// deliveries to it block. Defaults to 16.
	MailboxSize int

	// LegacyUnknownReplies lets a ReportDistance carrying an unknown distance
	// satisfy the predecessor test, which allows a Source to confirm an
	// unvisited neighbor. Defaults to false.
	LegacyUnknownReplies bool

	// SourceReprobes makes the Source broadcast ProbePredecessor once
	// confirmed as a predecessor, like every other node. Defaults to false,
	// which ends every backtrace at the Source.
	SourceReprobes bool

	// TargetRederives makes a Target recompute its distance and broadcast
	// ProbePredecessor on every FloodDistance it receives, not only the
	// first. Defaults to false.
	TargetRederives bool

	// CryptoKey, when set, comprises a 16-byte key used to seal every packet
	// with ASCON. Defaults to an empty slice, which disables sealing.
	CryptoKey []byte

	// UDPBindAddress is the address every UDP socket binds to when Transport
	// is TransportUDP. Defaults to 127.0.0.1.
	UDPBindAddress string
}

func (o *Options) normalize() error {
	if o.LogHandler == nil {
		o.LogHandler = zap.NewNop()
	}

	if o.Mode != ModeSimulated && o.Mode != ModeLive {
		return fmt.Errorf("invalid mode %s", o.Mode)
	}

	if o.Transport == TransportUDP && o.Mode != ModeLive {
		return fmt.Errorf("transport %s requires mode %s", o.Transport, ModeLive)
	} else if o.Transport != TransportMemory && o.Transport != TransportUDP {
		return fmt.Errorf("invalid transport %s", o.Transport)
	}

	if o.BroadcastDelay == (core.Delay{}) {
		o.BroadcastDelay = core.DefaultPolicy().BroadcastDelay
	}

	for name, d := range map[string]core.Delay{"BroadcastDelay": o.BroadcastDelay, "DirectDelay": o.DirectDelay} {
		if d.Min < 0 || d.Max < 0 || d.Extra < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
		if d.Max < d.Min {
			return fmt.Errorf("%s: Max (%s) must not be lower than Min (%s)", name, d.Max, d.Min)
		}
	}

	if o.DropProbability < 0 || o.DropProbability > 1 {
		return fmt.Errorf("DropProbability must be within [0, 1]")
	}

	if len(o.CryptoKey) != 0 && len(o.CryptoKey) != 16 {
		return fmt.Errorf("CryptoKey must have 16 bytes")
	}

	if o.MailboxSize == 0 {
		o.MailboxSize = 16
	} else if o.MailboxSize < 0 {
		return fmt.Errorf("MailboxSize must be positive")
	}

	if o.UDPBindAddress == "" {
		o.UDPBindAddress = "127.0.0.1"
	} else if net.ParseIP(o.UDPBindAddress) == nil {
		return fmt.Errorf("UDPBindAddress %q is not an IP address", o.UDPBindAddress)
	}

	return nil
}

func (o *Options) policy() core.Policy {
	return core.Policy{
		LegacyUnknownReplies: o.LegacyUnknownReplies,
		SourceReprobes:       o.SourceReprobes,
		TargetRederives:      o.TargetRederives,
		BroadcastDelay:       o.BroadcastDelay,
		DirectDelay:          o.DirectDelay,
	}
}
