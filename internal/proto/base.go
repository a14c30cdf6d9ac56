package proto

import (
	"encoding/binary"
	"strconv"

	"github.com/heyvito/pathtrace/internal/fsm"
)

// OpCode tags each message kind exchanged between nodes.
type OpCode uint8

const (
	// FLOD is a FloodDistance message
	FLOD OpCode = 0x01
	// PROB is a ProbePredecessor message
	PROB OpCode = 0x02
	// RPRT is a ReportDistance message
	RPRT OpCode = 0x03
	// CNFM is a ConfirmPredecessor message
	CNFM OpCode = 0x04

	// When adding new messages, remember to update minOpCode and maxOpCode :)
)

const (
	minOpCode              = FLOD
	maxOpCode              = CNFM
	protocolVersion uint8  = 1
	protocolMagic   uint16 = 0xB7AC
)

// AllOpCodes lists every known OpCode in ascending order.
var AllOpCodes = []OpCode{FLOD, PROB, RPRT, CNFM}

func (o OpCode) String() string {
	switch o {
	case FLOD:
		return "FLOD"
	case PROB:
		return "PROB"
	case RPRT:
		return "RPRT"
	case CNFM:
		return "CNFM"
	}
	return "OpCode(" + strconv.Itoa(int(o)) + ")"
}

// UnknownDistance is the distance a node reports while it has not been
// reached by the flood yet.
const UnknownDistance int32 = -1

// NodeID is the stable identifier of a network participant.
type NodeID uint32

func (n NodeID) String() string { return strconv.FormatUint(uint64(n), 10) }

// messageDecoderList holds a map associating OpCode to its decoder. OpCodes
// with nil as their values do not have a body; their zero value is produced
// by emptyMessages instead.
var messageDecoderList = map[OpCode]fsm.AnyDefinition{
	FLOD: floodDecoder,
	PROB: probeDecoder,
	RPRT: reportDecoder,
	CNFM: nil,
}

// emptyMessages builds body-less messages for OpCodes lacking a decoder.
var emptyMessages = map[OpCode]func() Message{
	CNFM: func() Message { return &ConfirmPredecessor{} },
}

// Message abstracts relevant methods of a message
type Message interface {
	OpCode() OpCode
	Encoder
}

// DistanceCarrier is implemented by every message whose payload is a
// distance value.
type DistanceCarrier interface {
	Message
	GetDistance() int32
}

// Encoder represents any structure that can be encoded by Writer.
type Encoder interface {
	// RequiredSize returns the amount of bytes required to encode the current
	// structure.
	RequiredSize() int

	// Encode writes the structure's serialized representation into the
	// provided slice. It assumes len(into) >= RequiredSize().
	Encode(into []byte)
}

var (
	u16Marshal = binary.BigEndian.PutUint16
	u32Marshal = binary.BigEndian.PutUint32
)

// EncPkt encodes a given Message sent by `sender` into a Packet, and returns
// its bytes.
func EncPkt(sender NodeID, message Message) []byte {
	pkt := Pkt(sender, message)
	data := make([]byte, pkt.RequiredSize())
	pkt.Encode(data)
	return data
}

// ParsePacket attempts to parse a provided data byte slice into a Packet
// structure, including its payload. Returns an error in case the operation
// does not yield a valid Packet.
func ParsePacket(data []byte) (*Packet, error) {
	dec := PacketDecoder.New()
	for _, b := range data {
		pkt, err := dec.Feed(b)
		if err != nil {
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
	}

	return nil, CouldNotParsePacketErr
}
