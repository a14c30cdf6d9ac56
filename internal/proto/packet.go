package proto

import (
	"github.com/heyvito/pathtrace/internal/fsm"
)

// Packet contains a Header and a Message object. The header's Sender is the
// handle the recipient uses to address directed replies.
type Packet struct {
	Header  Header
	Message Message
}

// Sender returns the identifier of the node that emitted this packet.
func (p Packet) Sender() NodeID { return p.Header.Sender }

func (p Packet) Encode(into []byte) {
	headerSize := p.Header.RequiredSize()
	p.Header.Encode(into)
	p.Message.Encode(into[headerSize:])
}

func (p Packet) RequiredSize() int {
	return p.Header.RequiredSize() +
		p.Message.RequiredSize()
}

// Pkt wraps a message emitted by sender into a Packet.
func Pkt(sender NodeID, msg Message) *Packet {
	return &Packet{
		Header: Header{
			Magic:   protocolMagic,
			Version: protocolVersion,
			OpCode:  msg.OpCode(),
			Sender:  sender,
		},
		Message: msg,
	}
}

// fsmStates: packetDecoder header, payload

type packetDecoderState uint8

const (
	packetDecoderStateHeader packetDecoderState = iota
	packetDecoderStatePayload
)

// fsmStatesEnd

type packetDecoderContext struct {
	headerDecoder  *headerDecoderT
	payloadDecoder fsm.AnyDecoder
}

func (p *packetDecoderContext) Reset() {
	p.headerDecoder.Reset()
	p.payloadDecoder = nil
}

func (p *packetDecoderContext) Init() {
	p.headerDecoder = headerDecoder.New()
}

var PacketDecoder = fsm.Def[Packet, packetDecoderState, packetDecoderContext]{
	Feed: func(f *fsm.FSM[Packet, packetDecoderState, packetDecoderContext], state packetDecoderState, ctx *packetDecoderContext, b byte) error {
		switch state {
		case packetDecoderStateHeader:
			head, err := ctx.headerDecoder.Feed(b)
			if err != nil {
				return err
			}

			if head != nil {
				decoder, ok := messageDecoderList[head.OpCode]
				if !ok {
					return NoDecoderError{op: head.OpCode}
				}

				f.Value.Header = *head

				if decoder == nil {
					f.Value.Message = emptyMessages[head.OpCode]()
					return fsm.Done
				}

				ctx.payloadDecoder = decoder.NewGeneric()
				f.Transition(packetDecoderStatePayload)
			}
		case packetDecoderStatePayload:
			msg, err := ctx.payloadDecoder.FeedAny(b)
			if err != nil {
				return err
			}
			if msg != nil {
				f.Value.Message = msg.(Message)
				return fsm.Done
			}
		}

		return nil
	},
}
