package proto

import (
	"fmt"

	"github.com/heyvito/pathtrace/internal/fsm"
)

// Header is present in every exchanged packet. It contains the protocol
// magic bytes, the version to which the message belongs to, the message
// type, and the identifier of the node that emitted it.
type Header struct {
	Magic   uint16
	Version uint8
	OpCode  OpCode
	Sender  NodeID
}

func (h Header) Encode(into []byte) {
	newWriter(into).
		u16(h.Magic).
		u8((h.Version << 4) | byte(h.OpCode)).
		u32(uint32(h.Sender))
}

func (h Header) RequiredSize() int { return 7 }

// fsmStates: headerDecoder magic, versionOpCode, sender

type headerDecoderState uint8

const (
	headerDecoderStateMagic headerDecoderState = iota
	headerDecoderStateVersionOpCode
	headerDecoderStateSender
)

// fsmStatesEnd

type headerDecoderT = fsm.FSM[Header, headerDecoderState, struct{}]

var headerDecoder = fsm.Def[Header, headerDecoderState, struct{}]{
	InitialSize: 2,
	Feed: func(f *fsm.FSM[Header, headerDecoderState, struct{}], state headerDecoderState, ctx *struct{}, b byte) error {
		switch state {
		case headerDecoderStateMagic:
			f.Value.Magic = f.U16()
			if f.Value.Magic != protocolMagic {
				return InvalidHeaderError{Reason: fmt.Sprintf("magic 0x%04x", f.Value.Magic)}
			}
			f.Transition(headerDecoderStateVersionOpCode)

		case headerDecoderStateVersionOpCode:
			f.Value.Version = (b & 0xF0) >> 4
			f.Value.OpCode = OpCode(b & 0x0F)

			if f.Value.Version != protocolVersion {
				return InvalidHeaderError{Reason: fmt.Sprintf("version %d", f.Value.Version)}
			}

			if f.Value.OpCode < minOpCode || f.Value.OpCode > maxOpCode {
				return NoDecoderError{op: f.Value.OpCode}
			}

			f.TransitionSatisfySize(headerDecoderStateSender, 4)

		case headerDecoderStateSender:
			f.Value.Sender = NodeID(f.U32())
			return fsm.Done
		}

		return nil
	},
}
