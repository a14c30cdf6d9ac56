package proto

import "github.com/heyvito/pathtrace/internal/fsm"

// ReportDistance is the directed reply to a ProbePredecessor. Nodes that
// were never reached by the flood report UnknownDistance.
type ReportDistance struct {
	// Distance is the responder's own distance.
	Distance int32
}

func (ReportDistance) OpCode() OpCode       { return RPRT }
func (ReportDistance) RequiredSize() int    { return 4 }
func (r ReportDistance) GetDistance() int32 { return r.Distance }

// Known reports whether the responder knew its distance when replying.
func (r ReportDistance) Known() bool { return r.Distance != UnknownDistance }

func (r ReportDistance) Encode(into []byte) {
	newWriter(into).i32(r.Distance)
}

var reportDecoder = distanceDecoder(func(v *ReportDistance, d int32) { v.Distance = d })

// fsmStates: distanceDecoder distance

type distanceDecoderState uint8

const (
	distanceDecoderStateDistance distanceDecoderState = iota
)

// fsmStatesEnd

// distanceDecoder builds the decoder shared by every message whose body is
// a single int32 distance.
func distanceDecoder[T any](set func(v *T, d int32)) fsm.Def[T, distanceDecoderState, struct{}] {
	return fsm.Def[T, distanceDecoderState, struct{}]{
		InitialSize: 4,
		Feed: func(f *fsm.FSM[T, distanceDecoderState, struct{}], state distanceDecoderState, ctx *struct{}, b byte) error {
			set(f.Value, f.I32())
			return fsm.Done
		},
	}
}
