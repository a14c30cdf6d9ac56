package fsm

import "encoding/binary"

// DefaultByteOrder is used by every Def that does not set ByteOrder. All
// pathtrace wire values are big-endian.
var DefaultByteOrder binary.ByteOrder = binary.BigEndian

// Def describes a decoder that emits a value T by walking states S, with an
// optional custom context C (use struct{} when none is needed). C may
// implement Initializer and/or Resetter.
type Def[T any, S ~uint8, C any] struct {
	// InitialSize is the amount of bytes to buffer before Feed is called for
	// the first time. Optional.
	InitialSize int

	// InitialState is the state the FSM starts in and returns to after a
	// reset. Optional; defaults to S's zero value.
	InitialState S

	// Feed handles incoming bytes (or a full buffered chunk, depending on
	// size requirements). Returning Done emits the current Value; returning
	// nil asks for more data; any other error resets the FSM and is handed
	// to the caller. Required.
	Feed func(f *FSM[T, S, C], state S, ctx *C, b byte) error

	// ByteOrder used by U16/U32/I32. Defaults to DefaultByteOrder.
	ByteOrder binary.ByteOrder
}

// New returns a new FSM instance based on this definition.
func (d Def[T, S, C]) New() *FSM[T, S, C] {
	f := &FSM[T, S, C]{
		feedFn:       d.Feed,
		byteOrder:    d.ByteOrder,
		initialSize:  d.InitialSize,
		initialState: d.InitialState,
		context:      new(C),
	}

	if f.byteOrder == nil {
		f.byteOrder = DefaultByteOrder
	}

	if i, ok := any(f.context).(Initializer); ok {
		i.Init()
	}
	f.Init()
	return f
}

// NewGeneric returns a new FSM instance of this Def as an AnyDecoder.
func (d Def[T, S, C]) NewGeneric() AnyDecoder {
	return d.New()
}
