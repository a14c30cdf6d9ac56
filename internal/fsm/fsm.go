package fsm

import (
	"encoding/binary"
	"errors"
)

// Initializer allows FSMs to initialize their custom context (provided as
// type C to the FSM). Contexts implementing this interface will have Init
// called once, when the FSM is created.
type Initializer interface {
	Init()
}

// Resetter allows FSMs to reset their custom context (provided as type C to
// the FSM) whenever the FSM itself goes back to its initial state.
type Resetter interface {
	Reset()
}

// AnyDecoder is the untyped face of an FSM, used by callers that select a
// decoder at runtime (e.g. by message tag) and cannot name its T.
type AnyDecoder interface {
	// FeedAny acts like FSM.Feed, but returns any. See FSM.Feed.
	FeedAny(b byte) (any, error)
}

// AnyDefinition represents a Def whose output type is not known to the
// caller.
type AnyDefinition interface {
	NewGeneric() AnyDecoder
}

// FSM is a byte-fed decoder built from a Def. It accumulates bytes until the
// size requested by the current state is satisfied, then hands control to
// the definition's Feed function.
type FSM[T any, S ~uint8, C any] struct {
	Value   *T
	Size    int
	Payload []byte

	feedFn          func(f *FSM[T, S, C], state S, ctx *C, b byte) error
	byteOrder       binary.ByteOrder
	initialSize     int
	initialState    S
	state           S
	context         *C
	currentByte     byte
	mustSatisfySize bool
}

// Append appends the byte being fed to the payload buffer and decrements the
// size counter.
func (i *FSM[T, S, C]) Append() {
	i.Payload = append(i.Payload, i.currentByte)
	i.Size--
}

// ResetPayload clears the payload buffer, retaining its capacity.
func (i *FSM[T, S, C]) ResetPayload() {
	i.Payload = i.Payload[:0]
}

// Init puts the decoder back in its initial state, resetting the custom
// context when it implements Resetter, and allocates a fresh Value.
func (i *FSM[T, S, C]) Init() {
	i.Size = i.initialSize
	i.mustSatisfySize = i.initialSize != 0
	if r, ok := any(i.context).(Resetter); ok {
		r.Reset()
	}
	i.currentByte = 0
	i.state = i.initialState
	i.ResetPayload()
	i.Value = new(T)
}

// Feed feeds a single byte to the decoder. It returns a copy of the decoded
// value once the definition signals Done, nil while more data is needed, or
// the error returned by the definition. Errors also reset the decoder, so it
// can be reused for a new input.
func (i *FSM[T, S, C]) Feed(b byte) (*T, error) {
	i.currentByte = b
	if i.mustSatisfySize {
		if !i.SizeSatisfied() {
			return nil, nil
		}
		i.mustSatisfySize = false
	}

	err := i.feedFn(i, i.state, i.context, b)
	switch {
	case err == nil:
		return nil, nil
	case errors.Is(err, Done):
		defer i.Reset()
		return copyIndirect(i.Value), nil
	default:
		i.Reset()
		return nil, err
	}
}

// SatisfySize indicates that the decoder must not call the feed function
// until Size bytes have been buffered into Payload.
func (i *FSM[T, S, C]) SatisfySize() {
	i.mustSatisfySize = true
}

// FeedAny acts like Feed, but returns `any` instead of *T.
func (i *FSM[T, S, C]) FeedAny(b byte) (any, error) {
	v, err := i.Feed(b)
	if v == nil {
		// Avoid returning a typed nil wrapped in a non-nil interface.
		return nil, err
	}
	return v, err
}

// Reset resets the decoder to its initial state.
func (i *FSM[T, S, C]) Reset() { i.Init() }

// Transition moves the decoder to the provided state without a size
// requirement.
func (i *FSM[T, S, C]) Transition(next S) {
	i.TransitionSize(next, 0)
}

// TransitionSize moves the decoder to the provided state, setting Size and
// clearing the payload buffer.
func (i *FSM[T, S, C]) TransitionSize(next S, size int) {
	i.Size = size
	i.state = next
	i.ResetPayload()
}

// TransitionSatisfySize acts as TransitionSize, and also calls SatisfySize,
// meaning the next call to the feed function for state `next` only happens
// after `size` bytes were buffered.
func (i *FSM[T, S, C]) TransitionSatisfySize(next S, size int) {
	i.TransitionSize(next, size)
	i.SatisfySize()
}

// SizeSatisfied appends the current byte and reports whether the size
// requirement has been met.
func (i *FSM[T, S, C]) SizeSatisfied() bool {
	i.Append()
	return i.Size == 0
}

// U16 reads the first two payload bytes using the FSM byte order. Panics
// when len(Payload) < 2.
func (i *FSM[T, S, C]) U16() uint16 {
	return i.byteOrder.Uint16(i.Payload)
}

// U32 reads the first four payload bytes using the FSM byte order. Panics
// when len(Payload) < 4.
func (i *FSM[T, S, C]) U32() uint32 {
	return i.byteOrder.Uint32(i.Payload)
}

// I32 reads the first four payload bytes as a two's complement signed
// integer.
func (i *FSM[T, S, C]) I32() int32 {
	return int32(i.U32())
}

func copyIndirect[T any](obj *T) *T {
	other := *obj
	return &other
}
