package proto

import "fmt"

// CouldNotParsePacketErr indicates that a parsing operation could not yield
// a valid result from the provided data buffer.
var CouldNotParsePacketErr = fmt.Errorf("could not parse data")

// NoDecoderError indicates that a received packet carries an OpCode this
// library does not know.
type NoDecoderError struct {
	op OpCode
}

func (n NoDecoderError) Error() string {
	return fmt.Sprintf("No decoder available for OpCode 0x%02x (%s)", uint8(n.op), n.op.String())
}

// InvalidHeaderError indicates that a packet header could not be accepted.
type InvalidHeaderError struct {
	Reason string
}

func (i InvalidHeaderError) Error() string {
	return "invalid packet header: " + i.Reason
}
