package proto

// ConfirmPredecessor is sent to exactly one neighbor, telling it that it was
// chosen as the sender's predecessor on the shortest path. It has no body.
type ConfirmPredecessor struct{}

func (ConfirmPredecessor) OpCode() OpCode    { return CNFM }
func (ConfirmPredecessor) Encode([]byte)     {}
func (ConfirmPredecessor) RequiredSize() int { return 0 }
