package proto

// ProbePredecessor is broadcast by a node looking for its predecessor on a
// shortest path. Every neighbor answers with a ReportDistance.
type ProbePredecessor struct {
	// Distance is the asker's own distance.
	Distance int32
}

func (ProbePredecessor) OpCode() OpCode       { return PROB }
func (ProbePredecessor) RequiredSize() int    { return 4 }
func (p ProbePredecessor) GetDistance() int32 { return p.Distance }

func (p ProbePredecessor) Encode(into []byte) {
	newWriter(into).i32(p.Distance)
}

var probeDecoder = distanceDecoder(func(v *ProbePredecessor, d int32) { v.Distance = d })
