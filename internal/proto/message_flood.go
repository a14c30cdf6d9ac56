package proto

// FloodDistance is broadcast by a node that just learned its distance. It
// tells every neighbor "you are reachable at Distance+1 hops from the source
// through me".
type FloodDistance struct {
	// Distance is the sender's own distance from the source.
	Distance int32
}

func (FloodDistance) OpCode() OpCode       { return FLOD }
func (FloodDistance) RequiredSize() int    { return 4 }
func (f FloodDistance) GetDistance() int32 { return f.Distance }

func (f FloodDistance) Encode(into []byte) {
	newWriter(into).i32(f.Distance)
}

var floodDecoder = distanceDecoder(func(v *FloodDistance, d int32) { v.Distance = d })
