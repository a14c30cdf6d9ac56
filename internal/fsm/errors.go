package fsm

import "errors"

// Done is returned by a Def's Feed function to signal that Value is complete
// and must be handed to the caller.
var Done = errors.New("fsm: value complete")
