package core

import (
	"strconv"

	"github.com/heyvito/pathtrace/internal/proto"
)

// Phase is the conceptual state of a node, derived from its role, distance
// and pathConfirmed flag.
type Phase uint8

const (
	PhaseRoleAssigned Phase = iota
	PhaseDistanceUnknown
	PhaseDistanceKnown
	PhasePredecessorConfirmed
	PhaseInert
)

func (p Phase) String() string {
	switch p {
	case PhaseRoleAssigned:
		return "RoleAssigned"
	case PhaseDistanceUnknown:
		return "DistanceUnknown"
	case PhaseDistanceKnown:
		return "DistanceKnown"
	case PhasePredecessorConfirmed:
		return "PredecessorConfirmed"
	case PhaseInert:
		return "Inert"
	}
	return "Phase(" + strconv.Itoa(int(p)) + ")"
}

func derivePhase(started bool, role Role, distance int32, pathConfirmed bool) Phase {
	switch {
	case !started:
		return PhaseRoleAssigned
	case role == RoleWall:
		return PhaseInert
	case pathConfirmed:
		return PhasePredecessorConfirmed
	case distance == proto.UnknownDistance:
		return PhaseDistanceUnknown
	default:
		return PhaseDistanceKnown
	}
}
