package core

import (
	"errors"
	"fmt"
	"strconv"
)

// Role is assigned to every node before the protocol starts and never
// changes afterwards.
type Role uint8

const (
	RoleInvalid Role = iota
	RolePlain
	RoleSource
	RoleTarget
	RoleWall
)

func (r Role) String() string {
	switch r {
	case RolePlain:
		return "Plain"
	case RoleSource:
		return "Source"
	case RoleTarget:
		return "Target"
	case RoleWall:
		return "Wall"
	case RoleInvalid:
		return "Invalid"
	}
	return "Role(" + strconv.Itoa(int(r)) + ")"
}

// ErrConflictingRole is returned when a node's attributes select more than
// one role.
var ErrConflictingRole = errors.New("conflicting role attributes")

// Attributes holds the per-node role flags supplied by role assignment. The
// source is designated separately, by identity.
type Attributes struct {
	IsTarget bool `yaml:"target"`
	IsWall   bool `yaml:"wall"`
}

// ResolveRole turns the role flags of a node into its Role. A node may carry
// at most one of source, target and wall.
func ResolveRole(isSource bool, attrs Attributes) (Role, error) {
	selected := 0
	for _, v := range []bool{isSource, attrs.IsTarget, attrs.IsWall} {
		if v {
			selected++
		}
	}
	if selected > 1 {
		return RoleInvalid, fmt.Errorf("%w: source=%t target=%t wall=%t",
			ErrConflictingRole, isSource, attrs.IsTarget, attrs.IsWall)
	}

	switch {
	case isSource:
		return RoleSource, nil
	case attrs.IsTarget:
		return RoleTarget, nil
	case attrs.IsWall:
		return RoleWall, nil
	default:
		return RolePlain, nil
	}
}
