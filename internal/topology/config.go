package topology

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/heyvito/pathtrace/internal/core"
	"github.com/heyvito/pathtrace/internal/proto"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoSource indicates that a topology does not designate a source.
	ErrNoSource = errors.New("topology has no source")

	// ErrEmpty indicates that a topology has no nodes.
	ErrEmpty = errors.New("topology has no nodes")
)

// UnknownNodeError indicates that an edge references a node that was never
// declared.
type UnknownNodeError struct {
	ID   proto.NodeID
	Edge string
}

func (u UnknownNodeError) Error() string {
	return fmt.Sprintf("edge %q references unknown node %s", u.Edge, u.ID)
}

// NodeError attaches a node identifier to a validation problem.
type NodeError struct {
	ID  proto.NodeID
	Err error
}

func (n NodeError) Error() string { return fmt.Sprintf("node %s: %s", n.ID, n.Err) }
func (n NodeError) Unwrap() error { return n.Err }

// NodeConfig declares a single node and its role flags.
type NodeConfig struct {
	ID              proto.NodeID `yaml:"id"`
	core.Attributes `yaml:",inline"`
}

// GridConfig generates a lattice of nodes. See Grid.
type GridConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config is the YAML representation of a topology and its role assignment.
//
//	source: 1
//	nodes:
//	  - id: 1
//	  - id: 2
//	    wall: true
//	  - id: 3
//	    target: true
//	edges:
//	  - 1, 2
//	  - 2, 3
//
// Every entry of Edges is a comma-separated group of identifiers whose
// members are all connected to each other. When Grid is set, its lattice is
// generated first; Nodes then only needs to list nodes carrying flags, and
// Edges may add extra links.
type Config struct {
	Source proto.NodeID `yaml:"source"`
	Nodes  []NodeConfig `yaml:"nodes"`
	Edges  []string     `yaml:"edges"`
	Grid   *GridConfig  `yaml:"grid,omitempty"`
}

// Assignment maps every node to its role.
type Assignment map[proto.NodeID]core.Role

// Targets returns every node assigned RoleTarget, in ascending order.
func (a Assignment) Targets() []proto.NodeID {
	return a.withRole(core.RoleTarget)
}

// Walls returns every node assigned RoleWall, in ascending order.
func (a Assignment) Walls() []proto.NodeID {
	return a.withRole(core.RoleWall)
}

func (a Assignment) withRole(role core.Role) []proto.NodeID {
	var ids []proto.NodeID
	for id, r := range a {
		if r == role {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Load reads and parses the topology file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a topology document. It does not validate it; see Build.
func Parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding topology: %w", err)
	}
	return cfg, nil
}

// Build validates the configuration and returns its Graph and role
// Assignment. Every problem found is reported in the returned error.
func (c *Config) Build() (*Graph, Assignment, error) {
	var errs error
	g := NewGraph()
	attrs := map[proto.NodeID]core.Attributes{}

	if c.Grid != nil {
		if c.Grid.Width < 1 || c.Grid.Height < 1 {
			errs = multierr.Append(errs, fmt.Errorf("invalid grid size %dx%d", c.Grid.Width, c.Grid.Height))
		} else if !GridFits(c.Grid.Width, c.Grid.Height) {
			errs = multierr.Append(errs, fmt.Errorf("grid %dx%d exceeds %d nodes", c.Grid.Width, c.Grid.Height, uint64(MaxGridNodes)))
		} else {
			g = Grid(c.Grid.Width, c.Grid.Height)
		}
	}

	declared := map[proto.NodeID]bool{}
	for _, n := range c.Nodes {
		if n.ID == 0 {
			errs = multierr.Append(errs, NodeError{ID: n.ID, Err: errors.New("identifier 0 is reserved")})
			continue
		}
		if declared[n.ID] {
			errs = multierr.Append(errs, NodeError{ID: n.ID, Err: errors.New("declared more than once")})
			continue
		}
		declared[n.ID] = true
		if c.Grid != nil && !g.Has(n.ID) {
			errs = multierr.Append(errs, NodeError{ID: n.ID, Err: errors.New("outside of grid")})
			continue
		}
		g.AddNode(n.ID)
		attrs[n.ID] = n.Attributes
	}

	for _, line := range c.Edges {
		group, err := parseGroup(line)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		valid := true
		for _, id := range group {
			if !g.Has(id) {
				errs = multierr.Append(errs, UnknownNodeError{ID: id, Edge: line})
				valid = false
			}
		}
		if !valid {
			continue
		}
		for i := range group {
			for j := i + 1; j < len(group); j++ {
				if group[i] == group[j] {
					errs = multierr.Append(errs, fmt.Errorf("edge %q: self loop on node %s", line, group[i]))
					continue
				}
				g.Connect(group[i], group[j])
			}
		}
	}

	if len(g.Nodes()) == 0 {
		errs = multierr.Append(errs, ErrEmpty)
	}

	if c.Source == 0 {
		errs = multierr.Append(errs, ErrNoSource)
	} else if !g.Has(c.Source) {
		errs = multierr.Append(errs, NodeError{ID: c.Source, Err: errors.New("source is not part of the topology")})
	}

	assignment := Assignment{}
	for _, id := range g.Nodes() {
		role, err := core.ResolveRole(id == c.Source, attrs[id])
		if err != nil {
			errs = multierr.Append(errs, NodeError{ID: id, Err: err})
			continue
		}
		assignment[id] = role
	}

	if errs != nil {
		return nil, nil, errs
	}
	return g, assignment, nil
}

// parseGroup parses a comma-separated list of node identifiers.
func parseGroup(line string) ([]proto.NodeID, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("edge %q must list at least two nodes", line)
	}
	ids := make([]proto.NodeID, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 32)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("edge %q: invalid node identifier %q", line, strings.TrimSpace(p))
		}
		ids = append(ids, proto.NodeID(v))
	}
	return ids, nil
}
