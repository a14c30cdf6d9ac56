package resources

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed state.html
var StatePage string

//go:embed topologies/*.yaml
var topologies embed.FS

// TopologyNames lists every embedded sample topology.
func TopologyNames() []string {
	entries, _ := fs.ReadDir(topologies, "topologies")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Topology returns the YAML document of the sample topology called name.
func Topology(name string) ([]byte, error) {
	return topologies.ReadFile(path.Join("topologies", name+".yaml"))
}
