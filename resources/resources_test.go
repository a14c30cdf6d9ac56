package resources

import (
	"bytes"
	"testing"

	"github.com/heyvito/pathtrace/internal/topology"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopologies(t *testing.T) {
	names := TopologyNames()
	assert.Equal(t, []string{"diamond", "grid", "line", "walled-line"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			data, err := Topology(name)
			require.NoError(t, err)
			cfg, err := topology.Parse(bytes.NewReader(data))
			require.NoError(t, err)
			_, _, err = cfg.Build()
			require.NoError(t, err)
		})
	}

	_, err := Topology("nope")
	assert.Error(t, err)
}
