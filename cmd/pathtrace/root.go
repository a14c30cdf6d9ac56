package main

import (
	"fmt"

	"github.com/heyvito/pathtrace/internal/topology"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pathtrace",
	Short: "Distributed shortest-path flood and backtrace",
	Long: `pathtrace floods hop distances outward from a source node, then traces
one shortest path back from every target, using only messages exchanged
between neighbors.`,
	SilenceUsage: true,
}

var (
	topologyPath string
	verbose      bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&topologyPath, "topology", "t", "", "topology YAML file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log protocol decisions")
}

func makeLogger() (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.DisableCaller = true
	config.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return config.Build()
}

func loadTopology() (*topology.Config, error) {
	if topologyPath == "" {
		return nil, fmt.Errorf("--topology is required")
	}
	return topology.Load(topologyPath)
}
