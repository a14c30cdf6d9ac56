package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a topology file",
	Long:  `Builds the topology and its role assignment, reporting every problem found.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadTopology()
		if err != nil {
			return err
		}
		graph, roles, err := cfg.Build()
		if err != nil {
			for _, e := range multierr.Errors(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", e)
			}
			return fmt.Errorf("%d problem(s) found", len(multierr.Errors(err)))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, %d edges, source %s, targets %v, walls %v\n",
			len(graph.Nodes()), graph.EdgeCount(), cfg.Source, roles.Targets(), roles.Walls())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
