package main

import (
	"fmt"
	"strings"

	"github.com/heyvito/pathtrace/resources"
	"github.com/spf13/cobra"
)

var exampleCmd = &cobra.Command{
	Use:   "example NAME",
	Short: "Print a sample topology",
	Long:  "Prints one of the embedded sample topologies: " + strings.Join(resources.TopologyNames(), ", ") + ".",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := resources.Topology(args[0])
		if err != nil {
			return fmt.Errorf("unknown example %q, try one of: %s", args[0], strings.Join(resources.TopologyNames(), ", "))
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(exampleCmd)
}
