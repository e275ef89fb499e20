package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/afroash/sensorcheck/internal/scenario"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scenarios",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, sc := range scenario.All() {
			fmt.Fprintf(w, "%s\t%s\n", sc.Name, sc.Description)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
