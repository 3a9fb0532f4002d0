package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewComponentsCommand returns the components command
func NewComponentsCommand(e *env) (cmd *cobra.Command) {
	var reveal bool

	cmd = &cobra.Command{
		Use:   "components",
		Short: "describe the components of the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := e.ctx.Components()
			if reg.Len() == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no components")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), reg.Describe(reveal))
			return nil
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "print keys in full")

	return cmd
}
