package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/absfs/secobj"
)

// NewAggregateCommand returns the aggregate command
func NewAggregateCommand(e *env) (cmd *cobra.Command) {
	var output string

	cmd = &cobra.Command{
		Use:   "aggregate",
		Short: "derive the IV of a link output from the IVs of its inputs",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := e.ctx.Components()
			reg.SetMode(secobj.ModeLinker)
			set, err := reg.AggregateOutputIV(output)
			if err != nil {
				return err
			}
			if !set {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: no encrypted inputs, output stays in clear\n", output)
				return nil
			}
			comp, _ := reg.FindComponent(output)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: Iv %x\n", comp.Name, comp.IV)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "path of the link output")
	if err := cmd.MarkFlagRequired("output"); err != nil {
		panic(err)
	}

	return cmd
}

// NewCopyCommand returns the copy command
func NewCopyCommand(e *env) (cmd *cobra.Command) {
	var (
		dryRun   bool
		codeOnly bool
	)

	cmd = &cobra.Command{
		Use:   "copy SOURCE DEST",
		Short: "copy an object, re-encrypting code sections for the destination component",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := openObject(e, args[0])
			if err != nil {
				return err
			}
			defer src.Close()

			dstPath, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}
			dst, err := e.ctx.CreateObjectFile(e.fs, dstPath)
			if err != nil {
				return err
			}
			defer dst.Close()

			opts := secobj.CopyOptions{
				Verbose: e.ctx.Components().Verbose(),
				DryRun:  dryRun,
			}
			if codeOnly {
				opts.Filter = func(s *secobj.Section) bool { return s.Flags()&secobj.FlagCode != 0 }
			}
			if err := secobj.CopyObject(dst, src, opts); err != nil {
				return err
			}
			return dst.Close()
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only report what would be copied")
	cmd.Flags().BoolVar(&codeOnly, "code-only", false, "copy code sections only")

	return cmd
}
