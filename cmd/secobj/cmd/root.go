// Package cmd implements the secobj command line.
package cmd

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/absfs/absfs"
	"github.com/spf13/cobra"

	"github.com/absfs/secobj"
)

// env is the state shared by subcommands once the root command has run.
type env struct {
	fs  absfs.FileSystem
	ctx *secobj.Context
}

// NewCommand returns the root command for the secobj CLI
func NewCommand() (cmd *cobra.Command) {
	var (
		configPath string
		keySize    int
		verbose    bool
		mode       string
		ivEnv      string
	)
	e := &env{fs: newDirFS("/")}

	cmd = &cobra.Command{
		Use:          "secobj",
		Short:        "encrypted object container tool",
		Long:         `secobj builds object containers whose code sections are encrypted per component, and reads them back.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// glog flags were merged into the cobra flag set
			if err := flag.CommandLine.Parse(nil); err != nil {
				return err
			}

			cfg := secobj.DefaultConfig()
			cfg.KeySize = secobj.KeySize(keySize)
			cfg.Verbose = verbose
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			cfg.Mode = m
			if ivEnv != "" {
				cfg.IVSource = secobj.NewEnvIVSource(ivEnv)
			}

			ctx, err := secobj.NewContext(cfg)
			if err != nil {
				return err
			}
			e.ctx = ctx

			if configPath == "" {
				return nil
			}
			p, err := filepath.Abs(configPath)
			if err != nil {
				return err
			}
			return ctx.Components().LoadFile(e.fs, p)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.ctx == nil {
				return nil
			}
			return e.ctx.Shutdown()
		},
	}

	cmd.AddCommand(
		NewComponentsCommand(e),
		NewPackCommand(e),
		NewSectionsCommand(e),
		NewCatCommand(e),
		NewAggregateCommand(e),
		NewCopyCommand(e),
	)

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "component configuration file")
	cmd.PersistentFlags().IntVar(&keySize, "key-size", int(secobj.AES128), "AES key size in bytes (16, 24 or 32)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "trace component and encryption activity")
	cmd.PersistentFlags().StringVar(&mode, "mode", "asm", "operating mode: asm, linker or dump")
	cmd.PersistentFlags().StringVar(&ivEnv, "iv-env", "", "read missing component IVs from environment variables with this prefix")
	cmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	return cmd
}

func parseMode(s string) (secobj.Mode, error) {
	switch s {
	case "asm", "":
		return secobj.ModeAssembler, nil
	case "linker", "ld":
		return secobj.ModeLinker, nil
	case "dump":
		return secobj.ModeDump, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
