package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/absfs/secobj"
)

// sectionInput is one --section argument: NAME=FILE[:code]
type sectionInput struct {
	name string
	file string
	code bool
}

func parseSectionInput(s string) (sectionInput, error) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" || rest == "" {
		return sectionInput{}, fmt.Errorf("bad section %q, want NAME=FILE[:code]", s)
	}
	in := sectionInput{name: name, file: rest}
	if f, ok := strings.CutSuffix(rest, ":code"); ok {
		in.file = f
		in.code = true
	}
	return in, nil
}

// NewPackCommand returns the pack command
func NewPackCommand(e *env) (cmd *cobra.Command) {
	var (
		out      string
		sections []string
		align    uint
	)

	cmd = &cobra.Command{
		Use:   "pack",
		Short: "build an object container from raw section files",
		RunE: func(cmd *cobra.Command, args []string) error {
			outPath, err := filepath.Abs(out)
			if err != nil {
				return err
			}

			inputs := make([]sectionInput, 0, len(sections))
			for _, s := range sections {
				in, err := parseSectionInput(s)
				if err != nil {
					return err
				}
				inputs = append(inputs, in)
			}

			obj, err := e.ctx.CreateObjectFile(e.fs, outPath)
			if err != nil {
				return err
			}
			defer obj.Close()

			// Declare every section before writing any byte.
			data := make([][]byte, len(inputs))
			secs := make([]*secobj.Section, len(inputs))
			for i, in := range inputs {
				if data[i], err = os.ReadFile(in.file); err != nil {
					return err
				}
				flags := secobj.FlagAlloc | secobj.FlagLoad | secobj.FlagHasContents
				if in.code {
					flags |= secobj.FlagCode | secobj.FlagReadOnly
				} else {
					flags |= secobj.FlagData
				}
				if secs[i], err = obj.MakeSectionWithFlags(in.name, flags); err != nil {
					return err
				}
				if err := obj.SetSectionSize(secs[i], uint64(len(data[i]))); err != nil {
					return err
				}
				if err := obj.SetSectionAlignment(secs[i], align); err != nil {
					return err
				}
			}
			for i := range inputs {
				if err := obj.SetSectionContents(secs[i], data[i], 0); err != nil {
					return err
				}
			}
			if err := obj.Close(); err != nil {
				return err
			}

			glog.Infof("packed %d sections into %s (encrypted: %t)", len(inputs), outPath, obj.Encrypted())
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d sections, nonce %x\n", outPath, len(inputs), obj.Nonce())
			return nil
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "object container to create")
	cmd.Flags().StringArrayVar(&sections, "section", nil, "section to add as NAME=FILE[:code], repeatable")
	cmd.Flags().UintVar(&align, "align", 4, "log2 alignment of every section")
	if err := cmd.MarkFlagRequired("out"); err != nil {
		panic(err)
	}

	return cmd
}
