package cmd

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/absfs/secobj"
)

func openObject(e *env, path string) (*secobj.Object, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return e.ctx.OpenObjectFile(e.fs, p)
}

// NewSectionsCommand returns the sections command
func NewSectionsCommand(e *env) (cmd *cobra.Command) {
	cmd = &cobra.Command{
		Use:   "sections OBJECT",
		Short: "list the sections of an object container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := openObject(e, args[0])
			if err != nil {
				return err
			}
			defer obj.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Idx\tName\tSize\tVMA\tFile off\tAlgn\tFlags\n")
			err = obj.MapOverSections(func(s *secobj.Section) {
				fmt.Fprintf(w, "%d\t%s\t%08x\t%016x\t%08x\t2**%d\t%s\n",
					s.Index(), s.Name(), s.Size(), s.VMA, s.Filepos, s.AlignmentPower, s.Flags())
			})
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}

	return cmd
}

// NewCatCommand returns the cat command
func NewCatCommand(e *env) (cmd *cobra.Command) {
	var offset, count int64

	cmd = &cobra.Command{
		Use:   "cat OBJECT SECTION",
		Short: "dump section bytes, decrypted when the object is a component",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			obj, err := openObject(e, args[0])
			if err != nil {
				return err
			}
			defer obj.Close()

			sec := obj.SectionByName(args[1])
			if sec == nil {
				return fmt.Errorf("%s: no section %s", args[0], args[1])
			}
			if count < 0 {
				count = int64(sec.Size()) - offset
			}
			if count < 0 {
				return fmt.Errorf("offset %d beyond section size %d", offset, sec.Size())
			}
			buf := make([]byte, count)
			if err := obj.GetSectionContents(sec, buf, offset); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), hex.Dump(buf))
			return nil
		},
	}

	cmd.Flags().Int64Var(&offset, "offset", 0, "first byte to dump")
	cmd.Flags().Int64Var(&count, "count", -1, "number of bytes to dump, -1 for the rest of the section")

	return cmd
}
