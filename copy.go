package secobj

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
)

// CopyOptions controls CopyObject
type CopyOptions struct {
	// Filter selects the sections to copy; nil copies every section
	Filter func(*Section) bool

	// Verbose enables progress output
	Verbose bool

	// DryRun reports what would be copied without writing anything
	DryRun bool
}

// CopyObject recreates the sections of src in dst and copies their bytes.
// Bytes are read through the contents bridge of src and written through the
// one of dst, so code sections are decrypted with the component of src and
// re-encrypted with the component and nonce of dst. dst must not have begun
// output.
func CopyObject(dst, src *Object, opts CopyOptions) error {
	if !dst.Direction().Writable() {
		return NewSectionError("copy", dst, nil, ErrInvalidOperation)
	}

	type pair struct{ in, out *Section }
	var pairs []pair
	for _, in := range src.Sections() {
		if opts.Filter != nil && !opts.Filter(in) {
			continue
		}
		if opts.DryRun {
			if opts.Verbose {
				glog.Infof("[DRY RUN] Would copy %s:%s (%d bytes, %s)", src.Path(), in.Name(), in.Size(), in.Flags())
			}
			continue
		}
		out, err := dst.MakeSectionAnywayWithFlags(in.Name(), in.Flags()&^FlagInMemory)
		if err != nil {
			return err
		}
		if err := dst.SetSectionSize(out, in.Size()); err != nil {
			return err
		}
		if err := dst.SetSectionAlignment(out, in.AlignmentPower); err != nil {
			return err
		}
		out.VMA, out.LMA = in.VMA, in.LMA
		out.UserSetVMA = in.UserSetVMA
		out.EntSize = in.EntSize
		pairs = append(pairs, pair{in, out})
	}

	// All sections exist before the first write locks the section table.
	var copied uint64
	for _, p := range pairs {
		if p.in.Flags()&FlagHasContents == 0 || p.in.Size() == 0 {
			continue
		}
		data, err := src.SectionContents(p.in)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p.in.Name(), err)
		}
		if err := dst.SetSectionContents(p.out, data, 0); err != nil {
			return fmt.Errorf("failed to write %s: %w", p.out.Name(), err)
		}
		copied += uint64(len(data))
	}

	if opts.Verbose && !opts.DryRun {
		glog.Infof("Copied %d sections (%d bytes) from %s to %s", len(pairs), copied, src.Path(), dst.Path())
	}
	return nil
}

// VerifyObject reads every section with contents through the contents
// bridge. It reports every section that could not be read.
func VerifyObject(o *Object) error {
	var result *multierror.Error
	for _, s := range o.Sections() {
		if s.Flags()&FlagHasContents == 0 {
			continue
		}
		if _, err := o.SectionContents(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return result.ErrorOrNil()
}
