package secobj

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/absfs/absfs"
	bufra "github.com/avvmoto/buf-readerat"
	"github.com/golang/glog"
	"github.com/hashicorp/go-multierror"
)

// readBufferSize is the block size of the buffered reader used for objects
// opened for reading.
const readBufferSize = 64 * 1024

// FileBackend stores an object as a container file (see ObjectHeader) on an
// absfs.FileSystem. Section data is laid out on the first write, in list
// order; the header is rewritten on Close.
type FileBackend struct {
	fs     absfs.FileSystem
	path   string
	file   absfs.File
	reader io.ReaderAt
	header *ObjectHeader
	write  bool

	laidOut  bool
	dataSize int64
}

// createFileBackend creates (or truncates) path for writing.
func createFileBackend(fsys absfs.FileSystem, path string) (*FileBackend, error) {
	f, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, NewIOError("create", path, err)
	}
	return &FileBackend{
		fs:     fsys,
		path:   path,
		file:   f,
		reader: f,
		write:  true,
	}, nil
}

// openFileBackend opens path and reads its header.
func openFileBackend(fsys absfs.FileSystem, path string) (*FileBackend, error) {
	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, NewIOError("open", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, NewIOError("stat", path, err)
	}

	fb := &FileBackend{
		fs:     fsys,
		path:   path,
		file:   f,
		reader: bufra.NewBufReaderAt(f, readBufferSize),
		header: &ObjectHeader{},
	}
	if _, err := fb.header.ReadFrom(io.NewSectionReader(fb.reader, 0, info.Size())); err != nil {
		f.Close()
		if errors.Is(err, ErrInvalidHeader) || errors.Is(err, ErrUnsupportedVersion) {
			return nil, &CorruptionError{Path: path, Message: err.Error(), Err: err}
		}
		return nil, &CorruptionError{Path: path, Message: "truncated header", Err: err}
	}
	if err := fb.header.Validate(info.Size()); err != nil {
		f.Close()
		return nil, &CorruptionError{Path: path, Message: err.Error(), Err: err}
	}
	fb.laidOut = true
	fb.dataSize = info.Size()
	return fb, nil
}

// Header returns the container header, nil before layout of a new object.
func (fb *FileBackend) Header() *ObjectHeader {
	return fb.header
}

// NewSectionHook refuses new sections once data has been laid out.
func (fb *FileBackend) NewSectionHook(o *Object, s *Section) error {
	if fb.write && fb.laidOut && !s.IsPseudo() {
		return fmt.Errorf("section table already laid out: %w", ErrInvalidOperation)
	}
	return GenericNewSectionHook(o, s)
}

// buildHeader snapshots the section list of o into a header.
func (fb *FileBackend) buildHeader(o *Object) *ObjectHeader {
	h := NewObjectHeader(o.Encrypted(), o.Nonce())
	for _, s := range o.Sections() {
		h.Sections = append(h.Sections, SectionEntry{
			Name:           s.Name(),
			Flags:          uint32(s.Flags()),
			Size:           s.Size(),
			VMA:            s.VMA,
			LMA:            s.LMA,
			AlignmentPower: uint8(min(s.AlignmentPower, maxAlignmentPower)),
		})
	}
	return h
}

// layout assigns file positions and writes a first header.
func (fb *FileBackend) layout(o *Object) error {
	sections := o.Sections()
	h := fb.buildHeader(o)
	end := h.Layout(func(i int) bool {
		return sections[i].Flags()&FlagHasContents != 0
	})
	for i, s := range sections {
		s.Filepos = int64(h.Sections[i].Filepos)
	}
	if err := fb.file.Truncate(end); err != nil {
		return NewIOError("truncate", fb.path, err)
	}
	if _, err := h.WriteTo(io.NewOffsetWriter(fb.file, 0)); err != nil {
		return NewIOError("write", fb.path, err)
	}
	fb.header = h
	fb.dataSize = end
	fb.laidOut = true
	if glog.V(2) {
		glog.Infof("%s: laid out %d sections, %d bytes", fb.path, len(sections), end)
	}
	return nil
}

// GetSectionContents reads stored bytes. Sections never laid out read as
// zeros.
func (fb *FileBackend) GetSectionContents(_ *Object, s *Section, dest []byte, offset int64) error {
	if !fb.laidOut || s.Filepos <= 0 {
		clear(dest)
		return nil
	}
	n, err := fb.reader.ReadAt(dest, s.Filepos+offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(dest)) {
		return &IOError{Operation: "read", Path: fb.path, Offset: s.Filepos + offset, Message: err.Error(), Err: err}
	}
	return nil
}

// SetSectionContents writes bytes at the section file position, laying out
// the file first if needed.
func (fb *FileBackend) SetSectionContents(o *Object, s *Section, data []byte, offset int64) error {
	if !fb.write {
		return ErrInvalidOperation
	}
	if !fb.laidOut {
		if err := fb.layout(o); err != nil {
			return err
		}
	}
	if s.Filepos <= 0 {
		return fmt.Errorf("section %s has no file position: %w", s.Name(), ErrInvalidOperation)
	}
	if _, err := fb.file.WriteAt(data, s.Filepos+offset); err != nil {
		return &IOError{Operation: "write", Path: fb.path, Offset: s.Filepos + offset, Message: err.Error(), Err: err}
	}
	return nil
}

// Close rewrites the header of written objects and closes the file.
func (fb *FileBackend) Close(o *Object) error {
	var result *multierror.Error
	if fb.write {
		if err := fb.finish(o); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := fb.file.Close(); err != nil {
		result = multierror.Append(result, NewIOError("close", fb.path, err))
	}
	return result.ErrorOrNil()
}

func (fb *FileBackend) finish(o *Object) error {
	if !fb.laidOut {
		return fb.layout(o)
	}
	h := fb.buildHeader(o)
	for i, s := range o.Sections() {
		if s.Filepos > 0 {
			h.Sections[i].Filepos = uint64(s.Filepos)
		}
	}
	if h.Size() != fb.header.Size() {
		return NewCorruptionError(fb.path, fmt.Sprintf("section table changed size after layout (%d -> %d bytes)", fb.header.Size(), h.Size()))
	}
	if _, err := h.WriteTo(io.NewOffsetWriter(fb.file, 0)); err != nil {
		return NewIOError("write", fb.path, err)
	}
	fb.header = h
	return fb.file.Sync()
}
