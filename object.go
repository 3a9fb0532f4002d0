package secobj

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/golang/glog"
	"github.com/google/uuid"
)

// maxUniqueSuffix bounds the numeric suffix tried by UniqueSectionName.
const maxUniqueSuffix = 999999

// Object is an object file being read or written: a list of sections, a
// name table and a backend that stores section bytes.
//
// An Object is not safe for concurrent use. Independent objects of one
// Context may be processed in parallel.
type Object struct {
	ctx     *Context
	id      uuid.UUID
	path    string
	backend Backend
	dir     Direction

	encrypted      bool
	outputHasBegun bool
	closed         bool
	nonce          []byte

	arena []*Section
	head  SectionHandle
	tail  SectionHandle
	count int
	names map[string]*Section

	linkNext *Object
}

func newObject(ctx *Context, path string, backend Backend, dir Direction) *Object {
	return &Object{
		ctx:     ctx,
		id:      uuid.New(),
		path:    path,
		backend: backend,
		dir:     dir,
		head:    NoSection,
		tail:    NoSection,
		names:   make(map[string]*Section),
	}
}

// Path returns the file path, used to match components.
func (o *Object) Path() string {
	if o == nil {
		return ""
	}
	return o.path
}

// ID returns the instance id of the object.
func (o *Object) ID() uuid.UUID { return o.id }

// Context returns the owning context.
func (o *Object) Context() *Context { return o.ctx }

// Backend returns the storage backend.
func (o *Object) Backend() Backend { return o.backend }

// Direction returns whether the object is read, written or both.
func (o *Object) Direction() Direction { return o.dir }

// Encrypted reports whether code sections are ciphered.
func (o *Object) Encrypted() bool { return o.encrypted }

// SetEncrypted marks the object as holding encrypted code sections.
func (o *Object) SetEncrypted(v bool) { o.encrypted = v }

// OutputHasBegun reports whether section bytes were written. Sections can
// no longer be created or resized once it is true.
func (o *Object) OutputHasBegun() bool { return o.outputHasBegun }

// Nonce returns the per-object nonce, nil if none.
func (o *Object) Nonce() []byte { return o.nonce }

// SetNonce records the per-object nonce and hands it to the matching
// component, if any.
func (o *Object) SetNonce(nonce []byte) error {
	if err := ValidateBlock(nonce, "nonce"); err != nil {
		return err
	}
	o.nonce = bytes.Clone(nonce)
	_, err := o.ctx.registry.UpdateNonce(o.path, nonce)
	return err
}

// NextLinked returns the object linked after o.
func (o *Object) NextLinked() *Object { return o.linkNext }

// SectionCount returns the number of sections accounted to o.
func (o *Object) SectionCount() int { return o.count }

// SetSectionCount overrides the section count. List mechanics never touch
// it; callers that unlink sections for good adjust it here.
func (o *Object) SetSectionCount(n int) { o.count = n }

func (o *Object) checkOpen(op string) error {
	if o.closed {
		return NewSectionError(op, o, nil, fmt.Errorf("object closed: %w", ErrInvalidOperation))
	}
	return nil
}

// newSection creates and links a section unconditionally.
func (o *Object) newSection(name string, flags Flags) (*Section, error) {
	if err := o.checkOpen("create"); err != nil {
		return nil, err
	}
	s := &Section{
		name:    name,
		flags:   flags,
		owner:   o,
		handle:  NoSection,
		next:    NoSection,
		prev:    NoSection,
		Filepos: -1,
	}
	if o.backend != nil {
		if err := o.backend.NewSectionHook(o, s); err != nil {
			return nil, NewSectionError("create", o, s, err)
		}
	}

	s.id = o.ctx.NextSectionID()
	s.index = o.count
	s.handle = SectionHandle(len(o.arena))
	o.arena = append(o.arena, s)
	o.count++
	if err := o.SectionListAppend(s); err != nil {
		return nil, err
	}
	o.hashInsert(s)

	if glog.V(2) {
		glog.Infof("%s: new section %s", o.path, s)
	}
	return s, nil
}

// MakeSection returns the section called name, creating it when needed.
// The pseudo-section names return the pseudo-section of the context after giving
// the backend a chance to attach its data.
func (o *Object) MakeSection(name string) (*Section, error) {
	if o.outputHasBegun {
		return nil, NewSectionError("create", o, nil, ErrInvalidOperation)
	}
	if ps := o.ctx.pseudo.byName(name); ps != nil {
		if o.backend != nil {
			if err := o.backend.NewSectionHook(o, ps); err != nil {
				return nil, NewSectionError("create", o, ps, err)
			}
		}
		return ps, nil
	}
	if s := o.names[name]; s != nil {
		return s, nil
	}
	return o.newSection(name, FlagNone)
}

// MakeSectionAnyway creates a section even if one of that name exists.
func (o *Object) MakeSectionAnyway(name string) (*Section, error) {
	return o.MakeSectionAnywayWithFlags(name, FlagNone)
}

// MakeSectionAnywayWithFlags creates a section even if one of that name
// exists. Both stay reachable: the new one through SectionByName, the old
// one through NextSameName.
func (o *Object) MakeSectionAnywayWithFlags(name string, flags Flags) (*Section, error) {
	if o.outputHasBegun {
		return nil, NewSectionError("create", o, nil, ErrInvalidOperation)
	}
	return o.newSection(name, flags)
}

// MakeSectionWithFlags creates a section, failing with ErrSectionExists if
// name is taken or is a pseudo-section name.
func (o *Object) MakeSectionWithFlags(name string, flags Flags) (*Section, error) {
	if o.outputHasBegun {
		return nil, NewSectionError("create", o, nil, ErrInvalidOperation)
	}
	if isPseudoName(name) || o.names[name] != nil {
		return nil, NewSectionError("create", o, nil, fmt.Errorf("%s: %w", name, ErrSectionExists))
	}
	return o.newSection(name, flags)
}

// MakeSectionStrict is MakeSectionWithFlags with no flags.
func (o *Object) MakeSectionStrict(name string) (*Section, error) {
	return o.MakeSectionWithFlags(name, FlagNone)
}

// UniqueSectionName returns template followed by ".N" for the smallest N,
// starting at *count (or 1 when count is nil), that no section uses. *count
// is advanced past the returned suffix.
func (o *Object) UniqueSectionName(template string, count *int) (string, error) {
	num := 1
	if count != nil {
		num = *count
	}
	for ; num <= maxUniqueSuffix; num++ {
		name := template + "." + strconv.Itoa(num)
		if o.names[name] == nil {
			if count != nil {
				*count = num + 1
			}
			return name, nil
		}
	}
	return "", NewSectionError("unique-name", o, nil, fmt.Errorf("%s: %w", template, ErrNameSpaceExhausted))
}

// Sections returns the linked sections in list order.
func (o *Object) Sections() []*Section {
	out := make([]*Section, 0, o.count)
	for s := o.First(); s != nil; s = s.Next() {
		out = append(out, s)
	}
	return out
}

// MapOverSections calls fn for each linked section in list order. It fails
// with ErrCountMismatch when the list and the section count disagree.
func (o *Object) MapOverSections(fn func(*Section)) error {
	n := 0
	for s := o.First(); s != nil; s = s.Next() {
		fn(s)
		n++
	}
	if n != o.count {
		return NewSectionError("map", o, nil, fmt.Errorf("walked %d, count %d: %w", n, o.count, ErrCountMismatch))
	}
	return nil
}

// SectionsFindIf returns the first linked section for which fn is true.
func (o *Object) SectionsFindIf(fn func(*Section) bool) *Section {
	for s := o.First(); s != nil; s = s.Next() {
		if fn(s) {
			return s
		}
	}
	return nil
}

// ClearSections forgets every section.
func (o *Object) ClearSections() {
	o.arena = nil
	o.head = NoSection
	o.tail = NoSection
	o.count = 0
	o.names = make(map[string]*Section)
}

// SetSectionFlags replaces the attribute bits of s.
func (o *Object) SetSectionFlags(s *Section, flags Flags) error {
	if err := o.checkMember("set-flags", s); err != nil {
		return err
	}
	s.flags = flags
	return nil
}

// SetSectionSize declares the size of s. It fails once output has begun.
func (o *Object) SetSectionSize(s *Section, size uint64) error {
	if err := o.checkMember("set-size", s); err != nil {
		return err
	}
	if o.outputHasBegun {
		return NewSectionError("set-size", o, s, ErrInvalidOperation)
	}
	s.size = size
	return nil
}

// SetSectionVMA sets both the virtual and load address of s.
func (o *Object) SetSectionVMA(s *Section, vma uint64) error {
	if err := o.checkMember("set-vma", s); err != nil {
		return err
	}
	s.VMA = vma
	s.LMA = vma
	s.UserSetVMA = true
	return nil
}

// SetSectionAlignment sets the log2 alignment of s.
func (o *Object) SetSectionAlignment(s *Section, power uint) error {
	if err := o.checkMember("set-alignment", s); err != nil {
		return err
	}
	if power >= 63 {
		return NewSectionError("set-alignment", o, s, ErrBadValue)
	}
	s.AlignmentPower = power
	return nil
}

// Close flushes the backend and releases the object. Closing twice is a
// no-op.
func (o *Object) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	o.ctx.forget(o)
	if o.backend == nil {
		return nil
	}
	if err := o.backend.Close(o); err != nil {
		return NewIOError("close", o.path, err)
	}
	return nil
}
