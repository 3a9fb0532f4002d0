package secobj

import "fmt"

// SectionHandle addresses a section inside the arena of its owning object.
// Handles are stable for the life of the object; they are never reused
// until ClearSections.
type SectionHandle int32

// NoSection is the nil handle.
const NoSection SectionHandle = -1

// Reloc is a relocation carried for the backend. It is not interpreted.
type Reloc struct {
	Offset uint64
	Addend int64
	Symbol string
	Type   uint32
}

// RelaxEntry records one relaxation step. It is not interpreted.
type RelaxEntry struct {
	Addr uint64
	Size int
}

// SymbolFlags are the attribute bits of a Symbol.
type SymbolFlags uint32

const (
	// SymGlobal marks a symbol visible outside its object
	SymGlobal SymbolFlags = 1 << iota
	// SymSectionSym marks the symbol naming a section
	SymSectionSym
)

// Symbol is the section symbol attached by GenericNewSectionHook.
type Symbol struct {
	Name    string
	Section *Section
	Value   uint64
	Flags   SymbolFlags
}

// Section is a named, flagged byte range of an object file.
//
// Identity, size and list linkage are managed by the owning Object and are
// read through accessors. The remaining fields belong to callers and
// backends.
type Section struct {
	name   string
	id     int
	index  int
	flags  Flags
	size   uint64
	owner  *Object
	handle SectionHandle
	next   SectionHandle
	prev   SectionHandle
	// older section of the same name
	nextSame *Section
	pseudo   bool

	// RawSize is the size before relaxation, 0 when unchanged.
	RawSize uint64
	VMA     uint64
	LMA     uint64
	// UserSetVMA records that VMA was set explicitly.
	UserSetVMA     bool
	AlignmentPower uint

	// OutputSection is the section this one is placed in when composing an
	// output file. Pseudo-sections point to themselves.
	OutputSection *Section
	OutputOffset  uint64

	// Contents is the in-memory cache used when FlagInMemory is set.
	Contents []byte

	Relocs  []Reloc
	Relax   []RelaxEntry
	Map     SectionMap
	Filepos int64
	Symbol  *Symbol
	EntSize uint
	// UserData is free for backends and callers.
	UserData any
}

// Name returns the section name.
func (s *Section) Name() string { return s.name }

// ID returns the unique id; 0..3 are the pseudo-sections.
func (s *Section) ID() int { return s.id }

// Index returns the position of the section among the sections of its
// owner at creation time. It is not renumbered when sections are unlinked.
func (s *Section) Index() int { return s.index }

// Flags returns the attribute bits.
func (s *Section) Flags() Flags { return s.flags }

// Size returns the declared size in bytes.
func (s *Section) Size() uint64 { return s.size }

// Owner returns the owning object, nil for pseudo-sections.
func (s *Section) Owner() *Object { return s.owner }

// Handle returns the arena handle, NoSection for pseudo-sections.
func (s *Section) Handle() SectionHandle { return s.handle }

// IsPseudo reports whether s is one of *COM*, *UND*, *ABS*, *IND*.
func (s *Section) IsPseudo() bool { return s.pseudo }

// Next returns the following section in the owner's list.
func (s *Section) Next() *Section {
	if s.owner == nil {
		return nil
	}
	return s.owner.at(s.next)
}

// Prev returns the preceding section in the owner's list.
func (s *Section) Prev() *Section {
	if s.owner == nil {
		return nil
	}
	return s.owner.at(s.prev)
}

// NextSameName returns the next older section of the same name in the same
// object.
func (s *Section) NextSameName() *Section {
	return s.nextSame
}

// effectiveSize is the size reads are checked against: RawSize while an
// object is read and the section was relaxed, Size otherwise.
func (s *Section) effectiveSize(dir Direction) uint64 {
	if dir != WriteDirection && s.RawSize != 0 {
		return s.RawSize
	}
	return s.size
}

func (s *Section) String() string {
	return fmt.Sprintf("%s(id=%d idx=%d size=%#x flags=%s)", s.name, s.id, s.index, s.size, s.flags)
}

// Pseudo-section names.
const (
	ComSectionName = "*COM*"
	UndSectionName = "*UND*"
	AbsSectionName = "*ABS*"
	IndSectionName = "*IND*"
)

// pseudoSectionCount is the number of ids reserved for pseudo-sections.
const pseudoSectionCount = 4

// pseudoLayout describes the pseudo-sections in id order.
var pseudoLayout = [pseudoSectionCount]struct {
	name  string
	flags Flags
}{
	{ComSectionName, FlagIsCommon},
	{UndSectionName, FlagNone},
	{AbsSectionName, FlagNone},
	{IndSectionName, FlagNone},
}

// pseudoSections is the set of pseudo-sections owned by one Context and
// shared by its objects. Object setters and list operations reject them.
type pseudoSections [pseudoSectionCount]*Section

func newPseudoSections() pseudoSections {
	var ps pseudoSections
	for id, p := range pseudoLayout {
		s := &Section{
			name:    p.name,
			id:      id,
			index:   id,
			flags:   p.flags,
			handle:  NoSection,
			next:    NoSection,
			prev:    NoSection,
			pseudo:  true,
			Filepos: -1,
		}
		s.OutputSection = s
		s.Symbol = &Symbol{Name: p.name, Section: s, Flags: SymGlobal | SymSectionSym}
		ps[id] = s
	}
	return ps
}

// byName returns the pseudo-section called name, if any.
func (ps *pseudoSections) byName(name string) *Section {
	for _, s := range ps {
		if s.name == name {
			return s
		}
	}
	return nil
}

// isPseudoName reports whether name is reserved for a pseudo-section.
func isPseudoName(name string) bool {
	for _, p := range pseudoLayout {
		if p.name == name {
			return true
		}
	}
	return false
}

// GenericNewSectionHook attaches a section symbol to a freshly created
// section. Backends call it from their NewSectionHook.
func GenericNewSectionHook(_ *Object, s *Section) error {
	if s.pseudo {
		return nil
	}
	s.Symbol = &Symbol{Name: s.name, Section: s, Flags: SymSectionSym}
	return nil
}
