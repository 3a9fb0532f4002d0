package secobj

// The name table maps a name to the most recently created section of that
// name. Older sections of the same name hang off Section.nextSame, newest
// first.

func (o *Object) hashInsert(s *Section) {
	s.nextSame = o.names[s.name]
	o.names[s.name] = s
}

func (o *Object) hashRemove(s *Section) {
	head := o.names[s.name]
	if head == s {
		if s.nextSame != nil {
			o.names[s.name] = s.nextSame
		} else {
			delete(o.names, s.name)
		}
		s.nextSame = nil
		return
	}
	for p := head; p != nil; p = p.nextSame {
		if p.nextSame == s {
			p.nextSame = s.nextSame
			s.nextSame = nil
			return
		}
	}
}

// SectionByName returns the most recently created section called name.
func (o *Object) SectionByName(name string) *Section {
	return o.names[name]
}

// SectionByNameIf returns the newest section called name for which fn
// returns true.
func (o *Object) SectionByNameIf(name string, fn func(*Section) bool) *Section {
	for s := o.names[name]; s != nil; s = s.nextSame {
		if fn(s) {
			return s
		}
	}
	return nil
}

// NextSectionByName returns the next older section named like sec, first in
// the object owning sec and then in the objects linked after o.
func (o *Object) NextSectionByName(sec *Section) *Section {
	if sec == nil {
		return nil
	}
	if s := sec.nextSame; s != nil {
		return s
	}
	for next := o.linkNext; next != nil; next = next.linkNext {
		if s := next.SectionByName(sec.name); s != nil {
			return s
		}
	}
	return nil
}

// LinkerSection returns the newest section called name that was created by
// the linker.
func (o *Object) LinkerSection(name string) *Section {
	return o.SectionByNameIf(name, func(s *Section) bool {
		return s.flags&FlagLinkerCreated != 0
	})
}

// RenameSection gives sec a new name and moves it in the name table, where
// it becomes the newest section of that name.
func (o *Object) RenameSection(sec *Section, newName string) error {
	if err := o.checkMember("rename", sec); err != nil {
		return err
	}
	if sec.name == newName {
		return nil
	}
	o.hashRemove(sec)
	sec.name = newName
	if sec.Symbol != nil && sec.Symbol.Flags&SymSectionSym != 0 {
		sec.Symbol.Name = newName
	}
	o.hashInsert(sec)
	return nil
}
