package secobj

import "fmt"

// List mechanics. These only relink handles: they never change the section
// count or any section index. Keeping the accounting right is the caller's
// job (see SetSectionCount).

// at resolves a handle, nil for NoSection.
func (o *Object) at(h SectionHandle) *Section {
	if h == NoSection || int(h) >= len(o.arena) {
		return nil
	}
	return o.arena[h]
}

func (o *Object) checkMember(op string, s *Section) error {
	if s == nil || s.pseudo || s.owner != o || o.at(s.handle) != s {
		return NewSectionError(op, o, s, fmt.Errorf("not a section of this object: %w", ErrInvalidOperation))
	}
	return nil
}

// First returns the head of the section list.
func (o *Object) First() *Section { return o.at(o.head) }

// Last returns the tail of the section list.
func (o *Object) Last() *Section { return o.at(o.tail) }

// SectionListRemove unlinks s. The links of s itself are left as they were.
func (o *Object) SectionListRemove(s *Section) error {
	if err := o.checkMember("list-remove", s); err != nil {
		return err
	}
	if o.SectionRemovedFromList(s) {
		return NewSectionError("list-remove", o, s, ErrNotInList)
	}
	next, prev := s.next, s.prev
	if prev != NoSection {
		o.arena[prev].next = next
	} else {
		o.head = next
	}
	if next != NoSection {
		o.arena[next].prev = prev
	} else {
		o.tail = prev
	}
	return nil
}

// SectionListAppend links s at the tail.
func (o *Object) SectionListAppend(s *Section) error {
	if err := o.checkMember("list-append", s); err != nil {
		return err
	}
	s.next = NoSection
	if o.tail != NoSection {
		s.prev = o.tail
		o.arena[o.tail].next = s.handle
	} else {
		s.prev = NoSection
		o.head = s.handle
	}
	o.tail = s.handle
	return nil
}

// SectionListPrepend links s at the head.
func (o *Object) SectionListPrepend(s *Section) error {
	if err := o.checkMember("list-prepend", s); err != nil {
		return err
	}
	s.prev = NoSection
	if o.head != NoSection {
		s.next = o.head
		o.arena[o.head].prev = s.handle
	} else {
		s.next = NoSection
		o.tail = s.handle
	}
	o.head = s.handle
	return nil
}

// SectionListInsertAfter links s right after a.
func (o *Object) SectionListInsertAfter(a, s *Section) error {
	if err := o.checkMember("list-insert-after", a); err != nil {
		return err
	}
	if err := o.checkMember("list-insert-after", s); err != nil {
		return err
	}
	next := a.next
	s.next = next
	s.prev = a.handle
	a.next = s.handle
	if next != NoSection {
		o.arena[next].prev = s.handle
	} else {
		o.tail = s.handle
	}
	return nil
}

// SectionListInsertBefore links s right before b.
func (o *Object) SectionListInsertBefore(b, s *Section) error {
	if err := o.checkMember("list-insert-before", b); err != nil {
		return err
	}
	if err := o.checkMember("list-insert-before", s); err != nil {
		return err
	}
	prev := b.prev
	s.prev = prev
	s.next = b.handle
	b.prev = s.handle
	if prev != NoSection {
		o.arena[prev].next = s.handle
	} else {
		o.head = s.handle
	}
	return nil
}

// SectionRemovedFromList reports whether s is no longer reachable from the
// list of o.
func (o *Object) SectionRemovedFromList(s *Section) bool {
	if s == nil || s.owner != o {
		return true
	}
	if s.next == NoSection {
		return o.tail != s.handle
	}
	return o.arena[s.next].prev != s.handle
}
