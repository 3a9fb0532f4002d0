package secobj

// Backend stores the bytes of the sections of an object. The contents
// bridge has already checked bounds and flags, and applied the cipher,
// before a backend is called; backends only move bytes.
type Backend interface {
	// NewSectionHook is called before a section is committed to its
	// object. An error aborts the creation.
	NewSectionHook(o *Object, s *Section) error

	// GetSectionContents fills dest with len(dest) bytes at offset.
	GetSectionContents(o *Object, s *Section, dest []byte, offset int64) error

	// SetSectionContents stores data at offset.
	SetSectionContents(o *Object, s *Section, data []byte, offset int64) error

	// Close flushes pending state. It is called once per object.
	Close(o *Object) error
}
