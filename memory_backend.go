package secobj

import (
	"bytes"
	"sync"
)

// MemoryBackend keeps section bytes in memory, one buffer per section. It
// is used for scratch objects and tests; Raw exposes the stored bytes, which
// are ciphertext for encrypted code sections.
type MemoryBackend struct {
	mu    sync.Mutex
	data  map[*Section][]byte
	hooks int

	// FailWrites, when set, makes every SetSectionContents fail with it.
	FailWrites error
	// FailReads, when set, makes every GetSectionContents fail with it.
	FailReads error
	// FailHook, when set, makes NewSectionHook fail with it.
	FailHook error
}

// NewMemoryBackend creates an empty memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[*Section][]byte)}
}

// NewSectionHook attaches the section symbol.
func (m *MemoryBackend) NewSectionHook(o *Object, s *Section) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailHook != nil {
		return m.FailHook
	}
	m.hooks++
	return GenericNewSectionHook(o, s)
}

// Hooks returns how many times NewSectionHook succeeded.
func (m *MemoryBackend) Hooks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hooks
}

func (m *MemoryBackend) buffer(s *Section, need int64) []byte {
	buf := m.data[s]
	if int64(len(buf)) < need {
		grown := make([]byte, max(need, int64(s.Size())))
		copy(grown, buf)
		buf = grown
		m.data[s] = buf
	}
	return buf
}

// GetSectionContents copies stored bytes; bytes never written read as zero.
func (m *MemoryBackend) GetSectionContents(_ *Object, s *Section, dest []byte, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return m.FailReads
	}
	buf := m.buffer(s, offset+int64(len(dest)))
	copy(dest, buf[offset:])
	return nil
}

// SetSectionContents stores a copy of data.
func (m *MemoryBackend) SetSectionContents(_ *Object, s *Section, data []byte, offset int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	buf := m.buffer(s, offset+int64(len(data)))
	copy(buf[offset:], data)
	return nil
}

// Raw returns a copy of the stored bytes of s.
func (m *MemoryBackend) Raw(s *Section) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.data[s])
}

// Close is a no-op; the bytes stay available through Raw.
func (m *MemoryBackend) Close(*Object) error {
	return nil
}
