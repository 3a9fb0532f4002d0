package secobj

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Object container layout, little-endian:
//
//	┌─────────────────────────────────────┐
//	│ Header                              │
//	│ - Magic "SOBJ" (uint32)             │
//	│ - Version (uint8)                   │
//	│ - Flags (uint8, bit0 = encrypted)   │
//	│ - Nonce (16 bytes)                  │
//	│ - Section count (uint32)            │
//	├─────────────────────────────────────┤
//	│ Section table, per section:         │
//	│ - Name length (uint16) + name       │
//	│ - Flags (uint32)                    │
//	│ - Size, VMA, LMA (uint64)           │
//	│ - Alignment power (uint8)           │
//	│ - File position (uint64)            │
//	├─────────────────────────────────────┤
//	│ Section data, each aligned to       │
//	│ 2^alignment power                   │
//	└─────────────────────────────────────┘

const (
	// MagicBytes identifies object containers (ASCII: "SOBJ")
	MagicBytes = uint32(0x534F424A)

	// CurrentVersion is the current container format version
	CurrentVersion = uint8(1)

	// MinHeaderSize is the size of the header without the section table
	// 4 (magic) + 1 (version) + 1 (flags) + 16 (nonce) + 4 (count) = 26 bytes
	MinHeaderSize = 26

	// HeaderFlagEncrypted marks an object whose code sections are encrypted
	HeaderFlagEncrypted = uint8(1)

	// maxAlignmentPower bounds alignment stored in a container (1 GiB)
	maxAlignmentPower = 30
)

// SectionEntry describes one section in the container section table
type SectionEntry struct {
	Name           string
	Flags          uint32
	Size           uint64
	VMA            uint64
	LMA            uint64
	AlignmentPower uint8
	Filepos        uint64
}

// size returns the encoded size of the entry
func (e *SectionEntry) size() int64 {
	return int64(2 + len(e.Name) + 4 + 3*8 + 1 + 8)
}

// ObjectHeader is the header and section table of an object container
type ObjectHeader struct {
	Magic    uint32
	Version  uint8
	Flags    uint8
	Nonce    [BlockSize]byte
	Sections []SectionEntry
}

// NewObjectHeader creates a header for an object with the given nonce
func NewObjectHeader(encrypted bool, nonce []byte) *ObjectHeader {
	h := &ObjectHeader{
		Magic:   MagicBytes,
		Version: CurrentVersion,
	}
	if encrypted {
		h.Flags |= HeaderFlagEncrypted
	}
	copy(h.Nonce[:], nonce)
	return h
}

// Encrypted reports whether the encrypted flag is set
func (h *ObjectHeader) Encrypted() bool {
	return h.Flags&HeaderFlagEncrypted != 0
}

// Size returns the total size of the header and section table in bytes
func (h *ObjectHeader) Size() int64 {
	n := int64(MinHeaderSize)
	for i := range h.Sections {
		n += h.Sections[i].size()
	}
	return n
}

// Layout assigns file positions to entries with contents, in table order,
// right after the header. It returns the total file size.
func (h *ObjectHeader) Layout(hasContents func(i int) bool) int64 {
	pos := h.Size()
	for i := range h.Sections {
		e := &h.Sections[i]
		if !hasContents(i) {
			e.Filepos = 0
			continue
		}
		align := int64(1) << e.AlignmentPower
		if rem := pos % align; rem != 0 {
			pos += align - rem
		}
		e.Filepos = uint64(pos)
		pos += int64(e.Size)
	}
	return pos
}

// WriteTo writes the header to the given writer
func (h *ObjectHeader) WriteTo(w io.Writer) (int64, error) {
	buf := new(bytes.Buffer)

	// Write fixed-size fields
	if err := binary.Write(buf, binary.LittleEndian, h.Magic); err != nil {
		return 0, fmt.Errorf("failed to write magic bytes: %w", err)
	}
	buf.WriteByte(h.Version)
	buf.WriteByte(h.Flags)
	buf.Write(h.Nonce[:])
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(h.Sections))); err != nil {
		return 0, fmt.Errorf("failed to write section count: %w", err)
	}

	// Write section table
	for i := range h.Sections {
		e := &h.Sections[i]
		if len(e.Name) > math.MaxUint16 {
			return 0, fmt.Errorf("section name too long: %d bytes", len(e.Name))
		}
		if err := binary.Write(buf, binary.LittleEndian, uint16(len(e.Name))); err != nil {
			return 0, fmt.Errorf("failed to write name length: %w", err)
		}
		buf.WriteString(e.Name)
		fixed := []any{e.Flags, e.Size, e.VMA, e.LMA, e.AlignmentPower, e.Filepos}
		for _, v := range fixed {
			if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
				return 0, fmt.Errorf("failed to write section %s: %w", e.Name, err)
			}
		}
	}

	// Write to actual writer
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadFrom reads the header from the given reader
func (h *ObjectHeader) ReadFrom(r io.Reader) (int64, error) {
	var totalRead int64

	var fixed [MinHeaderSize]byte
	n, err := io.ReadFull(r, fixed[:])
	totalRead += int64(n)
	if err != nil {
		return totalRead, fmt.Errorf("failed to read header: %w", err)
	}

	h.Magic = binary.LittleEndian.Uint32(fixed[0:4])
	if h.Magic != MagicBytes {
		return totalRead, ErrInvalidHeader
	}
	h.Version = fixed[4]
	if h.Version > CurrentVersion {
		return totalRead, ErrUnsupportedVersion
	}
	h.Flags = fixed[5]
	copy(h.Nonce[:], fixed[6:22])
	count := binary.LittleEndian.Uint32(fixed[22:26])

	h.Sections = make([]SectionEntry, 0, min(count, 1024))
	for i := uint32(0); i < count; i++ {
		var e SectionEntry
		var nameLen uint16
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return totalRead, fmt.Errorf("failed to read section %d: %w", i, err)
		}
		totalRead += 2

		name := make([]byte, nameLen)
		n, err := io.ReadFull(r, name)
		totalRead += int64(n)
		if err != nil {
			return totalRead, fmt.Errorf("failed to read section %d name: %w", i, err)
		}
		e.Name = string(name)

		var rest [4 + 3*8 + 1 + 8]byte
		n, err = io.ReadFull(r, rest[:])
		totalRead += int64(n)
		if err != nil {
			return totalRead, fmt.Errorf("failed to read section %s: %w", e.Name, err)
		}
		e.Flags = binary.LittleEndian.Uint32(rest[0:4])
		e.Size = binary.LittleEndian.Uint64(rest[4:12])
		e.VMA = binary.LittleEndian.Uint64(rest[12:20])
		e.LMA = binary.LittleEndian.Uint64(rest[20:28])
		e.AlignmentPower = rest[28]
		e.Filepos = binary.LittleEndian.Uint64(rest[29:37])
		h.Sections = append(h.Sections, e)
	}

	return totalRead, nil
}

// Validate checks if the header is consistent with a file of fileSize bytes
func (h *ObjectHeader) Validate(fileSize int64) error {
	if h.Magic != MagicBytes {
		return ErrInvalidHeader
	}
	if h.Version > CurrentVersion {
		return ErrUnsupportedVersion
	}
	for i := range h.Sections {
		e := &h.Sections[i]
		if e.AlignmentPower > maxAlignmentPower {
			return fmt.Errorf("section %s: alignment 2^%d too large", e.Name, e.AlignmentPower)
		}
		if e.Filepos == 0 {
			continue
		}
		end := e.Filepos + e.Size
		if end < e.Filepos || end > uint64(fileSize) {
			return fmt.Errorf("section %s: data [%d, %d) outside file of %d bytes", e.Name, e.Filepos, end, fileSize)
		}
	}
	return nil
}
