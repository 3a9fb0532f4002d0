package secobj

import (
	"fmt"
)

// Input validation helpers

// ValidateKey checks if a key has the correct size
func ValidateKey(key []byte, expectedSize KeySize) error {
	if key == nil {
		return &ValidationError{
			Field:   "key",
			Message: "key cannot be nil",
			Err:     ErrInvalidKey,
		}
	}

	if len(key) != int(expectedSize) {
		return &ValidationError{
			Field:   "key",
			Value:   len(key),
			Message: fmt.Sprintf("invalid key size: got %d bytes, expected %d bytes", len(key), expectedSize),
			Err:     ErrInvalidKey,
		}
	}

	return nil
}

// ValidateBlock checks that an IV or nonce is exactly one AES block
func ValidateBlock(b []byte, name string) error {
	if len(b) != BlockSize {
		return &ValidationError{
			Field:   name,
			Value:   len(b),
			Message: fmt.Sprintf("invalid %s size: got %d bytes, expected %d bytes", name, len(b), BlockSize),
		}
	}
	return nil
}

// ValidateRange checks that [offset, offset+count) lies inside a section of
// the given size. It mirrors the bounds test of the contents bridge and
// reports ErrBadValue.
func ValidateRange(offset int64, count int, size uint64) error {
	if offset < 0 || count < 0 {
		return ErrBadValue
	}
	off := uint64(offset)
	cnt := uint64(count)
	if off > size || cnt > size || off+cnt > size {
		return ErrBadValue
	}
	return nil
}

// ValidateFilePath checks if a file path is valid (not empty)
func ValidateFilePath(path string) error {
	if path == "" {
		return &ValidationError{
			Field:   "path",
			Message: "file path cannot be empty",
		}
	}
	return nil
}
