package secobj

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SectionError represents an operational failure of a section registry or
// contents operation. Err is one of the operational sentinels
// (ErrInvalidOperation, ErrBadValue, ErrNoContents, ErrNoMemory, ...).
type SectionError struct {
	Operation string // "create", "set-contents", "get-contents", "set-size", ...
	Object    string // Owning object path
	Section   string // Section name, if applicable
	Err       error  // Underlying error
}

func (e *SectionError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("section error: %s %s(%s): %v", e.Operation, e.Object, e.Section, e.Err)
	}
	return fmt.Sprintf("section error: %s %s: %v", e.Operation, e.Object, e.Err)
}

func (e *SectionError) Unwrap() error {
	return e.Err
}

// EncryptionError represents an encryption or decryption failure
type EncryptionError struct {
	Operation string // "encrypt" or "decrypt"
	Component string // Component name, if applicable
	Section   string // Section name, if applicable
	Offset    int64  // Byte offset inside the section, -1 if not applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *EncryptionError) Error() string {
	if e.Component != "" && e.Section != "" {
		return fmt.Sprintf("%s error: %s (section %s at %d): %s", e.Operation, e.Component, e.Section, e.Offset, e.Message)
	} else if e.Component != "" {
		return fmt.Sprintf("%s error: %s: %s", e.Operation, e.Component, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Operation, e.Message)
}

func (e *EncryptionError) Unwrap() error {
	return e.Err
}

// IOError represents a backend I/O error
type IOError struct {
	Operation string // "read", "write", "open", "close", etc.
	Path      string // File path
	Offset    int64  // File offset, if applicable
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" && e.Offset >= 0 {
		return fmt.Sprintf("io error: %s %s at offset %d: %s", e.Operation, e.Path, e.Offset, e.Message)
	} else if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CorruptionError represents a malformed object container
type CorruptionError struct {
	Path    string // File path
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// ParseErrorCode identifies a structural error in a component configuration.
type ParseErrorCode int

const (
	ParseUnexpectedEOF ParseErrorCode = iota + 1
	ParseExpectComponent
	ParseExpectSet
	ParseExpectString
	ParseExpectVendor
	ParseExpectServer
	ParseExpectKey
	ParseExpectName
	ParseBadKeyLength
	ParseKeyNotHex
	ParseExpectUser
	ParseExpectSection
	ParseExpectComponentOrIV
	ParseDuplicateComponent
	ParseUnterminated
	ParseTokenTooLong
)

func (c ParseErrorCode) String() string {
	switch c {
	case ParseUnexpectedEOF:
		return "Unexpected EOF"
	case ParseExpectComponent:
		return "Expecting Component keyword here"
	case ParseExpectSet:
		return "Expecting : or = here"
	case ParseExpectString:
		return "Expecting string here"
	case ParseExpectVendor:
		return "Expecting Vendor keyword here"
	case ParseExpectServer:
		return "Expecting Server keyword here"
	case ParseExpectKey:
		return "Expecting AES key here in hex format"
	case ParseExpectName:
		return "Expecting name here (sequence of letter and digit)"
	case ParseBadKeyLength:
		return "Wrong AES key length"
	case ParseKeyNotHex:
		return "Wrong AES key, not an hexadecimal number"
	case ParseExpectUser:
		return "Expecting User keyword here"
	case ParseExpectSection:
		return "Expecting one of {component, vendor, server, user, key, iv} here"
	case ParseExpectComponentOrIV:
		return "Expecting Component keyword or Iv keyword here"
	case ParseDuplicateComponent:
		return "Already defined component"
	case ParseUnterminated:
		return "Unterminated comment or string"
	case ParseTokenTooLong:
		return "Token too long"
	default:
		return "Unknown error"
	}
}

// ParseError is a structural error found while loading a component
// configuration. Line is the line of the offending token.
type ParseError struct {
	Name  string // Configuration name (usually the file path)
	Line  int
	Code  ParseErrorCode
	Token string // Offending token text, if any
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("at line %d: %s", e.Line, e.Code)
	if e.Token != "" {
		msg += fmt.Sprintf(" (got %q)", e.Token)
	}
	if e.Name != "" {
		return fmt.Sprintf("parse error: %s: %s", e.Name, msg)
	}
	return "parse error: " + msg
}

// Operational sentinels
var (
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrBadValue           = errors.New("bad value")
	ErrNoContents         = errors.New("section has no contents")
	ErrNoMemory           = errors.New("memory exhausted")
	ErrSectionExists      = errors.New("section already exists")
	ErrNameSpaceExhausted = errors.New("no unique section name available")
	ErrNotInList          = errors.New("section is not linked in this object")
	ErrCountMismatch      = errors.New("section list does not match section count")
)

// Component and cipher sentinels
var (
	ErrInvalidKey       = errors.New("invalid encryption key")
	ErrMissingIV        = errors.New("component has no initialization vector")
	ErrMissingNonce     = errors.New("component has no nonce")
	ErrUnknownComponent = errors.New("no such component")
	ErrIncompleteInputs = errors.New("an input component has no initialization vector")
	ErrUntrackedOutput  = errors.New("encrypted inputs linked into an output that is not a registered component")
	ErrNilConfig        = errors.New("config cannot be nil")
	ErrNilBackend       = errors.New("backend cannot be nil")
)

// Container format sentinels
var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object format version")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewSectionError creates a new section error
func NewSectionError(operation string, obj *Object, sec *Section, err error) error {
	e := &SectionError{
		Operation: operation,
		Err:       err,
	}
	if obj != nil {
		e.Object = obj.Path()
	}
	if sec != nil {
		e.Section = sec.Name()
	}
	return e
}

// NewEncryptionError creates a new encryption error
func NewEncryptionError(operation, component string, err error) error {
	return &EncryptionError{
		Operation: operation,
		Component: component,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Offset:    -1,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewCorruptionError creates a new corruption error
func NewCorruptionError(path string, message string) error {
	return &CorruptionError{
		Path:    path,
		Message: message,
	}
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsSectionError checks if an error is a section error
func IsSectionError(err error) bool {
	var se *SectionError
	return errors.As(err, &se)
}

// IsEncryptionError checks if an error is an encryption error
func IsEncryptionError(err error) bool {
	var ee *EncryptionError
	return errors.As(err, &ee)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsParseError checks if an error is a configuration parse error
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ParseErrorCodeOf returns the code of a wrapped ParseError, or 0.
func ParseErrorCodeOf(err error) ParseErrorCode {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return 0
}
