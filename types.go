package secobj

import (
	"errors"
)

// KeySize is the AES key length in bytes. It selects AES-128, AES-192 or
// AES-256 for every component loaded by a registry.
type KeySize int

const (
	// AES128 uses 16-byte keys and 10 rounds
	AES128 KeySize = 16
	// AES192 uses 24-byte keys and 12 rounds
	AES192 KeySize = 24
	// AES256 uses 32-byte keys and 14 rounds
	AES256 KeySize = 32
)

// String returns the string representation of the key size
func (k KeySize) String() string {
	switch k {
	case AES128:
		return "aes-128-ctr"
	case AES192:
		return "aes-192-ctr"
	case AES256:
		return "aes-256-ctr"
	default:
		return "unknown"
	}
}

// Valid reports whether k is one of the supported AES key sizes
func (k KeySize) Valid() bool {
	return k == AES128 || k == AES192 || k == AES256
}

// Mode is the operating mode of the tool driving the registry. It only
// affects diagnostics.
type Mode uint8

const (
	// ModeAssembler produces encrypted objects
	ModeAssembler Mode = iota
	// ModeLinker consumes encrypted objects and produces an aggregated output
	ModeLinker
	// ModeDump reads encrypted objects for inspection
	ModeDump
)

// String returns the string representation of the mode
func (m Mode) String() string {
	switch m {
	case ModeAssembler:
		return "ASM"
	case ModeLinker:
		return "LINKER"
	case ModeDump:
		return "DUMP"
	default:
		return "Unknown"
	}
}

// Direction tells whether an object is being read, written, or both.
type Direction uint8

const (
	NoDirection Direction = iota
	ReadDirection
	WriteDirection
	BothDirection
)

// String returns the string representation of the direction
func (d Direction) String() string {
	switch d {
	case ReadDirection:
		return "read"
	case WriteDirection:
		return "write"
	case BothDirection:
		return "both"
	default:
		return "none"
	}
}

// Writable reports whether section contents may be set.
func (d Direction) Writable() bool {
	return d == WriteDirection || d == BothDirection
}

// Config contains configuration for a Context
type Config struct {
	// KeySize selects the AES variant; every component key must have this length
	KeySize KeySize

	// Verbose enables diagnostic tracing (a configuration can also turn it on)
	Verbose bool

	// Mode of the tool driving this context
	Mode Mode

	// IVSource acquires initialization vectors for components that have none
	IVSource IVSource

	// EngineCacheSize bounds the number of expanded key schedules kept alive
	EngineCacheSize int

	// Parallel controls multi-goroutine keystream generation for large ranges
	Parallel ParallelConfig
}

// DefaultConfig returns the default configuration: AES-128, no IV source,
// a 64 entry engine cache and the default parallel settings.
func DefaultConfig() *Config {
	return &Config{
		KeySize:         AES128,
		Mode:            ModeAssembler,
		EngineCacheSize: 64,
		Parallel:        DefaultParallelConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if !c.KeySize.Valid() {
		return NewValidationError("key_size", int(c.KeySize), "must be 16, 24 or 32 bytes")
	}
	if c.EngineCacheSize < 0 {
		return NewValidationError("engine_cache_size", c.EngineCacheSize, "cannot be negative")
	}
	if c.Mode > ModeDump {
		return errors.New("unsupported mode")
	}
	return c.Parallel.Validate()
}
