package secobj

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

// IVSource acquires the initialization vector of a component that has none.
// It is consulted by the contents bridge right before a component is used to
// cipher a section. The component passed in is a copy. It is called without
// the registry lock held and may query the registry.
type IVSource interface {
	AcquireIV(c *Component) ([]byte, error)
}

// IVSourceFunc adapts a plain function to IVSource.
type IVSourceFunc func(c *Component) ([]byte, error)

// AcquireIV calls f(c).
func (f IVSourceFunc) AcquireIV(c *Component) ([]byte, error) {
	return f(c)
}

// HKDFIVSource derives IVs with HKDF-SHA256 from the component key and a
// shared secret. Vendor and server form the salt, name and user the info.
type HKDFIVSource struct {
	secret []byte
}

// NewHKDFIVSource creates an HKDF based IV source
func NewHKDFIVSource(secret []byte) *HKDFIVSource {
	return &HKDFIVSource{secret: secret}
}

// AcquireIV derives a 16-byte IV for c
func (s *HKDFIVSource) AcquireIV(c *Component) ([]byte, error) {
	if len(c.Key) == 0 {
		return nil, ErrInvalidKey
	}
	ikm := make([]byte, 0, len(c.Key)+len(s.secret))
	ikm = append(ikm, c.Key...)
	ikm = append(ikm, s.secret...)
	salt := []byte(c.Vendor + "|" + c.Server)
	info := []byte(c.Name + "|" + c.UserAuth)

	iv := make([]byte, BlockSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, salt, info), iv); err != nil {
		return nil, fmt.Errorf("failed to derive iv: %w", err)
	}
	return iv, nil
}

// HashFunc identifies the hash used by PBKDF2
type HashFunc int

const (
	// SHA256 hash function
	SHA256 HashFunc = iota
	// SHA512 hash function
	SHA512
)

// Argon2idParams contains parameters for Argon2id key derivation
type Argon2idParams struct {
	Memory      uint32 // Memory in KiB
	Iterations  uint32 // Number of iterations
	Parallelism uint8  // Degree of parallelism
}

// PBKDF2Params contains parameters for PBKDF2 key derivation
type PBKDF2Params struct {
	Iterations int
	HashFunc   HashFunc
}

// PassphraseIVSource derives IVs from a passphrase. The salt is the
// component name, so every component gets its own IV.
type PassphraseIVSource struct {
	passphrase   []byte
	useArgon2id  bool
	argon2Params Argon2idParams
	pbkdf2Params PBKDF2Params
}

// NewPassphraseIVSource creates a passphrase IV source using Argon2id (recommended)
func NewPassphraseIVSource(passphrase []byte, params Argon2idParams) *PassphraseIVSource {
	// Set defaults
	if params.Memory == 0 {
		params.Memory = 64 * 1024 // 64 MB
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 4
	}

	return &PassphraseIVSource{
		passphrase:   passphrase,
		useArgon2id:  true,
		argon2Params: params,
	}
}

// NewPassphraseIVSourcePBKDF2 creates a passphrase IV source using PBKDF2
func NewPassphraseIVSourcePBKDF2(passphrase []byte, params PBKDF2Params) *PassphraseIVSource {
	if params.Iterations == 0 {
		params.Iterations = 100000
	}

	return &PassphraseIVSource{
		passphrase:   passphrase,
		pbkdf2Params: params,
	}
}

// AcquireIV derives a 16-byte IV for c from the passphrase
func (p *PassphraseIVSource) AcquireIV(c *Component) ([]byte, error) {
	if len(p.passphrase) == 0 {
		return nil, errors.New("passphrase cannot be empty")
	}
	salt := sha256.Sum256([]byte("secobj-iv:" + c.Name))

	if p.useArgon2id {
		return argon2.IDKey(
			p.passphrase,
			salt[:],
			p.argon2Params.Iterations,
			p.argon2Params.Memory,
			p.argon2Params.Parallelism,
			BlockSize,
		), nil
	}

	var hashFunc func() hash.Hash
	switch p.pbkdf2Params.HashFunc {
	case SHA256:
		hashFunc = sha256.New
	case SHA512:
		hashFunc = sha512.New
	default:
		return nil, fmt.Errorf("unsupported hash function: %v", p.pbkdf2Params.HashFunc)
	}
	return pbkdf2.Key(p.passphrase, salt[:], p.pbkdf2Params.Iterations, BlockSize, hashFunc), nil
}

// EnvIVSource reads hex IVs from environment variables named prefix followed
// by the upper-cased component name with every non alphanumeric byte
// replaced by '_'. "libc.o" with prefix "SECOBJ_IV_" reads SECOBJ_IV_LIBC_O.
type EnvIVSource struct {
	prefix string
	lookup func(string) (string, bool)
}

// NewEnvIVSource creates an environment variable IV source
func NewEnvIVSource(prefix string) *EnvIVSource {
	return &EnvIVSource{prefix: prefix, lookup: os.LookupEnv}
}

// VarName returns the variable consulted for component name.
func (e *EnvIVSource) VarName(name string) string {
	b := []byte(strings.ToUpper(name))
	for i, c := range b {
		if !isAlnum(c) {
			b[i] = '_'
		}
	}
	return e.prefix + string(b)
}

// AcquireIV returns the IV stored in the environment for c
func (e *EnvIVSource) AcquireIV(c *Component) ([]byte, error) {
	name := e.VarName(c.Name)
	v, ok := e.lookup(name)
	if !ok || v == "" {
		return nil, fmt.Errorf("environment variable %s not set: %w", name, ErrMissingIV)
	}
	iv, err := hex.DecodeString(strings.TrimSpace(v))
	if err != nil {
		return nil, fmt.Errorf("environment variable %s is not hex: %w", name, err)
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("iv from environment variable %s must be %d bytes, got %d", name, BlockSize, len(iv))
	}
	return iv, nil
}

// MultiIVSource tries several sources in order; the first success wins.
type MultiIVSource struct {
	sources []IVSource
}

// NewMultiIVSource creates a new multi IV source
func NewMultiIVSource(sources ...IVSource) (*MultiIVSource, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one iv source required")
	}
	return &MultiIVSource{sources: sources}, nil
}

// AcquireIV asks each source in turn and returns the first IV obtained
func (m *MultiIVSource) AcquireIV(c *Component) ([]byte, error) {
	var lastErr error
	for _, src := range m.sources {
		iv, err := src.AcquireIV(c)
		if err != nil {
			lastErr = err
			continue
		}
		return iv, nil
	}
	return nil, fmt.Errorf("all iv sources failed: %w", lastErr)
}
