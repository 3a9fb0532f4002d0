package secobj

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/absfs/absfs"
	"github.com/golang/glog"
	"github.com/samber/lo"
)

// Component is a named encryption unit. Name is matched against the
// trailing segment of object file paths. Vendor, Server and UserAuth are
// descriptive and never used by the cipher. IV and Nonce stay nil until they
// are known.
type Component struct {
	Name     string
	Vendor   string
	Server   string
	UserAuth string
	Key      []byte
	IV       []byte
	Nonce    []byte
}

// HasIV reports whether the component IV is known.
func (c *Component) HasIV() bool { return len(c.IV) == BlockSize }

// HasNonce reports whether a nonce was supplied for the component.
func (c *Component) HasNonce() bool { return len(c.Nonce) == BlockSize }

// Matches reports whether path names this component: either the whole path
// equals Name, or path ends with Name preceded by '/' or '\'.
func (c *Component) Matches(path string) bool {
	if len(path) == len(c.Name) {
		return path == c.Name
	}
	if len(path) < len(c.Name) || !strings.HasSuffix(path, c.Name) {
		return false
	}
	sep := path[len(path)-len(c.Name)-1]
	return sep == '/' || sep == '\\'
}

func (c *Component) clone() *Component {
	cp := *c
	cp.Key = bytes.Clone(c.Key)
	cp.IV = bytes.Clone(c.IV)
	cp.Nonce = bytes.Clone(c.Nonce)
	return &cp
}

// ComponentRegistry holds the components of one configuration, the active
// output component and the verbosity flag. It is safe for concurrent use.
type ComponentRegistry struct {
	mu      sync.RWMutex
	keySize KeySize
	comps   []*Component
	active  *Component
	verbose bool
	mode    Mode
}

// NewComponentRegistry creates an empty registry for keys of the given size.
func NewComponentRegistry(keySize KeySize, verbose bool) *ComponentRegistry {
	return &ComponentRegistry{keySize: keySize, verbose: verbose}
}

// KeySize returns the key length every component must have.
func (r *ComponentRegistry) KeySize() KeySize {
	return r.keySize
}

// Load parses a configuration and installs its components. It is a no-op
// when components are already loaded. On error the registry is left
// unchanged.
func (r *ComponentRegistry) Load(rd io.Reader, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.comps) > 0 {
		return nil
	}
	if r.verbose {
		glog.Infof("Loading components from %s", name)
	}
	comps, verbose, err := parseConfig(rd, name, r.keySize, r.verbose)
	if err != nil {
		return err
	}
	r.comps = comps
	r.verbose = r.verbose || verbose
	if r.verbose {
		glog.Infof("%d component(s) loaded from %s, mode %s\n%s", len(comps), name, r.mode, r.describeLocked())
	}
	return nil
}

// LoadFile loads a configuration file from fsys.
func (r *ComponentRegistry) LoadFile(fsys absfs.FileSystem, path string) error {
	if err := ValidateFilePath(path); err != nil {
		return err
	}
	if r.Len() > 0 {
		return nil
	}
	f, err := fsys.Open(path)
	if err != nil {
		return NewIOError("open", path, err)
	}
	defer f.Close()
	return r.Load(f, path)
}

// Len returns the number of loaded components.
func (r *ComponentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.comps)
}

// Reset drops every component and the active component.
func (r *ComponentRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.comps = nil
	r.active = nil
}

func (r *ComponentRegistry) lookup(path string) *Component {
	for _, c := range r.comps {
		if c.Matches(path) {
			return c
		}
	}
	return nil
}

// FindComponent returns a copy of the first component matching path.
func (r *ComponentRegistry) FindComponent(path string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.lookup(path)
	if c == nil {
		return nil, false
	}
	return c.clone(), true
}

// MustBeEncrypted reports whether path names a registered component.
func (r *ComponentRegistry) MustBeEncrypted(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookup(path) != nil
}

// UpdateNonce records the nonce of the object at path. It reports false when
// no component matches.
func (r *ComponentRegistry) UpdateNonce(path string, nonce []byte) (bool, error) {
	if err := ValidateBlock(nonce, "nonce"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.lookup(path)
	if c == nil {
		return false, nil
	}
	c.Nonce = bytes.Clone(nonce)
	if r.verbose {
		glog.Infof("Updating Obj: %s, Comp: %s with Nonce %x", path, c.Name, nonce)
	}
	return true, nil
}

// SetIV sets the IV of the component matching path.
func (r *ComponentRegistry) SetIV(path string, iv []byte) (bool, error) {
	if err := ValidateBlock(iv, "iv"); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.lookup(path)
	if c == nil {
		return false, nil
	}
	c.IV = bytes.Clone(iv)
	return true, nil
}

// SetActiveComponent selects the component being produced. A path that
// matches nothing clears the selection.
func (r *ComponentRegistry) SetActiveComponent(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = r.lookup(path)
}

// ActiveComponent returns a copy of the component being produced.
func (r *ComponentRegistry) ActiveComponent() (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, false
	}
	return r.active.clone(), true
}

// Verbose reports whether diagnostic tracing is on.
func (r *ComponentRegistry) Verbose() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.verbose
}

// SetVerbose turns diagnostic tracing on or off.
func (r *ComponentRegistry) SetVerbose(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verbose = v
}

// SetMode records the operating mode of the driving tool.
func (r *ComponentRegistry) SetMode(m Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = m
	if r.verbose {
		glog.Infof("Encryption mode set to %s", m)
	}
}

// Mode returns the operating mode.
func (r *ComponentRegistry) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// Components returns copies of every component in declaration order.
func (r *ComponentRegistry) Components() []*Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.comps, func(c *Component, _ int) *Component { return c.clone() })
}

// Names returns component names in declaration order.
func (r *ComponentRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.comps, func(c *Component, _ int) string { return c.Name })
}

// AggregateOutputIV derives the IV of the output of a link step as the XOR
// of the IVs of every other component. It reports true when the output
// component received an IV. It fails with ErrIncompleteInputs when an input
// has no IV, and with ErrUntrackedOutput when inputs are encrypted but
// outputPath is not a registered component.
func (r *ComponentRegistry) AggregateOutputIV(outputPath string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.comps) == 0 {
		return false, nil
	}
	out := r.lookup(outputPath)

	inputs := lo.Filter(r.comps, func(c *Component, _ int) bool { return c != out })
	outName := "No OUT"
	if out != nil {
		outName = out.Name
	}
	var iv [BlockSize]byte
	for _, c := range inputs {
		if !c.HasIV() {
			return false, fmt.Errorf("aggregate %s: %s: %w", outputPath, c.Name, ErrIncompleteInputs)
		}
		for i := range iv {
			iv[i] ^= c.IV[i]
		}
		if r.verbose {
			glog.Infof("IV Out %s, %s, IV=%x", outName, c.Name, c.IV)
		}
	}

	switch {
	case out != nil:
		out.IV = iv[:]
		return true, nil
	case len(inputs) > 0:
		return false, fmt.Errorf("aggregate %s: %w", outputPath, ErrUntrackedOutput)
	default:
		return false, nil
	}
}

// Describe renders every component, one field per line. Keys are shown in
// full only when reveal is true.
func (r *ComponentRegistry) Describe(reveal bool) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if reveal {
		return describe(r.comps, func(b []byte) string { return fmt.Sprintf("%x", b) })
	}
	return r.describeLocked()
}

func (r *ComponentRegistry) describeLocked() string {
	return describe(r.comps, fingerprint)
}

func describe(comps []*Component, key func([]byte) string) string {
	var sb strings.Builder
	for i, c := range comps {
		fmt.Fprintf(&sb, "[%2d]%6s: %s\n", i+1, "Name", c.Name)
		fmt.Fprintf(&sb, "%10s: %s\n", "Vendor", c.Vendor)
		fmt.Fprintf(&sb, "%10s: %s\n", "Server", c.Server)
		fmt.Fprintf(&sb, "%10s: %s\n", "User", c.UserAuth)
		fmt.Fprintf(&sb, "%10s: %s\n", "Key", key(c.Key))
		fmt.Fprintf(&sb, "%10s: %s\n", "Iv", hexOrNone(c.IV))
		fmt.Fprintf(&sb, "%10s: %s\n", "Nonce", hexOrNone(c.Nonce))
	}
	return sb.String()
}

func hexOrNone(b []byte) string {
	if len(b) == 0 {
		return "None"
	}
	return fmt.Sprintf("%x", b)
}

// cipherParams returns the key, IV and nonce used to cipher the object at
// path, acquiring a missing IV from src first. ok is false when no
// component matches. src runs without the registry lock held, so it may
// query the registry.
func (r *ComponentRegistry) cipherParams(path string, src IVSource) (c *Component, ok bool, err error) {
	r.mu.RLock()
	comp := r.lookup(path)
	if comp != nil {
		c = comp.clone()
	}
	r.mu.RUnlock()
	if c == nil {
		return nil, false, nil
	}

	if !c.HasIV() && src != nil {
		if r.Verbose() {
			glog.Infof("Acquiring IV for Component %s", c.Name)
		}
		iv, err := src.AcquireIV(c.clone())
		if err != nil {
			return nil, true, NewEncryptionError("acquire-iv", c.Name, err)
		}
		if err := ValidateBlock(iv, "iv"); err != nil {
			return nil, true, NewEncryptionError("acquire-iv", c.Name, err)
		}

		r.mu.Lock()
		comp = r.lookup(path)
		if comp != nil {
			// a concurrent acquisition may have won
			if !comp.HasIV() {
				comp.IV = bytes.Clone(iv)
			}
			c = comp.clone()
		}
		r.mu.Unlock()
		if comp == nil {
			return nil, false, nil
		}
	}
	if !c.HasIV() {
		return nil, true, NewEncryptionError("cipher", c.Name, ErrMissingIV)
	}
	if !c.HasNonce() {
		return nil, true, NewEncryptionError("cipher", c.Name, ErrMissingNonce)
	}
	return c, true, nil
}
