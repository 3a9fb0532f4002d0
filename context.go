package secobj

import (
	"sync"
	"sync/atomic"

	"github.com/absfs/absfs"
	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// firstSectionID is the id of the first section created by a context; lower
// ids are taken by the pseudo-sections.
const firstSectionID = 0x10

// Context owns the state shared by the objects processed in one run: the
// component registry, the section id counter, the cipher engine cache and
// the pseudo-sections. Independent contexts share nothing.
type Context struct {
	cfg      Config
	registry *ComponentRegistry
	engines  *engineCache
	nextID   atomic.Int64
	pseudo   pseudoSections

	mu      sync.Mutex
	objects map[*Object]struct{}
}

// NewContext creates a context. A nil cfg means DefaultConfig().
func NewContext(cfg *Config) (*Context, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engines, err := newEngineCache(cfg.EngineCacheSize, cfg.KeySize, cfg.Parallel)
	if err != nil {
		return nil, err
	}
	c := &Context{
		cfg:      *cfg,
		registry: NewComponentRegistry(cfg.KeySize, cfg.Verbose),
		engines:  engines,
		pseudo:   newPseudoSections(),
		objects:  make(map[*Object]struct{}),
	}
	c.registry.SetMode(cfg.Mode)
	c.nextID.Store(firstSectionID)
	return c, nil
}

// Config returns a copy of the configuration.
func (c *Context) Config() Config { return c.cfg }

// Components returns the component registry.
func (c *Context) Components() *ComponentRegistry { return c.registry }

// ComSection returns the common pseudo-section.
func (c *Context) ComSection() *Section { return c.pseudo[0] }

// UndSection returns the undefined pseudo-section.
func (c *Context) UndSection() *Section { return c.pseudo[1] }

// AbsSection returns the absolute pseudo-section.
func (c *Context) AbsSection() *Section { return c.pseudo[2] }

// IndSection returns the indirect pseudo-section.
func (c *Context) IndSection() *Section { return c.pseudo[3] }

// NextSectionID returns a fresh section id.
func (c *Context) NextSectionID() int {
	return int(c.nextID.Add(1) - 1)
}

func (c *Context) track(o *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[o] = struct{}{}
}

func (c *Context) forget(o *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, o)
}

// OpenObjects returns the number of objects not yet closed.
func (c *Context) OpenObjects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// CreateObject creates an empty object for writing. The object is flagged
// encrypted when path names a registered component; such an object gets a
// nonce, the component's own if it has one, a random one otherwise.
func (c *Context) CreateObject(path string, backend Backend) (*Object, error) {
	if err := ValidateFilePath(path); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := newObject(c, path, backend, WriteDirection)
	if comp, ok := c.registry.FindComponent(path); ok {
		o.encrypted = true
		nonce := comp.Nonce
		if !comp.HasNonce() {
			id := uuid.New()
			nonce = id[:]
		}
		if err := o.SetNonce(nonce); err != nil {
			return nil, err
		}
	}
	c.track(o)
	if c.registry.Verbose() {
		glog.Infof("Created %s (encrypted: %t)", path, o.encrypted)
	}
	return o, nil
}

// OpenObject wraps an existing backend for reading (or both directions).
// The encrypted flag follows the component registry.
func (c *Context) OpenObject(path string, backend Backend, dir Direction) (*Object, error) {
	if err := ValidateFilePath(path); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, ErrNilBackend
	}
	o := newObject(c, path, backend, dir)
	o.encrypted = c.registry.MustBeEncrypted(path)
	c.track(o)
	return o, nil
}

// CreateObjectFile creates a container file on fsys and an object writing
// to it.
func (c *Context) CreateObjectFile(fsys absfs.FileSystem, path string) (*Object, error) {
	fb, err := createFileBackend(fsys, path)
	if err != nil {
		return nil, err
	}
	o, err := c.CreateObject(path, fb)
	if err != nil {
		fb.file.Close()
		return nil, err
	}
	return o, nil
}

// OpenObjectFile opens a container file and recreates its sections. The
// encrypted flag follows the file header, not the registry. The nonce of an
// encrypted file is handed to the matching component; an encrypted file that
// matches no component cannot be opened.
func (c *Context) OpenObjectFile(fsys absfs.FileSystem, path string) (*Object, error) {
	fb, err := openFileBackend(fsys, path)
	if err != nil {
		return nil, err
	}
	o, err := c.OpenObject(path, fb, ReadDirection)
	if err != nil {
		fb.file.Close()
		return nil, err
	}
	h := fb.Header()
	o.encrypted = h.Encrypted()
	if o.encrypted {
		if !c.registry.MustBeEncrypted(path) {
			o.Close()
			return nil, NewEncryptionError("open", path, ErrUnknownComponent)
		}
		if err := o.SetNonce(h.Nonce[:]); err != nil {
			o.Close()
			return nil, err
		}
	} else if c.registry.MustBeEncrypted(path) && c.registry.Verbose() {
		glog.Infof("%s: stored in clear, component not applied", path)
	}
	for _, e := range h.Sections {
		s, err := o.MakeSectionAnywayWithFlags(e.Name, Flags(e.Flags))
		if err != nil {
			o.Close()
			return nil, err
		}
		s.size = e.Size
		s.VMA = e.VMA
		s.LMA = e.LMA
		s.AlignmentPower = uint(e.AlignmentPower)
		s.Filepos = int64(e.Filepos)
	}
	return o, nil
}

// LinkObjects chains objects so that NextSectionByName continues from one
// into the next, in argument order.
func (c *Context) LinkObjects(objs ...*Object) {
	for i := 0; i+1 < len(objs); i++ {
		objs[i].linkNext = objs[i+1]
	}
	if len(objs) > 0 {
		objs[len(objs)-1].linkNext = nil
	}
}

// Shutdown closes every open object, drops the components and purges the
// engine cache. Close errors are collected into one.
func (c *Context) Shutdown() error {
	c.mu.Lock()
	open := make([]*Object, 0, len(c.objects))
	for o := range c.objects {
		open = append(open, o)
	}
	c.mu.Unlock()

	var result *multierror.Error
	for _, o := range open {
		if err := o.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.registry.Reset()
	c.engines.purge()
	return result.ErrorOrNil()
}
