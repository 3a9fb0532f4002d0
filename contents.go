package secobj

import (
	"errors"

	"github.com/golang/glog"
)

// cipherFor returns the engine and parameters used for s, or nil when the
// bytes of s are stored in clear. Only code sections of objects flagged
// encrypted and matching a registered component are ciphered.
func (o *Object) cipherFor(s *Section) (*CTREngine, *Component, error) {
	if s.flags&FlagCode == 0 || !o.encrypted {
		return nil, nil, nil
	}
	comp, ok, err := o.ctx.registry.cipherParams(o.path, o.ctx.cfg.IVSource)
	if err != nil {
		var ee *EncryptionError
		if errors.As(err, &ee) {
			ee.Section = s.name
		}
		return nil, nil, err
	}
	if !ok {
		return nil, nil, nil
	}
	engine, err := o.ctx.engines.engineFor(comp)
	if err != nil {
		return nil, nil, NewEncryptionError("cipher", comp.Name, err)
	}
	return engine, comp, nil
}

// SetSectionContents writes data at offset of s through the backend. Code
// sections of encrypted objects are written encrypted; data itself is never
// modified. The in-memory cache, if any, receives the clear bytes and is not
// rolled back when the backend fails.
func (o *Object) SetSectionContents(s *Section, data []byte, offset int64) error {
	if err := o.checkMember("set-contents", s); err != nil {
		return err
	}
	if s.flags&FlagHasContents == 0 {
		return NewSectionError("set-contents", o, s, ErrNoContents)
	}
	if err := ValidateRange(offset, len(data), s.size); err != nil {
		return NewSectionError("set-contents", o, s, err)
	}
	if !o.dir.Writable() || o.closed {
		return NewSectionError("set-contents", o, s, ErrInvalidOperation)
	}

	if s.Contents != nil {
		if int64(len(s.Contents)) < offset+int64(len(data)) {
			return NewSectionError("set-contents", o, s, ErrBadValue)
		}
		if !sameMemory(s.Contents[offset:], data) {
			copy(s.Contents[offset:], data)
		}
	}

	engine, comp, err := o.cipherFor(s)
	if err != nil {
		return err
	}
	out := data
	if engine != nil {
		if o.ctx.registry.Verbose() {
			glog.Infof("Setting Encrypted section %s from %s (Comp: %s). Offset: %d, Count: %d", s.name, o.path, comp.Name, offset, len(data))
		}
		if out, err = engine.Encrypt(comp.IV, comp.Nonce, data, offset); err != nil {
			return NewEncryptionError("encrypt", comp.Name, err)
		}
	}

	if err := o.backend.SetSectionContents(o, s, out, offset); err != nil {
		return NewSectionError("set-contents", o, s, err)
	}
	o.outputHasBegun = true
	return nil
}

// GetSectionContents fills dest with the bytes at offset of s. Code
// sections of encrypted objects are decrypted on the way. dest is left
// untouched when the backend fails on an encrypted read.
func (o *Object) GetSectionContents(s *Section, dest []byte, offset int64) error {
	if err := o.checkMember("get-contents", s); err != nil {
		return err
	}
	if s.flags&FlagConstructor != 0 {
		clear(dest)
		return nil
	}
	if err := ValidateRange(offset, len(dest), s.effectiveSize(o.dir)); err != nil {
		return NewSectionError("get-contents", o, s, err)
	}
	if len(dest) == 0 {
		return nil
	}
	if s.flags&FlagHasContents == 0 {
		clear(dest)
		return nil
	}
	if s.flags&FlagInMemory != 0 {
		if s.Contents == nil {
			s.flags &^= FlagInMemory
			return NewSectionError("get-contents", o, s, ErrInvalidOperation)
		}
		if int64(len(s.Contents)) < offset+int64(len(dest)) {
			return NewSectionError("get-contents", o, s, ErrBadValue)
		}
		copy(dest, s.Contents[offset:])
		return nil
	}

	engine, comp, err := o.cipherFor(s)
	if err != nil {
		return err
	}
	if engine == nil {
		if err := o.backend.GetSectionContents(o, s, dest, offset); err != nil {
			return NewSectionError("get-contents", o, s, err)
		}
		return nil
	}

	if o.ctx.registry.Verbose() {
		glog.Infof("Getting Encrypted section %s from %s (Comp: %s). Offset: %d, Count: %d", s.name, o.path, comp.Name, offset, len(dest))
	}
	scratch := make([]byte, len(dest))
	if err := o.backend.GetSectionContents(o, s, scratch, offset); err != nil {
		return NewSectionError("get-contents", o, s, err)
	}
	eff, err := EffectiveIV(comp.IV, comp.Nonce)
	if err != nil {
		return NewEncryptionError("decrypt", comp.Name, err)
	}
	engine.XORKeyStreamAt(scratch, scratch, eff, uint64(offset))
	copy(dest, scratch)
	return nil
}

// SectionContents allocates a buffer of the section size and reads the whole
// section into it.
func (o *Object) SectionContents(s *Section) ([]byte, error) {
	if err := o.checkMember("get-contents", s); err != nil {
		return nil, err
	}
	size := s.effectiveSize(o.dir)
	if size > uint64(int(^uint(0)>>1)) {
		return nil, NewSectionError("get-contents", o, s, ErrNoMemory)
	}
	buf := make([]byte, size)
	if err := o.GetSectionContents(s, buf, 0); err != nil {
		return nil, err
	}
	return buf, nil
}

// sameMemory reports whether a and b start at the same address.
func sameMemory(a, b []byte) bool {
	return len(a) > 0 && len(b) > 0 && &a[0] == &b[0]
}
