package secobj

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const encComponents = `
Component="enc.o" Vendor="V" Server="S" User="U"
Key="` + testKeyA + `" Iv="` + testIVA + `"
Component="noiv.o" Vendor="V" Server="S" User="U" Key="` + testKeyB + `"
`

func newSizedSection(t *testing.T, o *Object, name string, flags Flags, size uint64) *Section {
	t.Helper()
	s, err := o.MakeSectionWithFlags(name, flags)
	require.NoError(t, err)
	require.NoError(t, o.SetSectionSize(s, size))
	return s
}

func TestContentsBounds(t *testing.T) {
	o, _ := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents|FlagData, 100)

	err := o.SetSectionContents(s, make([]byte, 20), 90)
	assert.ErrorIs(t, err, ErrBadValue)
	assert.False(t, o.OutputHasBegun(), "rejected write must not begin output")

	require.NoError(t, o.SetSectionContents(s, bytes.Repeat([]byte{7}, 10), 90))
	assert.True(t, o.OutputHasBegun())

	assert.ErrorIs(t, o.SetSectionContents(s, []byte{1}, -1), ErrBadValue)
	assert.ErrorIs(t, o.SetSectionContents(s, nil, 101), ErrBadValue)
	assert.NoError(t, o.SetSectionContents(s, nil, 100))

	dest := make([]byte, 20)
	assert.ErrorIs(t, o.GetSectionContents(s, dest, 90), ErrBadValue)
	require.NoError(t, o.GetSectionContents(s, dest[:10], 90))
	assert.Equal(t, bytes.Repeat([]byte{7}, 10), dest[:10])
}

func TestContentsNoContents(t *testing.T) {
	o, mb := newTestObject(t)
	bss := newSizedSection(t, o, ".bss", FlagAlloc, 16)

	assert.ErrorIs(t, o.SetSectionContents(bss, []byte{1}, 0), ErrNoContents)
	assert.Nil(t, mb.Raw(bss))

	dest := bytes.Repeat([]byte{0xff}, 16)
	require.NoError(t, o.GetSectionContents(bss, dest, 0))
	assert.Equal(t, make([]byte, 16), dest)

	// bounds are still checked
	assert.ErrorIs(t, o.GetSectionContents(bss, make([]byte, 17), 0), ErrBadValue)
}

func TestContentsCheckOrder(t *testing.T) {
	ctx := newTestContext(t, "")
	o, err := ctx.OpenObject("/build/in.o", NewMemoryBackend(), ReadDirection)
	require.NoError(t, err)
	bss := newSizedSection(t, o, ".bss", FlagAlloc, 4)
	data := newSizedSection(t, o, ".data", FlagHasContents, 4)

	// no contents is reported before the bad range, the bad range before
	// the wrong direction
	assert.ErrorIs(t, o.SetSectionContents(bss, make([]byte, 8), 0), ErrNoContents)
	assert.ErrorIs(t, o.SetSectionContents(data, make([]byte, 8), 0), ErrBadValue)
	assert.ErrorIs(t, o.SetSectionContents(data, make([]byte, 4), 0), ErrInvalidOperation)
}

func TestContentsZeroCount(t *testing.T) {
	o, mb := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents, 8)
	mb.FailReads = errors.New("must not be called")
	assert.NoError(t, o.GetSectionContents(s, nil, 8))
	assert.NoError(t, o.GetSectionContents(s, []byte{}, 0))
}

func TestContentsConstructor(t *testing.T) {
	o, mb := newTestObject(t)
	s := newSizedSection(t, o, ".ctors", FlagHasContents|FlagConstructor, 4)
	mb.FailReads = errors.New("must not be called")

	// zero-filled without a bounds check or a backend call
	dest := bytes.Repeat([]byte{0xff}, 32)
	require.NoError(t, o.GetSectionContents(s, dest, 1000))
	assert.Equal(t, make([]byte, 32), dest)
}

func TestContentsRawSize(t *testing.T) {
	ctx := newTestContext(t, "")
	o, err := ctx.OpenObject("/build/in.o", NewMemoryBackend(), ReadDirection)
	require.NoError(t, err)
	s := newSizedSection(t, o, ".text", FlagHasContents, 8)
	s.RawSize = 16

	assert.NoError(t, o.GetSectionContents(s, make([]byte, 16), 0))
	full, err := o.SectionContents(s)
	require.NoError(t, err)
	assert.Len(t, full, 16)

	// the write direction always uses size
	w, _ := newTestObject(t)
	ws := newSizedSection(t, w, ".text", FlagHasContents, 8)
	ws.RawSize = 16
	assert.ErrorIs(t, w.GetSectionContents(ws, make([]byte, 16), 0), ErrBadValue)
}

func TestContentsInMemory(t *testing.T) {
	o, mb := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents|FlagInMemory, 8)
	s.Contents = make([]byte, 8)

	require.NoError(t, o.SetSectionContents(s, []byte{1, 2, 3}, 2))
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, s.Contents)
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, mb.Raw(s))

	// reads come from the cache, not the backend
	mb.FailReads = errors.New("must not be called")
	dest := make([]byte, 4)
	require.NoError(t, o.GetSectionContents(s, dest, 1))
	assert.Equal(t, []byte{0, 1, 2, 3}, dest)

	// writing the cache into itself is fine
	require.NoError(t, o.SetSectionContents(s, s.Contents[2:5], 2))
	assert.Equal(t, []byte{0, 0, 1, 2, 3, 0, 0, 0}, s.Contents)
}

func TestContentsInMemoryMissingCache(t *testing.T) {
	o, _ := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents|FlagInMemory, 8)

	err := o.GetSectionContents(s, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.False(t, s.Flags().Has(FlagInMemory), "flag must be cleared")

	// the next read goes to the backend
	assert.NoError(t, o.GetSectionContents(s, make([]byte, 4), 0))
}

func TestContentsCacheNotRolledBack(t *testing.T) {
	o, mb := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents|FlagInMemory, 4)
	s.Contents = make([]byte, 4)
	mb.FailWrites = errors.New("disk full")

	err := o.SetSectionContents(s, []byte{9, 9}, 0)
	assert.ErrorIs(t, err, mb.FailWrites)
	assert.Equal(t, []byte{9, 9, 0, 0}, s.Contents)
	assert.False(t, o.OutputHasBegun())
}

func TestContentsCacheTooShort(t *testing.T) {
	o, mb := newTestObject(t)
	s := newSizedSection(t, o, ".data", FlagHasContents|FlagInMemory, 8)
	s.Contents = make([]byte, 4)

	err := o.SetSectionContents(s, []byte{1, 2, 3}, 2)
	assert.ErrorIs(t, err, ErrBadValue)
	assert.Equal(t, make([]byte, 4), s.Contents)
	assert.Nil(t, mb.Raw(s), "backend must not see the write")
	assert.False(t, o.OutputHasBegun())

	require.NoError(t, o.SetSectionContents(s, []byte{1, 2}, 2))
	assert.Equal(t, []byte{0, 0, 1, 2}, s.Contents)
}

func newEncryptedObject(t *testing.T, path string) (*Object, *MemoryBackend) {
	t.Helper()
	ctx := newTestContext(t, encComponents)
	mb := NewMemoryBackend()
	o, err := ctx.CreateObject(path, mb)
	require.NoError(t, err)
	return o, mb
}

func TestContentsEncrypted(t *testing.T) {
	o, mb := newEncryptedObject(t, "/build/enc.o")
	require.True(t, o.Encrypted())
	require.Len(t, o.Nonce(), BlockSize)

	comp, ok := o.Context().Components().FindComponent("enc.o")
	require.True(t, ok)
	assert.Equal(t, o.Nonce(), comp.Nonce, "the object nonce is handed to the component")

	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 100)
	data := newSizedSection(t, o, ".data", FlagHasContents|FlagData, 100)

	plain := randBytes(t, 100)
	orig := bytes.Clone(plain)
	require.NoError(t, o.SetSectionContents(text, plain, 0))
	require.NoError(t, o.SetSectionContents(data, plain, 0))
	assert.Equal(t, orig, plain, "caller buffer must not be mutated")

	engine, err := NewCTREngine(comp.Key)
	require.NoError(t, err)
	want, err := engine.Encrypt(comp.IV, comp.Nonce, plain, 0)
	require.NoError(t, err)
	assert.Equal(t, want, mb.Raw(text), "code sections are stored encrypted")
	assert.Equal(t, plain, mb.Raw(data), "data sections are stored in clear")

	// any sub-range reads back in clear
	for _, r := range [][2]int{{0, 100}, {0, 1}, {5, 20}, {16, 16}, {17, 83}, {99, 1}} {
		off, n := r[0], r[1]
		dest := make([]byte, n)
		require.NoError(t, o.GetSectionContents(text, dest, int64(off)))
		assert.Equal(t, plain[off:off+n], dest, "range %d+%d", off, n)
	}
}

func TestContentsEncryptedPartialWrites(t *testing.T) {
	o, mb := newEncryptedObject(t, "/build/enc.o")
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 64)
	plain := randBytes(t, 64)

	// out of order chunks of odd sizes
	chunks := [][2]int{{40, 24}, {0, 7}, {7, 13}, {20, 20}}
	for _, c := range chunks {
		require.NoError(t, o.SetSectionContents(text, plain[c[0]:c[0]+c[1]], int64(c[0])))
	}

	comp, _ := o.Context().Components().FindComponent("enc.o")
	engine, err := NewCTREngine(comp.Key)
	require.NoError(t, err)
	want, err := engine.Encrypt(comp.IV, comp.Nonce, plain, 0)
	require.NoError(t, err)
	assert.Equal(t, want, mb.Raw(text))

	got, err := o.SectionContents(text)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestContentsNotAComponent(t *testing.T) {
	o, mb := newEncryptedObject(t, "/build/other.o")
	assert.False(t, o.Encrypted())
	assert.Nil(t, o.Nonce())

	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 4)
	require.NoError(t, o.SetSectionContents(text, []byte{1, 2, 3, 4}, 0))
	assert.Equal(t, []byte{1, 2, 3, 4}, mb.Raw(text))
}

func TestContentsMissingIV(t *testing.T) {
	o, mb := newEncryptedObject(t, "/build/noiv.o")
	require.True(t, o.Encrypted())
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 4)

	err := o.SetSectionContents(text, []byte{1, 2, 3, 4}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingIV)
	var ee *EncryptionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "noiv.o", ee.Component)
	assert.Equal(t, ".text", ee.Section)
	assert.Nil(t, mb.Raw(text), "nothing may reach the backend in clear")
	assert.False(t, o.OutputHasBegun())
}

func TestContentsMissingNonce(t *testing.T) {
	ctx := newTestContext(t, encComponents)
	mb := NewMemoryBackend()
	o, err := ctx.OpenObject("/build/enc.o", mb, BothDirection)
	require.NoError(t, err)
	require.True(t, o.Encrypted())
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 4)

	err = o.GetSectionContents(text, make([]byte, 4), 0)
	assert.ErrorIs(t, err, ErrMissingNonce)

	require.NoError(t, o.SetNonce(bytes.Repeat([]byte{1}, BlockSize)))
	assert.NoError(t, o.GetSectionContents(text, make([]byte, 4), 0))
	assert.Error(t, o.SetNonce([]byte{1}))
}

func TestContentsIVSource(t *testing.T) {
	cfg := DefaultConfig()
	calls := 0
	iv := bytes.Repeat([]byte{0x42}, BlockSize)
	cfg.IVSource = IVSourceFunc(func(c *Component) ([]byte, error) {
		calls++
		assert.Equal(t, "noiv.o", c.Name)
		return iv, nil
	})
	ctx, err := NewContext(cfg)
	require.NoError(t, err)
	defer ctx.Shutdown()
	require.NoError(t, ctx.Components().Load(bytes.NewReader([]byte(encComponents)), "test.cfg"))

	mb := NewMemoryBackend()
	o, err := ctx.CreateObject("/build/noiv.o", mb)
	require.NoError(t, err)
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 32)
	plain := randBytes(t, 32)
	require.NoError(t, o.SetSectionContents(text, plain, 0))
	got, err := o.SectionContents(text)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
	assert.Equal(t, 1, calls)
	assert.NotEqual(t, plain, mb.Raw(text))

	comp, _ := ctx.Components().FindComponent("noiv.o")
	assert.Equal(t, iv, comp.IV)
}

func TestContentsIVSourceQueriesRegistry(t *testing.T) {
	var ctx *Context
	cfg := DefaultConfig()
	cfg.IVSource = IVSourceFunc(func(c *Component) ([]byte, error) {
		other, ok := ctx.Components().FindComponent("enc.o")
		if !ok {
			return nil, errors.New("enc.o not registered")
		}
		if n := len(ctx.Components().Names()); n != 2 {
			return nil, fmt.Errorf("got %d components", n)
		}
		return other.IV, nil
	})
	ctx, err := NewContext(cfg)
	require.NoError(t, err)
	defer ctx.Shutdown()
	require.NoError(t, ctx.Components().Load(bytes.NewReader([]byte(encComponents)), "test.cfg"))

	o, err := ctx.CreateObject("/build/noiv.o", NewMemoryBackend())
	require.NoError(t, err)
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 16)

	plain := randBytes(t, 16)
	done := make(chan error, 1)
	go func() { done <- o.SetSectionContents(text, plain, 0) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("SetSectionContents blocked while the IV source read the registry")
	}

	comp, _ := ctx.Components().FindComponent("noiv.o")
	assert.Equal(t, mustHex(t, testIVA), comp.IV)
}

func TestContentsEncryptedReadFailure(t *testing.T) {
	o, mb := newEncryptedObject(t, "/build/enc.o")
	text := newSizedSection(t, o, ".text", FlagHasContents|FlagCode, 8)
	mb.FailReads = errors.New("io")

	dest := bytes.Repeat([]byte{0xee}, 8)
	err := o.GetSectionContents(text, dest, 0)
	assert.ErrorIs(t, err, mb.FailReads)
	assert.Equal(t, bytes.Repeat([]byte{0xee}, 8), dest)
}

func TestContentsForeignSection(t *testing.T) {
	a, _ := newTestObject(t)
	b, _ := newTestObject(t)
	s := newSizedSection(t, a, ".data", FlagHasContents, 4)

	assert.ErrorIs(t, b.SetSectionContents(s, []byte{1}, 0), ErrInvalidOperation)
	assert.ErrorIs(t, b.GetSectionContents(s, make([]byte, 1), 0), ErrInvalidOperation)
	_, err := b.SectionContents(s)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}
