package secobj

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/absfs/memfs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadRegistry(t *testing.T, cfg string) *ComponentRegistry {
	t.Helper()
	r := NewComponentRegistry(AES128, false)
	require.NoError(t, r.Load(strings.NewReader(cfg), "test.cfg"))
	return r
}

func TestComponentMatches(t *testing.T) {
	c := &Component{Name: "libc.o"}
	tests := []struct {
		path string
		want bool
	}{
		{"libc.o", true},
		{"/build/libc.o", true},
		{"build/libc.o", true},
		{`C:\build\libc.o`, true},
		{"/build/xlibc.o", false},
		{"/build/libc.o.bak", false},
		{"libc", false},
		{"", false},
		{"/", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Matches(tt.path), "Matches(%q)", tt.path)
	}
}

func TestFindComponent(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"libc.o", "app.o"}, r.Names())

	c, ok := r.FindComponent("/build/libc.o")
	require.True(t, ok)
	assert.Equal(t, "libc.o", c.Name)

	c, ok = r.FindComponent("build/libc.o")
	require.True(t, ok)
	assert.Equal(t, "libc.o", c.Name)

	_, ok = r.FindComponent("/build/libm.o")
	assert.False(t, ok)

	assert.True(t, r.MustBeEncrypted("/x/app.o"))
	assert.False(t, r.MustBeEncrypted("/x/myapp.o"))

	// returned components are copies
	c.Key[0] ^= 0xff
	again, _ := r.FindComponent("libc.o")
	assert.Equal(t, mustHex(t, testKeyA), again.Key)
}

func TestRegistryLoadIdempotent(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	before := r.Components()

	other := `Component="other.o" Vendor="v" Server="s" User="u" Key="` + testKeyA + `"`
	require.NoError(t, r.Load(strings.NewReader(other), "other.cfg"))
	if diff := cmp.Diff(before, r.Components()); diff != "" {
		t.Errorf("second load changed components (-before +after):\n%s", diff)
	}
}

func TestRegistryLoadErrorLeavesRegistryEmpty(t *testing.T) {
	r := NewComponentRegistry(AES128, false)
	bad := twoComponents + `Component="libc.o"`
	err := r.Load(strings.NewReader(bad), "bad.cfg")
	require.Error(t, err)
	assert.True(t, IsParseError(err))
	assert.Equal(t, ParseDuplicateComponent, ParseErrorCodeOf(err))
	assert.Zero(t, r.Len())

	// a later good load still works
	require.NoError(t, r.Load(strings.NewReader(twoComponents), "good.cfg"))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryVerboseFromConfig(t *testing.T) {
	r := loadRegistry(t, "Verbose\n"+twoComponents)
	assert.True(t, r.Verbose())
	r.SetVerbose(false)
	assert.False(t, r.Verbose())
}

func TestRegistryLoadFile(t *testing.T) {
	fs, err := memfs.NewFS()
	require.NoError(t, err)

	f, err := fs.OpenFile("/components.cfg", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	require.NoError(t, err)
	_, err = f.Write([]byte(twoComponents))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r := NewComponentRegistry(AES128, false)
	require.NoError(t, r.LoadFile(fs, "/components.cfg"))
	assert.Equal(t, 2, r.Len())

	r2 := NewComponentRegistry(AES128, false)
	err = r2.LoadFile(fs, "/missing.cfg")
	assert.True(t, IsIOError(err))

	assert.True(t, IsValidationError(r2.LoadFile(fs, "")))
}

func TestRegistryNonceAndIV(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	nonce := bytes.Repeat([]byte{0xaa}, BlockSize)

	ok, err := r.UpdateNonce("/out/app.o", nonce)
	require.NoError(t, err)
	assert.True(t, ok)
	c, _ := r.FindComponent("app.o")
	assert.Equal(t, nonce, c.Nonce)
	assert.True(t, c.HasNonce())

	ok, err = r.UpdateNonce("/out/none.o", nonce)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = r.UpdateNonce("app.o", nonce[:4])
	assert.True(t, IsValidationError(err))

	iv := bytes.Repeat([]byte{0x55}, BlockSize)
	ok, err = r.SetIV("app.o", iv)
	require.NoError(t, err)
	assert.True(t, ok)
	c, _ = r.FindComponent("app.o")
	assert.Equal(t, iv, c.IV)

	_, err = r.SetIV("app.o", nil)
	assert.Error(t, err)
}

func TestActiveComponent(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	_, ok := r.ActiveComponent()
	assert.False(t, ok)

	r.SetActiveComponent("/out/app.o")
	c, ok := r.ActiveComponent()
	require.True(t, ok)
	assert.Equal(t, "app.o", c.Name)

	r.SetActiveComponent("/out/unknown.o")
	_, ok = r.ActiveComponent()
	assert.False(t, ok)
}

func aggregationConfig(outIV bool) string {
	cfg := `
Component="a.o" Vendor="v" Server="s" User="u" Key="` + testKeyA + `" Iv="` + strings.Repeat("11", 16) + `"
Component="b.o" Vendor="v" Server="s" User="u" Key="` + testKeyA + `" Iv="` + strings.Repeat("22", 16) + `"
Component="out.elf" Vendor="v" Server="s" User="u" Key="` + testKeyA + `"`
	if outIV {
		cfg += ` Iv="` + strings.Repeat("ff", 16) + `"`
	}
	return cfg
}

func TestAggregateOutputIV(t *testing.T) {
	t.Run("output distinct from inputs", func(t *testing.T) {
		r := loadRegistry(t, aggregationConfig(false))
		r.SetMode(ModeLinker)
		ok, err := r.AggregateOutputIV("/link/out.elf")
		require.NoError(t, err)
		assert.True(t, ok)
		c, _ := r.FindComponent("out.elf")
		assert.Equal(t, bytes.Repeat([]byte{0x33}, BlockSize), c.IV)
	})

	t.Run("output is an input", func(t *testing.T) {
		r := loadRegistry(t, aggregationConfig(true))
		ok, err := r.AggregateOutputIV("a.o")
		require.NoError(t, err)
		assert.True(t, ok)
		// b XOR out
		c, _ := r.FindComponent("a.o")
		assert.Equal(t, bytes.Repeat([]byte{0xdd}, BlockSize), c.IV)
	})

	t.Run("incomplete inputs", func(t *testing.T) {
		r := loadRegistry(t, aggregationConfig(false))
		ok, err := r.AggregateOutputIV("/link/a.o")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrIncompleteInputs)
		c, _ := r.FindComponent("a.o")
		assert.Equal(t, bytes.Repeat([]byte{0x11}, BlockSize), c.IV, "failed aggregation must not touch IVs")
	})

	t.Run("untracked output", func(t *testing.T) {
		r := loadRegistry(t, aggregationConfig(true))
		ok, err := r.AggregateOutputIV("/link/plain.elf")
		assert.False(t, ok)
		assert.True(t, errors.Is(err, ErrUntrackedOutput))
	})

	t.Run("no components", func(t *testing.T) {
		r := NewComponentRegistry(AES128, false)
		ok, err := r.AggregateOutputIV("/link/plain.elf")
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("only the output is registered", func(t *testing.T) {
		r := loadRegistry(t, `Component="out.elf" Vendor="v" Server="s" User="u" Key="`+testKeyA+`"`)
		ok, err := r.AggregateOutputIV("out.elf")
		require.NoError(t, err)
		assert.True(t, ok)
		c, _ := r.FindComponent("out.elf")
		assert.Equal(t, make([]byte, BlockSize), c.IV)
	})
}

func TestDescribe(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	hidden := r.Describe(false)
	assert.Contains(t, hidden, "libc.o")
	assert.Contains(t, hidden, "0001..(16 bytes)")
	assert.NotContains(t, hidden, testKeyA)
	assert.Contains(t, hidden, testIVA)
	assert.Contains(t, hidden, "None")

	assert.Contains(t, r.Describe(true), testKeyA)
}

func TestRegistryReset(t *testing.T) {
	r := loadRegistry(t, twoComponents)
	r.SetActiveComponent("app.o")
	r.Reset()
	assert.Zero(t, r.Len())
	_, ok := r.ActiveComponent()
	assert.False(t, ok)
}

func TestCipherParams(t *testing.T) {
	r := loadRegistry(t, twoComponents)

	_, ok, err := r.cipherParams("/x/unknown.o", nil)
	assert.NoError(t, err)
	assert.False(t, ok)

	// libc.o has an IV but no nonce yet
	_, ok, err = r.cipherParams("/x/libc.o", nil)
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrMissingNonce)

	_, err = r.UpdateNonce("libc.o", make([]byte, BlockSize))
	require.NoError(t, err)
	c, ok, err := r.cipherParams("/x/libc.o", nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "libc.o", c.Name)

	// app.o has no IV and no source
	_, _, err = r.cipherParams("app.o", nil)
	assert.ErrorIs(t, err, ErrMissingIV)
	assert.True(t, IsEncryptionError(err))

	// a source fills the IV once
	calls := 0
	src := IVSourceFunc(func(c *Component) ([]byte, error) {
		calls++
		return bytes.Repeat([]byte{0x77}, BlockSize), nil
	})
	_, err = r.UpdateNonce("app.o", make([]byte, BlockSize))
	require.NoError(t, err)
	c, _, err = r.cipherParams("app.o", src)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x77}, BlockSize), c.IV)
	_, _, err = r.cipherParams("app.o", src)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// a source returning a bad IV is rejected
	r2 := loadRegistry(t, twoComponents)
	_, _, err = r2.cipherParams("app.o", IVSourceFunc(func(*Component) ([]byte, error) { return []byte{1}, nil }))
	assert.True(t, IsEncryptionError(err))
}
