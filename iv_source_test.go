package secobj

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testComponent(name string) *Component {
	return &Component{
		Name:     name,
		Vendor:   "V",
		Server:   "S",
		UserAuth: "U",
		Key:      bytes.Repeat([]byte{0x01}, 16),
	}
}

func TestHKDFIVSource(t *testing.T) {
	src := NewHKDFIVSource([]byte("build-secret"))

	a1, err := src.AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.Len(t, a1, BlockSize)

	a2, err := src.AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.Equal(t, a1, a2, "derivation is deterministic")

	b, err := src.AcquireIV(testComponent("b.o"))
	require.NoError(t, err)
	assert.NotEqual(t, a1, b)

	other, err := NewHKDFIVSource([]byte("other-secret")).AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.NotEqual(t, a1, other)

	_, err = src.AcquireIV(&Component{Name: "nokey.o"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestPassphraseIVSource(t *testing.T) {
	params := Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1}
	src := NewPassphraseIVSource([]byte("passphrase"), params)

	a, err := src.AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.Len(t, a, BlockSize)
	again, err := src.AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.Equal(t, a, again)
	b, err := src.AcquireIV(testComponent("b.o"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = NewPassphraseIVSource(nil, params).AcquireIV(testComponent("a.o"))
	assert.Error(t, err)
}

func TestPassphraseIVSourcePBKDF2(t *testing.T) {
	for _, h := range []HashFunc{SHA256, SHA512} {
		src := NewPassphraseIVSourcePBKDF2([]byte("passphrase"), PBKDF2Params{Iterations: 1000, HashFunc: h})
		iv, err := src.AcquireIV(testComponent("a.o"))
		require.NoError(t, err)
		assert.Len(t, iv, BlockSize)
	}

	src := NewPassphraseIVSourcePBKDF2([]byte("passphrase"), PBKDF2Params{HashFunc: HashFunc(9)})
	_, err := src.AcquireIV(testComponent("a.o"))
	assert.Error(t, err)
}

func TestEnvIVSource(t *testing.T) {
	iv := bytes.Repeat([]byte{0xab}, BlockSize)
	env := map[string]string{
		"SECOBJ_IV_LIBC_O": hex.EncodeToString(iv),
		"SECOBJ_IV_SHORT":  "abcd",
		"SECOBJ_IV_BAD":    "not hex",
	}
	src := NewEnvIVSource("SECOBJ_IV_")
	src.lookup = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	assert.Equal(t, "SECOBJ_IV_LIBC_O", src.VarName("libc.o"))
	assert.Equal(t, "SECOBJ_IV_MY_LIB_2_O", src.VarName("my-lib-2.o"))

	got, err := src.AcquireIV(testComponent("libc.o"))
	require.NoError(t, err)
	assert.Equal(t, iv, got)

	_, err = src.AcquireIV(testComponent("missing.o"))
	assert.ErrorIs(t, err, ErrMissingIV)
	_, err = src.AcquireIV(testComponent("short"))
	assert.Error(t, err)
	_, err = src.AcquireIV(testComponent("bad"))
	assert.Error(t, err)
}

func TestEnvIVSourceFromProcessEnv(t *testing.T) {
	iv := bytes.Repeat([]byte{0x5a}, BlockSize)
	t.Setenv("SECOBJ_TEST_IV_APP_O", hex.EncodeToString(iv))
	got, err := NewEnvIVSource("SECOBJ_TEST_IV_").AcquireIV(testComponent("app.o"))
	require.NoError(t, err)
	assert.Equal(t, iv, got)
}

func TestMultiIVSource(t *testing.T) {
	_, err := NewMultiIVSource()
	assert.Error(t, err)

	failing := IVSourceFunc(func(*Component) ([]byte, error) { return nil, ErrMissingIV })
	want := bytes.Repeat([]byte{3}, BlockSize)
	fixed := IVSourceFunc(func(*Component) ([]byte, error) { return want, nil })

	m, err := NewMultiIVSource(failing, fixed)
	require.NoError(t, err)
	got, err := m.AcquireIV(testComponent("a.o"))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	m, err = NewMultiIVSource(failing, failing)
	require.NoError(t, err)
	_, err = m.AcquireIV(testComponent("a.o"))
	assert.True(t, errors.Is(err, ErrMissingIV))
}
