package secobj

import (
	"strings"
	"testing"
)

// panicBlock is a cipher.Block whose Encrypt panics
type panicBlock struct {
	panicMessage string
}

func (p *panicBlock) BlockSize() int { return BlockSize }

func (p *panicBlock) Encrypt(dst, src []byte) { panic(p.panicMessage) }

func (p *panicBlock) Decrypt(dst, src []byte) { panic(p.panicMessage) }

func newPanicEngine(msg string) *CTREngine {
	e := &CTREngine{block: &panicBlock{panicMessage: msg}, keySize: AES128}
	e.SetParallel(ParallelConfig{
		Enabled:             true,
		MaxWorkers:          4,
		MinBytesForParallel: BlockSize,
	})
	return e
}

// TestParallelKeystreamPanicRecovery tests that a panic in a keystream worker
// is re-raised on the caller's goroutine instead of crashing the process
func TestParallelKeystreamPanicRecovery(t *testing.T) {
	e := newPanicEngine("test panic in keystream")
	data := make([]byte, 64*BlockSize)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic to be re-raised on the caller goroutine")
		}
		msg, ok := r.(string)
		if !ok {
			t.Fatalf("expected string panic value, got %T", r)
		}
		if !strings.Contains(msg, "panic in keystream worker") {
			t.Errorf("panic message = %q, want worker prefix", msg)
		}
		if !strings.Contains(msg, "test panic in keystream") {
			t.Errorf("panic message = %q, want original message", msg)
		}
	}()

	var iv [BlockSize]byte
	e.XORKeyStreamAt(data, data, iv, 0)
}

// TestSequentialKeystreamPanic tests that the sequential path panics directly
func TestSequentialKeystreamPanic(t *testing.T) {
	e := newPanicEngine("sequential panic")
	e.SetParallel(ParallelConfig{})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic")
		}
		if msg, _ := r.(string); msg != "sequential panic" {
			t.Errorf("panic value = %v, want %q", r, "sequential panic")
		}
	}()

	var iv [BlockSize]byte
	e.XORKeyStreamAt(make([]byte, 32), make([]byte, 32), iv, 5)
}

// TestXORKeyStreamAtShortOutput tests the output length guard
func TestXORKeyStreamAtShortOutput(t *testing.T) {
	e, err := NewCTREngine(make([]byte, AES128))
	if err != nil {
		t.Fatal(err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for short output buffer")
		}
	}()

	var iv [BlockSize]byte
	e.XORKeyStreamAt(make([]byte, 4), make([]byte, 8), iv, 0)
}

// TestParallelNoPanicAfterRecovery tests that an engine keeps working for other
// callers after one call panicked
func TestParallelNoPanicAfterRecovery(t *testing.T) {
	good, err := NewCTREngine(make([]byte, AES128))
	if err != nil {
		t.Fatal(err)
	}
	good.SetParallel(ParallelConfig{Enabled: true, MaxWorkers: 4, MinBytesForParallel: BlockSize})

	func() {
		defer func() { recover() }()
		var iv [BlockSize]byte
		newPanicEngine("boom").XORKeyStreamAt(make([]byte, 256), make([]byte, 256), iv, 0)
	}()

	iv := make([]byte, BlockSize)
	nonce := make([]byte, BlockSize)
	data := make([]byte, 1000)
	enc, err := good.Encrypt(iv, nonce, data, 3)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := good.Decrypt(iv, nonce, enc, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i := range dec {
		if dec[i] != 0 {
			t.Fatalf("round trip mismatch at %d", i)
		}
	}
}
