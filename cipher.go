package secobj

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"math/bits"
)

// BlockSize is the AES block size. IVs, nonces and counters are one block.
const BlockSize = aes.BlockSize

// CTREngine is an AES block cipher restricted to counter mode. The key
// schedule is expanded once by NewCTREngine; every call derives its own
// counter so an engine can be shared by concurrent callers.
type CTREngine struct {
	block    cipher.Block
	keySize  KeySize
	parallel ParallelConfig
}

// NewCTREngine creates a counter mode engine for a 16, 24 or 32 byte key
func NewCTREngine(key []byte) (*CTREngine, error) {
	ks := KeySize(len(key))
	if !ks.Valid() {
		return nil, fmt.Errorf("AES requires a 16, 24 or 32-byte key, got %d bytes: %w", len(key), ErrInvalidKey)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	return &CTREngine{block: block, keySize: ks}, nil
}

// KeySize returns the key length the engine was built with
func (e *CTREngine) KeySize() KeySize {
	return e.keySize
}

// SetParallel enables multi-goroutine keystream generation for large ranges
func (e *CTREngine) SetParallel(p ParallelConfig) {
	e.parallel = p
}

// EffectiveIV combines a component IV with a per-object nonce: iv XOR nonce.
func EffectiveIV(iv, nonce []byte) ([BlockSize]byte, error) {
	var out [BlockSize]byte
	if err := ValidateBlock(iv, "iv"); err != nil {
		return out, err
	}
	if err := ValidateBlock(nonce, "nonce"); err != nil {
		return out, err
	}
	for i := range out {
		out[i] = iv[i] ^ nonce[i]
	}
	return out, nil
}

// counterAt returns the counter block used for the keystream block that
// contains byte offset. The counter is a 128-bit big-endian integer; carry
// propagates out of the least significant byte across all sixteen bytes.
func counterAt(iv [BlockSize]byte, offset uint64) [BlockSize]byte {
	hi := binary.BigEndian.Uint64(iv[:8])
	lo := binary.BigEndian.Uint64(iv[8:])
	var carry uint64
	lo, carry = bits.Add64(lo, offset/BlockSize, 0)
	hi += carry

	var ctr [BlockSize]byte
	binary.BigEndian.PutUint64(ctr[:8], hi)
	binary.BigEndian.PutUint64(ctr[8:], lo)
	return ctr
}

// xorSegment XORs src into dst with the keystream positioned at offset.
// Only the partial leading block is generated and discarded.
func (e *CTREngine) xorSegment(dst, src []byte, iv [BlockSize]byte, offset uint64) {
	ctr := counterAt(iv, offset)
	stream := cipher.NewCTR(e.block, ctr[:])
	if skip := int(offset % BlockSize); skip > 0 {
		var discard [BlockSize]byte
		stream.XORKeyStream(discard[:skip], discard[:skip])
	}
	stream.XORKeyStream(dst, src)
}

// XORKeyStreamAt XORs src with the keystream starting at byte offset of the
// stream defined by iv and writes the result to dst. dst and src may overlap
// exactly. Applying it to a whole buffer and then slicing gives the same
// bytes as applying it to the slice at the slice's offset.
func (e *CTREngine) XORKeyStreamAt(dst, src []byte, iv [BlockSize]byte, offset uint64) {
	if len(dst) < len(src) {
		panic("secobj: output smaller than input")
	}
	if len(src) == 0 {
		return
	}
	if e.parallel.worthIt(len(src)) {
		e.parallelXOR(dst, src, iv, offset)
		return
	}
	e.xorSegment(dst, src, iv, offset)
}

// Encrypt returns a fresh copy of data encrypted as bytes [offset,
// offset+len(data)) of the stream keyed by iv XOR nonce. data is not modified.
func (e *CTREngine) Encrypt(iv, nonce, data []byte, offset int64) ([]byte, error) {
	if offset < 0 {
		return nil, fmt.Errorf("negative offset %d: %w", offset, ErrBadValue)
	}
	eff, err := EffectiveIV(iv, nonce)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	e.XORKeyStreamAt(out, data, eff, uint64(offset))
	return out, nil
}

// Decrypt is the inverse of Encrypt. Counter mode is symmetric so this is the
// same transform.
func (e *CTREngine) Decrypt(iv, nonce, data []byte, offset int64) ([]byte, error) {
	return e.Encrypt(iv, nonce, data, offset)
}
