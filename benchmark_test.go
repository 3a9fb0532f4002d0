package secobj

import (
	"crypto/rand"
	"fmt"
	"runtime"
	"strings"
	"testing"
)

var benchSizes = []int{
	1024,             // 1 KB
	64 * 1024,        // 64 KB
	1024 * 1024,      // 1 MB
	10 * 1024 * 1024, // 10 MB
}

// Benchmark keystream throughput for each AES key size
func BenchmarkCTREngine_Encrypt(b *testing.B) {
	for _, ks := range []KeySize{AES128, AES192, AES256} {
		for _, size := range benchSizes {
			b.Run(fmt.Sprintf("%s/%s", ks, formatSize(size)), func(b *testing.B) {
				benchmarkEncrypt(b, ks, ParallelConfig{}, size)
			})
		}
	}
}

// Benchmark sequential vs parallel keystream generation on large ranges
func BenchmarkCTREngine_Parallel(b *testing.B) {
	parallel := ParallelConfig{
		Enabled:             true,
		MaxWorkers:          runtime.NumCPU(),
		MinBytesForParallel: 64 * 1024,
	}

	for _, size := range benchSizes[2:] {
		b.Run("Sequential/"+formatSize(size), func(b *testing.B) {
			benchmarkEncrypt(b, AES128, ParallelConfig{}, size)
		})
		b.Run("Parallel/"+formatSize(size), func(b *testing.B) {
			benchmarkEncrypt(b, AES128, parallel, size)
		})
	}
}

func benchmarkEncrypt(b *testing.B, ks KeySize, p ParallelConfig, size int) {
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		b.Fatalf("failed to generate test data: %v", err)
	}
	key := make([]byte, ks)
	rand.Read(key)
	iv := make([]byte, BlockSize)
	rand.Read(iv)
	nonce := make([]byte, BlockSize)
	rand.Read(nonce)

	engine, err := NewCTREngine(key)
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}
	engine.SetParallel(p)

	b.SetBytes(int64(size))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := engine.Encrypt(iv, nonce, data, 0); err != nil {
			b.Fatalf("encryption failed: %v", err)
		}
	}
}

// Benchmark an unaligned seek into the stream
func BenchmarkCTREngine_Seek(b *testing.B) {
	key := make([]byte, AES128)
	rand.Read(key)
	engine, err := NewCTREngine(key)
	if err != nil {
		b.Fatalf("failed to create engine: %v", err)
	}
	var iv [BlockSize]byte
	buf := make([]byte, 100)

	b.SetBytes(int64(len(buf)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		engine.XORKeyStreamAt(buf, buf, iv, uint64(i)*977+13)
	}
}

// Benchmark the contents bridge on an encrypted code section
func BenchmarkSectionContents(b *testing.B) {
	for _, size := range benchSizes[:3] {
		b.Run("Write/"+formatSize(size), func(b *testing.B) {
			o, s := setupBenchObject(b, size)
			data := make([]byte, size)
			rand.Read(data)

			b.SetBytes(int64(size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if err := o.SetSectionContents(s, data, 0); err != nil {
					b.Fatalf("write failed: %v", err)
				}
			}
		})

		b.Run("Read/"+formatSize(size), func(b *testing.B) {
			o, s := setupBenchObject(b, size)
			data := make([]byte, size)
			rand.Read(data)
			if err := o.SetSectionContents(s, data, 0); err != nil {
				b.Fatalf("write failed: %v", err)
			}
			dest := make([]byte, size)

			b.SetBytes(int64(size))
			b.ResetTimer()

			for i := 0; i < b.N; i++ {
				if err := o.GetSectionContents(s, dest, 0); err != nil {
					b.Fatalf("read failed: %v", err)
				}
			}
		})
	}
}

func formatSize(size int) string {
	if size < 1024 {
		return fmt.Sprintf("%dB", size)
	}
	if size < 1024*1024 {
		return fmt.Sprintf("%dKB", size/1024)
	}
	return fmt.Sprintf("%dMB", size/(1024*1024))
}

// Helper for benchmarks
func setupBenchObject(tb testing.TB, size int) (*Object, *Section) {
	tb.Helper()

	ctx, err := NewContext(nil)
	if err != nil {
		tb.Fatalf("failed to create context: %v", err)
	}
	tb.Cleanup(func() { ctx.Shutdown() })

	if err := ctx.Components().Load(strings.NewReader(encComponents), "bench.cfg"); err != nil {
		tb.Fatalf("failed to load components: %v", err)
	}

	o, err := ctx.CreateObject("/bench/enc.o", NewMemoryBackend())
	if err != nil {
		tb.Fatalf("failed to create object: %v", err)
	}
	s, err := o.MakeSectionWithFlags(".text", FlagAlloc|FlagCode|FlagHasContents)
	if err != nil {
		tb.Fatalf("failed to create section: %v", err)
	}
	if err := o.SetSectionSize(s, uint64(size)); err != nil {
		tb.Fatalf("failed to size section: %v", err)
	}
	return o, s
}
