package secobj

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
)

// ParallelConfig controls parallel keystream generation
type ParallelConfig struct {
	// Enabled enables parallel processing
	Enabled bool

	// MaxWorkers is the maximum number of worker goroutines
	// If 0, defaults to runtime.NumCPU()
	MaxWorkers int

	// MinBytesForParallel is the smallest range that is split across workers
	// Below this threshold, sequential processing is used
	MinBytesForParallel int
}

// Validate checks if the parallel configuration is valid
func (p *ParallelConfig) Validate() error {
	if !p.Enabled {
		return nil // Nothing to validate if disabled
	}

	if p.MaxWorkers < 0 {
		return errors.New("parallel max workers cannot be negative")
	}
	if p.MaxWorkers > 1024 {
		return errors.New("parallel max workers must not exceed 1024")
	}
	if p.MinBytesForParallel < BlockSize {
		return fmt.Errorf("parallel threshold must be at least %d bytes", BlockSize)
	}

	return nil
}

// DefaultParallelConfig returns the default parallel processing configuration
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		Enabled:             true,
		MaxWorkers:          runtime.NumCPU(),
		MinBytesForParallel: 256 * 1024,
	}
}

func (p ParallelConfig) workers() int {
	if p.MaxWorkers <= 0 {
		return runtime.NumCPU()
	}
	return p.MaxWorkers
}

func (p ParallelConfig) worthIt(n int) bool {
	return p.Enabled && p.workers() > 1 && p.MinBytesForParallel > 0 && n >= p.MinBytesForParallel
}

// segmentJob is one slice of a keystream range
type segmentJob struct {
	start int
	end   int
}

// splitSegments cuts n bytes into at most parts block-aligned pieces.
func splitSegments(n, parts int) []segmentJob {
	if parts < 1 {
		parts = 1
	}
	size := (n + parts - 1) / parts
	if rem := size % BlockSize; rem != 0 {
		size += BlockSize - rem
	}
	jobs := make([]segmentJob, 0, parts)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		jobs = append(jobs, segmentJob{start: start, end: end})
	}
	return jobs
}

// parallelXOR runs xorSegment over independent segments. Each segment seeks
// its own counter, so the output equals the sequential keystream.
func (e *CTREngine) parallelXOR(dst, src []byte, iv [BlockSize]byte, offset uint64) {
	numWorkers := e.parallel.workers()
	jobs := splitSegments(len(src), numWorkers)

	// Limit workers to number of segments
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	var wg sync.WaitGroup
	jobChan := make(chan segmentJob, len(jobs))
	panicChan := make(chan any, numWorkers)

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					select {
					case panicChan <- r:
					default:
					}
				}
			}()
			for job := range jobChan {
				e.xorSegment(dst[job.start:job.end], src[job.start:job.end], iv, offset+uint64(job.start))
			}
		}()
	}

	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	wg.Wait()
	close(panicChan)

	// Re-raise on the caller's goroutine
	if r, ok := <-panicChan; ok {
		panic(fmt.Sprintf("panic in keystream worker: %v", r))
	}
}
