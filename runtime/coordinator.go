package runtime

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pithecene-io/bilat/filter"
	"github.com/pithecene-io/bilat/types"
)

// Band is a contiguous range of image rows [Start, End) assigned to one
// worker.
type Band struct {
	Start int
	End   int
}

// Partition splits height rows into workers contiguous bands of
// height/workers rows each; the remainder goes to the last band. When
// workers exceeds height, leading bands are empty.
func Partition(height, workers int) []Band {
	if workers < 1 {
		workers = 1
	}
	size := height / workers
	bands := make([]Band, workers)
	for i := range workers {
		bands[i] = Band{Start: i * size, End: (i + 1) * size}
	}
	bands[workers-1].End = height
	return bands
}

// ProgressFunc receives aggregate progress as a percentage in [0, 100].
// Calls are serialized and strictly increasing.
type ProgressFunc func(percent int)

// FilterFunc filters rows [rowStart, rowEnd) of src into dst.
// Matches filter.Apply.
type FilterFunc func(src, dst *types.PixelBuffer, rowStart, rowEnd, diameter int, sigmaColor, sigmaSpace float64) error

// WorkerError reports the failure of one band.
type WorkerError struct {
	Worker int
	Band   Band
	Err    error
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %d (rows %d-%d): %v", e.Worker, e.Band.Start, e.Band.End, e.Err)
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// Coordinator runs the filter over an image with parallel workers.
type Coordinator struct {
	// Filter overrides the filter implementation (for testing).
	// If nil, filter.Apply is used.
	Filter FilterFunc
}

// progressTracker serializes completion accounting across workers.
type progressTracker struct {
	mu          sync.Mutex
	completed   int
	total       int
	lastPercent int
	failed      bool
	onProgress  ProgressFunc
}

// done records one finished worker and reports progress when the floored
// percentage strictly increases. Nothing is reported once any worker failed.
func (p *progressTracker) done(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.failed = true
		return
	}
	p.completed++
	if p.failed || p.onProgress == nil {
		return
	}
	percent := p.completed * 100 / p.total
	if percent > p.lastPercent {
		p.lastPercent = percent
		p.onProgress(percent)
	}
}

// EffectiveWorkers returns the number of workers Run uses for req on an
// image of height rows: req.WorkerCount(), capped at height so no band is
// empty.
func EffectiveWorkers(req *types.ProcessingRequest, height int) int {
	return max(min(req.WorkerCount(), height), 1)
}

// Run filters src with req's parameters and returns a new buffer. The
// worker count is 1 for single-thread mode, else req.RequestedWorkers
// capped at the image height.
// Run blocks until every worker has returned. If any worker fails or panics
// the joined worker errors are returned and no buffer.
func (c *Coordinator) Run(req *types.ProcessingRequest, src *types.PixelBuffer, onProgress ProgressFunc) (*types.PixelBuffer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	apply := c.Filter
	if apply == nil {
		apply = filter.Apply
	}

	workers := EffectiveWorkers(req, src.Height)
	bands := Partition(src.Height, workers)
	dst := src.NewLike()
	tracker := &progressTracker{total: workers, onProgress: onProgress}

	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i, band := range bands {
		go func() {
			defer wg.Done()
			err := runBand(apply, src, dst, band, req)
			if err != nil {
				errs[i] = &WorkerError{Worker: i, Band: band, Err: err}
			}
			tracker.done(err)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return dst, nil
}

// runBand runs one band, converting a panic into an error.
func runBand(apply FilterFunc, src, dst *types.PixelBuffer, band Band, req *types.ProcessingRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return apply(src, dst, band.Start, band.End, req.Diameter, req.SigmaColor, req.SigmaSpace)
}
