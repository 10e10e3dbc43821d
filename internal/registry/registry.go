// Package registry is the Camera Registry: the process-wide
// camera-id -> pipeline map, with add/stop/shutdown and the shared
// interruption channel wired into every pipeline it starts.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/BrunoKrugel/camerapipeline/internal/camerr"
	"github.com/BrunoKrugel/camerapipeline/internal/config"
	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/media"
	"github.com/BrunoKrugel/camerapipeline/internal/pipeline"
	"github.com/BrunoKrugel/camerapipeline/internal/pool"
)

type entry struct {
	pl     *pipeline.Pipeline
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry owns the id->pipeline mapping, the Delivery Pool, and the shared
// Interrupter. The Registry itself is built by New; Initialize creates the
// Pool and Interrupter and Shutdown drops them, after which the same
// Registry can be initialized again.
type Registry struct {
	mu          sync.Mutex
	cameras     map[int]*entry
	initialized bool

	cfg       *config.Config
	pool      *pool.Pool
	interrupt *pipeline.Interrupter
	log       *logger.Manager
}

// New constructs an uninitialized Registry bound to cfg and log.
func New(cfg *config.Config, log *logger.Manager) *Registry {
	return &Registry{cameras: make(map[int]*entry), cfg: cfg, log: log}
}

// Initialize is idempotent: a second call is equivalent to the first. It
// creates the interruption channel and Delivery Pool once, then marks the
// system initialized.
func (r *Registry) Initialize() camerr.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return camerr.OK
	}
	r.pool = pool.New(r.cfg.PoolSize())
	r.interrupt = pipeline.NewInterrupter()
	r.initialized = true
	return camerr.OK
}

// Pool exposes the Delivery Pool for the public API's Release.
func (r *Registry) Pool() *pool.Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pool
}

// AddCameraParams carries everything AddCamera needs beyond the id/url,
// keeping the function signature from growing unwieldy as callback/context
// plumbing is layered on by the public API.
type AddCameraParams struct {
	URL       string
	TargetFPS float64
	StatusCB  pipeline.StatusCallback
	FrameCB   pipeline.FrameCallback

	// MediaOpener overrides the Media Library Facade's Open function, for
	// tests that substitute a fake media.Input instead of reaching a real
	// camera.
	MediaOpener func(ctx context.Context, url string, opts media.Options) (media.Input, error)
}

// AddCamera rejects uninitialized, an empty URL, and a
// currently-registered id; otherwise it builds the pipeline, inserts it
// into the mapping, and starts the worker.
func (r *Registry) AddCamera(id int, p AddCameraParams) camerr.Code {
	if p.URL == "" {
		return camerr.InvalidURL
	}

	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return camerr.NotInitialized
	}
	if _, exists := r.cameras[id]; exists {
		r.mu.Unlock()
		return camerr.AlreadyInUse
	}

	pl := pipeline.New(pipeline.Options{
		CameraID:    id,
		URL:         p.URL,
		TargetFPS:   p.TargetFPS,
		StatusCB:    p.StatusCB,
		FrameCB:     p.FrameCB,
		Pool:        r.pool,
		Logger:      r.log,
		Config:      r.cfg,
		Interrupt:   r.interrupt,
		MediaOpener: p.MediaOpener,
	})

	e := &entry{pl: pl, done: make(chan struct{})}
	r.cameras[id] = e
	r.mu.Unlock()

	// Stale interruption notifications need no explicit drain here: the
	// worker snapshots the Interrupter's epoch fresh at each connect, so a
	// Notify meant for a camera stopped moments ago is invisible to this
	// one's blocking calls.
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	started := make(chan struct{})
	go func() {
		close(started)
		defer close(e.done)
		pl.Run(ctx)
	}()
	<-started

	return camerr.OK
}

// StopCamera sets stop_requested, posts an interruption notification, and
// immediately removes the entry from the mapping, releasing the id for
// reuse before the worker has necessarily exited. It then waits up to
// StopTimeout in 100ms increments for the worker to finish.
func (r *Registry) StopCamera(id int) camerr.Code {
	r.mu.Lock()
	e, ok := r.cameras[id]
	if !ok {
		r.mu.Unlock()
		return camerr.NotFound
	}
	delete(r.cameras, id) // id is reusable from this instant on
	r.mu.Unlock()

	e.pl.StopRequested.Store(true)
	if r.interrupt != nil {
		r.interrupt.Notify()
	}
	e.cancel()

	r.waitBounded(e.done, r.stopTimeout())
	return camerr.OK
}

func (r *Registry) stopTimeout() time.Duration {
	if r.cfg != nil && r.cfg.StopTimeout > 0 {
		return r.cfg.StopTimeout
	}
	return 3 * time.Second
}

// waitBounded waits up to timeout, in 100ms increments, for done to close.
// The increments exist so a caller polling higher-level cancellation (there
// is none here beyond ctx, already canceled) could interleave.
func (r *Registry) waitBounded(done <-chan struct{}, timeout time.Duration) bool {
	const tick = 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		select {
		case <-done:
			return true
		case <-time.After(tick):
		}
		if time.Now().After(deadline) {
			select {
			case <-done:
				return true
			default:
				return false
			}
		}
	}
}

// Shutdown snapshots all entries, signals every worker, clears the
// mapping, and joins workers one-by-one with the same bounded wait (any overrun is simply left to exit asynchronously, its
// context is already canceled), closes the interruption channel, destroys
// the Delivery Pool, and marks the system uninitialized.
func (r *Registry) Shutdown() camerr.Code {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return camerr.OK
	}
	snapshot := make([]*entry, 0, len(r.cameras))
	for _, e := range r.cameras {
		snapshot = append(snapshot, e)
	}
	r.cameras = make(map[int]*entry)
	interrupt := r.interrupt
	p := r.pool
	r.interrupt = nil
	r.pool = nil
	r.initialized = false
	r.mu.Unlock()

	for _, e := range snapshot {
		e.pl.StopRequested.Store(true)
	}
	if interrupt != nil {
		interrupt.Notify()
	}
	for _, e := range snapshot {
		e.cancel()
	}
	timeout := r.stopTimeout()
	for _, e := range snapshot {
		r.waitBounded(e.done, timeout)
	}

	if interrupt != nil {
		interrupt.Close()
	}
	if p != nil {
		if held := p.Destroy(); held > 0 && r.log != nil {
			lg := r.log.For(-1)
			lg.Warn().Int("held_slots", held).Msg("pool destroyed with outstanding frames")
		}
	}

	return camerr.OK
}

// Count reports the number of currently-registered cameras, for tests.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cameras)
}
