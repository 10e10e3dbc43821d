package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/BrunoKrugel/camerapipeline/internal/config"
	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/media"
	"github.com/BrunoKrugel/camerapipeline/internal/pool"
)

// StatusCallback is the host status contract, already resolved to a wire
// status code (0..5) plus a human-readable message.
type StatusCallback func(cameraID int, statusCode int, message string)

// FrameCallback is the host frame-delivery contract. h is the stable
// handle the host must Release exactly once; d is a snapshot of the
// descriptor's fields at delivery time.
type FrameCallback func(h pool.Handle, d pool.Descriptor)

// Options constructs one Pipeline.
type Options struct {
	CameraID  int
	URL       string
	TargetFPS float64 // <=0 means 1 FPS

	StatusCB StatusCallback
	FrameCB  FrameCallback

	Pool        *pool.Pool
	Logger      *logger.Manager
	Config      *config.Config
	Interrupt   *Interrupter
	MediaOpener func(ctx context.Context, url string, opts media.Options) (media.Input, error) // overridable for tests
}

// Pipeline is one camera's worker context, exclusively single-writer-owned:
// every field below the identity/control block is only ever touched by the
// worker goroutine running Run; Registry only reads CameraID/URL and writes
// StopRequested.
type Pipeline struct {
	// identity
	CameraID int
	URL      string

	// control, written by Registry, read by worker and interrupt hook
	StopRequested atomic.Bool

	statusCB StatusCallback
	frameCB  FrameCallback

	pool      *pool.Pool
	log       *logger.Manager
	cfg       *config.Config
	interrupt *Interrupt

	// flow control
	targetFPS        float64
	sourceFPS        float64
	skipRatio        float64
	skipCount        int
	skipAccumulator  float64
	frameProcessCnt  int64
	reconnectAttempt int

	// timing / pacing
	ptsTimeBase             float64
	firstPTS                int64
	playbackAnchorMonotonic time.Time
	lastSentPTS             int64
	lastSentPTSSec          float64
	lastFrameSentMonotonic  time.Time
	lastActivityMonotonic   time.Time
	havePTSAnchor           bool

	// FPS accounting windows
	inputCount        int64
	inputWindowStart  time.Time
	outputCount       int64
	outputWindowStart time.Time
	lastInputFPS      float64
	lastOutputFPS     float64

	// thresholds, copied out of cfg.Pacing for terse access
	earlySleep      time.Duration
	latenessCatchup time.Duration
	ptsJumpReset    time.Duration
	stallTimeout    time.Duration

	state State
	input media.Input

	mediaOpener func(ctx context.Context, url string, opts media.Options) (media.Input, error)
}

// Interrupt wraps the shared Interrupter; hook pairs it with the epoch
// snapshot taken at each connect, exposed to the media backends as a single
// poll hook.
type Interrupt struct {
	shared *Interrupter
}

// New builds a Pipeline from Options, ready to Run.
func New(o Options) *Pipeline {
	tf := o.TargetFPS
	if tf <= 0 {
		tf = 1
	}
	p := &Pipeline{
		CameraID:  o.CameraID,
		URL:       o.URL,
		statusCB:  o.StatusCB,
		frameCB:   o.FrameCB,
		pool:      o.Pool,
		log:       o.Logger,
		cfg:       o.Config,
		interrupt: &Interrupt{shared: o.Interrupt},
		targetFPS: tf,
		sourceFPS: 30, // replaced by the first real measurement
		skipRatio: 1.0,
		state:     StateConnecting,
	}
	if o.Config != nil {
		p.earlySleep = o.Config.Pacing.EarlySleepThreshold
		p.latenessCatchup = o.Config.Pacing.LatenessCatchup
		p.ptsJumpReset = o.Config.Pacing.PTSJumpResetThreshold
		p.stallTimeout = o.Config.Pacing.StallTimeout
	} else {
		p.earlySleep = 50 * time.Millisecond
		p.latenessCatchup = 200 * time.Millisecond
		p.ptsJumpReset = time.Second
		p.stallTimeout = 30 * time.Second
	}
	if o.MediaOpener != nil {
		p.mediaOpener = o.MediaOpener
	} else {
		p.mediaOpener = media.Open
	}
	return p
}

// hook is the interrupt poll function registered with every media.Input:
// true when this pipeline's stop was requested or the shared Interrupter
// has fired since snapshot.
func (ic *Interrupt) hook(stopRequested *atomic.Bool, snapshot uint64) func() bool {
	return func() bool {
		return stopRequested.Load() || (ic.shared != nil && ic.shared.Since(snapshot))
	}
}
