// Package camerapipeline is the public API: Initialize, AddCamera,
// StopCamera, Shutdown, and Release, plus the host callback types and the
// error codes a host checks against.
package camerapipeline

import (
	"github.com/rs/zerolog"

	"github.com/BrunoKrugel/camerapipeline/internal/camerr"
	"github.com/BrunoKrugel/camerapipeline/internal/config"
	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/pipeline"
	"github.com/BrunoKrugel/camerapipeline/internal/pool"
	"github.com/BrunoKrugel/camerapipeline/internal/registry"
)

// Error codes re-exported at the boundary.
const (
	OK                = int(camerr.OK)
	ErrNotInitialized = int(camerr.NotInitialized)
	ErrNotFound       = int(camerr.NotFound)
	ErrInvalidURL     = int(camerr.InvalidURL)
	ErrAlreadyInUse   = int(camerr.AlreadyInUse)
	ErrAllocFailed    = int(camerr.AllocFailed)
	ErrWorkerStart    = int(camerr.WorkerStartFailed)
	ErrWorkerStillRun = int(camerr.WorkerStillRunning)
)

// Status codes a StatusCallback receives, mirroring the host callback
// contract's state enum (internal/pipeline.State).
var (
	StatusConnecting       = pipeline.StateConnecting.StatusCode()
	StatusConnected        = pipeline.StateConnected.StatusCode()
	StatusDisconnected     = pipeline.StateDisconnected.StatusCode()
	StatusWaitingReconnect = pipeline.StateWaitingReconnect.StatusCode()
	StatusReconnecting     = pipeline.StateReconnecting.StatusCode()
	StatusStopped          = pipeline.StateStopped.StatusCode()
)

// FrameDescriptor is the host-visible snapshot of a delivered frame.
// Pix is a BGR24, tightly-strided buffer owned by the pool until Release.
type FrameDescriptor struct {
	CameraID      int
	Width, Height int
	PixelFormat   int
	PTS           int64
	Pix           []byte
	Stride        int
}

// Handle is the opaque token a host must pass back to Release exactly once
// per delivered frame.
type Handle = pool.Handle

// StatusCallback receives camera id, a wire status code, and a human-readable
// message. userCtx is whatever opaque value the host passed to AddCamera,
// handed back unmodified, Go doesn't need a void* for this, but the extra
// parameter is kept so the contract reads the same as the host-callback
// boundary it mirrors.
type StatusCallback func(cameraID int, statusCode int, message string, userCtx any)

// FrameCallback receives a Handle plus the FrameDescriptor snapshot, and the
// same opaque userCtx passed to AddCamera. The host must call Release(h)
// exactly once when done with the frame.
type FrameCallback func(h Handle, d FrameDescriptor, userCtx any)

// System is one running camera-ingest instance: a Registry plus the config
// and logger it was built with. Most hosts need exactly one; it is exported
// (rather than package-level singleton state) so tests can run several
// independent instances in one process.
type System struct {
	cfg *config.Config
	log *logger.Manager
	reg *registry.Registry
}

// New builds a System from cfg (nil selects config.Default()). It does not
// start anything, call Initialize next.
func New(cfg *config.Config) *System {
	if cfg == nil {
		cfg = config.Default()
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.NewManager(cfg.Logging.Dir, cfg.Logging.RotateThreshold, level, nil)
	return &System{cfg: cfg, log: log, reg: registry.New(cfg, log)}
}

// Initialize is idempotent: it allocates the Delivery Pool and the shared
// interruption channel once.
func (s *System) Initialize() int {
	return int(s.reg.Initialize())
}

// AddCamera registers a camera and starts its worker. targetFPS<=0 defaults
// to 1 FPS.
func (s *System) AddCamera(
	cameraID int,
	url string,
	targetFPS float64,
	statusCB StatusCallback,
	statusCtx any,
	frameCB FrameCallback,
	frameCtx any,
) int {
	code := s.reg.AddCamera(cameraID, registry.AddCameraParams{
		URL:       url,
		TargetFPS: targetFPS,
		StatusCB: func(id int, statusCode int, message string) {
			if statusCB != nil {
				statusCB(id, statusCode, message, statusCtx)
			}
		},
		FrameCB: func(h pool.Handle, d pool.Descriptor) {
			if frameCB != nil {
				frameCB(h, FrameDescriptor{
					CameraID:    d.CameraID,
					Width:       d.Width,
					Height:      d.Height,
					PixelFormat: d.PixelFormat,
					PTS:         d.PTS,
					Pix:         d.Pix,
					Stride:      d.Stride,
				}, frameCtx)
			}
		},
	})
	return int(code)
}

// StopCamera stops a camera's worker and releases its id for reuse.
func (s *System) StopCamera(cameraID int) int {
	return int(s.reg.StopCamera(cameraID))
}

// Shutdown stops every camera, destroys the pool, and closes the Logger.
func (s *System) Shutdown() int {
	code := s.reg.Shutdown()
	s.log.Close()
	return int(code)
}

// Release returns a delivered frame's pool slot.
// A stale, double-released, or foreign handle is a safe no-op that logs a
// warning.
func (s *System) Release(h Handle) bool {
	p := s.reg.Pool()
	if p == nil {
		return false
	}
	if !p.Release(h) {
		lg := s.log.For(-1)
		lg.Warn().
			Int("slot", h.Index).
			Str("generation", h.Generation.String()).
			Msg("release of a stale or already-released frame handle ignored")
		return false
	}
	return true
}
