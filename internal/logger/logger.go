// Package logger is the per-camera Logger: a structured, thread-safe,
// lazily-created sink keyed by camera id, with level filtering, size-based
// rotation, and activity/heartbeat/stall counters.
//
// The Logger is built on github.com/rs/zerolog, wiring up a
// zerolog.ConsoleWriter plus a per-camera zerolog.Logger writing to a
// zerolog.MultiLevelWriter of (rotating file, shared console).
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Level is the sink's filter level; zerolog's own Level enum is reused
// directly rather than wrapped, since nothing about it needs hiding.
type Level = zerolog.Level

const (
	LevelError = zerolog.ErrorLevel
	LevelWarn  = zerolog.WarnLevel
	LevelInfo  = zerolog.InfoLevel
	LevelDebug = zerolog.DebugLevel
	LevelTrace = zerolog.TraceLevel
)

func init() {
	zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000000Z07:00" // microsecond resolution
}

// ActivityKind labels what log_activity measured, for the per-camera
// counters.
type ActivityKind string

const (
	ActivityPacket ActivityKind = "packet"
	ActivityFrame  ActivityKind = "frame"
	ActivitySend   ActivityKind = "send"
)

type counters struct {
	mu            sync.Mutex
	lastActivity  time.Time
	lastFrame     time.Time
	lastHeartbeat map[string]time.Time
}

// Manager owns one sink (and one counters block) per camera id, created
// lazily on first use, each guarded by its own mutex.
type Manager struct {
	dir       string
	rotateMax int64 // bytes
	level     Level
	console   io.Writer

	mu    sync.Mutex
	sinks map[int]*sink
}

type sink struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	written  int64
	logger   zerolog.Logger
	counters counters
}

// NewManager builds a Logger Manager. dir is created lazily per camera
// (files are opened on the first For/LogActivity/LogHeartbeat/
// CheckProcessingStall call for that camera, not at construction). rotateMB is the
// rotation threshold in megabytes; level is the active filter level.
func NewManager(dir string, rotateMB int64, level Level, console io.Writer) *Manager {
	if console == nil {
		console = os.Stdout
	}
	return &Manager{
		dir:       dir,
		rotateMax: rotateMB * 1024 * 1024,
		level:     level,
		console:   console,
		sinks:     make(map[int]*sink),
	}
}

func (m *Manager) sinkFor(cameraID int) *sink {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sinks[cameraID]; ok {
		return s
	}
	s := &sink{counters: counters{lastHeartbeat: make(map[string]time.Time)}}
	if err := m.openFileLocked(s, cameraID); err != nil {
		// Best-effort: the Logger never aborts the pipeline over its own
		// failures. Fall back to console-only.
		s.logger = zerolog.New(m.console).Level(m.level).With().Timestamp().
			Int("camera_id", cameraID).Logger()
	} else {
		s.logger = zerolog.New(zerolog.MultiLevelWriter(s, m.console)).Level(m.level).
			With().Timestamp().Int("camera_id", cameraID).Logger()
	}
	m.sinks[cameraID] = s
	return s
}

func (m *Manager) openFileLocked(s *sink, cameraID int) error {
	if m.dir == "" {
		return os.ErrInvalid
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(m.dir, fmt.Sprintf("camera-%d.log", cameraID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err == nil {
		s.written = info.Size()
	}
	s.file = f
	s.path = path
	return nil
}

// Write implements io.Writer for zerolog.MultiLevelWriter, rotating the
// underlying file when it crosses rotateMax.
func (s *sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return len(p), nil
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	return n, err
}

func (m *Manager) maybeRotate(cameraID int, s *sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil || s.written < m.rotateMax {
		return
	}
	s.file.Close()
	rotated := s.path + "." + time.Now().UTC().Format("20060102T150405.000000Z")
	_ = os.Rename(s.path, rotated)
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_TRUNC, 0o644)
	if err != nil {
		s.file = nil
		return
	}
	s.file = f
	s.written = 0
}

// For returns the zerolog.Logger for a camera id, creating its sink if
// necessary and rotating the backing file first if it's due.
func (m *Manager) For(cameraID int) zerolog.Logger {
	s := m.sinkFor(cameraID)
	m.maybeRotate(cameraID, s)
	return s.logger
}

// LogActivity updates the per-camera activity counters. kind/processingMs
// are logged at trace level for diagnostics; the counters themselves back
// CheckProcessingStall.
func (m *Manager) LogActivity(cameraID int, kind ActivityKind, processingMs float64) {
	s := m.sinkFor(cameraID)
	now := time.Now()
	s.counters.mu.Lock()
	s.counters.lastActivity = now
	if kind == ActivityFrame || kind == ActivitySend {
		s.counters.lastFrame = now
	}
	s.counters.mu.Unlock()
	s.logger.Trace().Str("kind", string(kind)).Float64("processing_ms", processingMs).Msg("activity")
}

// LogHeartbeat records component liveness.
func (m *Manager) LogHeartbeat(cameraID int, component string) {
	s := m.sinkFor(cameraID)
	s.counters.mu.Lock()
	s.counters.lastHeartbeat[component] = time.Now()
	s.counters.mu.Unlock()
	s.logger.Debug().Str("component", component).Msg("heartbeat")
}

// CheckProcessingStall reports a processing stall: true when either the last
// activity or the last frame is older than timeout. Until both an activity
// and a frame have been recorded for the camera it returns false.
func (m *Manager) CheckProcessingStall(cameraID int, timeout time.Duration) bool {
	s := m.sinkFor(cameraID)
	now := time.Now()
	s.counters.mu.Lock()
	defer s.counters.mu.Unlock()
	if s.counters.lastActivity.IsZero() || s.counters.lastFrame.IsZero() {
		return false
	}
	return now.Sub(s.counters.lastActivity) > timeout || now.Sub(s.counters.lastFrame) > timeout
}

// Close closes every open sink's backing file. Best-effort.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sinks {
		s.mu.Lock()
		if s.file != nil {
			_ = s.file.Close()
			s.file = nil
		}
		s.mu.Unlock()
	}
}
