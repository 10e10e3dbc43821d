// Package media is the Media Library Facade: a thin, well-defined
// interface over whichever native demux/decode/scale backend a camera's URL
// scheme calls for. Two backends are wired in, GStreamer via go-gst for
// rtsp://, rtmp://, and HLS sources, and an HTTP-MJPEG puller via resty for
// http(s):// sources, selected once per camera at Open and hidden behind
// the same Input interface so the Camera Pipeline never branches on
// protocol.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Sentinel results for ReceiveFrame-shaped calls, the Ok | Eof | Again |
// Err taxonomy of a demux/decode pull. Again means "no frame yet, not end
// of stream": the caller re-checks its own stop/stall state and pulls
// again.
var (
	ErrEOF      = errors.New("media: end of stream")
	ErrAgain    = errors.New("media: no frame ready, try again")
	ErrCanceled = errors.New("media: interrupted")
)

// PixelFormat identifies the layout of Frame.Pix. Only BGR24 is produced;
// the type exists so FrameDescriptor (internal/pool) can carry it opaquely.
type PixelFormat int

// BGR24 is the only pixel format the facade ever emits.
const BGR24 PixelFormat = 1

// Options configures how a backend opens an input: the low-latency and
// transport flags of the underlying library.
type Options struct {
	// RTSPOverTCP selects TCP transport for rtsp:// inputs.
	RTSPOverTCP bool
	// LowLatency sets rtspsrc's jitter-buffer latency to 0 for rtsp:// inputs.
	// No other decoder or probe setting is changed by it, and the MJPEG
	// backend does not read it.
	LowLatency bool
	// SocketTimeout bounds blocking reads/writes on the underlying socket.
	SocketTimeout time.Duration
	// HTTPPersistent requests keep-alive + reconnect for HTTP-backed transports.
	HTTPPersistent bool
	// TCPNoDelay records the caller's TCP_NODELAY preference. Neither backend
	// reads it; the MJPEG backend's connections come from Go's TCP dialer,
	// which disables Nagle's algorithm by default.
	TCPNoDelay bool
}

// DefaultOptions returns the live-camera defaults: RTSP/TCP, low latency,
// 10s socket timeout, persistent HTTP, TCP_NODELAY.
func DefaultOptions() Options {
	return Options{
		RTSPOverTCP:    true,
		LowLatency:     true,
		SocketTimeout:  10 * time.Second,
		HTTPPersistent: true,
		TCPNoDelay:     true,
	}
}

// StreamInfo is what FindVideoStream returns: enough to seed the
// Camera Pipeline's decoder setup and skip-ratio initialization.
type StreamInfo struct {
	Width            int
	Height           int
	TimeBaseSeconds  float64 // seconds per PTS tick; 0 when the source carries no PTS
	GuessedFrameRate float64 // 0 when the backend can't guess
}

// Frame is one decoded, BGR24-scaled video frame handed from a backend to
// the Camera Pipeline. Pix is owned by the backend until the next
// ReceiveFrame call (or Close), the pipeline must copy it (into a Delivery
// Pool slot) before returning to the pump loop.
type Frame struct {
	Width    int
	Height   int
	Stride   int
	Format   PixelFormat
	Pix      []byte
	PTS      int64 // stream time-base ticks; PTSValid=false means "no PTS"
	PTSValid bool
}

// Input is one open camera connection: demux + decode + scale collapsed
// behind a single pull, since go-gst's appsink (and the MJPEG backend's
// per-request fetch) don't expose a separable packet/frame step the way a
// raw libav binding would. The Camera Pipeline's packet/frame pump
// calls ReceiveFrame in a loop; backends that can report "no frame yet
// without having reached end of stream" return ErrAgain so the pump can
// re-check stop_requested without treating it as a reconnect signal.
type Input interface {
	// FindVideoStream blocks (briefly) until stream parameters are known.
	FindVideoStream(ctx context.Context) (StreamInfo, error)
	// ReceiveFrame blocks until a decoded, BGR24 frame is available, ctx is
	// canceled, the stream ends/errors, or the backend gives up for now with
	// ErrAgain (the GStreamer backend after one 100ms poll window without a
	// sample, the MJPEG backend on an empty or invalid body). The returned
	// Frame's Pix is only valid until the next call.
	ReceiveFrame(ctx context.Context) (*Frame, error)
	// RegisterInterrupt wires a poll hook into the backend's blocking calls.
	// Once hook returns true, the next pull returns ErrCanceled. The
	// GStreamer backend also stops its pipeline, so a pull already waiting
	// may end with ErrEOF instead; the MJPEG backend polls the hook only
	// before each fetch.
	RegisterInterrupt(hook func() bool)
	// Close releases demux/decode resources. Idempotent.
	Close() error
}

// Backend opens an Input for a URL. Exactly one Backend is selected per
// camera, by URL scheme, at Open.
type Backend interface {
	Open(ctx context.Context, rawURL string, opts Options) (Input, error)
}

// Open selects a backend by URL scheme and opens the input. RTSP, RTMP, and
// HLS (.m3u8 over http/https) sources go to the GStreamer backend; plain
// HTTP(S) sources go to the MJPEG backend.
func Open(ctx context.Context, rawURL string, opts Options) (Input, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("media: invalid url %q: %w", rawURL, err)
	}

	switch {
	case u.Scheme == "rtsp" || u.Scheme == "rtmp" || u.Scheme == "rtmps":
		return (&gstBackend{}).Open(ctx, rawURL, opts)
	case (u.Scheme == "http" || u.Scheme == "https") && strings.Contains(strings.ToLower(u.Path), ".m3u8"):
		return (&gstBackend{}).Open(ctx, rawURL, opts)
	case u.Scheme == "http" || u.Scheme == "https":
		return (&mjpegBackend{}).Open(ctx, rawURL, opts)
	default:
		return nil, fmt.Errorf("media: unsupported scheme %q", u.Scheme)
	}
}
