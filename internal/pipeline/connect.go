package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"

	"github.com/BrunoKrugel/camerapipeline/internal/media"
)

// connect opens the input, with TCP transport for rtsp:// and the
// low-latency option set, retrying unboundedly with
// linearly increasing back-off capped at 5s (openInputRetryCap),
// re-checking stop between attempts via ctx, built on retry-go's
// infinite-attempts + linear-backoff support the way
// api/pkg/extract/tika_extractor.go uses retry.Do, generalized from a fixed
// 3-attempt HTTP retry to an unbounded, context-bound one.
//
// No kind of open failure escalates out of the retry loop on its own: the
// pipeline never gives up connecting, only a stop request ends it (see
// DESIGN.md).
func (p *Pipeline) connect(ctx context.Context) (media.Input, media.StreamInfo, error) {
	opts := media.DefaultOptions()
	opts.RTSPOverTCP = strings.HasPrefix(strings.ToLower(p.URL), "rtsp://")
	if p.cfg != nil {
		opts.SocketTimeout = p.cfg.RTSPSocketTimeout
	}

	var input media.Input
	retryCap := 5 * time.Second
	if p.cfg != nil && p.cfg.OpenInputRetryCap > 0 {
		retryCap = p.cfg.OpenInputRetryCap
	}

	attempt := 0
	err := retry.Do(
		func() error {
			attempt++
			if p.StopRequested.Load() {
				return retry.Unrecoverable(errStopRequested)
			}
			in, err := p.mediaOpener(ctx, p.URL, opts)
			if err != nil {
				p.logWarn("open_input failed (attempt %d): %v", attempt, err)
				return err
			}
			input = in
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0), // unbounded
		retry.DelayType(linearDelay(retryCap)),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, media.StreamInfo{}, err
	}

	epoch := p.epochSnapshot()
	input.RegisterInterrupt(p.interrupt.hook(&p.StopRequested, epoch))

	info, err := input.FindVideoStream(ctx)
	if err != nil {
		// "on failure, tear down and reconnect", exit to the generic
		// Disconnected path rather than retrying inside Connecting.
		_ = input.Close()
		return nil, media.StreamInfo{}, fmt.Errorf("find_video_stream: %w", err)
	}

	if p.log != nil {
		p.log.LogHeartbeat(p.CameraID, "connect")
	}

	return input, info, nil
}

var errStopRequested = fmt.Errorf("stop requested")

// linearDelay produces retry-go's DelayTypeFunc for "linearly increasing,
// capped at cap": attempt*1s, clamped to cap.
func linearDelay(cap time.Duration) retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		d := time.Duration(n+1) * time.Second
		if d > cap {
			return cap
		}
		return d
	}
}

func (p *Pipeline) epochSnapshot() uint64 {
	if p.interrupt.shared == nil {
		return 0
	}
	return p.interrupt.shared.Epoch()
}

// onConnected is the decoder-setup step: cache time-base/guessed
// frame rate, clamp an out-of-range guess to 30 FPS, and initialize the
// skip ratio/count/accumulator.
func (p *Pipeline) onConnected(input media.Input, info media.StreamInfo) {
	p.input = input
	p.ptsTimeBase = info.TimeBaseSeconds

	guessed := info.GuessedFrameRate
	if guessed < 5 || guessed > 65 {
		p.sourceFPS = 30
	} else {
		p.sourceFPS = guessed
	}

	p.recomputeSkipRatio()
	p.skipAccumulator = 0

	now := time.Now()
	p.lastActivityMonotonic = now
	p.inputWindowStart = now
	p.outputWindowStart = now
	p.inputCount = 0
	p.outputCount = 0
	p.havePTSAnchor = false
	p.reconnectAttempt = 0
}

func (p *Pipeline) recomputeSkipRatio() {
	if p.targetFPS > 0 && p.sourceFPS > p.targetFPS {
		p.skipRatio = p.sourceFPS / math.Max(p.targetFPS, 1e-6)
	} else {
		p.skipRatio = 1.0
	}
	p.skipCount = int(math.Floor(p.skipRatio))
}

func (p *Pipeline) logWarn(format string, args ...any) {
	if p.log != nil {
		lg := p.log.For(p.CameraID)
		lg.Warn().Msgf(format, args...)
	}
}
