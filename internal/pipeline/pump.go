package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/media"
)

// pump is the Connected-state loop: it reads
// decoded frames (our facade collapses packet-read and frame-decode into
// one ReceiveFrame, see internal/media.Input), runs the skip decision,
// paces presentation, and dispatches to the pool/host. It returns the
// reason the loop exited Connected, always non-nil, since the only way
// out of Connected is EOF, an error, a stall, or a stop request.
func (p *Pipeline) pump(ctx context.Context) error {
	for {
		if p.StopRequested.Load() {
			return errStopRequested
		}

		if stallTimeout := p.stallTimeout; stallTimeout > 0 &&
			!p.lastActivityMonotonic.IsZero() &&
			time.Since(p.lastActivityMonotonic) > stallTimeout {
			if p.log != nil {
				lg := p.log.For(p.CameraID)
				lg.Error().
					Dur("since_last_activity", time.Since(p.lastActivityMonotonic)).
					Msg("stall detected")
			}
			return fmt.Errorf("stall detected: no activity for %s", time.Since(p.lastActivityMonotonic))
		}

		frame, err := p.input.ReceiveFrame(ctx)
		switch {
		case errors.Is(err, media.ErrAgain):
			continue
		case errors.Is(err, media.ErrCanceled):
			return errStopRequested
		case errors.Is(err, media.ErrEOF):
			return fmt.Errorf("end of stream")
		case err != nil:
			return fmt.Errorf("receive_frame: %w", err)
		}

		now := time.Now()
		p.onFrameReceived(now)
		p.frameProcessCnt++
		if p.log != nil {
			p.log.LogActivity(p.CameraID, logger.ActivityFrame, 0)
			p.log.LogHeartbeat(p.CameraID, "pump")
		}

		if !p.shouldSend(frame.PTSValid, frame.PTS) {
			continue
		}

		if stopped := p.pace(ctx, frame.PTSValid, frame.PTS); stopped {
			return errStopRequested
		}

		if err := p.dispatch(frame); err != nil {
			// Pool exhaustion or an allocation failure inside dispatch:
			// drop this frame, continue, never reconnect over it.
			p.logWarn("dispatch dropped frame: %v", err)
			continue
		}
		p.onFrameSent(time.Now())
	}
}
