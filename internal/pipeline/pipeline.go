package pipeline

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/BrunoKrugel/camerapipeline/internal/config"
)

// Run is the Camera Pipeline worker's entire lifetime: the state machine
// loop Connecting -> Connected -> Disconnected -> WaitingReconnect
// -> Reconnecting -> Connected ..., exiting to Stopped whenever
// StopRequested is observed. Run blocks until the worker exits; callers run
// it in its own goroutine (the Registry does).
func (p *Pipeline) Run(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	go p.watchStop(ctx, cancel)

	p.setState(StateConnecting, "starting")

	for {
		if p.StopRequested.Load() {
			p.teardown()
			p.setState(StateStopped, "stop requested")
			return
		}

		switch p.state {
		case StateConnecting:
			input, info, err := p.connect(ctx)
			if err != nil {
				if p.StopRequested.Load() || errors.Is(err, errStopRequested) || ctx.Err() != nil {
					// Open-input retries honor stop_requested between
					// attempts; connect never gives up on its own.
					p.teardown()
					p.setState(StateStopped, "stop requested during connect")
					return
				}
				// find_video_stream failed after a successful open: tear
				// down and take the generic reconnect path.
				p.setState(StateDisconnected, err.Error())
				continue
			}
			p.onConnected(input, info)
			p.setState(StateConnected, "connected")

		case StateConnected:
			reason := p.pump(ctx)
			p.closeInput()
			if p.StopRequested.Load() {
				p.teardown()
				p.setState(StateStopped, "stop requested")
				return
			}
			p.setState(StateDisconnected, reason.Error())

		case StateDisconnected:
			p.reconnectAttempt++
			delay := backoffDelay(p.cfg, p.reconnectAttempt)
			p.setState(StateWaitingReconnect, formatWaiting(delay, p.reconnectAttempt))
			if stopped := p.sleepChunked(ctx, delay); stopped {
				p.teardown()
				p.setState(StateStopped, "stop requested while waiting to reconnect")
				return
			}
			p.setState(StateReconnecting, "reconnecting")
			p.state = StateConnecting

		default:
			p.state = StateConnecting
		}
	}
}

// watchStop cancels ctx as soon as StopRequested is set, so any blocking
// retry-go/media-backend call bound to ctx unblocks immediately rather than
// waiting for its own poll tick. Shared-Interrupter notifies are NOT routed
// through ctx: a notify aimed at stopping another camera must only wake
// this pipeline's blocking calls (through the per-call interrupt hooks) for
// a stop-aware recheck, never cancel it outright.
func (p *Pipeline) watchStop(ctx context.Context, cancel context.CancelFunc) {
	t := time.NewTicker(20 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if p.StopRequested.Load() {
				cancel()
				return
			}
		}
	}
}

func (p *Pipeline) setState(s State, message string) {
	p.state = s
	if p.statusCB != nil {
		p.statusCB(p.CameraID, s.StatusCode(), message)
	}
	if p.log != nil {
		lg := p.log.For(p.CameraID)
		lg.Info().Str("state", s.String()).Msg(message)
	}
}

func formatWaiting(delay time.Duration, attempt int) string {
	return "retrying in " + delay.String() + " (attempt " + strconv.Itoa(attempt) + ")"
}

// backoffDelay is the reconnect back-off schedule:
// clamp(base*attempts, min, max), defaults base=2, min=1s, max=30s.
func backoffDelay(cfg *config.Config, attempt int) time.Duration {
	base, minD, maxD := 2.0, time.Second, 30*time.Second
	if cfg != nil {
		base = cfg.Reconnect.BaseSeconds
		minD = cfg.Reconnect.MinDelay
		maxD = cfg.Reconnect.MaxDelay
	}
	d := time.Duration(base*float64(attempt)) * time.Second
	if d < minD {
		return minD
	}
	if d > maxD {
		return maxD
	}
	return d
}
