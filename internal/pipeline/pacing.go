package pipeline

import (
	"context"
	"math"
	"time"
)

// pace holds a PTS-bearing frame until its anchored presentation instant
// (sleeping when early, catching up when late), and falls back to
// frame-interval pacing for frames without a PTS. It returns stopped=true if the sleep was cut short by StopRequested
// or ctx cancellation, in which case the caller must not dispatch the
// frame.
func (p *Pipeline) pace(ctx context.Context, ptsValid bool, pts int64) (stopped bool) {
	now := time.Now()

	if !ptsValid {
		if !p.lastFrameSentMonotonic.IsZero() {
			remaining := p.targetInterval() - now.Sub(p.lastFrameSentMonotonic)
			if remaining > 0 {
				if p.sleepChunked(ctx, remaining) {
					return true
				}
			}
		}
		p.lastFrameSentMonotonic = time.Now()
		return false
	}

	if !p.havePTSAnchor {
		p.firstPTS = pts
		p.playbackAnchorMonotonic = now
		p.havePTSAnchor = true
	}

	ptsSec := float64(pts-p.firstPTS) * p.ptsTimeBase

	if math.Abs(ptsSec-p.lastSentPTSSec) > p.ptsJumpReset.Seconds() {
		p.playbackAnchorMonotonic = now
		p.firstPTS = pts
		ptsSec = 0
	}

	target := p.playbackAnchorMonotonic.Add(time.Duration(ptsSec * float64(time.Second)))
	lateness := now.Sub(target)

	switch {
	case lateness < -p.earlySleep:
		if p.sleepUntil(ctx, target) {
			return true
		}
	case lateness > p.latenessCatchup:
		// Too far behind the anchor to chase it frame-by-frame: re-anchor to
		// now rather than let the backlog (and this branch's lateness) grow
		// without bound on every subsequent frame.
		p.playbackAnchorMonotonic = now
		p.firstPTS = pts
		ptsSec = 0
	default:
		// within tolerance of the target: send immediately, no sleep.
	}

	p.lastSentPTSSec = ptsSec
	p.lastSentPTS = pts
	p.lastFrameSentMonotonic = time.Now()
	return false
}

// sleepUntil performs an interruptible absolute-monotonic sleep to target,
// re-checking StopRequested/ctx after every wake so pacing can never
// deadlock a stop request.
func (p *Pipeline) sleepUntil(ctx context.Context, target time.Time) bool {
	remaining := time.Until(target)
	if remaining <= 0 {
		return false
	}
	return p.sleepChunked(ctx, remaining)
}

// sleepChunked sleeps for d in small increments, returning true early if
// StopRequested becomes true or ctx is canceled.
func (p *Pipeline) sleepChunked(ctx context.Context, d time.Duration) bool {
	const chunk = 100 * time.Millisecond
	deadline := time.Now().Add(d)
	for {
		if p.StopRequested.Load() {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		wait := chunk
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return true
		case <-time.After(wait):
		}
	}
}
