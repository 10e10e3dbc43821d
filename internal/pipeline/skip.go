package pipeline

import "time"

// shouldSend is the frame-skip decision: two modes chosen by
// whether the frame carries a valid PTS.
func (p *Pipeline) shouldSend(ptsValid bool, pts int64) bool {
	if !ptsValid {
		return p.shouldSendNoPTS()
	}
	return p.shouldSendWithPTS(pts)
}

// shouldSendNoPTS: accumulate one skip unit; send when skip_ratio<=1 (send
// all) or when the accumulator has reached skip_ratio, subtracting it on
// send.
func (p *Pipeline) shouldSendNoPTS() bool {
	if p.skipRatio <= 1 {
		return true
	}
	p.skipAccumulator++
	if p.skipAccumulator >= p.skipRatio {
		p.skipAccumulator -= p.skipRatio
		return true
	}
	return false
}

// shouldSendWithPTS: send the first frame unconditionally; thereafter send
// iff the elapsed PTS-time since the last sent frame has reached the target
// interval (1/target_fps, else 1/source_fps, else ~0.033s).
func (p *Pipeline) shouldSendWithPTS(pts int64) bool {
	if !p.havePTSAnchor {
		return true
	}
	dt := float64(pts-p.lastSentPTS) * p.ptsTimeBase
	target := p.targetIntervalSeconds()
	return dt >= target
}

func (p *Pipeline) targetIntervalSeconds() float64 {
	if p.targetFPS > 0 {
		return 1.0 / p.targetFPS
	}
	if p.sourceFPS > 0 {
		return 1.0 / p.sourceFPS
	}
	return 0.033
}

func (p *Pipeline) targetInterval() time.Duration {
	return time.Duration(p.targetIntervalSeconds() * float64(time.Second))
}
