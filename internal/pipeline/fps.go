package pipeline

import "time"

// fpsWindow returns the configured FPS measurement window, defaulting to 5s.
func (p *Pipeline) fpsWindow() time.Duration {
	if p.cfg != nil && p.cfg.FPSWindow > 0 {
		return p.cfg.FPSWindow
	}
	return 5 * time.Second
}

// onFrameReceived accounts one decoded frame into the input-FPS window and
// adopts a new source_fps measurement when the window closes and the
// measured rate differs meaningfully from the stored one, recomputing the
// skip ratio.
func (p *Pipeline) onFrameReceived(now time.Time) {
	p.inputCount++
	p.lastActivityMonotonic = now

	window := p.fpsWindow()
	elapsed := now.Sub(p.inputWindowStart)
	if elapsed < window {
		return
	}

	measured := float64(p.inputCount) / elapsed.Seconds()
	first := p.lastInputFPS == 0
	if first || diffAbs(measured, p.sourceFPS) > 1.0 {
		p.sourceFPS = measured
		p.recomputeSkipRatio()
	}
	p.lastInputFPS = measured
	p.inputCount = 0
	p.inputWindowStart = now
}

// onFrameSent accounts one delivered frame into the output-FPS window,
// purely for observability. The two windows stay independent: output FPS
// never feeds back into skip decisions.
func (p *Pipeline) onFrameSent(now time.Time) {
	p.outputCount++
	window := p.fpsWindow()
	elapsed := now.Sub(p.outputWindowStart)
	if elapsed < window {
		return
	}
	p.lastOutputFPS = float64(p.outputCount) / elapsed.Seconds()
	p.outputCount = 0
	p.outputWindowStart = now
}

func diffAbs(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
