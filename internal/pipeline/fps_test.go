package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOnFrameReceivedAdoptsNewSourceFPSAfterWindow(t *testing.T) {
	p := newTestPipeline(10, 30)
	start := time.Now()
	p.inputWindowStart = start
	p.lastInputFPS = 30 // not the first measurement

	// Stay inside the window for the first 49 frames (no measurement yet),
	// then close it on the 50th with enough elapsed time to register.
	for i := 0; i < 49; i++ {
		p.onFrameReceived(start.Add(time.Millisecond))
	}
	assert.Equal(t, float64(30), p.sourceFPS, "no measurement should land before the window closes")

	p.onFrameReceived(start.Add(6 * time.Second))

	assert.InDelta(t, 50.0/6.0, p.sourceFPS, 0.01, "measured rate differs from stored source_fps by >1.0, so it must be adopted")
}

func TestOnFrameReceivedIgnoresSmallDeltaWithinWindow(t *testing.T) {
	p := newTestPipeline(10, 30)
	start := time.Now()
	p.lastInputFPS = 30
	p.inputWindowStart = start

	for i := 0; i < 179; i++ {
		p.onFrameReceived(start.Add(time.Millisecond))
	}
	// 180/6 == 30, matches stored source_fps exactly: must not be treated
	// as a meaningful change.
	p.onFrameReceived(start.Add(6 * time.Second))

	assert.Equal(t, 30.0, p.sourceFPS)
}

func TestOnFrameReceivedUpdatesLastActivity(t *testing.T) {
	p := newTestPipeline(10, 30)
	now := time.Now()
	p.onFrameReceived(now)
	assert.Equal(t, now, p.lastActivityMonotonic)
}

func TestOnFrameSentIsPurelyObservational(t *testing.T) {
	p := newTestPipeline(10, 30)
	ratioBefore := p.skipRatio
	p.outputWindowStart = time.Now().Add(-6 * time.Second)

	p.onFrameSent(p.outputWindowStart.Add(6 * time.Second))

	assert.Equal(t, ratioBefore, p.skipRatio, "output FPS accounting must never feed back into the skip ratio")
	assert.Greater(t, p.lastOutputFPS, 0.0)
}

func TestDiffAbs(t *testing.T) {
	assert.Equal(t, 1.0, diffAbs(2, 1))
	assert.Equal(t, 1.0, diffAbs(1, 2))
	assert.Equal(t, 0.0, diffAbs(5, 5))
}
