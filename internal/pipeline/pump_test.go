package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoKrugel/camerapipeline/internal/media"
	"github.com/BrunoKrugel/camerapipeline/internal/pool"
)

// fakeScriptedInput replays a fixed slice of frames, then returns a
// configured terminal error (typically media.ErrEOF) forever after,
// simulating a real decoder's packet/frame stream without GStreamer.
type fakeScriptedInput struct {
	info   media.StreamInfo
	frames []*media.Frame
	idx    int
	after  error
	hook   func() bool
	closed bool
}

func (f *fakeScriptedInput) FindVideoStream(ctx context.Context) (media.StreamInfo, error) {
	return f.info, nil
}

func (f *fakeScriptedInput) ReceiveFrame(ctx context.Context) (*media.Frame, error) {
	if f.hook != nil && f.hook() {
		return nil, media.ErrCanceled
	}
	if f.idx >= len(f.frames) {
		return nil, f.after
	}
	fr := f.frames[f.idx]
	f.idx++
	return fr, nil
}

func (f *fakeScriptedInput) RegisterInterrupt(hook func() bool) { f.hook = hook }
func (f *fakeScriptedInput) Close() error                       { f.closed = true; return nil }

func makeFrame(w, h int, ptsValid bool, pts int64) *media.Frame {
	stride := w * 3
	return &media.Frame{
		Width: w, Height: h, Stride: stride, Format: media.BGR24,
		Pix: make([]byte, stride*h), PTS: pts, PTSValid: ptsValid,
	}
}

func TestPumpAppliesSkipRatioDispatchesSurvivingFrameThenReturnsOnEOF(t *testing.T) {
	p := New(Options{CameraID: 1, URL: "test://cam", TargetFPS: 2, Pool: pool.New(4)})

	var delivered []pool.Descriptor
	p.frameCB = func(h pool.Handle, d pool.Descriptor) { delivered = append(delivered, d) }

	in := &fakeScriptedInput{
		info:  media.StreamInfo{Width: 4, Height: 2, GuessedFrameRate: 10},
		after: media.ErrEOF,
	}
	// source 10fps, target 2fps -> skip_ratio 5: only the 5th frame survives.
	for i := 0; i < 5; i++ {
		in.frames = append(in.frames, makeFrame(4, 2, false, 0))
	}
	p.onConnected(in, in.info)
	require.Equal(t, 5.0, p.skipRatio)

	err := p.pump(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "end of stream")
	require.Len(t, delivered, 1, "skip_ratio 5 over 5 frames must dispatch exactly once")
	assert.Equal(t, 4, delivered[0].Width)
	assert.Equal(t, 2, delivered[0].Height)
	assert.Equal(t, 1, delivered[0].CameraID)
}

func TestPumpSendsEveryPTSFrameThatMeetsTheTargetIntervalThenReturnsOnEOF(t *testing.T) {
	p := New(Options{CameraID: 7, URL: "test://cam", TargetFPS: 1, Pool: pool.New(4)})
	// large earlySleep keeps pace() in the "send now" branch instead of
	// actually sleeping until the next PTS-derived target, since real wall
	// time in this test never catches up to the scripted PTS stream.
	p.earlySleep = time.Hour

	var sent []int64
	p.frameCB = func(h pool.Handle, d pool.Descriptor) { sent = append(sent, d.PTS) }

	in := &fakeScriptedInput{
		info:  media.StreamInfo{Width: 2, Height: 2, TimeBaseSeconds: 1.0, GuessedFrameRate: 10},
		after: media.ErrEOF,
	}
	in.frames = []*media.Frame{
		makeFrame(2, 2, true, 0),
		makeFrame(2, 2, true, 1),
		makeFrame(2, 2, true, 2),
	}
	p.onConnected(in, in.info)
	require.Equal(t, 1.0, p.ptsTimeBase)

	err := p.pump(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "end of stream")
	assert.Equal(t, []int64{0, 1, 2}, sent, "each frame is exactly one target interval apart, so all three must be sent")
	assert.True(t, p.havePTSAnchor)
	assert.False(t, in.closed, "pump never closes the input itself, Run's closeInput does")
}

func TestPumpReturnsStoppedWhenStopRequestedBeforeReceivingAFrame(t *testing.T) {
	p := New(Options{CameraID: 1, URL: "test://cam", Pool: pool.New(4)})
	p.StopRequested.Store(true)

	in := &fakeScriptedInput{after: media.ErrEOF}
	p.onConnected(in, media.StreamInfo{})

	err := p.pump(context.Background())
	assert.ErrorIs(t, err, errStopRequested)
}

func TestPumpDropsFrameAndContinuesWhenPoolIsExhausted(t *testing.T) {
	p := New(Options{CameraID: 1, URL: "test://cam", TargetFPS: 100, Pool: pool.New(1)})

	var deliveries int
	p.frameCB = func(h pool.Handle, d pool.Descriptor) { deliveries++ }

	// Exhaust the single slot before pump runs, so Acquire fails for every
	// scripted frame and pump must drop-and-continue rather than treat it
	// as a reconnect-worthy error.
	h, ok := p.pool.Acquire(make([]byte, 12), 6, 2, 2, int(media.BGR24), 0, 1)
	require.True(t, ok)
	defer p.pool.Release(h)

	in := &fakeScriptedInput{
		info:  media.StreamInfo{Width: 2, Height: 2, GuessedFrameRate: 100},
		after: media.ErrEOF,
	}
	in.frames = []*media.Frame{makeFrame(2, 2, false, 0), makeFrame(2, 2, false, 0)}
	p.onConnected(in, in.info)

	err := p.pump(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "end of stream")
	assert.Zero(t, deliveries, "an exhausted pool must drop every frame, never invoke frame_cb")
}
