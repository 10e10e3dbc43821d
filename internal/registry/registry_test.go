package registry

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrunoKrugel/camerapipeline/internal/camerr"
	"github.com/BrunoKrugel/camerapipeline/internal/config"
	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/media"
)

// fakeInput is a media.Input that blocks ReceiveFrame until its context is
// canceled or the registered interrupt hook fires, simulating a camera that
// is connected and idle, exactly what stop_camera/shutdown must be able to
// unblock within their time budget.
type fakeInput struct {
	hook   atomic.Pointer[func() bool]
	closed atomic.Bool
}

func (f *fakeInput) FindVideoStream(ctx context.Context) (media.StreamInfo, error) {
	return media.StreamInfo{Width: 4, Height: 4, GuessedFrameRate: 30}, nil
}

func (f *fakeInput) ReceiveFrame(ctx context.Context) (*media.Frame, error) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		if h := f.hook.Load(); h != nil && (*h)() {
			return nil, media.ErrCanceled
		}
		select {
		case <-ctx.Done():
			return nil, media.ErrCanceled
		case <-ticker.C:
		}
	}
}

func (f *fakeInput) RegisterInterrupt(hook func() bool) { f.hook.Store(&hook) }

func (f *fakeInput) Close() error {
	f.closed.Store(true)
	return nil
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.StopTimeout = time.Second
	return cfg
}

func newTestRegistry(t *testing.T) *Registry {
	cfg := testConfig()
	log := logger.NewManager(t.TempDir(), 10, logger.LevelError, nil)
	r := New(cfg, log)
	require.Equal(t, camerr.OK, r.Initialize())
	return r
}

func fakeOpener(in *fakeInput) func(ctx context.Context, url string, opts media.Options) (media.Input, error) {
	return func(ctx context.Context, url string, opts media.Options) (media.Input, error) {
		return in, nil
	}
}

func TestAddCameraRejectsBeforeInitialize(t *testing.T) {
	cfg := testConfig()
	log := logger.NewManager(t.TempDir(), 10, logger.LevelError, nil)
	r := New(cfg, log)

	code := r.AddCamera(1, AddCameraParams{URL: "rtsp://example/stream"})
	assert.Equal(t, camerr.NotInitialized, code)
}

func TestAddCameraRejectsEmptyURL(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, camerr.InvalidURL, r.AddCamera(1, AddCameraParams{URL: ""}))
}

func TestAddCameraRejectsDuplicateID(t *testing.T) {
	r := newTestRegistry(t)
	in := &fakeInput{}
	params := AddCameraParams{URL: "rtsp://example/stream", MediaOpener: fakeOpener(in)}

	require.Equal(t, camerr.OK, r.AddCamera(1, params))
	assert.Equal(t, camerr.AlreadyInUse, r.AddCamera(1, params))

	r.StopCamera(1)
}

func TestStopCameraReleasesIDImmediatelyForReuse(t *testing.T) {
	r := newTestRegistry(t)
	in := &fakeInput{}
	params := AddCameraParams{URL: "rtsp://example/stream", MediaOpener: fakeOpener(in)}

	require.Equal(t, camerr.OK, r.AddCamera(1, params))
	require.Equal(t, 1, r.Count())

	assert.Equal(t, camerr.OK, r.StopCamera(1))
	assert.Equal(t, 0, r.Count(), "the id must be gone from the map as soon as StopCamera returns control to the caller path")

	// Round-trip law: add/stop/add must not return AlreadyInUse.
	in2 := &fakeInput{}
	params2 := AddCameraParams{URL: "rtsp://example/stream", MediaOpener: fakeOpener(in2)}
	assert.Equal(t, camerr.OK, r.AddCamera(1, params2))
	r.StopCamera(1)
}

func TestStopCameraOnUnknownIDReturnsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	assert.Equal(t, camerr.NotFound, r.StopCamera(42))
}

func TestShutdownJoinsAllWorkersAndDestroysPool(t *testing.T) {
	r := newTestRegistry(t)
	for id := 1; id <= 3; id++ {
		in := &fakeInput{}
		params := AddCameraParams{URL: "rtsp://example/stream", MediaOpener: fakeOpener(in)}
		require.Equal(t, camerr.OK, r.AddCamera(id, params))
	}

	require.Equal(t, 3, r.Count())
	assert.Equal(t, camerr.OK, r.Shutdown())
	assert.Equal(t, 0, r.Count())

	// A Pool obtained before Shutdown must now be unusable.
	p := r.Pool()
	assert.Nil(t, p)
}
