package media

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func TestIsValidJPEGAcceptsWellFormedImage(t *testing.T) {
	data := encodeJPEG(t, 16, 16)
	assert.True(t, isValidJPEG(data))
}

func TestIsValidJPEGRejectsTooShort(t *testing.T) {
	assert.False(t, isValidJPEG([]byte{0xFF, 0xD8, 0xFF, 0xD9}))
}

func TestIsValidJPEGRejectsBadSOI(t *testing.T) {
	data := encodeJPEG(t, 16, 16)
	data[0] = 0x00
	assert.False(t, isValidJPEG(data))
}

func TestIsValidJPEGRejectsBadEOI(t *testing.T) {
	data := encodeJPEG(t, 16, 16)
	data[len(data)-1] = 0x00
	assert.False(t, isValidJPEG(data))
}

func TestMJPEGReceiveFrameFetchesDecodesAndScales(t *testing.T) {
	jpegBytes := encodeJPEG(t, 8, 4)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpegBytes)
	}))
	defer srv.Close()

	in, err := (&mjpegBackend{}).Open(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	defer in.Close()

	f, err := in.ReceiveFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, f.Width)
	assert.Equal(t, 4, f.Height)
	assert.Equal(t, BGR24, f.Format)
}

func TestMJPEGFindVideoStreamReportsDimensionsAndNoTimeBase(t *testing.T) {
	jpegBytes := encodeJPEG(t, 12, 6)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(jpegBytes)
	}))
	defer srv.Close()

	in, err := (&mjpegBackend{}).Open(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	defer in.Close()

	info, err := in.FindVideoStream(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, info.Width)
	assert.Equal(t, 6, info.Height)
	assert.Zero(t, info.TimeBaseSeconds)
}

func TestMJPEGReceiveFrameReturnsAgainOnGarbageBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte{0x01}, 2000))
	}))
	defer srv.Close()

	in, err := (&mjpegBackend{}).Open(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	defer in.Close()

	_, err = in.ReceiveFrame(context.Background())
	assert.ErrorIs(t, err, ErrAgain)
}

func TestMJPEGReceiveFrameReturnsErrorOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	in, err := (&mjpegBackend{}).Open(context.Background(), srv.URL, Options{SocketTimeout: time.Second})
	require.NoError(t, err)
	defer in.Close()

	_, err = in.ReceiveFrame(context.Background())
	assert.Error(t, err)
}

func TestMJPEGReceiveFrameHonorsRegisteredInterruptHook(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encodeJPEG(t, 4, 4))
	}))
	defer srv.Close()

	in, err := (&mjpegBackend{}).Open(context.Background(), srv.URL, DefaultOptions())
	require.NoError(t, err)
	defer in.Close()

	in.RegisterInterrupt(func() bool { return true })

	_, err = in.ReceiveFrame(context.Background())
	assert.ErrorIs(t, err, ErrCanceled)
}
