package media

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// mjpegBackend pulls one JPEG snapshot per ReceiveFrame call over HTTP:
// a persistent resty client with retries and timeouts, plus a JPEG sanity
// check (isValidJPEG) rejecting truncated bodies before decode.
type mjpegBackend struct{}

func (b *mjpegBackend) Open(ctx context.Context, rawURL string, opts Options) (Input, error) {
	rc := resty.New().
		SetTimeout(opts.SocketTimeout).
		SetHeader("Accept", "image/jpeg, multipart/x-mixed-replace").
		SetRetryCount(2).
		SetRetryWaitTime(50 * time.Millisecond).
		SetDisableWarn(true)

	transport := &http.Transport{
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: opts.SocketTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		DisableKeepAlives:     !opts.HTTPPersistent,
	}
	rc.SetTransport(transport)

	return &mjpegInput{client: rc, url: rawURL}, nil
}

type mjpegInput struct {
	client *resty.Client
	url    string
	hook   func() bool

	scaler Scaler
}

func (in *mjpegInput) RegisterInterrupt(hook func() bool) { in.hook = hook }

// FindVideoStream issues one fetch to learn the source's frame geometry.
// MJPEG-over-HTTP has no container-level stream info to ask for, so this
// just decodes the first frame. MJPEG snapshot pollers carry no native PTS, hence TimeBaseSeconds=0.
func (in *mjpegInput) FindVideoStream(ctx context.Context) (StreamInfo, error) {
	f, err := in.ReceiveFrame(ctx)
	if err != nil {
		return StreamInfo{}, err
	}
	return StreamInfo{Width: f.Width, Height: f.Height, TimeBaseSeconds: 0}, nil
}

// ReceiveFrame fetches one JPEG snapshot, validates it, decodes it, and
// scales (color-converts) it to BGR24 through the shared Scaler cache.
func (in *mjpegInput) ReceiveFrame(ctx context.Context) (*Frame, error) {
	if in.hook != nil && in.hook() {
		return nil, ErrCanceled
	}

	resp, err := in.client.R().SetContext(ctx).Get(in.url)
	if err != nil {
		return nil, fmt.Errorf("media/mjpeg: fetch: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("media/mjpeg: bad status %s", resp.Status())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, ErrAgain
	}
	if !isValidJPEG(body) {
		return nil, ErrAgain
	}

	img, err := jpeg.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("media/mjpeg: decode jpeg: %w", err)
	}

	return in.scaler.ToBGR(img), nil
}

func (in *mjpegInput) Close() error { return nil }

// isValidJPEG checks SOI/EOI markers and a minimum size, rejecting
// truncated or garbage bodies before they reach jpeg.Decode.
func isValidJPEG(data []byte) bool {
	if len(data) < 10 {
		return false
	}
	if data[0] != 0xFF || data[1] != 0xD8 {
		return false
	}
	if data[len(data)-2] != 0xFF || data[len(data)-1] != 0xD9 {
		return false
	}
	if len(data) < 1000 {
		return false
	}
	return true
}
