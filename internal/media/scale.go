package media

import "image"

// Scaler caches a destination BGR24 buffer keyed on (width, height) and
// reuses it across calls: the buffer is pre-allocated and rebuilt only
// when dimensions change. This is the MJPEG backend's scaler; the
// GStreamer backend already emits BGR24 through its own
// videoconvert/videoscale elements, so its frames pass straight to the
// pool without touching this type.
type Scaler struct {
	w, h int
	buf  []byte
}

// ToBGR converts img into a cached BGR24 Frame, reallocating buf only when
// img's bounds differ from the last call.
func (s *Scaler) ToBGR(img image.Image) *Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	stride := w * 3

	if s.w != w || s.h != h || len(s.buf) != stride*h {
		s.buf = make([]byte, stride*h)
		s.w, s.h = w, h
	}

	for y := 0; y < h; y++ {
		row := s.buf[y*stride : (y+1)*stride]
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x*3+0] = byte(bl >> 8)
			row[x*3+1] = byte(g >> 8)
			row[x*3+2] = byte(r >> 8)
		}
	}

	return &Frame{
		Width: w, Height: h, Stride: stride,
		Format: BGR24, Pix: s.buf,
		PTSValid: false,
	}
}
