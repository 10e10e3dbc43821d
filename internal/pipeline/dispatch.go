package pipeline

import (
	"fmt"
	"time"

	"github.com/BrunoKrugel/camerapipeline/internal/logger"
	"github.com/BrunoKrugel/camerapipeline/internal/media"
)

// dispatch acquires a Delivery Pool slot (copying pixels into the slot's
// owned buffer) and invokes frame_cb. On any failure the frame is dropped
// and the pipeline keeps running.
func (p *Pipeline) dispatch(f *media.Frame) error {
	if p.pool == nil {
		return fmt.Errorf("no pool configured")
	}

	h, ok := p.pool.Acquire(f.Pix, f.Stride, f.Width, f.Height, int(f.Format), f.PTS, p.CameraID)
	if !ok {
		return fmt.Errorf("delivery pool exhausted")
	}
	d, ok := p.pool.Descriptor(h)
	if !ok {
		return fmt.Errorf("descriptor vanished immediately after acquire")
	}

	start := time.Now()
	if p.frameCB != nil {
		p.frameCB(h, d)
	}
	if p.log != nil {
		p.log.LogActivity(p.CameraID, logger.ActivitySend, float64(time.Since(start).Microseconds())/1000.0)
	}
	return nil
}
