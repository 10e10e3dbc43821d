package pipeline

// closeInput releases the current media input, and with it the backend's
// demux/decoder/scaler resources, if any. Safe to call when already closed.
func (p *Pipeline) closeInput() {
	if p.input != nil {
		_ = p.input.Close()
		p.input = nil
	}
}

// teardown releases all media resources on the way to Stopped.
func (p *Pipeline) teardown() {
	p.closeInput()
}

// LastInputFPS and LastOutputFPS expose the dual FPS accounting windows for
// diagnostics and tests.
func (p *Pipeline) LastInputFPS() float64  { return p.lastInputFPS }
func (p *Pipeline) LastOutputFPS() float64 { return p.lastOutputFPS }

// State exposes the pipeline's current state for diagnostics/tests.
func (p *Pipeline) State() State { return p.state }
