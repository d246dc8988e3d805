package media

import "sync"

// Acquisition owns at most one open stream at a time.
type Acquisition struct {
	ctx     Context
	config  CaptureConfig
	preview PreviewSink

	mu     sync.Mutex
	device *DeviceInfo
	stream Stream
}

func NewAcquisition(ctx Context, device *DeviceInfo, config CaptureConfig, preview PreviewSink) *Acquisition {
	if config.Width == 0 || config.Height == 0 {
		config.Width, config.Height = DefaultWidth, DefaultHeight
	}
	if config.FrameRate == 0 {
		config.FrameRate = DefaultFrameRate
	}
	return &Acquisition{ctx: ctx, device: device, config: config, preview: preview}
}

// Acquire releases any held stream before opening a new one, so two device
// handles are never open together.
func (a *Acquisition) Acquire() (Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.releaseLocked()

	s, err := a.ctx.Open(a.device, a.config)
	if err != nil {
		return nil, err
	}
	a.stream = s
	if a.preview != nil {
		a.preview.Bind(s)
	}
	return s, nil
}

// Release is safe to call with nothing held.
func (a *Acquisition) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.releaseLocked()
}

func (a *Acquisition) releaseLocked() {
	if a.stream == nil {
		return
	}
	if a.preview != nil {
		a.preview.Unbind()
	}
	a.stream.ClearCallback()
	a.stream.Close()
	a.stream = nil
}

func (a *Acquisition) Stream() Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream
}

func (a *Acquisition) Held() bool {
	return a.Stream() != nil
}

// SetDevice takes effect on the next Acquire.
func (a *Acquisition) SetDevice(d *DeviceInfo) {
	a.mu.Lock()
	a.device = d
	a.mu.Unlock()
}

func (a *Acquisition) Device() *DeviceInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.device
}
