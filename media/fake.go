package media

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"signcap/codec"
)

const (
	fakeChunkSize     = 16 * 1024
	fakeChunkInterval = 100 * time.Millisecond
)

// FakeContext replays a video file as if it were a camera.
type FakeContext struct {
	data     []byte
	realtime bool

	mu       sync.Mutex
	formats  []codec.Format
	openErr  error
	startErr error
	stopErr  error
	gate     chan struct{}
	opens    atomic.Int32
	last     *FakeStream
}

func NewFakeContext(path string, realtime bool) (*FakeContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewFakeContextData(data, realtime), nil
}

func NewFakeContextData(data []byte, realtime bool) *FakeContext {
	return &FakeContext{data: data, realtime: realtime, formats: codec.Known}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake camera"}}, nil
}

func (f *FakeContext) Close() {}

// SetOpenError makes subsequent Open calls fail with err (nil clears it).
func (f *FakeContext) SetOpenError(err error) {
	f.mu.Lock()
	f.openErr = err
	f.mu.Unlock()
}

// SetStartError makes Start fail on streams opened from now on.
func (f *FakeContext) SetStartError(err error) {
	f.mu.Lock()
	f.startErr = err
	f.mu.Unlock()
}

// SetStopError makes Stop report err on streams opened from now on, as a
// camera that dropped out mid-recording would.
func (f *FakeContext) SetStopError(err error) {
	f.mu.Lock()
	f.stopErr = err
	f.mu.Unlock()
}

// SetGate holds every following Open until gate is closed. Opens counts the
// call before it blocks.
func (f *FakeContext) SetGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

func (f *FakeContext) SetFormats(formats []codec.Format) {
	f.mu.Lock()
	f.formats = formats
	f.mu.Unlock()
}

// Opens counts Open calls, including failed ones.
func (f *FakeContext) Opens() int { return int(f.opens.Load()) }

func (f *FakeContext) LastStream() *FakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func (f *FakeContext) Open(_ *DeviceInfo, config CaptureConfig) (Stream, error) {
	f.opens.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &FakeStream{
		data:     f.data,
		realtime: f.realtime,
		config:   config,
		formats:  f.formats,
		startErr: f.startErr,
		stopErr:  f.stopErr,
		feedDone: make(chan struct{}),
	}
	f.last = s
	return s, nil
}

type FakeStream struct {
	data     []byte
	realtime bool
	config   CaptureConfig
	formats  []codec.Format
	startErr error
	stopErr  error
	feedDone chan struct{}

	mu       sync.Mutex
	cb       DataCallback
	frameCb  FrameCallback
	gate     chan struct{}
	starts   atomic.Int32
	format   codec.Format
	running  bool
	stopCh   chan struct{}
	loopDone chan struct{}
	closes   int
}

func (f *FakeStream) DeviceName() string      { return "fake camera" }
func (f *FakeStream) Config() CaptureConfig   { return f.config }
func (f *FakeStream) Formats() []codec.Format { return f.formats }

// FeedDone closes once the whole file has been delivered.
func (f *FakeStream) FeedDone() <-chan struct{} { return f.feedDone }

func (f *FakeStream) SetCallback(cb DataCallback) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *FakeStream) ClearCallback() {
	f.mu.Lock()
	f.cb = nil
	f.mu.Unlock()
}

func (f *FakeStream) SetFrameCallback(cb FrameCallback) {
	f.mu.Lock()
	f.frameCb = cb
	f.mu.Unlock()
}

// EmitFrame delivers one preview frame if a frame callback is set.
func (f *FakeStream) EmitFrame(jpeg []byte) {
	f.mu.Lock()
	cb := f.frameCb
	f.mu.Unlock()
	if cb != nil {
		cb(jpeg)
	}
}

// HasFrameCallback reports whether a preview is attached.
func (f *FakeStream) HasFrameCallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frameCb != nil
}

// SetStartGate holds the next Start calls until gate is closed.
func (f *FakeStream) SetStartGate(gate chan struct{}) {
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
}

// Emit delivers one chunk to the callback as the camera would.
func (f *FakeStream) Emit(chunk []byte) {
	f.mu.Lock()
	cb := f.cb
	running := f.running
	f.mu.Unlock()
	if cb != nil && running {
		cb(chunk)
	}
}

func (f *FakeStream) Format() codec.Format {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.format
}

func (f *FakeStream) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *FakeStream) Closes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// Starts counts Start calls, including ones still held by the start gate.
func (f *FakeStream) Starts() int { return int(f.starts.Load()) }

func (f *FakeStream) Start(format codec.Format) error {
	f.starts.Add(1)
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	if f.closes > 0 {
		f.mu.Unlock()
		return errors.New("fake stream closed")
	}
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	f.format = format
	f.running = true
	f.stopCh = make(chan struct{})
	f.loopDone = make(chan struct{})
	stopCh, loopDone := f.stopCh, f.loopDone
	f.mu.Unlock()

	if !f.realtime {
		for pos := 0; pos < len(f.data); pos += fakeChunkSize {
			f.Emit(f.data[pos:min(pos+fakeChunkSize, len(f.data))])
		}
		f.closeFeedDone()
		close(loopDone)
		return nil
	}

	go func() {
		defer close(loopDone)
		for pos := 0; pos < len(f.data); pos += fakeChunkSize {
			select {
			case <-stopCh:
				return
			case <-time.After(fakeChunkInterval):
			}
			f.Emit(f.data[pos:min(pos+fakeChunkSize, len(f.data))])
		}
		f.closeFeedDone()
	}()
	return nil
}

func (f *FakeStream) closeFeedDone() {
	select {
	case <-f.feedDone:
	default:
		close(f.feedDone)
	}
}

func (f *FakeStream) Stop() error {
	f.mu.Lock()
	if !f.running || f.stopCh == nil {
		f.mu.Unlock()
		return nil
	}
	stopCh, loopDone := f.stopCh, f.loopDone
	f.stopCh = nil
	f.mu.Unlock()

	close(stopCh)
	<-loopDone

	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return f.stopErr
}

func (f *FakeStream) Close() {
	f.Stop()
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
}
