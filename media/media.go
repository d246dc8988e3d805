package media

import (
	"errors"
	"fmt"

	"signcap/codec"
)

var (
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrDeviceUnavailable = errors.New("camera unavailable")
)

const (
	DefaultWidth     = 1280
	DefaultHeight    = 720
	DefaultFrameRate = 30
)

type DataCallback func(chunk []byte)

type CaptureConfig struct {
	Width     int
	Height    int
	FrameRate int
}

func (c CaptureConfig) Size() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

type Context interface {
	Devices() ([]DeviceInfo, error)
	Open(device *DeviceInfo, config CaptureConfig) (Stream, error)
	Close()
}

// Stream is an opened camera. Encoded chunks are delivered to the callback
// between Start and Stop; Stop returns only after the final chunk has been
// delivered. Stop reports a capture that ended on its own, wrapping
// ErrPermissionDenied or ErrDeviceUnavailable.
type Stream interface {
	DeviceName() string
	Config() CaptureConfig
	Formats() []codec.Format
	Start(format codec.Format) error
	Stop() error
	Close()
	SetCallback(cb DataCallback)
	ClearCallback()
}

// FrameCallback receives one JPEG encoded preview frame.
type FrameCallback func(jpeg []byte)

// FrameSource is implemented by streams that can show what the camera sees,
// while idle and while recording.
type FrameSource interface {
	SetFrameCallback(cb FrameCallback)
}

// PreviewSink displays a live stream.
type PreviewSink interface {
	Bind(s Stream)
	Unbind()
}
