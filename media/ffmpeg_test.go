package media

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signcap/codec"
)

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libvpx               libvpx VP8 (codec vp8)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestParseEncoders(t *testing.T) {
	enc := parseEncoders([]byte(encodersOutput))
	assert.True(t, enc["libx264"])
	assert.True(t, enc["libvpx-vp9"])
	assert.False(t, enc["aac"])
	assert.False(t, enc["="])
	assert.Equal(t, codec.Known, codec.FromEncoders(enc))
}

func TestParseAVFoundationDevices(t *testing.T) {
	out := `[AVFoundation indev @ 0x7f9] AVFoundation video devices:
[AVFoundation indev @ 0x7f9] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f9] [1] Capture screen 0
[AVFoundation indev @ 0x7f9] AVFoundation audio devices:
[AVFoundation indev @ 0x7f9] [0] MacBook Pro Microphone
`
	devices := parseAVFoundationDevices([]byte(out))
	assert.Equal(t, []DeviceInfo{{ID: "0", Name: "FaceTime HD Camera"}}, devices)
}

func TestParseDShowDevices(t *testing.T) {
	out := `[dshow @ 0000021] "Integrated Camera" (video)
[dshow @ 0000021]   Alternative name "@device_pnp_\\?\usb#vid"
[dshow @ 0000021] "Microphone Array" (audio)
`
	devices := parseDShowDevices([]byte(out))
	assert.Equal(t, []DeviceInfo{{ID: "Integrated Camera", Name: "Integrated Camera"}}, devices)
}

func TestEncodeArgsContainer(t *testing.T) {
	for _, f := range codec.Known {
		args := encodeArgs(f)
		assert.Contains(t, args, f.Encoder)
		assert.Equal(t, f.Container, args[len(args)-1])
	}
}

func TestTailBuffer(t *testing.T) {
	tb := &tailBuffer{max: 5}
	tb.Write([]byte("hello "))
	tb.Write([]byte("world"))
	assert.Equal(t, "world", tb.String())
}

// scriptStream returns a stream whose ffmpeg is a shell script.
func scriptStream(t *testing.T, script string) *ffmpegStream {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	bin := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"+script), 0o755))
	s := &ffmpegStream{bin: bin, device: DeviceInfo{ID: "/dev/video9", Name: "test cam"}}
	t.Cleanup(s.Close)
	return s
}

type collector struct {
	mu   sync.Mutex
	data bytes.Buffer
}

func (c *collector) add(chunk []byte) {
	c.mu.Lock()
	c.data.Write(chunk)
	c.mu.Unlock()
}

func (c *collector) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data.String()
}

func (s *ffmpegStream) recordingExited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec != nil && s.rec.exited()
}

func TestStartFailsWhenCameraRefused(t *testing.T) {
	s := scriptStream(t, `echo "[video4linux2,v4l2 @ 0x55] Cannot open video device /dev/video9: Permission denied" >&2
exit 1
`)
	err := s.Start(codec.VP8)
	require.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "test cam")
	assert.Contains(t, err.Error(), "Permission denied")

	// The failed run is gone; Stop has nothing to report.
	assert.NoError(t, s.Stop())
}

func TestStopReportsCameraLost(t *testing.T) {
	s := scriptStream(t, `printf chunk
sleep 1
echo "[video4linux2,v4l2 @ 0x55] ioctl(VIDIOC_DQBUF): Device or resource busy" >&2
exit 1
`)
	var got collector
	s.SetCallback(got.add)
	require.NoError(t, s.Start(codec.VP8))
	require.Eventually(t, s.recordingExited, 5*time.Second, 10*time.Millisecond)

	err := s.Stop()
	require.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.NotErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "Device or resource busy")
	assert.Equal(t, "chunk", got.String())
}

func TestStopCleanExit(t *testing.T) {
	s := scriptStream(t, `printf chunk
read line
exit 0
`)
	var got collector
	s.SetCallback(got.add)
	require.NoError(t, s.Start(codec.VP8))
	require.NoError(t, s.Stop())
	assert.Equal(t, "chunk", got.String())
	assert.NoError(t, s.Stop())
}

func TestStopWithoutOutputFails(t *testing.T) {
	s := scriptStream(t, `read line
echo "Error while opening encoder" >&2
exit 1
`)
	require.NoError(t, s.Start(codec.VP8))
	err := s.Stop()
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Contains(t, err.Error(), "Error while opening encoder")
}

func TestStreamFrames(t *testing.T) {
	s := scriptStream(t, `case "$*" in
*pipe:3*) printf chunk; printf '\377\330rec\377\331' >&3 ;;
*) printf 'noise\377\330idle\377\331' ;;
esac
read line
`)
	var (
		mu     sync.Mutex
		frames []string
	)
	seen := func(want string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, f := range frames {
				if f == want {
					return true
				}
			}
			return false
		}
	}
	s.SetFrameCallback(func(jpeg []byte) {
		mu.Lock()
		frames = append(frames, string(jpeg))
		mu.Unlock()
	})
	require.Eventually(t, seen("\xff\xd8idle\xff\xd9"), 5*time.Second, 10*time.Millisecond)

	var got collector
	s.SetCallback(got.add)
	require.NoError(t, s.Start(codec.VP8))
	require.Eventually(t, seen("\xff\xd8rec\xff\xd9"), 5*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.Equal(t, "chunk", got.String())

	s.SetFrameCallback(nil)
	s.mu.Lock()
	assert.Nil(t, s.preview)
	s.mu.Unlock()
}

func TestCaptureErrorClassification(t *testing.T) {
	d := DeviceInfo{Name: "cam"}
	assert.ErrorIs(t, captureError(d, nil, "[avfoundation @ 0x1] Not authorized to capture video"), ErrPermissionDenied)
	assert.ErrorIs(t, captureError(d, nil, "Could not run graph (sometimes caused by a device already in use by other application)"), ErrDeviceUnavailable)

	err := captureError(d, nil, "")
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
	assert.Equal(t, "cam: capture ended unexpectedly: "+ErrDeviceUnavailable.Error(), err.Error())
}
