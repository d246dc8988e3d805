package media

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"signcap/codec"
)

const (
	chunkSize   = 64 * 1024
	stopTimeout = 5 * time.Second
)

type ffmpegContext struct {
	bin string

	formatsOnce sync.Once
	formats     []codec.Format
}

// NewContext returns a camera context that drives an ffmpeg subprocess per
// recording.
func NewContext(ffmpegPath string) (Context, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	bin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}
	return &ffmpegContext{bin: bin}, nil
}

func (c *ffmpegContext) Devices() ([]DeviceInfo, error) {
	return listDevices(c.bin)
}

func (c *ffmpegContext) formatsSupported() []codec.Format {
	c.formatsOnce.Do(func() {
		out, err := exec.Command(c.bin, "-hide_banner", "-encoders").Output()
		if err != nil {
			return
		}
		c.formats = codec.FromEncoders(parseEncoders(out))
	})
	return c.formats
}

func (c *ffmpegContext) Open(device *DeviceInfo, config CaptureConfig) (Stream, error) {
	if device == nil {
		devices, err := c.Devices()
		if err != nil {
			return nil, fmt.Errorf("enumerating cameras: %v: %w", err, ErrDeviceUnavailable)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no camera found: %w", ErrDeviceUnavailable)
		}
		device = &devices[0]
	}
	if err := checkDevice(device); err != nil {
		return nil, err
	}
	return &ffmpegStream{
		bin:     c.bin,
		device:  *device,
		config:  config,
		formats: c.formatsSupported(),
	}, nil
}

func (c *ffmpegContext) Close() {}

const (
	startGrace = 500 * time.Millisecond
	stderrTail = 4096
)

// Substrings of ffmpeg's stderr that mean the OS refused the camera.
var permissionHints = []string{
	"permission denied",
	"operation not permitted",
	"not authorized",
	"access denied",
	"access is denied",
}

type ffmpegStream struct {
	bin      string
	device   DeviceInfo
	config   CaptureConfig
	formats  []codec.Format
	callback atomic.Pointer[DataCallback]
	frames   atomic.Pointer[FrameCallback]

	mu      sync.Mutex
	rec     *ffmpegRun
	preview *ffmpegRun
	closed  bool
}

func (s *ffmpegStream) DeviceName() string      { return s.device.Name }
func (s *ffmpegStream) Config() CaptureConfig   { return s.config }
func (s *ffmpegStream) Formats() []codec.Format { return s.formats }

func (s *ffmpegStream) SetCallback(cb DataCallback) {
	s.callback.Store(&cb)
}

func (s *ffmpegStream) ClearCallback() {
	s.callback.Store(nil)
}

// SetFrameCallback starts a low rate preview process while no recording is
// running. Recordings carry a second preview output where the platform
// allows passing an extra pipe. A nil callback stops the preview.
func (s *ffmpegStream) SetFrameCallback(cb FrameCallback) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cb == nil {
		s.frames.Store(nil)
		s.stopPreviewLocked()
		return
	}
	s.frames.Store(&cb)
	if s.rec == nil {
		s.startPreviewLocked()
	}
}

func (s *ffmpegStream) frameCallback() FrameCallback {
	if cb := s.frames.Load(); cb != nil {
		return *cb
	}
	return nil
}

func (s *ffmpegStream) baseArgs() []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	return append(args, inputArgs(s.device, s.config)...)
}

// Start launches the capture and waits briefly so a camera that is refused
// or busy fails here rather than at Stop.
func (s *ffmpegStream) Start(format codec.Format) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("stream closed: %w", ErrDeviceUnavailable)
	}
	if s.rec != nil {
		s.mu.Unlock()
		return errors.New("capture already running")
	}
	s.stopPreviewLocked()

	args := s.baseArgs()
	args = append(args, "-an")
	args = append(args, encodeArgs(format)...)
	args = append(args, "pipe:1")

	var frames func(io.Reader)
	if s.frames.Load() != nil && runtime.GOOS != "windows" {
		args = append(args, previewArgs("pipe:3")...)
		frames = func(r io.Reader) { readFrames(r, s.frameCallback) }
	}

	r := newRun()
	if err := r.launch(s.bin, args, s.pump(r), frames); err != nil {
		s.startPreviewLocked()
		s.mu.Unlock()
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	s.rec = r
	s.mu.Unlock()

	select {
	case <-r.done:
		s.mu.Lock()
		if s.rec == r {
			s.rec = nil
			s.startPreviewLocked()
		}
		s.mu.Unlock()
		return captureError(s.device, r.err, r.stderr.String())
	case <-time.After(startGrace):
		return nil
	}
}

// pump forwards the encoded container to the data callback.
func (s *ffmpegStream) pump(r *ffmpegRun) func(io.Reader) {
	return func(stdout io.Reader) {
		buf := make([]byte, chunkSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				r.delivered.Add(int64(n))
				if cb := s.callback.Load(); cb != nil {
					chunk := make([]byte, n)
					copy(chunk, buf[:n])
					(*cb)(chunk)
				}
			}
			if err != nil {
				return
			}
		}
	}
}

// Stop asks ffmpeg to finish the container ("q" on stdin) and waits for the
// trailing bytes, killing the process if it does not exit in time. A capture
// that ended on its own, or failed before producing anything, is reported.
func (s *ffmpegStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.rec
	if r == nil {
		return nil
	}
	s.rec = nil

	exitedEarly := r.exited()
	r.finish(stopTimeout)
	s.startPreviewLocked()

	if exitedEarly || (r.err != nil && r.delivered.Load() == 0) {
		return captureError(s.device, r.err, r.stderr.String())
	}
	return nil
}

func (s *ffmpegStream) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()

	s.mu.Lock()
	s.stopPreviewLocked()
	s.mu.Unlock()
}

func (s *ffmpegStream) startPreviewLocked() {
	if s.closed || s.preview != nil || s.frames.Load() == nil {
		return
	}
	args := append(s.baseArgs(), previewArgs("pipe:1")...)
	r := newRun()
	if err := r.launch(s.bin, args, func(rd io.Reader) { readFrames(rd, s.frameCallback) }, nil); err != nil {
		return
	}
	s.preview = r
}

func (s *ffmpegStream) stopPreviewLocked() {
	if s.preview == nil {
		return
	}
	s.preview.finish(time.Second)
	s.preview = nil
}

func previewArgs(output string) []string {
	return []string{
		"-an",
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-2", previewFPS, previewWidth),
		"-c:v", "mjpeg", "-q:v", "8",
		"-f", "image2pipe", output,
	}
}

// ffmpegRun is one ffmpeg process. err holds the exit status once done is
// closed.
type ffmpegRun struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stderr    *tailBuffer
	done      chan struct{}
	err       error
	delivered atomic.Int64
}

func newRun() *ffmpegRun {
	return &ffmpegRun{stderr: &tailBuffer{max: stderrTail}, done: make(chan struct{})}
}

// launch starts the process. stdout is drained by out; when frames is set the
// process also gets fd 3 for a second output.
func (r *ffmpegRun) launch(bin string, args []string, out, frames func(io.Reader)) error {
	cmd := exec.Command(bin, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = r.stderr

	var frameR *os.File
	if frames != nil {
		pr, pw, err := os.Pipe()
		if err != nil {
			return err
		}
		defer pw.Close()
		cmd.ExtraFiles = []*os.File{pw}
		frameR = pr
	}

	if err := cmd.Start(); err != nil {
		if frameR != nil {
			frameR.Close()
		}
		return err
	}
	r.cmd = cmd
	r.stdin = stdin

	var wg sync.WaitGroup
	if frameR != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer frameR.Close()
			frames(frameR)
		}()
	}
	go func() {
		defer close(r.done)
		out(stdout)
		wg.Wait()
		r.err = cmd.Wait()
	}()
	return nil
}

func (r *ffmpegRun) exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// finish asks the process to quit and kills it after timeout.
func (r *ffmpegRun) finish(timeout time.Duration) {
	if !r.exited() {
		io.WriteString(r.stdin, "q\n")
	}
	r.stdin.Close()
	select {
	case <-r.done:
	case <-time.After(timeout):
		r.cmd.Process.Kill()
		<-r.done
	}
}

// captureError turns a failed ffmpeg run into ErrPermissionDenied or
// ErrDeviceUnavailable, keeping the last stderr line as detail.
func captureError(d DeviceInfo, exit error, stderr string) error {
	detail := lastLine(stderr)
	if detail == "" && exit != nil {
		detail = exit.Error()
	}
	if detail == "" {
		detail = "capture ended unexpectedly"
	}
	sentinel := ErrDeviceUnavailable
	lower := strings.ToLower(stderr)
	for _, hint := range permissionHints {
		if strings.Contains(lower, hint) {
			sentinel = ErrPermissionDenied
			break
		}
	}
	return fmt.Errorf("%s: %s: %w", d.Name, detail, sentinel)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

func encodeArgs(f codec.Format) []string {
	switch f.Name {
	case codec.VP9.Name:
		return []string{"-c:v", f.Encoder, "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1", "-b:v", "1M", "-f", "webm"}
	case codec.VP8.Name:
		return []string{"-c:v", f.Encoder, "-deadline", "realtime", "-cpu-used", "8", "-b:v", "1M", "-f", "webm"}
	case codec.H264.Name:
		return []string{"-c:v", f.Encoder, "-preset", "veryfast", "-tune", "zerolatency", "-pix_fmt", "yuv420p",
			"-movflags", "frag_keyframe+empty_moov+default_base_moof", "-f", "mp4"}
	default:
		return []string{"-c:v", f.Encoder, "-f", f.Container}
	}
}

// parseEncoders reads `ffmpeg -encoders` output and returns the video
// encoder names.
func parseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "---") {
			listing = true
			continue
		}
		if !listing {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

var (
	avfDeviceRe   = regexp.MustCompile(`\]\s+\[(\d+)\]\s+(.+)$`)
	dshowDeviceRe = regexp.MustCompile(`"([^"]+)"\s+\(video\)`)
)

func parseAVFoundationDevices(out []byte) []DeviceInfo {
	var devices []DeviceInfo
	sc := bufio.NewScanner(bytes.NewReader(out))
	inVideo := false
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.Contains(line, "AVFoundation video devices"):
			inVideo = true
			continue
		case strings.Contains(line, "AVFoundation audio devices"):
			inVideo = false
			continue
		}
		if !inVideo {
			continue
		}
		m := avfDeviceRe.FindStringSubmatch(line)
		if m == nil || strings.HasPrefix(m[2], "Capture screen") {
			continue
		}
		devices = append(devices, DeviceInfo{ID: m[1], Name: strings.TrimSpace(m[2])})
	}
	return devices
}

func parseDShowDevices(out []byte) []DeviceInfo {
	var devices []DeviceInfo
	for _, m := range dshowDeviceRe.FindAllStringSubmatch(string(out), -1) {
		devices = append(devices, DeviceInfo{ID: m[1], Name: m[1]})
	}
	return devices
}

type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
