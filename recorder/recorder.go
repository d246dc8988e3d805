package recorder

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"signcap/codec"
	"signcap/media"
)

var (
	ErrRecording    = errors.New("already recording")
	ErrNotRecording = errors.New("not recording")
)

// Recorder buffers the encoded chunks of one stream between Start and Stop.
type Recorder struct {
	prefs []codec.Format
	now   func() time.Time

	mu        sync.Mutex
	stream    media.Stream
	recording bool
	accepting bool
	chunks    [][]byte
	size      int
	format    codec.Format
	started   time.Time
}

func New(prefs []codec.Format) *Recorder {
	if len(prefs) == 0 {
		prefs = codec.DefaultPreference
	}
	return &Recorder{prefs: prefs, now: time.Now}
}

// Start begins buffering s. A nil stream is ignored.
func (r *Recorder) Start(s media.Stream) error {
	if s == nil {
		return nil
	}

	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return ErrRecording
	}
	format, err := codec.Select(r.prefs, s.Formats())
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.stream = s
	r.recording = true
	r.accepting = true
	r.chunks = nil
	r.size = 0
	r.format = format
	r.started = r.now()
	r.mu.Unlock()

	s.SetCallback(r.append)
	if err := s.Start(format); err != nil {
		s.ClearCallback()
		r.mu.Lock()
		r.reset()
		r.mu.Unlock()
		return fmt.Errorf("starting capture: %w", err)
	}
	return nil
}

func (r *Recorder) append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accepting {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	r.chunks = append(r.chunks, c)
	r.size += len(c)
}

// Stop waits for the stream to flush and returns the assembled clip. An
// empty recording yields an empty clip, not an error. A capture the camera
// ended on its own is discarded and its error returned.
func (r *Recorder) Stop() (*Clip, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	s := r.stream
	r.mu.Unlock()

	// The stream delivers its trailing chunks before Stop returns.
	stopErr := s.Stop()
	s.ClearCallback()

	r.mu.Lock()
	defer r.mu.Unlock()
	if stopErr != nil {
		r.reset()
		return nil, fmt.Errorf("capture failed: %w", stopErr)
	}

	data := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		data = append(data, c...)
	}
	clip := &Clip{
		ID:        uuid.New(),
		Data:      data,
		Format:    r.format,
		Source:    SourceCamera,
		Chunks:    len(r.chunks),
		Duration:  r.now().Sub(r.started),
		CreatedAt: r.now(),
	}
	r.reset()
	return clip, nil
}

// Abort stops the stream and discards the buffer.
func (r *Recorder) Abort() {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	s := r.stream
	r.accepting = false
	r.mu.Unlock()

	s.Stop()
	s.ClearCallback()

	r.mu.Lock()
	r.reset()
	r.mu.Unlock()
}

func (r *Recorder) reset() {
	r.stream = nil
	r.recording = false
	r.accepting = false
	r.chunks = nil
	r.size = 0
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

func (r *Recorder) Elapsed() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return 0
	}
	return r.now().Sub(r.started)
}

// Buffered reports the bytes and chunks collected so far.
func (r *Recorder) Buffered() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size, len(r.chunks)
}

func (r *Recorder) Format() codec.Format {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.format
}
