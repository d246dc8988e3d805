package media

import (
	"bufio"
	"bytes"
	"io"
	"slices"
	"sync"
)

const (
	previewFPS   = 5
	previewWidth = 320
	maxFrameSize = 4 << 20
)

var (
	jpegStart = []byte{0xff, 0xd8}
	jpegEnd   = []byte{0xff, 0xd9}
)

// splitJPEG is a bufio.SplitFunc yielding whole JPEG images from an
// image2pipe MJPEG stream. Bytes outside an image are skipped.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegStart)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		// A marker may straddle the buffer boundary.
		return max(len(data)-1, 0), nil, nil
	}
	end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	end += start + len(jpegStart) + len(jpegEnd)
	return end, data[start:end], nil
}

// readFrames hands each image in r to the current callback until r ends.
func readFrames(r io.Reader, current func() FrameCallback) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxFrameSize)
	sc.Split(splitJPEG)
	for sc.Scan() {
		if cb := current(); cb != nil {
			cb(bytes.Clone(sc.Bytes()))
		}
	}
	io.Copy(io.Discard, r)
}

// FrameViewer shows preview frames. Clear is called when the camera goes
// away.
type FrameViewer interface {
	Frame(jpeg []byte)
	Clear()
}

// Previews is a PreviewSink that fans the frames of the bound stream out to
// every added viewer. Streams without frames leave the viewers clear.
type Previews struct {
	mu      sync.Mutex
	viewers []FrameViewer
	bound   FrameSource
}

func (p *Previews) Add(v FrameViewer) {
	p.mu.Lock()
	p.viewers = append(p.viewers, v)
	p.mu.Unlock()
}

func (p *Previews) Bind(s Stream) {
	fs, ok := s.(FrameSource)
	if !ok {
		return
	}
	p.mu.Lock()
	p.bound = fs
	p.mu.Unlock()
	fs.SetFrameCallback(p.frame)
}

func (p *Previews) Unbind() {
	p.mu.Lock()
	fs := p.bound
	p.bound = nil
	viewers := slices.Clone(p.viewers)
	p.mu.Unlock()

	if fs != nil {
		fs.SetFrameCallback(nil)
	}
	for _, v := range viewers {
		v.Clear()
	}
}

func (p *Previews) frame(jpeg []byte) {
	p.mu.Lock()
	viewers := slices.Clone(p.viewers)
	p.mu.Unlock()
	for _, v := range viewers {
		v.Frame(jpeg)
	}
}
