package main

import (
	"fmt"
	"sync"
	"time"
)

// frameMeter turns the live preview into a frame rate on the device line.
type frameMeter struct {
	base string
	emit func(string)
	now  func() time.Time

	mu     sync.Mutex
	frames int
	since  time.Time
}

func newFrameMeter(base string, emit func(string)) *frameMeter {
	return &frameMeter{base: base, emit: emit, now: time.Now}
}

func (m *frameMeter) Frame([]byte) {
	m.mu.Lock()
	now := m.now()
	if m.since.IsZero() {
		m.since = now
	}
	m.frames++
	elapsed := now.Sub(m.since)
	if elapsed < time.Second {
		m.mu.Unlock()
		return
	}
	fps := float64(m.frames-1) / elapsed.Seconds()
	m.frames, m.since = 1, now
	m.mu.Unlock()

	m.emit(fmt.Sprintf("%s · live %.0f fps", m.base, fps))
}

func (m *frameMeter) Clear() {
	m.mu.Lock()
	m.frames, m.since = 0, time.Time{}
	m.mu.Unlock()
	m.emit(m.base)
}
