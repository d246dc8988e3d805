package media

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPreview struct {
	mu     sync.Mutex
	bound  Stream
	binds  int
	unbind int
}

func (p *recordingPreview) Bind(s Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = s
	p.binds++
}

func (p *recordingPreview) Unbind() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bound = nil
	p.unbind++
}

func TestAcquireBindsPreview(t *testing.T) {
	ctx := NewFakeContextData(nil, false)
	preview := &recordingPreview{}
	a := NewAcquisition(ctx, nil, CaptureConfig{}, preview)

	s, err := a.Acquire()
	require.NoError(t, err)
	assert.Same(t, s, preview.bound)
	assert.True(t, a.Held())
	assert.Equal(t, DefaultWidth, s.Config().Width)
	assert.Equal(t, DefaultHeight, s.Config().Height)
}

func TestReleaseTwiceIsNoop(t *testing.T) {
	ctx := NewFakeContextData(nil, false)
	preview := &recordingPreview{}
	a := NewAcquisition(ctx, nil, CaptureConfig{}, preview)

	_, err := a.Acquire()
	require.NoError(t, err)
	stream := ctx.LastStream()

	a.Release()
	assert.NotPanics(t, a.Release)

	assert.False(t, a.Held())
	assert.Equal(t, 1, stream.Closes())
	assert.Equal(t, 1, preview.unbind)
	assert.Nil(t, preview.bound)
}

func TestReleaseWithoutStream(t *testing.T) {
	a := NewAcquisition(NewFakeContextData(nil, false), nil, CaptureConfig{}, nil)
	assert.NotPanics(t, a.Release)
}

func TestReacquireReleasesPrevious(t *testing.T) {
	ctx := NewFakeContextData(nil, false)
	a := NewAcquisition(ctx, nil, CaptureConfig{}, nil)

	_, err := a.Acquire()
	require.NoError(t, err)
	first := ctx.LastStream()

	_, err = a.Acquire()
	require.NoError(t, err)
	second := ctx.LastStream()

	assert.Equal(t, 1, first.Closes())
	assert.Equal(t, 0, second.Closes())
	assert.Equal(t, 2, ctx.Opens())
}

func TestAcquireFailureHoldsNothing(t *testing.T) {
	ctx := NewFakeContextData(nil, false)
	a := NewAcquisition(ctx, nil, CaptureConfig{}, nil)

	_, err := a.Acquire()
	require.NoError(t, err)
	first := ctx.LastStream()

	ctx.SetOpenError(fmt.Errorf("/dev/video0: %w", ErrPermissionDenied))
	_, err = a.Acquire()
	require.ErrorIs(t, err, ErrPermissionDenied)

	assert.False(t, a.Held())
	assert.Equal(t, 1, first.Closes())
}
