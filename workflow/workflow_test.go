package workflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signcap/codec"
	applog "signcap/log"
	"signcap/media"
	"signcap/recorder"
	"signcap/remote"
)

type stateLog struct {
	mu     sync.Mutex
	states []State
}

func (l *stateLog) observe(s Snapshot) {
	l.mu.Lock()
	l.states = append(l.states, s.State)
	l.mu.Unlock()
}

func (l *stateLog) seen() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Compact(slices.Clone(l.states))
}

func newTestWorkflow(t *testing.T, up Uploader, pred Predictor, opts Options) (*Workflow, *media.FakeContext) {
	t.Helper()
	fc := media.NewFakeContextData(bytes.Repeat([]byte("v"), 40*1024), false)
	acq := media.NewAcquisition(fc, nil, media.CaptureConfig{}, nil)
	w := New(acq, recorder.New(nil), up, pred, opts)
	t.Cleanup(w.Close)
	return w, fc
}

func record(t *testing.T, w *Workflow) {
	t.Helper()
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())
	require.NoError(t, w.Stop())
}

func conf(v float64) *float64 { return &v }

func TestTranslateSucceeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/demo/video/upload", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"secure_url":"https://x/y.webm"}`)
	})
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://x/y.webm", r.URL.Query().Get("video_url"))
		io.WriteString(w, `{"prediction":"Hello","confidence":0.92}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	up := remote.NewCloudinary(remote.UploadConfig{BaseURL: srv.URL, CloudName: "demo", Preset: "p", Timeout: 5 * time.Second})
	pred := remote.NewPredictor(remote.InferenceConfig{BaseURL: srv.URL, Timeout: 5 * time.Second, Retries: 1})

	var log stateLog
	w, fc := newTestWorkflow(t, up, pred, Options{Observer: log.observe})

	require.NoError(t, w.Open())
	assert.True(t, w.Snapshot().Live)
	require.NoError(t, w.Start())
	assert.Equal(t, Recording, w.State())
	require.NoError(t, w.Stop())

	snap := w.Snapshot()
	assert.Equal(t, Recorded, snap.State)
	assert.False(t, snap.Live)
	assert.Equal(t, 40*1024, snap.Clip.Size())
	assert.Equal(t, 1, fc.LastStream().Closes(), "stop releases the camera")

	require.NoError(t, w.Translate(context.Background()))

	snap = w.Snapshot()
	require.Equal(t, Succeeded, snap.State)
	require.NotNil(t, snap.Result)
	assert.Equal(t, "Hello", snap.Result.Text)
	assert.Equal(t, "92%", snap.Result.ConfidenceLabel())
	assert.Equal(t, "https://x/y.webm", snap.RemoteURL)
	assert.Equal(t, remote.VariantRecord, snap.Variant)
	assert.Equal(t, 1, fc.Opens())

	assert.Equal(t, []State{Idle, Recording, Recorded, Uploading, Processing, Succeeded}, log.seen())
}

func TestUploadServerErrorFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := remote.NewCloudinary(remote.UploadConfig{BaseURL: srv.URL, CloudName: "demo", Timeout: 5 * time.Second})
	pred := remote.NewFakePredictor("Hello", nil, nil)
	w, fc := newTestWorkflow(t, up, pred, Options{})
	record(t, w)

	err := w.Translate(context.Background())
	var ue *remote.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)

	snap := w.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Contains(t, snap.Message, "500")
	assert.False(t, snap.Live)
	assert.Zero(t, pred.Calls(), "inference must not run after a failed upload")
	assert.Equal(t, 1, fc.Opens(), "camera is not re-acquired on failure")
}

func TestInferenceFailure(t *testing.T) {
	up := remote.NewFakeUploader("https://x/y.webm", nil)
	pred := remote.NewFakePredictor("", nil, &remote.InferenceError{StatusCode: 502, Reason: "Bad Gateway"})
	w, _ := newTestWorkflow(t, up, pred, Options{})
	record(t, w)

	err := w.Translate(context.Background())
	var ie *remote.InferenceError
	require.ErrorAs(t, err, &ie)

	snap := w.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "AI processing failed: 502 Bad Gateway", snap.Message)
	assert.Equal(t, "https://x/y.webm", pred.LastURL())
	assert.Nil(t, snap.Result)
}

func TestResetReacquiresOnce(t *testing.T) {
	up := remote.NewFakeUploader("https://x/y.webm", nil)
	pred := remote.NewFakePredictor("Hello", conf(0.92), nil)
	w, fc := newTestWorkflow(t, up, pred, Options{})
	record(t, w)
	require.NoError(t, w.Translate(context.Background()))
	first := fc.LastStream()

	require.NoError(t, w.Reset())

	snap := w.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.True(t, snap.Live)
	assert.Nil(t, snap.Result)
	assert.Nil(t, snap.Clip)
	assert.Empty(t, snap.RemoteURL)
	assert.Equal(t, 2, fc.Opens())
	assert.Equal(t, 1, first.Closes())
	assert.Zero(t, fc.LastStream().Closes())
}

func TestResetFromRecordedDiscardsClip(t *testing.T) {
	w, fc := newTestWorkflow(t, remote.NewFakeUploader("u", nil), remote.NewFakePredictor("", nil, nil), Options{})
	record(t, w)

	var se *StateError
	require.ErrorAs(t, w.Start(), &se, "record another goes through reset")

	require.NoError(t, w.Reset())
	assert.Equal(t, Idle, w.State())
	assert.Equal(t, 2, fc.Opens())
	require.NoError(t, w.Start())
}

func TestResetRejectedWhileIdle(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	require.NoError(t, w.Open())

	var se *StateError
	require.ErrorAs(t, w.Reset(), &se)
	assert.Equal(t, Idle, se.State)
	assert.Equal(t, 1, fc.Opens())
}

func TestNoUploadWithoutClip(t *testing.T) {
	up := remote.NewFakeUploader("u", nil)
	w, _ := newTestWorkflow(t, up, remote.NewFakePredictor("", nil, nil), Options{})
	require.NoError(t, w.Open())

	var se *StateError
	require.ErrorAs(t, w.Translate(context.Background()), &se)
	require.NoError(t, w.Start())
	require.ErrorAs(t, w.Translate(context.Background()), &se)

	assert.Zero(t, up.Calls())
	assert.Equal(t, Recording, w.State())
}

func TestConcurrentTranslateRejected(t *testing.T) {
	up := remote.NewFakeUploader("https://x/y.webm", nil)
	up.Gate = make(chan struct{})
	pred := remote.NewFakePredictor("Hello", nil, nil)
	w, _ := newTestWorkflow(t, up, pred, Options{})
	record(t, w)

	done := make(chan error, 1)
	go func() { done <- w.Translate(context.Background()) }()
	require.Eventually(t, func() bool { return w.State() == Uploading }, time.Second, time.Millisecond)

	assert.ErrorIs(t, w.Translate(context.Background()), ErrBusy)
	var se *StateError
	assert.ErrorAs(t, w.Reset(), &se)

	close(up.Gate)
	require.NoError(t, <-done)
	assert.Equal(t, Succeeded, w.State())
	assert.Equal(t, 1, up.Calls())
	assert.Equal(t, 1, pred.Calls())
}

func TestCloseDropsLateResult(t *testing.T) {
	up := remote.NewFakeUploader("https://x/y.webm", nil)
	pred := remote.NewFakePredictor("Hello", nil, nil)
	pred.Gate = make(chan struct{})
	w, _ := newTestWorkflow(t, up, pred, Options{})
	record(t, w)

	done := make(chan error, 1)
	go func() { done <- w.Translate(context.Background()) }()
	require.Eventually(t, func() bool { return w.State() == Processing }, time.Second, time.Millisecond)

	w.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDiscarded)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not cancel inference")
	}
	assert.Nil(t, w.Snapshot().Result)
	assert.ErrorIs(t, w.Reset(), ErrClosed)
	w.Close()
}

func TestOpenFailure(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	fc.SetOpenError(media.ErrPermissionDenied)

	err := w.Open()
	assert.ErrorIs(t, err, media.ErrPermissionDenied)

	snap := w.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Contains(t, snap.Message, "denied")
	assert.False(t, snap.Live)

	fc.SetOpenError(nil)
	require.NoError(t, w.Reset())
	assert.Equal(t, Idle, w.State())
	assert.True(t, w.Snapshot().Live)
	assert.Equal(t, 2, fc.Opens())
}

func TestEncodingUnsupported(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	fc.SetFormats([]codec.Format{{Name: "mjpeg", Container: "avi"}})
	require.NoError(t, w.Open())

	assert.ErrorIs(t, w.Start(), codec.ErrEncodingUnsupported)
	assert.Equal(t, Failed, w.State())
	assert.Equal(t, 1, fc.LastStream().Closes(), "entering failed releases the camera")
}

func TestClipValidation(t *testing.T) {
	t.Run("too short", func(t *testing.T) {
		up := remote.NewFakeUploader("u", nil)
		w, _ := newTestWorkflow(t, up, remote.NewFakePredictor("", nil, nil), Options{MinDuration: time.Hour})
		record(t, w)

		var ce *ClipError
		require.ErrorAs(t, w.Translate(context.Background()), &ce)
		assert.Equal(t, ClipTooShort, ce.Problem)
		assert.Equal(t, Failed, w.State())
		assert.Zero(t, up.Calls())
	})

	t.Run("empty", func(t *testing.T) {
		up := remote.NewFakeUploader("u", nil)
		fc := media.NewFakeContextData(nil, false)
		w := New(media.NewAcquisition(fc, nil, media.CaptureConfig{}, nil), recorder.New(nil), up, remote.NewFakePredictor("", nil, nil), Options{})
		defer w.Close()
		record(t, w)
		assert.True(t, w.Snapshot().Clip.Empty())

		var ce *ClipError
		require.ErrorAs(t, w.Translate(context.Background()), &ce)
		assert.Equal(t, ClipEmpty, ce.Problem)
		assert.Zero(t, up.Calls())
	})
}

func TestAutoStop(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{MaxDuration: 50 * time.Millisecond})
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())

	require.Eventually(t, func() bool { return w.State() == Recorded }, 2*time.Second, 5*time.Millisecond)
	snap := w.Snapshot()
	assert.True(t, snap.AutoStopped)
	assert.Equal(t, 40*1024, snap.Clip.Size())
	assert.Equal(t, 1, fc.LastStream().Closes())
}

// mp4Header is enough of an ISO base media file for content sniffing.
var mp4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImport(t *testing.T) {
	up := remote.NewFakeUploader("https://x/clip.mp4", nil)
	pred := remote.NewFakePredictor("Thank you", nil, nil)
	w, fc := newTestWorkflow(t, up, pred, Options{MinDuration: time.Hour})
	require.NoError(t, w.Open())

	data := append(slices.Clone(mp4Header), bytes.Repeat([]byte{0}, 1024)...)
	require.NoError(t, w.Import(writeFile(t, "hello.mp4", data)))

	snap := w.Snapshot()
	assert.Equal(t, Recorded, snap.State)
	assert.False(t, snap.Live)
	assert.Equal(t, recorder.SourceFile, snap.Clip.Source)
	assert.Equal(t, "hello.mp4", snap.Clip.FileName())
	assert.Equal(t, "video/mp4", snap.Clip.ContentType())
	assert.Equal(t, remote.VariantUpload, snap.Variant)
	assert.Equal(t, 1, fc.LastStream().Closes())

	require.NoError(t, w.Translate(context.Background()))
	assert.Equal(t, remote.VariantUpload, pred.LastVariant())
	assert.Equal(t, "Thank you", w.Snapshot().Result.Text)
}

func TestImportRejected(t *testing.T) {
	for _, tt := range []struct {
		name    string
		data    []byte
		limit   int64
		problem ClipProblem
	}{
		{"not video", []byte("just some text\n"), 0, ClipNotVideo},
		{"too large", append(slices.Clone(mp4Header), make([]byte, 64)...), 32, ClipTooLarge},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := newTestWorkflow(t, nil, nil, Options{MaxImportSize: tt.limit})
			err := w.Import(writeFile(t, "input", tt.data))

			var ce *ClipError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.problem, ce.Problem)
			assert.Equal(t, Failed, w.State())
		})
	}

	w, _ := newTestWorkflow(t, nil, nil, Options{})
	var ce *ClipError
	require.ErrorAs(t, w.Import(filepath.Join(t.TempDir(), "missing.mp4")), &ce)
	assert.Equal(t, ClipUnreadable, ce.Problem)
	assert.ErrorIs(t, ce, os.ErrNotExist)
}

func TestCloseReleasesWhileRecording(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())

	w.Close()
	assert.Equal(t, 1, fc.LastStream().Closes())
	assert.False(t, fc.LastStream().Running())
	assert.ErrorIs(t, w.Start(), ErrClosed)
	assert.ErrorIs(t, w.Stop(), ErrClosed)
	w.Close()
	assert.Equal(t, 1, fc.LastStream().Closes())
}

type fakePreviewer struct {
	mu        sync.Mutex
	published []uuid.UUID
	removed   []uuid.UUID
}

func (p *fakePreviewer) Publish(clip *recorder.Clip) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, clip.ID)
	return "http://127.0.0.1/clips/" + clip.ID.String(), nil
}

func (p *fakePreviewer) Remove(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removed = append(p.removed, id)
}

func TestPreviewLifecycle(t *testing.T) {
	pv := &fakePreviewer{}
	w, _ := newTestWorkflow(t, remote.NewFakeUploader("u", nil), remote.NewFakePredictor("", nil, nil), Options{Previewer: pv})
	record(t, w)

	snap := w.Snapshot()
	require.Len(t, pv.published, 1)
	assert.Equal(t, "http://127.0.0.1/clips/"+snap.Clip.ID.String(), snap.PreviewURL)

	require.NoError(t, w.Reset())
	assert.Equal(t, pv.published, pv.removed)
	assert.Empty(t, w.Snapshot().PreviewURL)
}

func TestOpenWhileAcquiringIsBusy(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	gate := make(chan struct{})
	fc.SetGate(gate)

	done := make(chan error, 1)
	go func() { done <- w.Open() }()
	require.Eventually(t, func() bool { return fc.Opens() == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, w.Open(), ErrBusy)
	assert.ErrorIs(t, w.Start(), ErrBusy)
	assert.ErrorIs(t, w.Reset(), ErrBusy)
	assert.Equal(t, Idle, w.State())

	close(gate)
	require.NoError(t, <-done)
	assert.True(t, w.Snapshot().Live)
	assert.Equal(t, 1, fc.Opens())
}

func TestResetWhileResettingIsBusy(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	fc.SetOpenError(media.ErrDeviceUnavailable)
	require.Error(t, w.Open())
	require.Equal(t, Failed, w.State())

	fc.SetOpenError(nil)
	gate := make(chan struct{})
	fc.SetGate(gate)

	done := make(chan error, 1)
	go func() { done <- w.Reset() }()
	require.Eventually(t, func() bool { return fc.Opens() == 2 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, w.Reset(), ErrBusy)
	assert.ErrorIs(t, w.Open(), ErrBusy)
	assert.ErrorIs(t, w.Start(), ErrBusy)
	assert.ErrorIs(t, w.Import(filepath.Join(t.TempDir(), "clip.mp4")), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, Idle, w.State())
	assert.True(t, w.Snapshot().Live)
	assert.Equal(t, 2, fc.Opens())
}

func TestStartDoesNotHoldLock(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	require.NoError(t, w.Open())
	s := fc.LastStream()
	gate := make(chan struct{})
	s.SetStartGate(gate)

	done := make(chan error, 1)
	go func() { done <- w.Start() }()
	require.Eventually(t, func() bool { return s.Starts() == 1 }, time.Second, time.Millisecond)

	snapped := make(chan Snapshot, 1)
	go func() { snapped <- w.Snapshot() }()
	select {
	case snap := <-snapped:
		assert.Equal(t, Idle, snap.State)
	case <-time.After(time.Second):
		t.Fatal("snapshot blocked while the camera was starting")
	}
	assert.ErrorIs(t, w.Start(), ErrBusy)
	assert.ErrorIs(t, w.Import(filepath.Join(t.TempDir(), "clip.mp4")), ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, Recording, w.State())
	assert.Equal(t, 1, s.Starts())
}

func TestCloseWhileStartingDiscards(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	require.NoError(t, w.Open())
	s := fc.LastStream()
	gate := make(chan struct{})
	s.SetStartGate(gate)

	done := make(chan error, 1)
	go func() { done <- w.Start() }()
	require.Eventually(t, func() bool { return s.Starts() == 1 }, time.Second, time.Millisecond)

	w.Close()
	close(gate)
	assert.ErrorIs(t, <-done, ErrDiscarded)
	assert.False(t, s.Running())
	assert.Equal(t, 1, s.Closes())
}

func TestCameraFailureWhileRecording(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	fc.SetStopError(fmt.Errorf("front camera: Permission denied: %w", media.ErrPermissionDenied))
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())

	err := w.Stop()
	assert.ErrorIs(t, err, media.ErrPermissionDenied)

	snap := w.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "Camera access was denied. Allow camera access and try again.", snap.Message)
	assert.Nil(t, snap.Clip)
	assert.False(t, snap.Live)
	assert.Equal(t, 1, fc.LastStream().Closes())
}

func TestCameraStartFailure(t *testing.T) {
	w, fc := newTestWorkflow(t, nil, nil, Options{})
	fc.SetStartError(fmt.Errorf("front camera: Device or resource busy: %w", media.ErrDeviceUnavailable))
	require.NoError(t, w.Open())

	assert.ErrorIs(t, w.Start(), media.ErrDeviceUnavailable)
	snap := w.Snapshot()
	assert.Equal(t, Failed, snap.State)
	assert.Equal(t, "No camera is available. Connect a camera or close other apps using it.", snap.Message)
	assert.Equal(t, 1, fc.LastStream().Closes())
}

func TestAutoStopCameraFailure(t *testing.T) {
	logDir := t.TempDir()
	applog.SetDir(logDir)
	require.NoError(t, applog.Init())
	t.Cleanup(func() { applog.Close(); applog.SetDir("") })

	w, fc := newTestWorkflow(t, nil, nil, Options{MaxDuration: 50 * time.Millisecond})
	fc.SetStopError(media.ErrDeviceUnavailable)
	require.NoError(t, w.Open())
	require.NoError(t, w.Start())

	require.Eventually(t, func() bool { return w.State() == Failed }, 2*time.Second, 5*time.Millisecond)
	snap := w.Snapshot()
	assert.True(t, snap.AutoStopped)
	assert.ErrorIs(t, snap.Err, media.ErrDeviceUnavailable)
	assert.Equal(t, 1, fc.LastStream().Closes())

	require.Eventually(t, func() bool {
		data, _ := os.ReadFile(filepath.Join(logDir, "diagnostics_log.txt"))
		return strings.Contains(string(data), "auto stop after 50ms")
	}, 2*time.Second, 10*time.Millisecond)
}
