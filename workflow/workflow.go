package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"signcap/codec"
	"signcap/log"
	"signcap/media"
	"signcap/recorder"
	"signcap/remote"
)

const (
	DefaultMinDuration   = 3 * time.Second
	DefaultMaxDuration   = 30 * time.Second
	DefaultMaxImportSize = 100 << 20
)

type Uploader interface {
	Upload(ctx context.Context, clip *recorder.Clip) (*remote.Upload, error)
}

type Predictor interface {
	Predict(ctx context.Context, videoURL string, v remote.Variant) (*remote.Prediction, error)
}

// Previewer makes a finalized clip playable locally.
type Previewer interface {
	Publish(clip *recorder.Clip) (string, error)
	Remove(id uuid.UUID)
}

type Options struct {
	MinDuration   time.Duration // 0 disables the check
	MaxDuration   time.Duration // 0 disables the check and auto stop
	MaxImportSize int64
	Previewer     Previewer
	Observer      func(Snapshot)
}

// Snapshot is a consistent copy of the workflow for display.
type Snapshot struct {
	State        State
	Err          error
	Message      string
	Live         bool
	Elapsed      time.Duration
	AutoStopped  bool
	Clip         *recorder.Clip
	PreviewURL   string
	RemoteURL    string
	Variant      remote.Variant
	Result       *remote.Translation
	UploadStats  *remote.NetworkMetrics
	PredictStats *remote.NetworkMetrics
}

// Workflow drives one capture, upload and translate cycle at a time.
// Network stages run without the lock held; their results are dropped
// when a reset or close happened in the meantime.
type Workflow struct {
	acq  *media.Acquisition
	rec  *recorder.Recorder
	up   Uploader
	pred Predictor
	opts Options

	notifyMu sync.Mutex

	mu          sync.Mutex
	state       State
	err         error
	live        bool
	closed      bool
	gen         uint64
	acquiring   bool
	starting    bool
	stopping    bool
	uploading   bool
	predicting  bool
	resetting   bool
	cancel      context.CancelFunc
	autoStop    *time.Timer
	autoStopped bool
	clip        *recorder.Clip
	previewURL  string
	upload      *remote.Upload
	prediction  *remote.Prediction
}

func New(acq *media.Acquisition, rec *recorder.Recorder, up Uploader, pred Predictor, opts Options) *Workflow {
	if opts.MaxImportSize <= 0 {
		opts.MaxImportSize = DefaultMaxImportSize
	}
	return &Workflow{acq: acq, rec: rec, up: up, pred: pred, opts: opts}
}

// Open acquires the camera for the live preview.
func (w *Workflow) Open() error {
	w.mu.Lock()
	if err := w.checkLocked("open camera", Idle); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.acquiring || w.live {
		w.mu.Unlock()
		return ErrBusy
	}
	w.acquiring = true
	w.mu.Unlock()

	err := w.acquire()
	w.notify()
	return err
}

func (w *Workflow) acquire() error {
	_, err := w.acq.Acquire()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.acquiring = false
	if w.closed {
		w.acq.Release()
		return ErrClosed
	}
	if err != nil {
		w.failLocked(err)
		return err
	}
	w.live = true
	return nil
}

// Start begins recording on the live stream. The camera is started without
// the lock held.
func (w *Workflow) Start() error {
	w.mu.Lock()
	if err := w.checkLocked("start recording", Idle); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.acquiring || w.resetting || w.starting {
		w.mu.Unlock()
		return ErrBusy
	}
	s := w.acq.Stream()
	if s == nil {
		w.mu.Unlock()
		return ErrNoCamera
	}
	w.starting = true
	gen := w.gen
	w.mu.Unlock()

	err := w.rec.Start(s)

	w.mu.Lock()
	w.starting = false
	if gen != w.gen || w.closed {
		w.mu.Unlock()
		if err == nil {
			w.rec.Abort()
		}
		return ErrDiscarded
	}
	if err != nil {
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.state = Recording
	w.autoStopped = false
	if limit := w.opts.MaxDuration; limit > 0 {
		w.autoStop = time.AfterFunc(limit, func() { w.stopAfterLimit(gen) })
	}
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Workflow) stopAfterLimit(gen uint64) {
	w.mu.Lock()
	if gen != w.gen || w.state != Recording || w.stopping {
		w.mu.Unlock()
		return
	}
	w.autoStopped = true
	w.mu.Unlock()
	if err := w.Stop(); err != nil && !errors.Is(err, ErrDiscarded) && !errors.Is(err, ErrBusy) {
		log.Warnf("auto stop after %s: %v", w.opts.MaxDuration, err)
	}
}

// Stop finalizes the recording and releases the camera.
func (w *Workflow) Stop() error {
	w.mu.Lock()
	if err := w.checkLocked("stop recording", Recording); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.stopping {
		w.mu.Unlock()
		return ErrBusy
	}
	w.stopping = true
	w.stopTimerLocked()
	gen := w.gen
	w.mu.Unlock()

	clip, err := w.rec.Stop()

	w.mu.Lock()
	w.stopping = false
	if gen != w.gen {
		w.mu.Unlock()
		return ErrDiscarded
	}
	w.acq.Release()
	w.live = false
	if err != nil {
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.setClipLocked(clip)
	w.mu.Unlock()
	w.notify()
	return nil
}

// Import loads a video file in place of a recording.
func (w *Workflow) Import(path string) error {
	w.mu.Lock()
	if err := w.checkLocked("import file", Idle, Recorded); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.acquiring || w.resetting || w.starting {
		w.mu.Unlock()
		return ErrBusy
	}
	gen := w.gen
	w.mu.Unlock()

	clip, err := w.loadFile(path)

	w.mu.Lock()
	if gen != w.gen || w.closed {
		w.mu.Unlock()
		return ErrDiscarded
	}
	if w.state != Idle && w.state != Recorded {
		state := w.state
		w.mu.Unlock()
		return &StateError{Op: "import file", State: state}
	}
	w.acq.Release()
	w.live = false
	if err != nil {
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.setClipLocked(clip)
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Workflow) loadFile(path string) (*recorder.Clip, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &ClipError{Problem: ClipUnreadable, Err: err}
	}
	if fi.Size() > w.opts.MaxImportSize {
		return nil, &ClipError{Problem: ClipTooLarge, Detail: fmt.Sprintf("%d MiB, maximum %d MiB", fi.Size()>>20, w.opts.MaxImportSize>>20)}
	}
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, &ClipError{Problem: ClipUnreadable, Err: err}
	}
	if !strings.HasPrefix(mtype.String(), "video/") {
		return nil, &ClipError{Problem: ClipNotVideo, Detail: mtype.String()}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ClipError{Problem: ClipUnreadable, Err: err}
	}
	if len(data) == 0 {
		return nil, &ClipError{Problem: ClipEmpty}
	}
	ext := strings.TrimPrefix(mtype.Extension(), ".")
	format := codec.Format{Name: ext, Container: ext, MimeType: mtype.String()}
	return recorder.NewFileClip(filepath.Base(path), data, format), nil
}

// setClipLocked replaces the current clip and publishes it for playback.
func (w *Workflow) setClipLocked(clip *recorder.Clip) {
	w.removePreviewLocked()
	w.clip = clip
	w.upload = nil
	w.prediction = nil
	w.err = nil
	w.state = Recorded
	if w.opts.Previewer != nil && !clip.Empty() {
		if u, err := w.opts.Previewer.Publish(clip); err == nil {
			w.previewURL = u
		}
	}
}

func (w *Workflow) removePreviewLocked() {
	if w.opts.Previewer != nil && w.clip != nil && w.previewURL != "" {
		w.opts.Previewer.Remove(w.clip.ID)
	}
	w.previewURL = ""
}

// Translate uploads the current clip and asks for a prediction using the
// variant matching where the clip came from.
func (w *Workflow) Translate(ctx context.Context) error {
	w.mu.Lock()
	v := remote.VariantRecord
	if w.clip != nil && w.clip.Source == recorder.SourceFile {
		v = remote.VariantUpload
	}
	w.mu.Unlock()
	return w.TranslateVariant(ctx, v)
}

// TranslateVariant blocks until the clip is uploaded and predicted, or
// until the workflow is reset or closed.
func (w *Workflow) TranslateVariant(ctx context.Context, v remote.Variant) error {
	w.mu.Lock()
	if w.uploading || w.predicting {
		w.mu.Unlock()
		return ErrBusy
	}
	if err := w.checkLocked("translate", Recorded); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.clip == nil {
		w.mu.Unlock()
		return &StateError{Op: "translate", State: w.state}
	}
	clip := w.clip
	if err := w.validateLocked(clip); err != nil {
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.cancel = cancel
	w.uploading = true
	w.state = Uploading
	gen := w.gen
	w.mu.Unlock()
	w.notify()

	up, err := w.up.Upload(ctx, clip)

	w.mu.Lock()
	w.uploading = false
	if gen != w.gen {
		w.mu.Unlock()
		return ErrDiscarded
	}
	if err != nil {
		w.cancel = nil
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.upload = up
	w.predicting = true
	w.state = Processing
	w.mu.Unlock()
	w.notify()

	pred, err := w.pred.Predict(ctx, up.SecureURL, v)

	w.mu.Lock()
	w.predicting = false
	if gen != w.gen {
		w.mu.Unlock()
		return ErrDiscarded
	}
	w.cancel = nil
	if err != nil {
		w.failLocked(err)
		w.mu.Unlock()
		w.notify()
		return err
	}
	w.prediction = pred
	w.state = Succeeded
	w.mu.Unlock()
	w.notify()
	return nil
}

func (w *Workflow) validateLocked(clip *recorder.Clip) error {
	if clip.Empty() {
		return &ClipError{Problem: ClipEmpty}
	}
	if clip.Source != recorder.SourceCamera {
		return nil
	}
	// Allow for the encoder flushing slightly past the limit.
	if limit := w.opts.MinDuration; limit > 0 && clip.Duration < limit {
		return tooShort(clip.Duration, limit)
	}
	if limit := w.opts.MaxDuration; limit > 0 && clip.Duration > limit+time.Second {
		return tooLong(clip.Duration, limit)
	}
	return nil
}

// Reset discards the clip and result and reopens the camera.
func (w *Workflow) Reset() error {
	w.mu.Lock()
	if !w.closed && (w.resetting || w.acquiring || w.starting) {
		w.mu.Unlock()
		return ErrBusy
	}
	if err := w.checkLocked("reset", Recorded, Succeeded, Failed); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.uploading || w.predicting {
		w.mu.Unlock()
		return ErrBusy
	}
	w.resetting = true
	w.acquiring = true
	w.gen++
	w.clearLocked()
	w.mu.Unlock()
	w.notify()

	err := w.acquire()

	w.mu.Lock()
	w.resetting = false
	w.mu.Unlock()
	w.notify()
	return err
}

func (w *Workflow) clearLocked() {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.stopTimerLocked()
	w.removePreviewLocked()
	w.clip = nil
	w.upload = nil
	w.prediction = nil
	w.err = nil
	w.autoStopped = false
	w.state = Idle
}

// Close aborts in-flight work and releases the camera. Safe to call more
// than once.
func (w *Workflow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.gen++
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.stopTimerLocked()
	abort := w.state == Recording && !w.stopping
	w.removePreviewLocked()
	w.live = false
	w.mu.Unlock()

	if abort {
		w.rec.Abort()
	}
	w.acq.Release()
}

func (w *Workflow) checkLocked(op string, allowed ...State) error {
	if w.closed {
		return ErrClosed
	}
	for _, s := range allowed {
		if w.state == s {
			return nil
		}
	}
	return &StateError{Op: op, State: w.state}
}

// failLocked enters Failed and lets go of the camera. The recorder must
// already be stopped; stopping it may block on the camera.
func (w *Workflow) failLocked(err error) {
	w.stopTimerLocked()
	w.acq.Release()
	w.live = false
	w.err = err
	w.state = Failed
}

func (w *Workflow) stopTimerLocked() {
	if w.autoStop != nil {
		w.autoStop.Stop()
		w.autoStop = nil
	}
}

func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Workflow) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := Snapshot{
		State:       w.state,
		Err:         w.err,
		Message:     Message(w.err),
		Live:        w.live,
		AutoStopped: w.autoStopped,
		Clip:        w.clip,
		PreviewURL:  w.previewURL,
		Variant:     remote.VariantRecord,
	}
	if w.clip != nil && w.clip.Source == recorder.SourceFile {
		s.Variant = remote.VariantUpload
	}
	if w.state == Recording {
		s.Elapsed = w.rec.Elapsed()
	}
	if w.upload != nil {
		s.RemoteURL = w.upload.SecureURL
		s.UploadStats = w.upload.Metrics
	}
	if w.prediction != nil {
		t := w.prediction.Translation
		s.Result = &t
		s.Variant = w.prediction.Variant
		s.PredictStats = w.prediction.Metrics
	}
	return s
}

func (w *Workflow) notify() {
	if w.opts.Observer == nil {
		return
	}
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()
	w.opts.Observer(w.Snapshot())
}
