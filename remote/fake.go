package remote

import (
	"context"
	"sync/atomic"

	"signcap/recorder"
)

// FakeUploader returns URL, or Err when set. With Gate set, each call
// blocks until Gate yields or ctx ends.
type FakeUploader struct {
	URL  string
	Err  error
	Gate chan struct{}

	calls atomic.Int32
}

func NewFakeUploader(url string, err error) *FakeUploader {
	return &FakeUploader{URL: url, Err: err}
}

func (f *FakeUploader) Name() string { return "fake" }

func (f *FakeUploader) Calls() int { return int(f.calls.Load()) }

func (f *FakeUploader) Upload(ctx context.Context, clip *recorder.Clip) (*Upload, error) {
	f.calls.Add(1)
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, &UploadError{Reason: ctx.Err().Error(), Err: ctx.Err()}
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &Upload{SecureURL: f.URL, Bytes: clip.Size(), Metrics: &NetworkMetrics{}}, nil
}

type FakePredictor struct {
	Text       string
	Confidence *float64
	Err        error
	Gate       chan struct{}

	calls    atomic.Int32
	lastURL  atomic.Value
	lastKind atomic.Value
}

func NewFakePredictor(text string, confidence *float64, err error) *FakePredictor {
	return &FakePredictor{Text: text, Confidence: confidence, Err: err}
}

func (f *FakePredictor) Name() string { return "fake" }

func (f *FakePredictor) Calls() int { return int(f.calls.Load()) }

func (f *FakePredictor) LastURL() string {
	s, _ := f.lastURL.Load().(string)
	return s
}

func (f *FakePredictor) LastVariant() Variant {
	v, _ := f.lastKind.Load().(Variant)
	return v
}

func (f *FakePredictor) Predict(ctx context.Context, videoURL string, v Variant) (*Prediction, error) {
	f.calls.Add(1)
	f.lastURL.Store(videoURL)
	f.lastKind.Store(v)
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, &InferenceError{Reason: ctx.Err().Error(), Err: ctx.Err()}
		}
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return &Prediction{
		Translation: Translation{Text: f.Text, Confidence: f.Confidence},
		Variant:     v,
		Metrics:     &NetworkMetrics{},
	}, nil
}
