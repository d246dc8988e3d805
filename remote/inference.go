package remote

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

const DefaultInferenceBaseURL = "https://signai.fdiaznem.com.ar"

// Variant selects the prediction endpoint.
type Variant string

const (
	VariantRecord Variant = "record"
	VariantUpload Variant = "upload"
)

var DefaultPaths = map[Variant]string{
	VariantRecord: "/predict",
	VariantUpload: "/predict_gemini",
}

type InferenceConfig struct {
	BaseURL string
	Paths   map[Variant]string
	Timeout time.Duration
	Retries int
}

// Translation is a prediction returned by the inference endpoint.
type Translation struct {
	Text       string
	Confidence *float64 // nil when the endpoint sent none
}

func (t *Translation) HasConfidence() bool { return t.Confidence != nil }

func (t *Translation) ConfidencePercent() int {
	if t.Confidence == nil {
		return 0
	}
	return int(math.Round(*t.Confidence * 100))
}

// ConfidenceLabel is "92%" for a confidence of 0.92, empty without one.
func (t *Translation) ConfidenceLabel() string {
	if t.Confidence == nil {
		return ""
	}
	return fmt.Sprintf("%d%%", t.ConfidencePercent())
}

type Prediction struct {
	Translation Translation
	Variant     Variant
	Metrics     *NetworkMetrics
}

type InferenceError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *InferenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("AI processing failed: %d %s", e.StatusCode, e.Reason)
	}
	return "AI processing failed: " + e.Reason
}

func (e *InferenceError) Unwrap() error { return e.Err }

type Predictor struct {
	client *TracedClient
	base   string
	paths  map[Variant]string
}

func NewPredictor(cfg InferenceConfig) *Predictor {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultInferenceBaseURL
	}
	paths := make(map[Variant]string, len(DefaultPaths))
	for v, p := range DefaultPaths {
		paths[v] = p
	}
	for v, p := range cfg.Paths {
		if p != "" {
			paths[v] = p
		}
	}
	return &Predictor{
		client: NewTracedClient(cfg.Timeout, cfg.Retries),
		base:   strings.TrimRight(base, "/"),
		paths:  paths,
	}
}

func (p *Predictor) Name() string { return "signai" }

func (p *Predictor) Endpoint(v Variant) (string, error) {
	path, ok := p.paths[v]
	if !ok {
		return "", fmt.Errorf("unknown inference variant %q", v)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return p.base + path, nil
}

type predictResponse struct {
	Prediction *string  `json:"prediction"`
	Confidence *float64 `json:"confidence"`
}

func (p *Predictor) Predict(ctx context.Context, videoURL string, v Variant) (*Prediction, error) {
	endpoint, err := p.Endpoint(v)
	if err != nil {
		return nil, &InferenceError{Reason: err.Error(), Err: err}
	}

	resp, err := p.client.R(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParam("video_url", videoURL).
		Get(endpoint)
	if err != nil {
		return nil, &InferenceError{Reason: err.Error(), Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &InferenceError{StatusCode: resp.StatusCode(), Reason: reason(resp)}
	}

	var body predictResponse
	if err := p.client.Decode(resp, &body); err != nil {
		return nil, &InferenceError{StatusCode: resp.StatusCode(), Reason: "invalid response", Err: err}
	}
	if body.Prediction == nil {
		return nil, &InferenceError{StatusCode: resp.StatusCode(), Reason: "response missing prediction"}
	}

	t := Translation{Text: strings.TrimSpace(*body.Prediction)}
	if c := body.Confidence; c != nil && *c >= 0 && *c <= 1 {
		conf := *c
		t.Confidence = &conf
	}

	return &Prediction{Translation: t, Variant: v, Metrics: metricsFrom(resp)}, nil
}
