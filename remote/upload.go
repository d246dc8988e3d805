package remote

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"signcap/recorder"
)

const DefaultUploadBaseURL = "https://api.cloudinary.com/v1_1"

type UploadConfig struct {
	BaseURL   string
	CloudName string
	Preset    string
	Timeout   time.Duration
}

type Upload struct {
	SecureURL string
	PublicID  string
	Bytes     int
	Metrics   *NetworkMetrics
}

type UploadError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed: %d %s", e.StatusCode, e.Reason)
	}
	return "upload failed: " + e.Reason
}

func (e *UploadError) Unwrap() error { return e.Err }

// Cloudinary uploads clips with an unsigned upload preset. Uploads are
// never retried.
type Cloudinary struct {
	client   *TracedClient
	endpoint string
	preset   string
}

func NewCloudinary(cfg UploadConfig) *Cloudinary {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultUploadBaseURL
	}
	return &Cloudinary{
		client:   NewTracedClient(cfg.Timeout, 0),
		endpoint: strings.TrimRight(base, "/") + "/" + url.PathEscape(cfg.CloudName) + "/video/upload",
		preset:   cfg.Preset,
	}
}

func (c *Cloudinary) Name() string { return "cloudinary" }

func (c *Cloudinary) Endpoint() string { return c.endpoint }

type cloudinaryResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Bytes     int    `json:"bytes"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Cloudinary) Upload(ctx context.Context, clip *recorder.Clip) (*Upload, error) {
	if clip.Empty() {
		return nil, &UploadError{Reason: "empty clip"}
	}

	resp, err := c.client.R(ctx).
		SetFileReader("file", clip.FileName(), bytes.NewReader(clip.Data)).
		SetMultipartFormData(map[string]string{
			"upload_preset": c.preset,
			"resource_type": "video",
		}).
		Post(c.endpoint)
	if err != nil {
		return nil, &UploadError{Reason: err.Error(), Err: err}
	}

	var body cloudinaryResponse
	jsonErr := c.client.Decode(resp, &body)

	if !resp.IsSuccess() {
		msg := reason(resp)
		if jsonErr == nil && body.Error != nil && body.Error.Message != "" {
			msg = body.Error.Message
		}
		return nil, &UploadError{StatusCode: resp.StatusCode(), Reason: msg}
	}
	if jsonErr != nil {
		return nil, &UploadError{StatusCode: resp.StatusCode(), Reason: "invalid response", Err: jsonErr}
	}
	if body.SecureURL == "" {
		return nil, &UploadError{StatusCode: resp.StatusCode(), Reason: "response missing secure_url"}
	}

	return &Upload{
		SecureURL: body.SecureURL,
		PublicID:  body.PublicID,
		Bytes:     body.Bytes,
		Metrics:   metricsFrom(resp),
	}, nil
}
