package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signcap/codec"
	"signcap/recorder"
)

func testClip(data string) *recorder.Clip {
	return &recorder.Clip{Data: []byte(data), Format: codec.VP9}
}

func TestUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/demo/video/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "signai", r.FormValue("upload_preset"))
		assert.Equal(t, "video", r.FormValue("resource_type"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "recorded-video.webm", hdr.Filename)
		assert.Equal(t, "clip-bytes", string(data))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"secure_url":"https://x/y.webm","public_id":"abc","bytes":10}`)
	}))
	defer srv.Close()

	up := NewCloudinary(UploadConfig{BaseURL: srv.URL, CloudName: "demo", Preset: "signai", Timeout: 5 * time.Second})
	got, err := up.Upload(context.Background(), testClip("clip-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "https://x/y.webm", got.SecureURL)
	assert.Equal(t, "abc", got.PublicID)
	assert.NotNil(t, got.Metrics)
}

func TestUploadServerErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	up := NewCloudinary(UploadConfig{BaseURL: srv.URL, CloudName: "demo", Preset: "p", Timeout: 5 * time.Second})
	_, err := up.Upload(context.Background(), testClip("x"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, http.StatusInternalServerError, ue.StatusCode)
	assert.Equal(t, "Internal Server Error", ue.Reason)
	assert.Equal(t, int32(1), hits.Load())
}

func TestUploadErrorMessageFromBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"Upload preset not found"}}`)
	}))
	defer srv.Close()

	up := NewCloudinary(UploadConfig{BaseURL: srv.URL, CloudName: "demo", Preset: "nope", Timeout: 5 * time.Second})
	_, err := up.Upload(context.Background(), testClip("x"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "Upload preset not found", ue.Reason)
}

func TestUploadMissingSecureURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"public_id":"abc"}`)
	}))
	defer srv.Close()

	up := NewCloudinary(UploadConfig{BaseURL: srv.URL, CloudName: "demo", Timeout: 5 * time.Second})
	_, err := up.Upload(context.Background(), testClip("x"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Contains(t, ue.Error(), "secure_url")
}

func TestUploadTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	up := NewCloudinary(UploadConfig{BaseURL: base, CloudName: "demo", Timeout: time.Second})
	_, err := up.Upload(context.Background(), testClip("x"))

	var ue *UploadError
	require.ErrorAs(t, err, &ue)
	assert.Zero(t, ue.StatusCode)
	assert.Error(t, ue.Unwrap())
}

func TestUploadEmptyClip(t *testing.T) {
	up := NewCloudinary(UploadConfig{BaseURL: "http://127.0.0.1:1", CloudName: "demo"})
	_, err := up.Upload(context.Background(), testClip(""))
	var ue *UploadError
	require.ErrorAs(t, err, &ue)
}

func TestCloudinaryEndpoint(t *testing.T) {
	up := NewCloudinary(UploadConfig{CloudName: "dzonya1wx"})
	assert.Equal(t, "https://api.cloudinary.com/v1_1/dzonya1wx/video/upload", up.Endpoint())
}
