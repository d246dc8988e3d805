package preview

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signcap/codec"
	"signcap/recorder"
)

func testClip() *recorder.Clip {
	c := recorder.NewFileClip("", []byte("0123456789"), codec.VP9)
	c.Source = recorder.SourceCamera
	return c
}

func TestPublishBeforeListen(t *testing.T) {
	s := New("")
	_, err := s.Publish(testClip())
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.ErrorIs(t, s.Serve(context.Background()), ErrNotStarted)
}

func TestServeClip(t *testing.T) {
	s := New("")
	require.NoError(t, s.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	clip := testClip()
	u, err := s.Publish(clip)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, s.BaseURL()+"/clips/"))
	assert.True(t, strings.HasSuffix(u, ".webm"))

	resp, err := http.Get(u)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "video/webm", resp.Header.Get("Content-Type"))
	assert.Equal(t, "0123456789", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestClipHandler(t *testing.T) {
	s := New("")
	s.base = "http://preview"
	clip := testClip()
	_, err := s.Publish(clip)
	require.NoError(t, err)

	t.Run("range", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/clips/"+clip.ID.String()+".webm", nil)
		req.Header.Set("Range", "bytes=2-5")
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "2345", rec.Body.String())
	})

	t.Run("removed", func(t *testing.T) {
		s.Remove(clip.ID)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/"+clip.ID.String(), nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Zero(t, s.Len())
	})

	t.Run("bad id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/clips/nope.webm", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/clips/"+clip.ID.String(), nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
