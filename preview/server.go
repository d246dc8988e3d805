// Package preview serves finalized clips over loopback HTTP so the local
// player and browser can play them back before upload.
package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"signcap/recorder"
)

const DefaultAddr = "127.0.0.1:0"

var ErrNotStarted = errors.New("preview server not started")

type Server struct {
	addr   string
	router *mux.Router

	mu    sync.RWMutex
	base  string
	clips map[uuid.UUID]*recorder.Clip
	srv   *http.Server
	ln    net.Listener
}

func New(addr string) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{addr: addr, clips: make(map[uuid.UUID]*recorder.Clip)}
	s.router = mux.NewRouter()
	s.router.HandleFunc("/clips/{name}", s.clipHandler).Methods(http.MethodGet, http.MethodHead)
	s.router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Listen binds the address; the port is known once it returns.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("preview listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.base = "http://" + ln.Addr().String()
	s.srv = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.mu.Unlock()
	return nil
}

// Serve blocks until ctx is done, then shuts the server down.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.RLock()
	srv, ln := s.srv, s.ln
	s.mu.RUnlock()
	if srv == nil {
		return ErrNotStarted
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BaseURL is empty before Listen.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.base
}

// Publish makes clip playable and returns its URL.
func (s *Server) Publish(clip *recorder.Clip) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == "" {
		return "", ErrNotStarted
	}
	s.clips[clip.ID] = clip
	return s.base + "/clips/" + clip.ID.String() + clip.Format.Extension(), nil
}

func (s *Server) Remove(id uuid.UUID) {
	s.mu.Lock()
	delete(s.clips, id)
	s.mu.Unlock()
}

func (s *Server) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clips)
}

func (s *Server) clipHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	id, err := uuid.Parse(strings.TrimSuffix(name, path.Ext(name)))
	if err != nil {
		http.Error(w, "bad clip id", http.StatusBadRequest)
		return
	}

	s.mu.RLock()
	clip, ok := s.clips[id]
	s.mu.RUnlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", clip.ContentType())
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, clip.FileName(), clip.CreatedAt, bytes.NewReader(clip.Data))
}
