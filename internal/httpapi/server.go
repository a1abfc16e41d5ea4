// Package httpapi exposes the transcribe/translate/synthesize pipeline over
// HTTP: audio upload, conversation polling with on-demand translation,
// standalone synthesis, artifact download, and the operational endpoints.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speakswap/speakswap/internal/conversation"
	"github.com/speakswap/speakswap/internal/health"
	"github.com/speakswap/speakswap/internal/observe"
)

// maxUploadBytes bounds multipart audio uploads.
const maxUploadBytes = 25 << 20

// Server is the companion HTTP service over a conversation store.
type Server struct {
	store   *conversation.Store
	metrics *observe.Metrics
	health  *health.Handler

	certFile string
	keyFile  string

	httpSrv *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithMetrics attaches request metrics and enables the middleware.
func WithMetrics(m *observe.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithHealth installs the health handler serving /healthz and /readyz.
func WithHealth(h *health.Handler) ServerOption {
	return func(s *Server) { s.health = h }
}

// WithTLS serves over TLS using the given certificate pair.
func WithTLS(certFile, keyFile string) ServerOption {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// NewServer builds the HTTP service for addr.
func NewServer(addr string, store *conversation.Store, opts ...ServerOption) (*Server, error) {
	if store == nil {
		return nil, fmt.Errorf("httpapi: conversation store must not be nil")
	}
	s := &Server{store: store}
	for _, o := range opts {
		o(s)
	}

	var handler http.Handler = s.routes()
	if s.metrics != nil {
		handler = observe.Middleware(s.metrics)(handler)
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// routes builds the service mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /upload-audio", s.handleUploadAudio)
	mux.HandleFunc("GET /conversation/{code}", s.handleConversation)
	mux.HandleFunc("POST /generate-audio", s.handleGenerateAudio)
	mux.HandleFunc("GET /audio/{code}", s.handleOriginalAudio)
	mux.HandleFunc("GET /audio-file/{id}", s.handleAudioFile)
	mux.HandleFunc("GET /translated-audio/{code}", s.handleTranslatedAudio)
	mux.HandleFunc("GET /supported-languages", s.handleSupportedLanguages)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

// Handler returns the fully wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// ListenAndServe blocks serving requests until ctx is cancelled or the
// listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.httpSrv.Addr, "tls", s.certFile != "")
		if s.certFile != "" {
			errCh <- s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
			return
		}
		errCh <- s.httpSrv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("httpapi: serve: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return nil
	}
}
