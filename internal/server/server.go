package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"stream-file-server/internal/config"
	"stream-file-server/internal/db"
	"stream-file-server/internal/store"
)

// Ledger records completed uploads. Optional.
type Ledger interface {
	RecordUpload(ctx context.Context, u db.Upload) (uuid.UUID, error)
	Latest(ctx context.Context, name string) (db.Upload, error)
	Ping(ctx context.Context) error
}

type Config struct {
	Addr              string        // e.g. ":8000"
	Version           string        // reported by /health
	Frontend          string        // path of the HTML file served at /frontend
	MaxUploadBytes    int64         // 0 means no limit
	IdleTimeout       time.Duration // per-chunk stall limit for transfers
	ContentTypePolicy string        // config.PolicyDeclared or config.PolicyVerify
	UploadsPerMinute  int           // per client IP; 0 disables the limit

	Store  store.Backend
	Ledger Ledger
}

type Server struct {
	cfg        Config
	metrics    *transferMetrics
	limiter    *rateLimiter
	httpServer *http.Server
}

func New(cfg Config) *Server {
	if cfg.ContentTypePolicy == "" {
		cfg.ContentTypePolicy = config.PolicyDeclared
	}

	s := &Server{
		cfg:     cfg,
		metrics: newTransferMetrics(),
	}

	upload := s.uploadHandler()
	if cfg.UploadsPerMinute > 0 {
		s.limiter = newRateLimiter(cfg.UploadsPerMinute, time.Minute)
		upload = s.limiter.middleware(upload)
	}

	rt := &router{routes: []route{
		{method: http.MethodGet, path: "/", handler: http.HandlerFunc(greetingHandler)},
		{method: http.MethodGet, path: "/frontend", handler: s.frontendHandler()},
		{method: http.MethodGet, path: filePrefix, prefix: true, handler: s.downloadHandler()},
		{method: http.MethodPost, path: "/upload", handler: upload},
		{method: http.MethodGet, path: "/health", handler: http.HandlerFunc(s.HandleHealth)},
		{method: http.MethodGet, path: "/metrics", handler: s.metrics.Handler()},
	}}

	// Wrap middleware: requestID -> logging -> security headers -> router
	var handler http.Handler = rt
	handler = securityHeadersMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.stop()
	}
	return s.httpServer.Shutdown(ctx)
}
