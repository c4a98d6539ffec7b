package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"stream-file-server/internal/log"
)

// downloadHandler streams GET /file/<name> from the store.
func (s *Server) downloadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		name := strings.TrimPrefix(r.URL.Path, filePrefix)

		rc, info, err := s.cfg.Store.Open(r.Context(), name)
		if err != nil {
			s.metrics.RecordDownloadError()
			writeError(w, r, err)
			return
		}
		defer func() { _ = rc.Close() }()

		if sum := s.recordedDigest(r.Context(), info.Name, info.Size); sum != "" {
			w.Header().Set("X-Content-Sha256", sum)
		}

		n, err := s.sendStream(w, r, rc, info.Size, contentTypeForName(info.Name))
		if err != nil {
			s.metrics.RecordDownloadError()
			abortStream(r, "download", n, err)
		}
		s.metrics.RecordDownload(n, time.Since(start))
	})
}

// frontendHandler streams the configured HTML page.
func (s *Server) frontendHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, err := os.Open(s.cfg.Frontend)
		if err != nil {
			writeError(w, r, err)
			return
		}
		defer func() { _ = f.Close() }()

		size := int64(-1)
		if fi, err := f.Stat(); err == nil {
			if fi.IsDir() {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			size = fi.Size()
		}

		n, err := s.sendStream(w, r, f, size, "text/html; charset=utf-8")
		if err != nil {
			abortStream(r, "frontend", n, err)
		}
	})
}

// sendStream writes a 200 with the given headers and copies src to the
// client. size < 0 leaves Content-Length unset.
func (s *Server) sendStream(w http.ResponseWriter, r *http.Request, src io.Reader, size int64, contentType string) (int64, error) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("X-Content-Type-Options", "nosniff")
	if size >= 0 {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.WriteHeader(http.StatusOK)

	dl := newIdleDeadline(w, s.cfg.IdleTimeout, true)
	defer dl.clear()

	return copyStream(w, &transferReader{ctx: r.Context(), r: src, touch: dl.toucher()})
}

// abortStream handles a failure after the status line went out: log, then
// drop the connection via http.ErrAbortHandler.
func abortStream(r *http.Request, what string, sent int64, err error) {
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	log.FromContext(r.Context()).Log(r.Context(), level, what+" aborted",
		slog.String("path", r.URL.Path),
		slog.Int64("sent", sent),
		slog.Any("error", err),
	)
	panic(http.ErrAbortHandler)
}

// recordedDigest returns the ledger's SHA-256 for name when the latest
// record still matches the stored size. Empty when unknown.
func (s *Server) recordedDigest(ctx context.Context, name string, size int64) string {
	if s.cfg.Ledger == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	u, err := s.cfg.Ledger.Latest(ctx, name)
	if err != nil || u.SizeBytes != size {
		return ""
	}
	return u.SHA256Hex
}
