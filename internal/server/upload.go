package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"stream-file-server/internal/config"
	"stream-file-server/internal/db"
	"stream-file-server/internal/log"
)

// uploadHandler streams POST /upload into the store as file.<subtype>. The
// 201 is only written after the whole body is stored.
func (s *Server) uploadHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		name, mediaType, err := uploadTarget(r.Header.Get("Content-Type"))
		if err != nil {
			s.metrics.RecordUploadError()
			writeError(w, r, err)
			return
		}

		var body io.Reader = r.Body
		if s.cfg.MaxUploadBytes > 0 {
			body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		}

		dl := newIdleDeadline(w, s.cfg.IdleTimeout, false)
		defer dl.clear()
		var src io.Reader = &transferReader{ctx: r.Context(), r: body, touch: dl.toucher()}

		if s.cfg.ContentTypePolicy == config.PolicyVerify {
			br := bufio.NewReaderSize(src, sniffLen)
			head, err := br.Peek(sniffLen)
			if err != nil && !errors.Is(err, io.EOF) {
				s.metrics.RecordUploadError()
				writeError(w, r, err)
				return
			}
			if err := verifyDeclaredType(mediaType, head); err != nil {
				s.metrics.RecordUploadError()
				writeError(w, r, err)
				return
			}
			src = br
		}

		hr := newHashingReader(src)
		info, err := s.cfg.Store.Put(r.Context(), name, hr, mediaType)
		if err != nil {
			s.metrics.RecordUploadError()
			writeError(w, r, err)
			return
		}

		sum, size := hr.Sum(), hr.Len()
		w.Header().Set("X-Content-Sha256", sum)
		if id, ok := s.recordUpload(r, db.Upload{
			Name:        info.Name,
			ContentType: mediaType,
			SizeBytes:   size,
			SHA256Hex:   sum,
			Backend:     s.cfg.Store.Kind(),
		}); ok {
			w.Header().Set("X-Upload-Id", id.String())
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, "ok")

		s.metrics.RecordUpload(size, time.Since(start))
		log.FromContext(r.Context()).Debug("upload stored",
			slog.String("name", info.Name),
			slog.Int64("bytes", size),
			slog.String("sha256", sum),
		)
	})
}

// recordUpload writes u to the ledger. The file is already stored, so a
// ledger failure is logged and the upload still succeeds.
func (s *Server) recordUpload(r *http.Request, u db.Upload) (uuid.UUID, bool) {
	if s.cfg.Ledger == nil {
		return uuid.Nil, false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()

	id, err := s.cfg.Ledger.RecordUpload(ctx, u)
	if err != nil {
		log.FromContext(r.Context()).Warn("ledger record failed",
			slog.String("name", u.Name),
			slog.Any("error", err),
		)
		return uuid.Nil, false
	}
	return id, true
}
