package server

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"stream-file-server/internal/log"
	"stream-file-server/internal/store"
)

// statusFor maps a handler error onto the response status.
func statusFor(err error) int {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidName), errors.Is(err, errInvalidContentType):
		return http.StatusBadRequest
	case errors.Is(err, errContentMismatch):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeError sends the status for err. Not-found responses carry no body;
// other failures get a short plain-text reason. Internal errors are logged
// with the request id, client disconnects at a lower level.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusNotFound {
		w.WriteHeader(status)
		return
	}

	if status == http.StatusInternalServerError {
		level := slog.LevelError
		if errors.Is(err, context.Canceled) {
			level = slog.LevelWarn
		}
		log.FromContext(r.Context()).Log(r.Context(), level, "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}

	var msg string
	switch status {
	case http.StatusBadRequest:
		msg = "bad request"
	case http.StatusUnsupportedMediaType:
		msg = "unsupported media type"
	case http.StatusRequestEntityTooLarge:
		msg = "file too large"
	default:
		msg = "internal error"
	}
	http.Error(w, msg, status)
}
