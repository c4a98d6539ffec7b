// Package store abstracts the medium uploaded files are kept on. Handlers
// stream through a Backend and never see paths, so the local directory can be
// swapped for an S3-compatible bucket without touching them.
package store

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by Open when the named file does not exist.
	ErrNotFound = errors.New("store: file not found")
	// ErrInvalidName is returned for names that could escape the storage root.
	ErrInvalidName = errors.New("store: invalid file name")
)

// tempPrefix marks in-flight uploads. Names carrying it are never served.
const tempPrefix = ".upload-"

// Info describes a stored file.
type Info struct {
	Name    string
	Size    int64 // -1 when unknown
	ModTime time.Time
}

// Backend is a byte-stream store keyed by slash-separated names.
type Backend interface {
	// Put streams r into name. Implementations must be atomic: either the
	// full stream is persisted or nothing replaces an existing file.
	Put(ctx context.Context, name string, r io.Reader, contentType string) (Info, error)

	// Open returns a sequential reader for name. Caller must close it.
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Kind names the backend ("local", "s3").
	Kind() string
}

// CleanName canonicalizes an untrusted name. It rejects empty names,
// absolute paths, parent-directory segments, backslashes, NUL bytes and
// names that point at in-flight uploads.
func CleanName(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, "\\\x00") {
		return "", ErrInvalidName
	}
	if strings.HasPrefix(name, "/") {
		return "", ErrInvalidName
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", ErrInvalidName
		}
	}

	clean := path.Clean(name)
	if clean == "." || clean == "/" {
		return "", ErrInvalidName
	}
	if strings.HasPrefix(path.Base(clean), tempPrefix) {
		return "", ErrInvalidName
	}
	return clean, nil
}

var (
	_ Backend = (*Local)(nil)
	_ Backend = (*S3)(nil)
)
