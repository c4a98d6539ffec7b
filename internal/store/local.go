package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Local keeps files in a directory on the local disk. Writes go to a
// temporary sibling first and are renamed over the target on success.
type Local struct {
	root string
}

// NewLocal creates root if needed and returns a store rooted at its absolute path.
func NewLocal(root string) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (s *Local) Kind() string { return "local" }

// Root returns the absolute storage directory.
func (s *Local) Root() string { return s.root }

// Resolve maps an untrusted name to a path inside the root.
func (s *Local) Resolve(name string) (string, error) {
	_, p, err := s.resolve(name)
	return p, err
}

func (s *Local) resolve(name string) (clean, p string, err error) {
	clean, err = CleanName(name)
	if err != nil {
		return "", "", err
	}

	p = filepath.Join(s.root, filepath.FromSlash(clean))

	// Containment check after canonicalization.
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", ErrInvalidName
	}
	return clean, p, nil
}

func (s *Local) Put(ctx context.Context, name string, r io.Reader, _ string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	clean, dst, err := s.resolve(name)
	if err != nil {
		return Info{}, err
	}
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create dir: %w", err)
	}

	tmpPath := filepath.Join(dir, tempPrefix+uuid.NewString())
	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Info{}, fmt.Errorf("create temp file: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return Info{}, fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return Info{}, fmt.Errorf("commit %s: %w", name, err)
	}
	committed = true

	return Info{
		Name:    clean,
		Size:    n,
		ModTime: time.Now(),
	}, nil
}

func (s *Local) Open(ctx context.Context, name string) (io.ReadCloser, Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, Info{}, err
	}

	clean, p, err := s.resolve(name)
	if err != nil {
		return nil, Info{}, err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Info{}, ErrNotFound
		}
		return nil, Info{}, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, Info{}, err
	}
	if fi.IsDir() {
		_ = f.Close()
		return nil, Info{}, ErrNotFound
	}

	return f, Info{Name: clean, Size: fi.Size(), ModTime: fi.ModTime()}, nil
}

func (s *Local) Ping(ctx context.Context) error {
	fi, err := os.Stat(s.root)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		return fmt.Errorf("storage root %s is not a directory", s.root)
	}
	return nil
}

// SweepStale removes in-flight upload files older than maxAge. They are
// left behind only when the process dies mid-upload.
func (s *Local) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.HasPrefix(d.Name(), tempPrefix) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if fi.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}
