package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanName(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "file.png", want: "file.png"},
		{in: "videos/clip.mp4", want: "videos/clip.mp4"},
		{in: "a/./b.txt", want: "a/b.txt"},
		{in: "a//b.txt", want: "a/b.txt"},
		{in: "", wantErr: true},
		{in: ".", wantErr: true},
		{in: "/etc/passwd", wantErr: true},
		{in: "../secret", wantErr: true},
		{in: "a/../../secret", wantErr: true},
		{in: "a/..", wantErr: true},
		{in: "..\\secret", wantErr: true},
		{in: "nul\x00byte", wantErr: true},
		{in: ".upload-1234", wantErr: true},
		{in: "dir/.upload-1234", wantErr: true},
	}

	for _, tt := range tests {
		got, err := CleanName(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidName, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestLocalResolveStaysInRoot(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	p, err := s.Resolve("sub/file.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.Root(), "sub", "file.jpg"), p)

	_, err = s.Resolve("../outside.jpg")
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestLocalPutOpen(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	payload := bytes.Repeat([]byte{0x89, 'P', 'N', 'G'}, 100000)
	info, err := s.Put(ctx, "file.png", bytes.NewReader(payload), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "file.png", info.Name)
	assert.Equal(t, int64(len(payload)), info.Size)

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must be synced and renamed, not left behind")
	assert.Equal(t, "file.png", entries[0].Name())

	rc, oinfo, err := s.Open(ctx, "file.png")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, int64(len(payload)), oinfo.Size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestLocalPutOverwrites(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "file.txt", strings.NewReader("a much longer first body"), "")
	require.NoError(t, err)
	_, err = s.Put(ctx, "file.txt", strings.NewReader("second"), "")
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(s.Root(), "file.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(b))
}

func TestLocalPutEmpty(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	info, err := s.Put(context.Background(), "file.bin", strings.NewReader(""), "")
	require.NoError(t, err)
	assert.Zero(t, info.Size)

	fi, err := os.Stat(filepath.Join(s.Root(), "file.bin"))
	require.NoError(t, err)
	assert.Zero(t, fi.Size())
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestLocalPutFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = s.Put(ctx, "file.png", strings.NewReader("original"), "")
	require.NoError(t, err)

	boom := errors.New("connection reset")
	_, err = s.Put(ctx, "file.png", &failingReader{data: []byte("partial"), err: boom}, "")
	require.ErrorIs(t, err, boom)

	// The previous content survives and no temp file is left behind.
	b, err := os.ReadFile(filepath.Join(s.Root(), "file.png"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(b))

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "file.png", entries[0].Name())
}

func TestLocalOpenErrors(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "dir"), 0o755))

	_, _, err = s.Open(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Open(ctx, "dir")
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = s.Open(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = s.Open(cancelled, "missing.png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalPing(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocal(filepath.Join(dir, "root"))
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(s.Root()))
	assert.Error(t, s.Ping(context.Background()))
}

func TestLocalSweepStale(t *testing.T) {
	s, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	old := filepath.Join(s.Root(), tempPrefix+"old")
	fresh := filepath.Join(s.Root(), tempPrefix+"fresh")
	kept := filepath.Join(s.Root(), "file.png")
	nested := filepath.Join(s.Root(), "sub", tempPrefix+"old")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	for _, p := range []string{old, fresh, kept, nested} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(nested, past, past))
	require.NoError(t, os.Chtimes(kept, past, past))

	n, err := s.SweepStale(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoFileExists(t, old)
	assert.NoFileExists(t, nested)
	assert.FileExists(t, fresh)
	assert.FileExists(t, kept)
}
