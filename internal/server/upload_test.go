package server

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stream-file-server/internal/config"
	"stream-file-server/internal/store"
)

func TestUploadHandler_StoresBody(t *testing.T) {
	s, local := newTestServer(t, nil)

	rr := do(t, s.Handler(), http.MethodPost, "/upload", bytes.NewReader(pngHeader), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body ok, got %q", rr.Body.String())
	}

	got, err := readStored(t, local, "file.png")
	if err != nil {
		t.Fatalf("read stored: %v", err)
	}
	if !bytes.Equal(got, pngHeader) {
		t.Error("stored bytes differ from uploaded body")
	}
}

func TestUploadHandler_Overwrites(t *testing.T) {
	s, local := newTestServer(t, nil)
	h := s.Handler()
	hdr := map[string]string{"Content-Type": "text/plain"}

	do(t, h, http.MethodPost, "/upload", strings.NewReader("first version, longer"), hdr)
	rr := do(t, h, http.MethodPost, "/upload", strings.NewReader("second"), hdr)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	got, _ := readStored(t, local, "file.plain")
	if string(got) != "second" {
		t.Errorf("Expected overwritten content, got %q", got)
	}
}

func TestUploadHandler_EmptyBody(t *testing.T) {
	s, local := newTestServer(t, nil)

	rr := do(t, s.Handler(), http.MethodPost, "/upload", http.NoBody, map[string]string{"Content-Type": "video/mp4"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	got, err := readStored(t, local, "file.mp4")
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty stored file, got %d bytes, err %v", len(got), err)
	}
}

func TestUploadHandler_InvalidContentType(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, ct := range []string{"", "png", "image/", "image/../../etc"} {
		rr := do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("x"), map[string]string{"Content-Type": ct})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("Content-Type %q: Expected 400, got %d", ct, rr.Code)
		}
	}
}

func TestUploadHandler_TooLarge(t *testing.T) {
	s, local := newTestServer(t, func(c *Config) { c.MaxUploadBytes = 10 })

	rr := do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("this body is longer than ten bytes"), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("Expected 413, got %d", rr.Code)
	}
	if _, err := readStored(t, local, "file.png"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("oversized upload must not be stored, got %v", err)
	}

	rr = do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("exactly10!"), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusCreated {
		t.Errorf("Expected 201 at the limit, got %d", rr.Code)
	}
}

func TestUploadHandler_VerifyPolicy(t *testing.T) {
	s, local := newTestServer(t, func(c *Config) { c.ContentTypePolicy = config.PolicyVerify })
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/upload", bytes.NewReader(pngHeader), map[string]string{"Content-Type": "image/jpeg"})
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("Expected 415, got %d", rr.Code)
	}
	if _, err := readStored(t, local, "file.jpeg"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("mismatched upload must not be stored, got %v", err)
	}

	// The sniffed prefix must still reach the store.
	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{7}, 4096)...)
	rr = do(t, h, http.MethodPost, "/upload", bytes.NewReader(body), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	got, _ := readStored(t, local, "file.png")
	if !bytes.Equal(got, body) {
		t.Error("stored bytes differ from uploaded body under verify policy")
	}
}

func TestUploadHandler_StoreFailure(t *testing.T) {
	ledger := &fakeLedger{}
	s, local := newTestServer(t, func(c *Config) { c.Ledger = ledger })
	s.cfg.Store = &brokenStore{Local: local}

	rr := do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("data"), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "ok") {
		t.Error("failed upload must not report ok")
	}
	if len(ledger.Records()) != 0 {
		t.Error("failed upload must not be recorded")
	}
}

func TestUploadHandler_Ledger(t *testing.T) {
	ledger := &fakeLedger{}
	s, _ := newTestServer(t, func(c *Config) { c.Ledger = ledger })

	rr := do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("hello"), map[string]string{"Content-Type": "text/plain; charset=utf-8"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	records := ledger.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 ledger record, got %d", len(records))
	}
	rec := records[0]
	if rec.Name != "file.plain" || rec.ContentType != "text/plain" || rec.SizeBytes != 5 || rec.Backend != "local" {
		t.Errorf("unexpected record %+v", rec)
	}
	const helloSum = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if rec.SHA256Hex != helloSum || rr.Header().Get("X-Content-Sha256") != helloSum {
		t.Errorf("digest mismatch: record %s header %s", rec.SHA256Hex, rr.Header().Get("X-Content-Sha256"))
	}
	if rr.Header().Get("X-Upload-Id") != rec.ID.String() {
		t.Errorf("Expected X-Upload-Id %s, got %s", rec.ID, rr.Header().Get("X-Upload-Id"))
	}
}

func TestUploadHandler_LedgerCoversSniffedBytes(t *testing.T) {
	ledger := &fakeLedger{}
	s, _ := newTestServer(t, func(c *Config) {
		c.Ledger = ledger
		c.ContentTypePolicy = config.PolicyVerify
	})

	body := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0x42}, 1000)...)
	rr := do(t, s.Handler(), http.MethodPost, "/upload", bytes.NewReader(body), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	records := ledger.Records()
	if len(records) != 1 {
		t.Fatalf("Expected 1 ledger record, got %d", len(records))
	}
	want := sha256.Sum256(body)
	if records[0].SizeBytes != int64(len(body)) || records[0].SHA256Hex != hex.EncodeToString(want[:]) {
		t.Errorf("record should describe all %d bytes, got %+v", len(body), records[0])
	}
}

func TestUploadHandler_LedgerFailureStillSucceeds(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("database is down")}
	s, local := newTestServer(t, func(c *Config) { c.Ledger = ledger })

	rr := do(t, s.Handler(), http.MethodPost, "/upload", strings.NewReader("hello"), map[string]string{"Content-Type": "image/png"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}
	if rr.Header().Get("X-Upload-Id") != "" {
		t.Error("no upload id expected without a ledger record")
	}
	if got, _ := readStored(t, local, "file.png"); string(got) != "hello" {
		t.Errorf("Expected stored file, got %q", got)
	}
}

// eofTracker notes when the request body has been fully consumed.
type eofTracker struct {
	r    io.Reader
	done bool
}

func (e *eofTracker) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.done = true
	}
	return n, err
}

type orderRecorder struct {
	*httptest.ResponseRecorder
	body            *eofTracker
	headerBeforeEOF bool
}

func (o *orderRecorder) WriteHeader(code int) {
	if !o.body.done {
		o.headerBeforeEOF = true
	}
	o.ResponseRecorder.WriteHeader(code)
}

func TestUploadHandler_RespondsAfterBody(t *testing.T) {
	s, _ := newTestServer(t, nil)

	body := &eofTracker{r: bytes.NewReader(bytes.Repeat([]byte("z"), 200_000))}
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", "image/png")
	rec := &orderRecorder{ResponseRecorder: httptest.NewRecorder(), body: body}

	s.uploadHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if rec.headerBeforeEOF {
		t.Error("status was written before the body was fully read")
	}
}
