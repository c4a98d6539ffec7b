package server

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// hashingReader computes the SHA-256 of everything read through it.
type hashingReader struct {
	r io.Reader
	h hash.Hash
	n int64
}

func newHashingReader(r io.Reader) *hashingReader {
	return &hashingReader{r: r, h: sha256.New()}
}

func (hr *hashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		hr.h.Write(p[:n])
		hr.n += int64(n)
	}
	return n, err
}

// Sum returns the hex digest of the bytes read so far.
func (hr *hashingReader) Sum() string {
	return hex.EncodeToString(hr.h.Sum(nil))
}

// Len returns the number of bytes hashed, which is what Sum covers.
func (hr *hashingReader) Len() int64 {
	return hr.n
}
