package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"
)

// chunkSize bounds how much of a body is in memory at once.
const chunkSize = 32 << 10

var chunkPool = sync.Pool{
	New: func() any {
		b := make([]byte, chunkSize)
		return &b
	},
}

// copyStream copies src to dst one chunk at a time, preserving order, until
// src reports io.EOF. A read or write error ends the copy and is returned
// together with the number of bytes written so far.
func copyStream(dst io.Writer, src io.Reader) (int64, error) {
	bp := chunkPool.Get().(*[]byte)
	defer chunkPool.Put(bp)
	buf := *bp

	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// transferReader checks the request context and extends the connection
// deadline before every read.
type transferReader struct {
	ctx   context.Context
	r     io.Reader
	touch func()
}

func (t *transferReader) Read(p []byte) (int, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	if t.touch != nil {
		t.touch()
	}
	return t.r.Read(p)
}

// idleDeadline pushes a read or write deadline forward on each chunk so a
// transfer only fails when the peer stalls, not when it is merely long.
type idleDeadline struct {
	rc    *http.ResponseController
	idle  time.Duration
	write bool
}

func newIdleDeadline(w http.ResponseWriter, idle time.Duration, write bool) *idleDeadline {
	if idle <= 0 {
		return nil
	}
	return &idleDeadline{rc: http.NewResponseController(w), idle: idle, write: write}
}

// set ignores errors: recorders and some wrappers cannot carry deadlines
// (http.ErrNotSupported) and a closed connection surfaces on the next
// read or write anyway.
func (d *idleDeadline) set(t time.Time) {
	if d.write {
		_ = d.rc.SetWriteDeadline(t)
		return
	}
	_ = d.rc.SetReadDeadline(t)
}

func (d *idleDeadline) extend() {
	if d == nil {
		return
	}
	d.set(time.Now().Add(d.idle))
}

// clear removes the deadline so it does not leak into the next request on
// a kept-alive connection.
func (d *idleDeadline) clear() {
	if d == nil {
		return
	}
	d.set(time.Time{})
}

func (d *idleDeadline) toucher() func() {
	if d == nil {
		return nil
	}
	return d.extend
}
