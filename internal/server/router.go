package server

import (
	"io"
	"net/http"
	"strings"
)

const (
	filePrefix = "/file/"
	greeting   = "Hello this is a Go server"
)

// route matches on exact method and either exact path or path prefix.
type route struct {
	method  string
	path    string
	prefix  bool
	handler http.Handler
}

func (rr route) matches(r *http.Request) bool {
	if r.Method != rr.method {
		return false
	}
	if rr.prefix {
		return strings.HasPrefix(r.URL.Path, rr.path)
	}
	return r.URL.Path == rr.path
}

// router dispatches to the first matching route in order. Anything that
// matches no route gets 404 with an empty body, including known paths
// requested with another method.
type router struct {
	routes []route
}

func (rt *router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	for _, rr := range rt.routes {
		if rr.matches(r) {
			rr.handler.ServeHTTP(w, r)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func greetingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, greeting)
}
