// Package server implements the HTTP surface of the stream file server:
// a fixed-priority router, streamed downloads from a store.Backend and
// streamed uploads into it, plus the health and metrics endpoints. Request
// and response bodies are copied chunk by chunk and never held in memory.
package server
