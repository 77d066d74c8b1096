package sse

import (
	"fmt"
	"net/http"
)

// WriteEvent frames one event on an SSE stream and flushes it.
func WriteEvent(w http.ResponseWriter, flusher http.Flusher, event Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// WriteHeartbeat writes an SSE comment line that keeps idle proxies open.
func WriteHeartbeat(w http.ResponseWriter, flusher http.Flusher) error {
	if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
