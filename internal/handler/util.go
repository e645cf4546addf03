// Package handler implements the HTTP API.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/deckforge-ai/presentation-platform/internal/model"
)

const heartbeatInterval = 15 * time.Second

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// beginSSE sets the stream headers and returns the flusher, or reports
// that the connection cannot stream.
func beginSSE(w http.ResponseWriter) (http.Flusher, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher, true
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}

// sendProgressEvent writes one progress event with its type as the SSE
// event name.
func sendProgressEvent(w http.ResponseWriter, flusher http.Flusher, event model.ProgressEvent) error {
	return sendSSEEvent(w, flusher, string(event.Type), event)
}

// streamProgress runs a service call in a goroutine and forwards its
// progress events to the client, interleaving heartbeats so proxies keep
// the connection alive during long model turns. All writes happen on the
// handler goroutine.
func streamProgress(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, run func(emit func(model.ProgressEvent))) {
	events := make(chan model.ProgressEvent, 16)
	go func() {
		defer close(events)
		run(func(e model.ProgressEvent) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		})
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			sendProgressEvent(w, flusher, e)
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		}
	}
}
