package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"imggen/internal/imggen"
)

type WatchHandler struct {
	svc *imggen.Service
}

func NewWatchHandler(svc *imggen.Service) *WatchHandler {
	return &WatchHandler{svc: svc}
}

// HandleWatchSSE streams progress events for one request over
// Server-Sent Events until the terminal event.
func (h *WatchHandler) HandleWatchSSE(w http.ResponseWriter, r *http.Request) {
	// Extract request_id from path: /api/watch/{request_id}
	requestID := strings.TrimPrefix(r.URL.Path, "/api/watch/")
	if requestID == "" {
		http.Error(w, "request_id required", http.StatusBadRequest)
		return
	}

	events, err := h.svc.Watch(r.Context(), requestID)
	if err != nil {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				fmt.Fprintf(w, "event: close\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			data, err := json.Marshal(event)
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()

			if event.Terminal {
				fmt.Fprintf(w, "event: close\ndata: {}\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

// HandleStatus returns the latest snapshot for one request.
func (h *WatchHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	requestID := strings.TrimSpace(r.URL.Query().Get("request_id"))
	if requestID == "" {
		http.Error(w, "request_id is required", http.StatusBadRequest)
		return
	}
	event, ok := h.svc.Status(requestID)
	if !ok {
		http.Error(w, "request not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
