// Package handler exposes the image service over plain JSON HTTP,
// server-sent events for progress, and a websocket for live document
// changes.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"imggen/internal/imggen"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var genErr *imggen.GenerationError
	switch {
	case errors.Is(err, imggen.ErrMissingInput):
		status = http.StatusBadRequest
	case errors.Is(err, imggen.ErrDocumentNotFound):
		status = http.StatusNotFound
	case errors.As(err, &genErr):
		if genErr.Moderated() {
			status = http.StatusUnprocessableEntity
		} else {
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
	})
}
