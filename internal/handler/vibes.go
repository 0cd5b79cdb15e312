package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"imggen/internal/ai"
	"imggen/internal/vibes"
)

type VibesHandler struct {
	client ai.Client
}

func NewVibesHandler(client ai.Client) *VibesHandler {
	return &VibesHandler{client: client}
}

// HandleRewrite asks the model to rewrite an HTML fragment.
func (h *VibesHandler) HandleRewrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req vibes.RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}
	res, err := vibes.Rewrite(r.Context(), h.client, req)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}
