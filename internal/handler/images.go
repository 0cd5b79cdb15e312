package handler

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"imggen/internal/ai"
	"imggen/internal/imggen"
)

// maxUploadBytes caps manual version uploads.
const maxUploadBytes = 16 << 20

type ImageHandler struct {
	svc *imggen.Service
}

func NewImageHandler(svc *imggen.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

type imageResponse struct {
	RequestID   string `json:"requestId,omitempty"`
	Document    any    `json:"document,omitempty"`
	FileKey     string `json:"fileKey,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	ImageB64    string `json:"imageB64,omitempty"`
}

func toImageResponse(res *imggen.Result) imageResponse {
	out := imageResponse{
		RequestID:   res.RequestID,
		FileKey:     res.FileKey,
		ContentType: res.ContentType,
	}
	if res.Doc != nil {
		out.Document = res.Doc
	}
	if len(res.ImageBytes) > 0 {
		out.ImageB64 = base64.StdEncoding.EncodeToString(res.ImageBytes)
	}
	return out
}

// HandleImages serves the collection: POST generates, GET lists.
func (h *ImageHandler) HandleImages(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleGenerate(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *ImageHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req imggen.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.Do(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if res == nil {
		writeJSON(w, http.StatusOK, imageResponse{})
		return
	}
	status := http.StatusOK
	if req.DocumentID == "" {
		status = http.StatusCreated
	}
	writeJSON(w, status, toImageResponse(res))
}

func (h *ImageHandler) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
	})
}

// HandleImageByID routes /api/images/{id}[/file|/regenerate|/prompt|/versions].
func (h *ImageHandler) HandleImageByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/images/")
	id, action, _ := strings.Cut(rest, "/")
	id = strings.TrimSpace(id)
	if id == "" {
		http.Error(w, "document id required", http.StatusBadRequest)
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.handleGet(w, r, id)
		case http.MethodDelete:
			h.handleDelete(w, r, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case "file":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleFile(w, r, id)
	case "regenerate":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleRegenerate(w, r, id)
	case "prompt":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleEditPrompt(w, r, id)
	case "versions":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleUpload(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (h *ImageHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	res, err := h.svc.Load(r.Context(), id, r.Header.Get("X-Request-ID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageResponse(res))
}

func (h *ImageHandler) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleFile writes the raw image bytes of one version. Without an
// explicit ?version= it serves the active version, redirecting to a
// presigned URL when the file store offers one.
func (h *ImageHandler) handleFile(w http.ResponseWriter, r *http.Request, id string) {
	version := strings.TrimSpace(r.URL.Query().Get("version"))
	if version == "" {
		if url, err := h.svc.FileURL(r.Context(), id); err == nil && url != "" {
			http.Redirect(w, r, url, http.StatusFound)
			return
		}
	}
	res, err := h.svc.GetFile(r.Context(), id, version)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=31536000, immutable")
	_, _ = w.Write(res.ImageBytes)
}

func (h *ImageHandler) handleRegenerate(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		RequestID    string           `json:"requestId"`
		GenerationID string           `json:"generationId"`
		Options      *ai.ImageOptions `json:"options"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
	}
	res, err := h.svc.Regenerate(r.Context(), imggen.RegenerateRequest{
		RequestID:    in.RequestID,
		DocumentID:   id,
		GenerationID: in.GenerationID,
		Options:      in.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageResponse(res))
}

func (h *ImageHandler) handleEditPrompt(w http.ResponseWriter, r *http.Request, id string) {
	var in struct {
		RequestID    string           `json:"requestId"`
		Text         string           `json:"text"`
		GenerationID string           `json:"generationId"`
		Options      *ai.ImageOptions `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	res, err := h.svc.EditPrompt(r.Context(), imggen.EditPromptRequest{
		RequestID:    in.RequestID,
		DocumentID:   id,
		Text:         in.Text,
		GenerationID: in.GenerationID,
		Options:      in.Options,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toImageResponse(res))
}

func (h *ImageHandler) handleUpload(w http.ResponseWriter, r *http.Request, id string) {
	content, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(content) > maxUploadBytes {
		http.Error(w, "image too large", http.StatusRequestEntityTooLarge)
		return
	}
	res, err := h.svc.UploadVersion(r.Context(), id, content, r.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toImageResponse(res))
}
