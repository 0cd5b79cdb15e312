package imggen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"imggen/internal/ai"
	"imggen/internal/dedup"
	"imggen/internal/docstore"
	"imggen/internal/filestore"
	"imggen/internal/imagedoc"
)

const (
	defaultMaxTrackedOps = 256
	defaultOpTTL         = 10 * time.Minute
)

// Hooks are fired on terminal transitions of generation requests.
type Hooks struct {
	OnComplete func(requestID, docID string)
	OnError    func(requestID string, err error)
}

// Service orchestrates image generation: it decides whether to load an
// existing document, create a new one, or append a version, and owns
// the per-request state machine and simulated progress.
type Service struct {
	docs     docstore.Store
	files    filestore.Store
	client   ai.Client
	registry *dedup.Registry
	hooks    Hooks

	tickInterval time.Duration
	ops          *expirable.LRU[string, *operation]
}

type Config struct {
	Docs     docstore.Store
	Files    filestore.Store
	Client   ai.Client
	Registry *dedup.Registry
	Hooks    Hooks
	// TickInterval overrides the simulated-progress cadence (tests).
	TickInterval time.Duration
	// MaxTrackedOps / OpTTL bound the request-status registry.
	MaxTrackedOps int
	OpTTL         time.Duration
}

func New(cfg Config) (*Service, error) {
	if cfg.Docs == nil {
		return nil, fmt.Errorf("document store is required")
	}
	if cfg.Files == nil {
		return nil, fmt.Errorf("file store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("ai client is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("dedup registry is required")
	}
	if cfg.MaxTrackedOps <= 0 {
		cfg.MaxTrackedOps = defaultMaxTrackedOps
	}
	if cfg.OpTTL <= 0 {
		cfg.OpTTL = defaultOpTTL
	}
	return &Service{
		docs:         cfg.Docs,
		files:        cfg.Files,
		client:       cfg.Client,
		registry:     cfg.Registry,
		hooks:        cfg.Hooks,
		tickInterval: cfg.TickInterval,
		ops: expirable.NewLRU[string, *operation](cfg.MaxTrackedOps, func(_ string, op *operation) {
			op.ticker.Stop()
		}, cfg.OpTTL),
	}, nil
}

// Request is the single-call-site input. Exactly one driving mode is
// active: a document id with no generation id loads; a generation id
// regenerates (or generates when no id exists yet); a bare prompt
// creates.
type Request struct {
	RequestID    string           `json:"requestId,omitempty"`
	Prompt       string           `json:"prompt,omitempty"`
	DocumentID   string           `json:"documentId,omitempty"`
	GenerationID string           `json:"generationId,omitempty"`
	Skip         bool             `json:"skip,omitempty"`
	Options      *ai.ImageOptions `json:"options,omitempty"`
}

// Result is the outcome of a completed operation.
type Result struct {
	RequestID   string
	Doc         *imagedoc.Document
	ImageBytes  []byte
	ContentType string
	FileKey     string
}

// Do dispatches by input precedence. Skip short-circuits to nothing.
func (s *Service) Do(ctx context.Context, req Request) (*Result, error) {
	if req.Skip {
		return nil, nil
	}
	docID := strings.TrimSpace(req.DocumentID)
	genID := strings.TrimSpace(req.GenerationID)
	prompt := strings.TrimSpace(req.Prompt)

	switch {
	case docID != "" && genID == "":
		return s.Load(ctx, docID, req.RequestID)
	case docID != "" && genID != "":
		return s.Regenerate(ctx, RegenerateRequest{
			RequestID:    req.RequestID,
			DocumentID:   docID,
			GenerationID: genID,
			Options:      req.Options,
		})
	case prompt != "":
		return s.Generate(ctx, GenerateRequest{
			RequestID:    req.RequestID,
			Prompt:       prompt,
			GenerationID: genID,
			Options:      req.Options,
		})
	default:
		return nil, ErrMissingInput
	}
}

type GenerateRequest struct {
	RequestID string
	Prompt    string
	// GenerationID, when set, marks a deliberate "generate again" and
	// bypasses dedup against the previous identical request.
	GenerationID string
	Options      *ai.ImageOptions
}

// Generate produces an image for a prompt and creates a new document.
// Concurrent identical requests share one network call and one
// document.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	requestID := ensureRequestID(req.RequestID)
	op := s.track(requestID, StateGeneratingNew)

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, s.failOp(op, ErrMissingInput)
	}
	key := dedup.Key(prompt, req.Options, req.GenerationID)

	// The pending marker is sticky across success: an identical
	// resubmission serves the already-created document instead of
	// issuing a second network call.
	if s.registry.IsPending(key) {
		if docID, ok := s.registry.CreatedDocument(key); ok {
			if doc, err := s.docs.Get(ctx, docID); err == nil {
				if res, err := s.readCurrentFile(ctx, doc); err == nil {
					res.RequestID = requestID
					s.completeOp(op, docID)
					return res, nil
				}
			}
			// The remembered document is gone or unreadable; drop the
			// bookkeeping and generate fresh.
			s.registry.Forget(key)
		}
	}

	result, _, err := s.registry.GenerateOnce(ctx, key, func(ctx context.Context) (*ai.ImageResult, error) {
		return s.client.ImageGen(ctx, prompt, req.Options)
	})
	if err != nil {
		return nil, s.failOp(op, &GenerationError{Err: err})
	}
	imageBytes, err := decodeImage(result)
	if err != nil {
		return nil, s.failOp(op, &GenerationError{Err: err})
	}
	contentType := http.DetectContentType(imageBytes)
	now := time.Now()

	docID, createErr := s.registry.CreateDocumentOnce(ctx, key, func(ctx context.Context) (string, error) {
		doc := imagedoc.New(prompt, now)
		doc.ID = uuid.NewString()
		withVersion, version := imagedoc.AppendVersion(doc, doc.CurrentPromptKey, now)
		// The file goes in first: a version must never be visible
		// without its attachment. An orphaned file is harmless.
		if err := s.files.Put(ctx, doc.ID, version.ID, imageBytes, contentType); err != nil {
			return "", fmt.Errorf("store image file: %w", err)
		}
		id, err := s.docs.Put(ctx, withVersion)
		if err != nil {
			if cleanupErr := s.files.Delete(ctx, doc.ID); cleanupErr != nil {
				log.Printf("imggen: orphaned file cleanup failed for %s: %v", doc.ID, cleanupErr)
			}
			return "", err
		}
		return id, nil
	})

	res := &Result{
		RequestID:   requestID,
		ImageBytes:  imageBytes,
		ContentType: contentType,
	}
	if createErr != nil {
		// The image is not lost because the store write failed: surface
		// it, log the failure, complete without a document.
		log.Printf("imggen: document write failed for request %s: %v", requestID, createErr)
		s.completeOp(op, "")
		return res, nil
	}

	doc, err := s.docs.Get(ctx, docID)
	if err != nil {
		log.Printf("imggen: created document %s unreadable: %v", docID, err)
	} else {
		res.Doc = doc
		versions, idx := imagedoc.ResolveVersions(doc, false)
		if idx >= 0 {
			res.FileKey = versions[idx].ID
		}
	}
	s.completeOp(op, docID)
	return res, nil
}

// Load fetches an existing document and the bytes of its active
// version. It never contacts the AI client.
func (s *Service) Load(ctx context.Context, id, requestID string) (*Result, error) {
	requestID = ensureRequestID(requestID)
	op := s.track(requestID, StateLoadingExisting)

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, s.failOp(op, ErrMissingInput)
	}
	doc, err := s.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, s.failOp(op, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, s.failOp(op, err)
	}
	res, err := s.readCurrentFile(ctx, doc)
	if err != nil {
		return nil, s.failOp(op, err)
	}
	res.RequestID = requestID
	op.complete(id)
	return res, nil
}

type RegenerateRequest struct {
	RequestID    string
	DocumentID   string
	GenerationID string
	Options      *ai.ImageOptions
}

// Regenerate appends a new version to an existing document using its
// currently active prompt. The document identity and all prior
// versions survive both success and failure.
func (s *Service) Regenerate(ctx context.Context, req RegenerateRequest) (*Result, error) {
	requestID := ensureRequestID(req.RequestID)
	op := s.track(requestID, StateRegenerating)

	id := strings.TrimSpace(req.DocumentID)
	if id == "" {
		return nil, s.failOp(op, ErrMissingInput)
	}
	doc, err := s.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, s.failOp(op, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, s.failOp(op, err)
	}
	prompt, promptKey := imagedoc.ResolvePrompt(doc)
	if strings.TrimSpace(prompt) == "" {
		return nil, s.failOp(op, ErrMissingInput)
	}

	return s.appendGeneratedVersion(ctx, op, id, prompt, promptKey, req.GenerationID, req.Options)
}

type EditPromptRequest struct {
	RequestID    string
	DocumentID   string
	Text         string
	GenerationID string
	Options      *ai.ImageOptions
}

// EditPrompt records a new prompt entry on the document, makes it
// current, and regenerates against it. Prior prompts and versions are
// untouched; the new version's PromptKey points at the new entry.
func (s *Service) EditPrompt(ctx context.Context, req EditPromptRequest) (*Result, error) {
	requestID := ensureRequestID(req.RequestID)
	op := s.track(requestID, StateRegenerating)

	id := strings.TrimSpace(req.DocumentID)
	text := strings.TrimSpace(req.Text)
	if id == "" || text == "" {
		return nil, s.failOp(op, ErrMissingInput)
	}

	var promptKey string
	_, err := s.docs.Update(ctx, id, func(cur *imagedoc.Document) (*imagedoc.Document, error) {
		next, key := imagedoc.AppendPrompt(cur, text, time.Now())
		promptKey = key
		return next, nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, s.failOp(op, ErrDocumentNotFound)
	}
	if err != nil {
		return nil, s.failOp(op, err)
	}

	return s.appendGeneratedVersion(ctx, op, id, text, promptKey, req.GenerationID, req.Options)
}

// appendGeneratedVersion is the shared regeneration tail: call the
// model, append one version, store the file.
func (s *Service) appendGeneratedVersion(ctx context.Context, op *operation, docID, prompt, promptKey, generationID string, opts *ai.ImageOptions) (*Result, error) {
	// Every deliberate regeneration carries a nonce so it is never
	// coalesced with the original request for the same prompt.
	nonce := strings.TrimSpace(generationID)
	if nonce == "" {
		nonce = uuid.NewString()
	}
	key := dedup.Key(prompt, opts, nonce)

	result, _, err := s.registry.GenerateOnce(ctx, key, func(ctx context.Context) (*ai.ImageResult, error) {
		return s.client.ImageGen(ctx, prompt, opts)
	})
	if err != nil {
		return nil, s.failOp(op, &GenerationError{Err: err})
	}
	imageBytes, err := decodeImage(result)
	if err != nil {
		return nil, s.failOp(op, &GenerationError{Err: err})
	}
	contentType := http.DetectContentType(imageBytes)

	// The file write happens inside the serialized update so a failed
	// write rolls the whole append back: the document never points at a
	// version with no attachment.
	var version imagedoc.Version
	updated, err := s.docs.Update(ctx, docID, func(cur *imagedoc.Document) (*imagedoc.Document, error) {
		next, v := imagedoc.AppendVersion(cur, promptKey, time.Now())
		if err := s.files.Put(ctx, docID, v.ID, imageBytes, contentType); err != nil {
			return nil, fmt.Errorf("store image file: %w", err)
		}
		version = v
		return next, nil
	})
	res := &Result{
		RequestID:   op.id,
		ImageBytes:  imageBytes,
		ContentType: contentType,
	}
	if err != nil {
		log.Printf("imggen: version append failed for document %s: %v", docID, err)
		s.completeOp(op, docID)
		return res, nil
	}
	res.Doc = updated
	res.FileKey = version.ID
	s.completeOp(op, docID)
	return res, nil
}

// UploadVersion appends a manually supplied image as a new version
// without calling the model.
func (s *Service) UploadVersion(ctx context.Context, id string, content []byte, contentType string) (*Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingInput
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("image content is required")
	}
	if contentType == "" {
		contentType = http.DetectContentType(content)
	}

	var version imagedoc.Version
	updated, err := s.docs.Update(ctx, id, func(cur *imagedoc.Document) (*imagedoc.Document, error) {
		next, v := imagedoc.AppendVersion(cur, "", time.Now())
		if err := s.files.Put(ctx, id, v.ID, content, contentType); err != nil {
			return nil, fmt.Errorf("store uploaded file: %w", err)
		}
		version = v
		return next, nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Doc:         updated,
		ImageBytes:  content,
		ContentType: contentType,
		FileKey:     version.ID,
	}, nil
}

// Delete removes a document and its attachments. The store delete is
// attempted exactly once; failures are logged and returned, never
// retried.
func (s *Service) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrMissingInput
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return ErrDocumentNotFound
		}
		log.Printf("imggen: delete failed for document %s: %v", id, err)
		return err
	}
	if err := s.files.Delete(ctx, id); err != nil {
		// Orphaned attachments are tolerable; the document is gone.
		log.Printf("imggen: attachment cleanup failed for document %s: %v", id, err)
	}
	return nil
}

// List returns all image documents, newest first.
func (s *Service) List(ctx context.Context) ([]*imagedoc.Document, error) {
	return s.docs.ListByType(ctx, imagedoc.TypeImage)
}

// GetFile returns the bytes of one version of a document. An empty
// fileKey resolves the active version.
func (s *Service) GetFile(ctx context.Context, id, fileKey string) (*Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrMissingInput
	}
	doc, err := s.docs.Get(ctx, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	if fileKey = strings.TrimSpace(fileKey); fileKey != "" {
		file, err := s.files.Get(ctx, id, fileKey)
		if errors.Is(err, filestore.ErrNotFound) {
			return nil, ErrDocumentNotFound
		}
		if err != nil {
			return nil, err
		}
		return &Result{Doc: doc, ImageBytes: file.Content, ContentType: file.ContentType, FileKey: fileKey}, nil
	}
	return s.readCurrentFile(ctx, doc)
}

// FileURL returns a direct URL for the active version when the file
// store supports one, or "".
func (s *Service) FileURL(ctx context.Context, id string) (string, error) {
	doc, err := s.docs.Get(ctx, strings.TrimSpace(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return "", ErrDocumentNotFound
	}
	if err != nil {
		return "", err
	}
	fileKey, err := s.resolveCurrentFileKey(ctx, doc)
	if err != nil {
		return "", err
	}
	return s.files.GetURL(ctx, doc.ID, fileKey)
}

// Subscribe streams document changes for live queries.
func (s *Service) Subscribe(ctx context.Context, docType string) (<-chan docstore.Change, error) {
	if strings.TrimSpace(docType) == "" {
		docType = imagedoc.TypeImage
	}
	return s.docs.Subscribe(ctx, docType)
}

func (s *Service) readCurrentFile(ctx context.Context, doc *imagedoc.Document) (*Result, error) {
	fileKey, err := s.resolveCurrentFileKey(ctx, doc)
	if err != nil {
		return nil, err
	}
	file, err := s.files.Get(ctx, doc.ID, fileKey)
	if errors.Is(err, filestore.ErrNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Result{
		Doc:         doc,
		ImageBytes:  file.Content,
		ContentType: file.ContentType,
		FileKey:     fileKey,
	}, nil
}

func (s *Service) resolveCurrentFileKey(ctx context.Context, doc *imagedoc.Document) (string, error) {
	keys, err := s.files.List(ctx, doc.ID)
	if err != nil {
		return "", err
	}
	stored := make(map[string]bool, len(keys))
	for _, key := range keys {
		stored[key] = true
	}
	versions, idx := imagedoc.ResolveVersions(doc, stored[imagedoc.LegacyFileKey])
	if idx < 0 {
		return "", ErrDocumentNotFound
	}
	fileKey := imagedoc.ResolveFileKey(idx, versions, func(key string) bool { return stored[key] })
	if fileKey == "" {
		// The active version has no attachment (and no legacy file
		// backs it): serve the newest version that still has one rather
		// than failing the whole document.
		for i := len(versions) - 1; i >= 0; i-- {
			if stored[versions[i].ID] {
				fileKey = versions[i].ID
				break
			}
		}
	}
	if fileKey == "" {
		return "", ErrDocumentNotFound
	}
	return fileKey, nil
}

func (s *Service) track(requestID string, state State) *operation {
	op := newOperation(requestID, s.tickInterval)
	op.begin(state)
	s.ops.Add(requestID, op)
	return op
}

func (s *Service) failOp(op *operation, err error) error {
	op.fail(err)
	if s.hooks.OnError != nil {
		s.hooks.OnError(op.id, err)
	}
	return err
}

func (s *Service) completeOp(op *operation, docID string) {
	op.complete(docID)
	if s.hooks.OnComplete != nil {
		s.hooks.OnComplete(op.id, docID)
	}
}

func decodeImage(result *ai.ImageResult) ([]byte, error) {
	if result == nil || len(result.Data) == 0 || result.Data[0].B64JSON == "" {
		return nil, ai.ErrEmptyResponse
	}
	raw, err := base64.StdEncoding.DecodeString(result.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image payload: %w", err)
	}
	if len(raw) == 0 {
		return nil, ai.ErrEmptyResponse
	}
	return raw, nil
}

func ensureRequestID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
