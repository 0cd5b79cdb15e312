package dedup

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"imggen/internal/ai"
)

const (
	defaultSweepInterval = time.Minute
	defaultEntryTTL      = 5 * time.Minute
	defaultMaxCreated    = 1024
)

// Registry coalesces concurrent identical generation requests: at most
// one network call and one document create are in flight per stable
// key, and later identical requests reuse the already-created document
// id. Intended to be constructed once and injected into the service.
type Registry struct {
	genGroup    singleflight.Group
	createGroup singleflight.Group

	mu         sync.Mutex
	pending    map[string]time.Time
	processing map[string]time.Time

	created *expirable.LRU[string, string]

	sweepInterval time.Duration
	entryTTL      time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
}

type Config struct {
	// SweepInterval is how often stale bookkeeping entries are swept.
	SweepInterval time.Duration
	// EntryTTL is the age past which entries are evicted regardless of
	// outcome.
	EntryTTL time.Duration
	// MaxCreated bounds the key -> created-document map.
	MaxCreated int
}

func NewRegistry(cfg Config) *Registry {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = defaultEntryTTL
	}
	if cfg.MaxCreated <= 0 {
		cfg.MaxCreated = defaultMaxCreated
	}
	r := &Registry{
		pending:       make(map[string]time.Time),
		processing:    make(map[string]time.Time),
		created:       expirable.NewLRU[string, string](cfg.MaxCreated, nil, cfg.EntryTTL),
		sweepInterval: cfg.SweepInterval,
		entryTTL:      cfg.EntryTTL,
		stopCh:        make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Close stops the sweep goroutine.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Key builds the stable request key: prompt plus the option fields that
// affect generation output, nothing else. A non-empty nonce marks a
// deliberate regeneration and keeps it from coalescing with the
// original request.
func Key(prompt string, opts *ai.ImageOptions, nonce string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(prompt))
	if opts != nil {
		fmt.Fprintf(&b, "|size=%s|quality=%s|model=%s|style=%s",
			strings.TrimSpace(opts.Size),
			strings.TrimSpace(opts.Quality),
			strings.TrimSpace(opts.Model),
			strings.TrimSpace(opts.Style))
	}
	if nonce = strings.TrimSpace(nonce); nonce != "" {
		b.WriteString("|nonce=")
		b.WriteString(nonce)
	}
	return b.String()
}

// GenerateOnce runs fn at most once concurrently per key; callers that
// arrive while an identical call is in flight share its outcome. The
// returned shared flag reports whether the result came from another
// caller's call. On success the key stays in the pending set (sticky,
// suppresses accidental resubmission); on failure it is cleared so the
// user can retry.
func (r *Registry) GenerateOnce(ctx context.Context, key string, fn func(ctx context.Context) (*ai.ImageResult, error)) (*ai.ImageResult, bool, error) {
	if r == nil {
		return nil, false, fmt.Errorf("registry is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, fmt.Errorf("key is required")
	}
	if fn == nil {
		return nil, false, fmt.Errorf("fn is required")
	}

	now := time.Now()
	r.mu.Lock()
	if _, ok := r.pending[key]; !ok {
		r.pending[key] = now
	}
	r.processing[key] = now
	r.mu.Unlock()

	value, err, shared := r.genGroup.Do(key, func() (any, error) {
		return fn(ctx)
	})

	r.mu.Lock()
	delete(r.processing, key)
	if err != nil {
		delete(r.pending, key)
	}
	r.mu.Unlock()

	if err != nil {
		return nil, shared, err
	}
	result, _ := value.(*ai.ImageResult)
	return result, shared, nil
}

// CreateDocumentOnce runs the document-create fn at most once per key
// and remembers the resulting id, so a later identical request reuses
// the document instead of creating a duplicate.
func (r *Registry) CreateDocumentOnce(ctx context.Context, key string, fn func(ctx context.Context) (string, error)) (string, error) {
	if r == nil {
		return "", fmt.Errorf("registry is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if fn == nil {
		return "", fmt.Errorf("fn is required")
	}
	if id, ok := r.created.Get(key); ok {
		return id, nil
	}
	value, err, _ := r.createGroup.Do(key, func() (any, error) {
		if id, ok := r.created.Get(key); ok {
			return id, nil
		}
		id, err := fn(ctx)
		if err != nil {
			return "", err
		}
		r.created.Add(key, id)
		return id, nil
	})
	if err != nil {
		return "", err
	}
	id, _ := value.(string)
	return id, nil
}

// CreatedDocument returns the document id a prior identical request
// produced, if it is still remembered.
func (r *Registry) CreatedDocument(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	return r.created.Get(key)
}

// MarkPending records the key ahead of a scheduled request, so other
// callers can see it before the network call starts.
func (r *Registry) MarkPending(key string) {
	if r == nil {
		return
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	r.mu.Lock()
	if _, ok := r.pending[key]; !ok {
		r.pending[key] = time.Now()
	}
	r.mu.Unlock()
}

// IsPending reports whether the key has an un-cleared prior request.
func (r *Registry) IsPending(key string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

// IsProcessing reports whether a network call for the key is currently
// in flight.
func (r *Registry) IsProcessing(key string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processing[key]
	return ok
}

// ClearPending removes the sticky marker, e.g. when the calling
// session is torn down.
func (r *Registry) ClearPending(key string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	delete(r.pending, key)
	r.mu.Unlock()
}

// Forget drops all bookkeeping for the key: the sticky marker and the
// remembered created document. Used when the remembered document no
// longer exists, so an identical request starts over.
func (r *Registry) Forget(key string) {
	if r == nil {
		return
	}
	r.ClearPending(key)
	r.created.Remove(key)
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case now := <-ticker.C:
			r.sweep(now)
		}
	}
}

func (r *Registry) sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, issued := range r.pending {
		if now.Sub(issued) > r.entryTTL {
			delete(r.pending, key)
		}
	}
	for key, issued := range r.processing {
		if now.Sub(issued) > r.entryTTL {
			delete(r.processing, key)
		}
	}
}
