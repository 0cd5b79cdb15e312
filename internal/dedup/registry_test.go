package dedup

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"imggen/internal/ai"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(Config{})
	t.Cleanup(r.Close)
	return r
}

func TestKeyIncludesOnlyRelevantOptions(t *testing.T) {
	opts := &ai.ImageOptions{Size: "1024x1024", Quality: "hd", Model: "m", Style: "vivid"}
	a := Key("a red cat", opts, "")
	b := Key("a red cat", &ai.ImageOptions{Size: "1024x1024", Quality: "hd", Model: "m", Style: "vivid"}, "")
	require.Equal(t, a, b, "identical relevant options must yield identical keys")

	c := Key("a red cat", &ai.ImageOptions{Size: "1792x1024", Quality: "hd", Model: "m", Style: "vivid"}, "")
	require.NotEqual(t, a, c, "size affects the key")

	d := Key("a blue cat", opts, "")
	require.NotEqual(t, a, d, "prompt affects the key")
}

func TestKeyNonceBypassesDedup(t *testing.T) {
	a := Key("a red cat", nil, "")
	b := Key("a red cat", nil, "regen-1")
	c := Key("a red cat", nil, "regen-2")
	require.NotEqual(t, a, b)
	require.NotEqual(t, b, c)
}

func TestGenerateOnceCoalescesConcurrentCalls(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")

	var calls int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(ctx context.Context) (*ai.ImageResult, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
		}
		<-release
		return &ai.ImageResult{Data: []ai.ImageData{{B64JSON: "Zg=="}}}, nil
	}

	const callers = 8
	results := make(chan *ai.ImageResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, _, err := r.GenerateOnce(context.Background(), key, fn)
			if err != nil {
				t.Errorf("GenerateOnce: %v", err)
				return
			}
			results <- res
		}()
	}

	<-started
	time.Sleep(20 * time.Millisecond) // let remaining callers join the flight
	close(release)
	wg.Wait()
	close(results)

	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "exactly one underlying network call")
	var first *ai.ImageResult
	for res := range results {
		if first == nil {
			first = res
			continue
		}
		require.Same(t, first, res, "all callers observe the same result")
	}
}

func TestGenerateOncePendingStickyOnSuccess(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")

	_, _, err := r.GenerateOnce(context.Background(), key, func(ctx context.Context) (*ai.ImageResult, error) {
		return &ai.ImageResult{}, nil
	})
	require.NoError(t, err)
	require.True(t, r.IsPending(key), "success leaves the key pending")
	require.False(t, r.IsProcessing(key), "processing clears once the call settles")

	r.ClearPending(key)
	require.False(t, r.IsPending(key))
}

func TestMarkPending(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")

	require.False(t, r.IsPending(key))
	r.MarkPending(key)
	require.True(t, r.IsPending(key))
	r.ClearPending(key)
	require.False(t, r.IsPending(key))
}

func TestForgetDropsAllBookkeeping(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")

	_, _, err := r.GenerateOnce(context.Background(), key, func(ctx context.Context) (*ai.ImageResult, error) {
		return &ai.ImageResult{}, nil
	})
	require.NoError(t, err)
	_, err = r.CreateDocumentOnce(context.Background(), key, func(ctx context.Context) (string, error) {
		return "doc-1", nil
	})
	require.NoError(t, err)
	require.True(t, r.IsPending(key))
	_, ok := r.CreatedDocument(key)
	require.True(t, ok)

	r.Forget(key)
	require.False(t, r.IsPending(key))
	_, ok = r.CreatedDocument(key)
	require.False(t, ok, "forgotten keys must not remember the created document")

	// A later identical request starts over.
	id, err := r.CreateDocumentOnce(context.Background(), key, func(ctx context.Context) (string, error) {
		return "doc-2", nil
	})
	require.NoError(t, err)
	require.Equal(t, "doc-2", id)
}

func TestGenerateOnceFailureClearsPending(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")
	boom := errors.New("boom")

	_, _, err := r.GenerateOnce(context.Background(), key, func(ctx context.Context) (*ai.ImageResult, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.False(t, r.IsPending(key), "failure clears pending so the user can retry")
	require.False(t, r.IsProcessing(key))

	// Retry after failure is permitted.
	res, _, err := r.GenerateOnce(context.Background(), key, func(ctx context.Context) (*ai.ImageResult, error) {
		return &ai.ImageResult{}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, res)
}

func TestCreateDocumentOnce(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")

	var creates int32
	create := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&creates, 1)
		return "doc-1", nil
	}

	const callers = 6
	var wg sync.WaitGroup
	ids := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.CreateDocumentOnce(context.Background(), key, create)
			if err != nil {
				t.Errorf("CreateDocumentOnce: %v", err)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&creates), "exactly one document create")
	for _, id := range ids {
		require.Equal(t, "doc-1", id)
	}

	// A later identical request reuses the remembered document.
	id, err := r.CreateDocumentOnce(context.Background(), key, create)
	require.NoError(t, err)
	require.Equal(t, "doc-1", id)
	require.Equal(t, int32(1), atomic.LoadInt32(&creates))

	got, ok := r.CreatedDocument(key)
	require.True(t, ok)
	require.Equal(t, "doc-1", got)
}

func TestCreateDocumentOnceFailureDoesNotPoison(t *testing.T) {
	r := newTestRegistry(t)
	key := Key("a red cat", nil, "")
	boom := errors.New("boom")

	_, err := r.CreateDocumentOnce(context.Background(), key, func(ctx context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)

	id, err := r.CreateDocumentOnce(context.Background(), key, func(ctx context.Context) (string, error) {
		return "doc-2", nil
	})
	require.NoError(t, err)
	require.Equal(t, "doc-2", id)
}

func TestSweepEvictsStaleEntries(t *testing.T) {
	r := NewRegistry(Config{SweepInterval: time.Hour, EntryTTL: time.Minute})
	t.Cleanup(r.Close)
	key := Key("a red cat", nil, "")

	_, _, _ = r.GenerateOnce(context.Background(), key, func(ctx context.Context) (*ai.ImageResult, error) {
		return &ai.ImageResult{}, nil
	})
	require.True(t, r.IsPending(key))

	// Entries older than the TTL are evicted regardless of outcome.
	r.sweep(time.Now().Add(2 * time.Minute))
	require.False(t, r.IsPending(key))
}
