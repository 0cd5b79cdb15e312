package docstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"imggen/internal/imagedoc"
)

// feed fans document changes out to subscribers. Both backends publish
// through it; delivery is process-local and best effort (a slow
// subscriber drops events rather than blocking writers).
type feed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*feedSub
}

type feedSub struct {
	docType string
	ch      chan Change
}

func newFeed() *feed {
	return &feed{subs: make(map[int]*feedSub)}
}

func (f *feed) subscribe(ctx context.Context, docType string) (<-chan Change, error) {
	if f == nil {
		return nil, fmt.Errorf("feed is nil")
	}
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return nil, fmt.Errorf("doc type is required")
	}
	sub := &feedSub{
		docType: docType,
		ch:      make(chan Change, 32),
	}
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		if cur, ok := f.subs[id]; ok && cur == sub {
			delete(f.subs, id)
			close(sub.ch)
		}
		f.mu.Unlock()
	}()
	return sub.ch, nil
}

func (f *feed) publish(change Change) {
	if f == nil {
		return
	}
	docType := imagedoc.TypeImage
	if change.Doc != nil && change.Doc.Type != "" {
		docType = change.Doc.Type
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		if change.Kind != ChangeDelete && sub.docType != docType {
			continue
		}
		select {
		case sub.ch <- change:
		default:
			// subscriber is backed up; drop the event
		}
	}
}
