// Package verseindex maintains a lookup from verse numbers to the offset
// ranges of the verse lines in each document's text.
//
// The index follows document content through updated/removed events. Each
// event is applied in one index transaction that first drops every verse
// entry of the named documents and then rescans the updated ones, so an
// update always replaces earlier entries wholesale. Handlers hold no state
// outside that transaction and may run concurrently for distinct events.
package verseindex

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/core/events"
	"github.com/gremid/faust-app/core/index"
	"github.com/gremid/faust-app/core/text"
	"github.com/gremid/faust-app/internal/cache"
	"github.com/gremid/faust-app/internal/logging"
	"github.com/gremid/faust-app/internal/validation"
)

// EntryType marks verse entries in the shared index.
const EntryType = "verse"

// SubscriberName identifies the index on the event bus.
const SubscriberName = "verse-index"

type queryKey struct {
	verse int
	limit int
}

// Option configures an Index.
type Option func(*Index)

// WithCacheTTL caches query results for ttl. Any committed update clears the
// cache. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(x *Index) { x.cache = cache.New[queryKey, map[int64][]Range](ttl) }
}

// Index is the verse index.
type Index struct {
	store       *index.Store
	transcripts text.Transcripts
	cache       *cache.TTLCache[queryKey, map[int64][]Range]

	mu          sync.Mutex
	unsubscribe func()
}

// New returns an idle index. It does nothing until Subscribe is called or
// its handlers are invoked directly.
func New(store *index.Store, transcripts text.Transcripts, opts ...Option) *Index {
	x := &Index{
		store:       store,
		transcripts: transcripts,
		cache:       cache.New[queryKey, map[int64][]Range](0),
	}
	for _, o := range opts {
		o(x)
	}
	return x
}

// DocumentsUpdated reindexes the verses of ids.
func (x *Index) DocumentsUpdated(ctx context.Context, ids []int64) error {
	return x.apply(ctx, events.KindUpdated, ids, func(w *index.Writer) (int, error) {
		if _, err := w.Delete(EntryType, ids); err != nil {
			return 0, err
		}
		written := 0
		for _, id := range ids {
			n, err := x.indexDocument(ctx, w, id)
			if err != nil {
				return written, fmt.Errorf("document %d: %w", id, err)
			}
			written += n
		}
		return written, nil
	})
}

// DocumentsRemoved drops the verse entries of ids.
func (x *Index) DocumentsRemoved(ctx context.Context, ids []int64) error {
	return x.apply(ctx, events.KindRemoved, ids, func(w *index.Writer) (int, error) {
		_, err := w.Delete(EntryType, ids)
		return 0, err
	})
}

func (x *Index) apply(ctx context.Context, kind events.Kind, ids []int64, fn func(w *index.Writer) (int, error)) error {
	start := time.Now()
	var written int
	err := x.store.Update(ctx, func(w *index.Writer) error {
		var err error
		written, err = fn(w)
		return err
	})
	updateDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		updateTotal.WithLabelValues(string(kind), "error").Inc()
		return fmt.Errorf("update verse index: %w", err)
	}

	x.cache.Invalidate()
	updateTotal.WithLabelValues(string(kind), "ok").Inc()
	entriesWritten.Add(float64(written))
	logging.IndexUpdated(string(kind), ids, written, "index", EntryType)
	return nil
}

func (x *Index) indexDocument(ctx context.Context, w *index.Writer, id int64) (int, error) {
	logging.DebugContext(ctx, "indexing verses", "document_id", id)

	stream, err := x.transcripts.Textual(ctx, id)
	if err != nil {
		return 0, err
	}
	defer stream.Close()

	verses, err := Verses(stream)
	if err != nil {
		return 0, err
	}
	for _, v := range verses {
		err := w.Add(index.Entry{
			Type:       EntryType,
			DocumentID: id,
			Key:        strconv.Itoa(v.Number),
			Start:      v.Start,
			End:        v.End,
		})
		if err != nil {
			return 0, err
		}
	}
	return len(verses), nil
}

// Query returns the ranges of verse in each document, reading at most limit
// entries. Both arguments must be positive; limit is capped at
// validation.MaxLimit.
func (x *Index) Query(ctx context.Context, verse, limit int) (map[int64][]Range, error) {
	if err := validation.Positive("verse", verse); err != nil {
		return nil, err
	}
	if err := validation.Limit(limit); err != nil {
		return nil, err
	}

	key := queryKey{verse: verse, limit: limit}
	if cached, ok := x.cache.Get(key); ok {
		queryTotal.WithLabelValues("hit").Inc()
		return copyResult(cached), nil
	}
	gen := x.cache.Generation()

	result := make(map[int64][]Range)
	err := x.store.View(ctx, func(r *index.Reader) error {
		entries, err := r.Lookup(EntryType, strconv.Itoa(verse), limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			result[e.DocumentID] = append(result[e.DocumentID], Range{Start: e.Start, End: e.End})
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrapf(err, "query verse %d", verse)
	}

	queryTotal.WithLabelValues("miss").Inc()
	x.cache.SetIfCurrent(key, copyResult(result), gen)
	return result, nil
}

func copyResult(m map[int64][]Range) map[int64][]Range {
	out := make(map[int64][]Range, len(m))
	for id, ranges := range m {
		out[id] = append([]Range(nil), ranges...)
	}
	return out
}

// HandleEvent dispatches a bus event to DocumentsUpdated or
// DocumentsRemoved.
func (x *Index) HandleEvent(ctx context.Context, ev events.Event) error {
	switch ev.Kind {
	case events.KindUpdated:
		return x.DocumentsUpdated(ctx, ev.IDs)
	case events.KindRemoved:
		return x.DocumentsRemoved(ctx, ev.IDs)
	default:
		return apperrors.NewUnsupported("event kind", string(ev.Kind))
	}
}

// Subscribe attaches the index to bus. A second call replaces the earlier
// subscription.
func (x *Index) Subscribe(bus *events.Bus) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.unsubscribe != nil {
		x.unsubscribe()
	}
	x.unsubscribe = bus.Subscribe(SubscriberName, x.HandleEvent)
}

// Close releases the bus subscription. The index store stays open.
func (x *Index) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.unsubscribe != nil {
		x.unsubscribe()
		x.unsubscribe = nil
	}
}
