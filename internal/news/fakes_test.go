package news

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// memBackend is a minimal Backend for package tests. Entries are kept
// JSON-encoded so corrupt records can be planted.
type memBackend struct {
	mu       sync.Mutex
	meta     map[string]Metadata
	entries  map[string][]byte
	datasets map[string]*table.Table
	getErr   error
	puts     int
}

func newMemBackend() *memBackend {
	return &memBackend{
		meta:     make(map[string]Metadata),
		entries:  make(map[string][]byte),
		datasets: make(map[string]*table.Table),
	}
}

func (b *memBackend) CreateNamespace(_ context.Context, hash string, meta Metadata) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.meta[hash] = meta
	return nil
}

func (b *memBackend) Put(_ context.Context, ns, key string, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[ns+"/"+key] = data
	b.puts++
	return nil
}

func (b *memBackend) Get(_ context.Context, ns, key string) (*Entry, bool, error) {
	b.mu.Lock()
	data, ok := b.entries[ns+"/"+key]
	getErr := b.getErr
	b.mu.Unlock()
	if getErr != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrStorageIO, getErr)
	}
	if !ok {
		return nil, false, nil
	}
	e, err := DecodeEntry(data, key)
	if err != nil {
		return nil, false, nil
	}
	return e, true, nil
}

func (b *memBackend) List(context.Context) iter.Seq2[Metadata, error] {
	b.mu.Lock()
	metas := make([]Metadata, 0, len(b.meta))
	for _, m := range b.meta {
		metas = append(metas, m)
	}
	b.mu.Unlock()
	return func(yield func(Metadata, error) bool) {
		for _, m := range metas {
			if !yield(m, nil) {
				return
			}
		}
	}
}

func (b *memBackend) SaveDataset(_ context.Context, ns, name string, t *table.Table) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.datasets[ns+"/"+name] = t
	return nil
}

func (b *memBackend) LoadDataset(_ context.Context, ns, name string) (*table.Table, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.datasets[ns+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: no dataset %s", ErrStorageIO, name)
	}
	return t, nil
}

func (b *memBackend) raw(ns, key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.entries[ns+"/"+key]
	return data, ok
}

func (b *memBackend) plant(ns, key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[ns+"/"+key] = data
}

// fakeClient answers from respond and counts calls.
type fakeClient struct {
	calls   atomic.Int64
	respond func(ctx context.Context, p Params) (*Response, error)
}

func (c *fakeClient) Get(ctx context.Context, p Params) (*Response, error) {
	c.calls.Add(1)
	return c.respond(ctx, p)
}

func okClient(body string) *fakeClient {
	return &fakeClient{respond: func(context.Context, Params) (*Response, error) {
		return &Response{StatusCode: 200, Body: []byte(body)}, nil
	}}
}
