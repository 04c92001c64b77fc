package news

import (
	"context"
	"iter"

	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// Backend persists namespaces, cache entries and exported datasets.
//
// Get treats a malformed record as a miss: it returns (nil, false, nil) and
// logs. Only genuine read failures are returned, wrapped in ErrStorageIO.
// List is read-only and may miss namespaces created while it runs.
type Backend interface {
	CreateNamespace(ctx context.Context, hash string, meta Metadata) error
	Put(ctx context.Context, namespace, key string, entry *Entry) error
	Get(ctx context.Context, namespace, key string) (*Entry, bool, error)
	List(ctx context.Context) iter.Seq2[Metadata, error]
	SaveDataset(ctx context.Context, namespace, name string, t *table.Table) error
	LoadDataset(ctx context.Context, namespace, name string) (*table.Table, error)
}

// Namespace binds a backend to one namespace hash.
type Namespace struct {
	Backend Backend
	Hash    string
}

// Put stores entry under key in this namespace.
func (n Namespace) Put(ctx context.Context, key string, entry *Entry) error {
	return n.Backend.Put(ctx, n.Hash, key, entry)
}

// Get loads the entry stored under key in this namespace.
func (n Namespace) Get(ctx context.Context, key string) (*Entry, bool, error) {
	return n.Backend.Get(ctx, n.Hash, key)
}
