// Package store implements news.Backend over memory, the local filesystem,
// S3-compatible object storage and SQLite.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"path"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// ErrNotFound is returned when a dataset or object does not exist.
var ErrNotFound = errors.New("not found")

const metadataFile = "metadata.json"

// blobStore is a flat key/value store addressed by slash-separated names.
type blobStore interface {
	// read returns ErrNotFound for missing names.
	read(ctx context.Context, name string) ([]byte, error)
	write(ctx context.Context, name string, data []byte) error
	// namespaces lists the first path element of every stored name.
	namespaces(ctx context.Context) ([]string, error)
}

// objectBackend lays namespaces out as <hash>/<key>.json and
// <hash>/metadata.json; datasets go wherever datasetName points.
type objectBackend struct {
	entries     blobStore
	datasets    blobStore
	datasetName func(namespace, name string) string
	logger      *slog.Logger
}

func newObjectBackend(entries, datasets blobStore, datasetName func(string, string) string, logger *slog.Logger) objectBackend {
	return objectBackend{
		entries:     entries,
		datasets:    datasets,
		datasetName: datasetName,
		logger:      logging.OrNop(logger),
	}
}

// CreateNamespace writes or replaces the metadata record of hash. Entries
// already stored in the namespace are kept.
func (b objectBackend) CreateNamespace(ctx context.Context, hash string, meta news.Metadata) error {
	name := path.Join(hash, metadataFile)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := b.entries.write(ctx, name, data); err != nil {
		return fmt.Errorf("%w: %w", news.ErrStorageIO, err)
	}
	b.logger.Debug("created namespace", "namespace", hash)
	return nil
}

func (b objectBackend) Put(ctx context.Context, namespace, key string, entry *news.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := b.entries.write(ctx, path.Join(namespace, key+".json"), data); err != nil {
		return fmt.Errorf("%w: %w", news.ErrStorageIO, err)
	}
	return nil
}

func (b objectBackend) Get(ctx context.Context, namespace, key string) (*news.Entry, bool, error) {
	data, err := b.entries.read(ctx, path.Join(namespace, key+".json"))
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", news.ErrStorageIO, err)
	}
	entry, err := news.DecodeEntry(data, key)
	if err != nil {
		b.logger.Warn("ignoring corrupt entry", "namespace", namespace, "key", key, "err", err)
		return nil, false, nil
	}
	return entry, true, nil
}

// List yields the metadata of every namespace. Namespaces without readable
// metadata are skipped.
func (b objectBackend) List(ctx context.Context) iter.Seq2[news.Metadata, error] {
	return func(yield func(news.Metadata, error) bool) {
		hashes, err := b.entries.namespaces(ctx)
		if err != nil {
			yield(news.Metadata{}, fmt.Errorf("%w: %w", news.ErrStorageIO, err))
			return
		}
		for _, hash := range hashes {
			data, err := b.entries.read(ctx, path.Join(hash, metadataFile))
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				if !yield(news.Metadata{}, fmt.Errorf("%w: %w", news.ErrStorageIO, err)) {
					return
				}
				continue
			}
			meta, err := decodeMetadata(data)
			if err != nil {
				b.logger.Warn("ignoring unreadable metadata", "namespace", hash, "err", err)
				continue
			}
			if !yield(meta, nil) {
				return
			}
		}
	}
}

func (b objectBackend) SaveDataset(ctx context.Context, namespace, name string, t *table.Table) error {
	var buf bytes.Buffer
	if err := table.WriteParquet(&buf, t); err != nil {
		return fmt.Errorf("encode dataset %s: %w", name, err)
	}
	if err := b.datasets.write(ctx, b.datasetName(namespace, name), buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", news.ErrStorageIO, err)
	}
	return nil
}

func (b objectBackend) LoadDataset(ctx context.Context, namespace, name string) (*table.Table, error) {
	data, err := b.datasets.read(ctx, b.datasetName(namespace, name))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("dataset %s/%s: %w", namespace, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", news.ErrStorageIO, err)
	}
	t, err := table.DecodeParquet(data)
	if err != nil {
		return nil, fmt.Errorf("%w: dataset %s/%s: %v", news.ErrStorageCorrupt, namespace, name, err)
	}
	return t, nil
}

// nestedDatasetName keeps datasets inside the namespace prefix.
func nestedDatasetName(namespace, name string) string {
	return path.Join(namespace, "datasets", name+".parquet")
}

func decodeMetadata(data []byte) (news.Metadata, error) {
	var meta news.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return news.Metadata{}, fmt.Errorf("%w: %v", news.ErrStorageCorrupt, err)
	}
	if meta.Topic == "" || len(meta.Stations) == 0 {
		return news.Metadata{}, fmt.Errorf("%w: metadata without topic or stations", news.ErrStorageCorrupt)
	}
	return meta, nil
}
