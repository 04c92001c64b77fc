package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/table"
)

type backendCase struct {
	backend news.Backend
	// plant writes raw bytes where the entry for key would live.
	plant func(t *testing.T, namespace, key string, data []byte)
}

func backends(t *testing.T) map[string]backendCase {
	t.Helper()
	ctx := context.Background()

	mem := NewMemory(nil)

	dir := t.TempDir()
	local, err := NewLocal(filepath.Join(dir, "cache"), filepath.Join(dir, "data"), nil)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	objects := newMapStore()
	remote := newRemote(objects, nil)

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return map[string]backendCase{
		"memory": {mem, func(t *testing.T, ns, key string, data []byte) {
			mem.objects.write(ctx, ns+"/"+key+".json", data)
		}},
		"local": {local, func(t *testing.T, ns, key string, data []byte) {
			p := filepath.Join(dir, "cache", ns, key+".json")
			if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(p, data, 0o600); err != nil {
				t.Fatal(err)
			}
		}},
		"remote": {remote, func(t *testing.T, ns, key string, data []byte) {
			objects.write(ctx, ns+"/"+key+".json", data)
		}},
		"sqlite": {db, func(t *testing.T, ns, key string, data []byte) {
			_, err := db.writeDB.Exec(`INSERT OR REPLACE INTO entries (namespace, key, body, stored_at) VALUES (?, ?, ?, ?)`,
				ns, key, string(data), time.Now())
			if err != nil {
				t.Fatal(err)
			}
		}},
	}
}

var testMeta = news.Metadata{Topic: "weather", Stations: []string{"CNN", "FOX"}, Start: "01/01/2020", End: "03/31/2020"}

func TestBackendPutGet(t *testing.T) {
	for name, bc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := bc.backend

			if _, ok, err := b.Get(ctx, "ns1", "k1"); err != nil || ok {
				t.Fatalf("Get on empty backend: ok=%v err=%v", ok, err)
			}

			entry := &news.Entry{
				Hash:        "k1",
				Query:       news.Params{"mode": "clipgallery"},
				StatusCode:  200,
				RawResponse: `{"clips":[]}`,
				Data:        []map[string]any{{"station": "CNN", "value": 1.5}},
			}
			if err := b.Put(ctx, "ns1", "k1", entry); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, ok, err := b.Get(ctx, "ns1", "k1")
			if err != nil || !ok {
				t.Fatalf("Get: ok=%v err=%v", ok, err)
			}
			if diff := cmp.Diff(entry, got); diff != "" {
				t.Errorf("entry mismatch (-want +got):\n%s", diff)
			}

			if _, ok, _ := b.Get(ctx, "ns2", "k1"); ok {
				t.Error("entry leaked into another namespace")
			}

			failed := &news.Entry{Hash: "k1", StatusCode: 500, Error: "network error: status 500"}
			if err := b.Put(ctx, "ns1", "k1", failed); err != nil {
				t.Fatalf("overwrite Put: %v", err)
			}
			got, _, _ = b.Get(ctx, "ns1", "k1")
			if !got.Failed() || got.Data != nil {
				t.Errorf("overwrite not visible: %+v", got)
			}
		})
	}
}

func TestBackendCorruptEntryIsMiss(t *testing.T) {
	for name, bc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			bc.plant(t, "ns", "k1", []byte("{truncated"))
			bc.plant(t, "ns", "k2", []byte(`{"hash":"someone-else"}`))

			for _, key := range []string{"k1", "k2"} {
				entry, ok, err := bc.backend.Get(ctx, "ns", key)
				if err != nil || ok || entry != nil {
					t.Errorf("Get %s = %v, %v, %v; want miss", key, entry, ok, err)
				}
			}
		})
	}
}

func TestBackendNamespacesAndList(t *testing.T) {
	for name, bc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := bc.backend
			other := news.Metadata{Topic: "climate", Stations: []string{"MSNBC"}}

			if err := b.CreateNamespace(ctx, "h1", other); err != nil {
				t.Fatalf("CreateNamespace: %v", err)
			}
			if err := b.Put(ctx, "h1", "k", &news.Entry{Hash: "k"}); err != nil {
				t.Fatalf("Put: %v", err)
			}
			// Creating again replaces the metadata and keeps the entries.
			if err := b.CreateNamespace(ctx, "h1", testMeta); err != nil {
				t.Fatalf("CreateNamespace again: %v", err)
			}
			if _, ok, err := b.Get(ctx, "h1", "k"); err != nil || !ok {
				t.Fatalf("Get after recreate: ok=%v err=%v", ok, err)
			}
			if err := b.CreateNamespace(ctx, "h2", other); err != nil {
				t.Fatalf("CreateNamespace h2: %v", err)
			}

			topics := map[string]news.Metadata{}
			for meta, err := range b.List(ctx) {
				if err != nil {
					t.Fatalf("List: %v", err)
				}
				topics[meta.Topic] = meta
			}
			want := map[string]news.Metadata{"weather": testMeta, "climate": other}
			if diff := cmp.Diff(want, topics); diff != "" {
				t.Errorf("listed metadata mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackendListEmpty(t *testing.T) {
	for name, bc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for _, err := range bc.backend.List(context.Background()) {
				t.Fatalf("unexpected item, err=%v", err)
			}
		})
	}
}

func TestBackendDatasets(t *testing.T) {
	for name, bc := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			b := bc.backend

			if _, err := b.LoadDataset(ctx, "h1", "cnn"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("LoadDataset missing: err = %v, want ErrNotFound", err)
			}

			ts := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
			tbl := table.New("date", "snippet", "station")
			tbl.Append(table.Row{"date": ts, "snippet": "rain", "station": "CNN"})
			tbl.Append(table.Row{"date": ts.Add(time.Hour), "snippet": "snow", "station": "CNN"})
			if err := b.SaveDataset(ctx, "h1", "cnn", tbl); err != nil {
				t.Fatalf("SaveDataset: %v", err)
			}
			got, err := b.LoadDataset(ctx, "h1", "cnn")
			if err != nil {
				t.Fatalf("LoadDataset: %v", err)
			}
			if diff := cmp.Diff(tbl.Column("snippet"), got.Column("snippet")); diff != "" {
				t.Errorf("snippet mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tbl.Column("date"), got.Column("date")); diff != "" {
				t.Errorf("date mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocalLayout(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cacheDir, dataDir := filepath.Join(dir, "cache"), filepath.Join(dir, "data")
	local, err := NewLocal(cacheDir, dataDir, nil)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}

	if err := local.CreateNamespace(ctx, "h1", testMeta); err != nil {
		t.Fatal(err)
	}
	if err := local.Put(ctx, "h1", "k1", &news.Entry{Hash: "k1"}); err != nil {
		t.Fatal(err)
	}
	tbl := table.New("station")
	tbl.Append(table.Row{"station": "CNN"})
	if err := local.SaveDataset(ctx, "h1", "cnn", tbl); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{
		filepath.Join(cacheDir, "h1", "metadata.json"),
		filepath.Join(cacheDir, "h1", "k1.json"),
		filepath.Join(dataDir, "h1", "cnn.parquet"),
		local.DatasetPath("h1", "cnn"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s: %v", p, err)
		}
	}
}

func TestRemoteLayout(t *testing.T) {
	ctx := context.Background()
	objects := newMapStore()
	remote := newRemote(objects, nil)

	if err := remote.CreateNamespace(ctx, "h1", testMeta); err != nil {
		t.Fatal(err)
	}
	if err := remote.Put(ctx, "h1", "k1", &news.Entry{Hash: "k1"}); err != nil {
		t.Fatal(err)
	}
	tbl := table.New("station")
	tbl.Append(table.Row{"station": "CNN"})
	if err := remote.SaveDataset(ctx, "h1", "cnn", tbl); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"h1/metadata.json", "h1/k1.json", "h1/datasets/cnn.parquet"} {
		if _, err := objects.read(ctx, name); err != nil {
			t.Errorf("expected object %s: %v", name, err)
		}
	}
	namespaces, err := objects.namespaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"h1"}, namespaces); diff != "" {
		t.Errorf("namespaces mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRemoteValidatesConfig(t *testing.T) {
	if _, err := NewRemote(context.Background(), RemoteConfig{Bucket: "b"}, nil); err == nil {
		t.Error("NewRemote accepted a config without endpoint")
	}
}
