package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/i474232898/gdelt-news-cache/internal/news"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"NEWS_STORAGE", "NEWS_REQUEST_INTERVAL", "NEWS_MAX_RECORDS", "NEWS_RESOLUTION", "PORT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != StorageLocal {
		t.Errorf("Storage = %q", cfg.Storage)
	}
	if cfg.RequestInterval != 500*time.Millisecond {
		t.Errorf("RequestInterval = %s", cfg.RequestInterval)
	}
	if cfg.MaxRecords != 3000 || cfg.Workers != 4 {
		t.Errorf("MaxRecords=%d Workers=%d", cfg.MaxRecords, cfg.Workers)
	}
	if cfg.Resolution != news.Monthly {
		t.Errorf("Resolution = %q", cfg.Resolution)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEWS_STORAGE", "SQLite")
	t.Setenv("NEWS_SQLITE_PATH", "/tmp/x.db")
	t.Setenv("NEWS_REQUEST_INTERVAL", "2s")
	t.Setenv("NEWS_RESOLUTION", "weekly")
	t.Setenv("NEWS_MAX_RECORDS", "5000")
	t.Setenv("NEWS_KEYWORDS", "rain, snow ,")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage != StorageSQLite || cfg.SQLitePath != "/tmp/x.db" {
		t.Errorf("storage = %q at %q", cfg.Storage, cfg.SQLitePath)
	}
	if cfg.RequestInterval != 2*time.Second || cfg.Resolution != news.Weekly || cfg.MaxRecords != 5000 {
		t.Errorf("cfg = %+v", cfg)
	}
	if diff := cmp.Diff([]string{"rain", "snow"}, cfg.Keywords); diff != "" {
		t.Errorf("keywords mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Chdir(t.TempDir())
	tests := map[string]map[string]string{
		"bad interval":   {"NEWS_REQUEST_INTERVAL": "soon"},
		"bad resolution": {"NEWS_RESOLUTION": "daily"},
		"bad storage":    {"NEWS_STORAGE": "tape"},
		"remote no s3":   {"NEWS_STORAGE": "remote", "S3_ENDPOINT": "", "S3_BUCKET": ""},
		"zero workers":   {"NEWS_WORKERS": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(nil); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadSearches(t *testing.T) {
	dir := t.TempDir()
	want := []news.Metadata{
		{Topic: "weather", Stations: []string{"CNN", "FOX"}, Start: "01/01/2020", End: "03/31/2020"},
		{Topic: "climate", Stations: []string{"MSNBC"}},
	}
	files := map[string]string{
		"searches.toml": `
[[searches]]
topic = "weather"
stations = ["CNN", "FOX"]
start = "01/01/2020"
end = "03/31/2020"

[[searches]]
topic = "climate"
stations = ["MSNBC"]
`,
		"searches.yaml": `
searches:
  - topic: weather
    stations: [CNN, FOX]
    start: 01/01/2020
    end: 03/31/2020
  - topic: climate
    stations: [MSNBC]
`,
	}
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			got, err := LoadSearches(path)
			if err != nil {
				t.Fatalf("LoadSearches: %v", err)
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("searches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadSearchesRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"no-stations.toml": "[[searches]]\ntopic = \"weather\"\n",
		"bad-date.yaml":    "searches:\n  - topic: weather\n    stations: [CNN]\n    start: 2020-01-01\n",
		"searches.json":    "{}",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadSearches(path); err == nil {
				t.Error("LoadSearches succeeded, want error")
			}
		})
	}
}

func TestLoadSearchesMissing(t *testing.T) {
	got, err := LoadSearches(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil || got != nil {
		t.Errorf("got %v, %v; want nothing", got, err)
	}
}
