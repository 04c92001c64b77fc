package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/store"
)

type stubClient struct{}

func (stubClient) Get(_ context.Context, p news.Params) (*news.Response, error) {
	if p["mode"] == string(news.ModeClipGallery) {
		return &news.Response{StatusCode: 200, Body: []byte(`{"clips":[{"date":"20200101T000000Z","snippet":"rain"}]}`)}, nil
	}
	return &news.Response{StatusCode: 200, Body: []byte(`{"timeline":[{"series":"CNN","data":[{"date":"20200101T000000Z","value":0.5}]}]}`)}, nil
}

func newTestApp() *fiber.App {
	app := fiber.New()
	svc := news.NewService(news.ServiceOptions{
		Backend:         store.NewMemory(nil),
		Client:          stubClient{},
		RequestInterval: -1,
	})
	RegisterRoutes(app, svc, nil)
	return app
}

func do(t *testing.T, app *fiber.App, method, target, body string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

// TestCreateSearchValidation verifies that malformed searches are rejected
// before anything is fetched.
func TestCreateSearchValidation(t *testing.T) {
	app := newTestApp()
	bodies := []string{
		`{"stations":["CNN"]}`,
		`{"topic":"weather","stations":[]}`,
		`{"topic":"weather","stations":["CNN"],"start":"2020-01-01"}`,
		`{"topic":"weather","stations":["CNN"],"resolution":"daily"}`,
		`not json`,
	}
	for _, body := range bodies {
		resp, _ := do(t, app, http.MethodPost, "/api/v1/searches", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: expected status %d, got %d", body, http.StatusBadRequest, resp.StatusCode)
		}
	}

	// Dates in the right format but the wrong order.
	resp, _ := do(t, app, http.MethodPost, "/api/v1/searches",
		`{"topic":"weather","stations":["CNN"],"start":"02/01/2020","end":"01/01/2020"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("reversed range: expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestSearchLifecycle(t *testing.T) {
	app := newTestApp()

	resp, created := do(t, app, http.MethodPost, "/api/v1/searches",
		`{"topic":"weather","stations":["CNN"],"start":"01/01/2020","end":"02/15/2020"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}
	hash, _ := created["hash"].(string)
	if hash == "" {
		t.Fatalf("no hash in %v", created)
	}
	clipRows, _ := created["clip_rows"].(map[string]any)
	if clipRows["CNN"] != 2.0 {
		t.Errorf("clip_rows = %v, want CNN: 2", created["clip_rows"])
	}

	resp, listed := do(t, app, http.MethodGet, "/api/v1/searches", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: status %d", resp.StatusCode)
	}
	if searches, _ := listed["searches"].([]any); len(searches) != 1 {
		t.Errorf("listed %v, want one search", listed["searches"])
	}

	resp, volume := do(t, app, http.MethodGet, "/api/v1/searches/"+hash+"/volume?station=CNN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("volume: status %d", resp.StatusCode)
	}
	if volume["count"] != 1.0 {
		t.Errorf("volume count = %v, want 1", volume["count"])
	}

	resp, clips := do(t, app, http.MethodGet, "/api/v1/searches/"+hash+"/clips?station=CNN", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clips: status %d", resp.StatusCode)
	}
	if clips["count"] != 2.0 {
		t.Errorf("clips count = %v, want 2", clips["count"])
	}

	resp, _ = do(t, app, http.MethodGet, "/api/v1/searches/"+hash+"/clips?station=FOX", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown station: expected status %d, got %d", http.StatusNotFound, resp.StatusCode)
	}
	resp, _ = do(t, app, http.MethodGet, "/api/v1/searches/"+hash+"/clips", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing station: expected status %d, got %d", http.StatusBadRequest, resp.StatusCode)
	}
}

func TestUnknownSearch(t *testing.T) {
	app := newTestApp()
	for _, target := range []string{
		"/api/v1/searches/deadbeef/volume",
		"/api/v1/searches/deadbeef/clips?station=CNN",
	} {
		resp, _ := do(t, app, http.MethodGet, target, "")
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", target, http.StatusNotFound, resp.StatusCode)
		}
	}
}
