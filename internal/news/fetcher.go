package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/i474232898/gdelt-news-cache/internal/logging"
)

// DefaultRequestInterval is the minimum spacing between uncached requests.
const DefaultRequestInterval = 500 * time.Millisecond

// ErrRejected is wrapped by clients that refuse a request before sending
// it, for example while a circuit breaker is open. Nothing is cached then.
var ErrRejected = errors.New("request rejected before sending")

// ErrIncomplete is wrapped by clients whose network attempt was cut short,
// such as by a request timeout. Nothing is cached then either.
var ErrIncomplete = errors.New("network attempt did not complete")

// Response is the raw outcome of one API call.
type Response struct {
	StatusCode int
	Body       []byte
}

// Client performs GET requests against the API.
//
// On a non-success status Get returns both the response and an error.
type Client interface {
	Get(ctx context.Context, params Params) (*Response, error)
}

// State is the terminal state of a Fetch.
type State int

const (
	// StateLoaded means the entry came from the backend.
	StateLoaded State = iota + 1
	// StateStored means the entry was fetched, parsed and persisted.
	StateStored
	// StateStoredWithError means the fetch or parse failed and the failure
	// was persisted.
	StateStoredWithError
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateStored:
		return "stored"
	case StateStoredWithError:
		return "stored_with_error"
	}
	return "unknown"
}

// Result is what Fetch returns. Entry must not be modified; concurrent
// callers of the same key share it.
type Result struct {
	Key   string
	Entry *Entry
	State State
}

type fetchOptions struct {
	refresh bool
}

// FetchOption tunes a single Fetch.
type FetchOption func(*fetchOptions)

// WithRefresh skips the cache read and overwrites whatever is stored,
// including previously cached failures.
func WithRefresh() FetchOption {
	return func(o *fetchOptions) { o.refresh = true }
}

// FetcherOptions configures NewFetcher.
type FetcherOptions struct {
	// RequestInterval spaces uncached requests across all goroutines.
	// DefaultRequestInterval when zero, unlimited when negative.
	RequestInterval time.Duration
	Logger          *slog.Logger
}

// Fetcher returns cached entries or fetches, transforms and persists them.
// A key is fetched from the network at most once while its entry exists.
type Fetcher struct {
	backend Backend
	client  Client
	limiter *rate.Limiter
	logger  *slog.Logger
	flight  singleflight.Group
}

// NewFetcher creates a Fetcher. The limiter is shared by every Fetch call
// on the returned value.
func NewFetcher(backend Backend, client Client, opts FetcherOptions) *Fetcher {
	interval := opts.RequestInterval
	if interval == 0 {
		interval = DefaultRequestInterval
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Fetcher{
		backend: backend,
		client:  client,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logging.OrNop(opts.Logger),
	}
}

// Fetch resolves params within namespace.
//
// Network and parse failures are not returned: they end in
// StateStoredWithError with Entry.Error set. An error is returned when ctx
// ends, the client rejects the request or the attempt times out (nothing is
// persisted), or when the entry cannot be persisted.
func (f *Fetcher) Fetch(ctx context.Context, namespace string, params Params, transform Transform, opts ...FetchOption) (*Result, error) {
	if transform == nil {
		transform = Identity
	}
	var o fetchOptions
	for _, opt := range opts {
		opt(&o)
	}

	key := params.Key()
	flightKey := namespace + "/" + key
	if o.refresh {
		flightKey += "/refresh"
	}
	log := f.logger.With("namespace", namespace, "key", key)

	v, err, shared := f.flight.Do(flightKey, func() (any, error) {
		return f.fetch(ctx, namespace, key, params, transform, o, log)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug("shared in-flight fetch")
	}
	res := *v.(*Result)
	return &res, nil
}

func (f *Fetcher) fetch(ctx context.Context, namespace, key string, params Params, transform Transform, o fetchOptions, log *slog.Logger) (*Result, error) {
	ns := Namespace{Backend: f.backend, Hash: namespace}
	if !o.refresh {
		entry, ok, err := ns.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("cache read failed, fetching instead", "err", err)
		case ok:
			log.Info("loaded data from cache")
			return &Result{Key: key, Entry: entry, State: StateLoaded}, nil
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	log.Info("requesting data from API")
	log.Debug("request parameters", "params", params)
	resp, err := f.client.Get(ctx, params)
	if err != nil && (errors.Is(err, ErrRejected) || errors.Is(err, ErrIncomplete) || ctx.Err() != nil) {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}

	entry := &Entry{Hash: key, Query: params}
	if resp != nil {
		entry.StatusCode = resp.StatusCode
		entry.RawResponse = string(resp.Body)
	}

	state := StateStored
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrNetwork, err)
	case resp == nil:
		err = fmt.Errorf("%w: no response", ErrNetwork)
	default:
		entry.Data, err = decode(resp.Body, transform)
	}
	if err != nil {
		state = StateStoredWithError
		entry.Error = err.Error()
		log.Error("loading data failed", "status", entry.StatusCode, "err", err)
		log.Debug("failed response body", "body", entry.RawResponse)
	}

	// The attempt completed, so the outcome is persisted even if ctx ends now.
	if err := ns.Put(context.WithoutCancel(ctx), key, entry); err != nil {
		return nil, fmt.Errorf("persist entry %s: %w", key, err)
	}
	log.Debug("stored entry", "state", state.String())
	return &Result{Key: key, Entry: entry, State: state}, nil
}

func decode(body []byte, transform Transform) ([]map[string]any, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", ErrParse)
	}
	records, err := transform(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return records, nil
}
