package news

import "errors"

var (
	// ErrNetwork marks a request that failed or returned a non-success status.
	ErrNetwork = errors.New("network error")
	// ErrParse marks a body that could not be decoded or reshaped.
	ErrParse = errors.New("parse error")
	// ErrStorageIO marks a read or write failure against a backend.
	ErrStorageIO = errors.New("storage io error")
	// ErrStorageCorrupt marks a persisted record that is not well-formed.
	ErrStorageCorrupt = errors.New("storage record corrupt")

	// ErrNoSearch is returned when datasets are requested before Search.
	ErrNoSearch = errors.New("you must create a search before fetching data")
	// ErrInvalidQuery is returned for queries without topic or stations.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidRange is returned when start is after end.
	ErrInvalidRange = errors.New("invalid date range")
)
