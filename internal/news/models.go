package news

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/i474232898/gdelt-news-cache/internal/table"
)

// HumanDateLayout is how dates are entered by users and kept in metadata.
const HumanDateLayout = "01/02/2006"

// Metadata is the caller-supplied description of a search, stored once per
// namespace in its human-entered form.
type Metadata struct {
	Topic    string   `json:"topic" toml:"topic" yaml:"topic" validate:"required"`
	Stations []string `json:"stations" toml:"stations" yaml:"stations" validate:"required,min=1,dive,required"`
	Start    string   `json:"start,omitempty" toml:"start" yaml:"start" validate:"omitempty,datetime=01/02/2006"`
	End      string   `json:"end,omitempty" toml:"end" yaml:"end" validate:"omitempty,datetime=01/02/2006"`
}

// Search is a parsed Metadata plus the namespace hash derived from it.
type Search struct {
	Hash     string
	Meta     Metadata
	Topic    string
	Stations []string
	Start    time.Time
	End      time.Time
}

// NewSearch parses meta and computes its namespace hash.
func NewSearch(meta Metadata) (*Search, error) {
	if strings.TrimSpace(meta.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidQuery)
	}
	if len(meta.Stations) == 0 {
		return nil, fmt.Errorf("%w: at least one station is required", ErrInvalidQuery)
	}
	s := &Search{Meta: meta, Topic: meta.Topic, Stations: meta.Stations}

	var err error
	if s.Start, err = parseHumanDate(meta.Start); err != nil {
		return nil, fmt.Errorf("%w: start: %v", ErrInvalidQuery, err)
	}
	if s.End, err = parseHumanDate(meta.End); err != nil {
		return nil, fmt.Errorf("%w: end: %v", ErrInvalidQuery, err)
	}
	if !s.Start.IsZero() && !s.End.IsZero() && s.Start.After(s.End) {
		return nil, fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, meta.Start, meta.End)
	}
	s.Hash = searchHash(s)
	return s, nil
}

// HasSpan reports whether both explicit bounds are set.
func (s *Search) HasSpan() bool {
	return !s.Start.IsZero() && !s.End.IsZero()
}

func parseHumanDate(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(HumanDateLayout, v)
}

// searchHash digests topic, joined stations and API-formatted bounds. Unset
// bounds encode as null.
func searchHash(s *Search) string {
	apiDate := func(t time.Time) any {
		if t.IsZero() {
			return nil
		}
		return t.Format(APITimeLayout)
	}
	data, _ := json.Marshal(map[string]any{
		"topic":    s.Topic,
		"stations": strings.Join(s.Stations, "-"),
		"start":    apiDate(s.Start),
		"end":      apiDate(s.End),
	})
	return digest(data)
}

// Entry is the persisted outcome of one request, successful or not.
type Entry struct {
	Hash        string           `json:"hash"`
	Query       Params           `json:"query"`
	StatusCode  int              `json:"status_code"`
	RawResponse string           `json:"raw_response"`
	Data        []map[string]any `json:"data"`
	Error       string           `json:"error,omitempty"`
}

// DecodeEntry parses a stored entry and checks it belongs to key.
// Any problem is reported as ErrStorageCorrupt.
func DecodeEntry(data []byte, key string) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}
	if e.Hash == "" {
		return nil, fmt.Errorf("%w: missing hash", ErrStorageCorrupt)
	}
	if e.Hash != key {
		return nil, fmt.Errorf("%w: hash %s stored under key %s", ErrStorageCorrupt, e.Hash, key)
	}
	return &e, nil
}

// Failed reports whether the fetch behind e captured an error.
func (e *Entry) Failed() bool {
	return e.Error != ""
}

// Table materializes Data with a parsed date column. It returns nil when
// there is no data.
func (e *Entry) Table() *table.Table {
	if e == nil || len(e.Data) == 0 {
		return nil
	}
	return table.FromRecords(e.Data)
}
