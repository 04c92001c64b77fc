package news

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects the API output format.
type Mode string

const (
	// ModeTimelineVolume returns the share of airtime per station over time.
	ModeTimelineVolume Mode = "timelinevol"
	// ModeClipGallery returns matching clips, capped at MaxRecords.
	ModeClipGallery Mode = "clipgallery"
)

// APITimeLayout is the datetime format the API expects.
const APITimeLayout = "20060102150405"

// DefaultMaxRecords is the clip cap used when none is configured.
const DefaultMaxRecords = 3000

// Query is the logical request before it is encoded. Zero Start or End
// means unset.
type Query struct {
	Topic    string
	Stations []string
	Mode     Mode
	Start    time.Time
	End      time.Time
}

// Params is the parameter set sent to the API and hashed into a cache key.
type Params map[string]string

// Builder turns queries into Params.
type Builder struct {
	// MaxRecords caps clip-gallery results; DefaultMaxRecords when <= 0.
	MaxRecords int
}

// Build encodes q. Only parameters with a value are present in the result.
func (b Builder) Build(q Query) (Params, error) {
	topic := strings.TrimSpace(q.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidQuery)
	}
	if len(q.Stations) == 0 {
		return nil, fmt.Errorf("%w: at least one station is required", ErrInvalidQuery)
	}
	if q.Mode != ModeTimelineVolume && q.Mode != ModeClipGallery {
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, q.Mode)
	}

	p := Params{
		"format": "json",
		"last24": "yes",
		"mode":   string(q.Mode),
		"query":  queryText(topic, q.Stations),
	}

	switch q.Mode {
	case ModeTimelineVolume:
		p["timezoom"] = "yes"
	case ModeClipGallery:
		limit := b.MaxRecords
		if limit <= 0 {
			limit = DefaultMaxRecords
		}
		p["sort"] = "datedesc"
		p["maxrecords"] = strconv.Itoa(limit)
	}

	if q.Start.IsZero() || q.End.IsZero() {
		p["timespan"] = "FULL"
	}
	if !q.Start.IsZero() {
		p["startdatetime"] = q.Start.UTC().Format(APITimeLayout)
	}
	if !q.End.IsZero() {
		p["enddatetime"] = q.End.UTC().Format(APITimeLayout)
	}
	return p, nil
}

// queryText ORs the station filters and groups them only when there is more
// than one; the API treats the two shapes differently.
func queryText(topic string, stations []string) string {
	filters := make([]string, len(stations))
	for i, s := range stations {
		filters[i] = "station:" + s
	}
	joined := strings.Join(filters, " OR ")
	if len(stations) > 1 {
		return fmt.Sprintf("%s (%s)", topic, joined)
	}
	return fmt.Sprintf("%s %s", topic, joined)
}

// Key is the cache key of p: SHA-224 over JSON with sorted keys.
// encoding/json sorts map keys, which makes the encoding canonical.
func (p Params) Key() string {
	data, err := json.Marshal(map[string]string(p))
	if err != nil {
		// map[string]string always marshals
		panic(err)
	}
	return digest(data)
}

func digest(data []byte) string {
	sum := sha256.Sum224(data)
	return hex.EncodeToString(sum[:])
}
