package news

import (
	"encoding/json"
	"errors"
)

// Transform reshapes a decoded API body into flat records.
type Transform func(body json.RawMessage) ([]map[string]any, error)

// Identity expects the body to already be a list of records.
func Identity(body json.RawMessage) ([]map[string]any, error) {
	var records []map[string]any
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, err
	}
	return records, nil
}

type timelineBody struct {
	Timeline *[]struct {
		Series string `json:"series"`
		Data   []struct {
			Date  string  `json:"date"`
			Value float64 `json:"value"`
		} `json:"data"`
	} `json:"timeline"`
}

// TimelineRecords flattens a per-station timeline into {station, date, value}.
func TimelineRecords(body json.RawMessage) ([]map[string]any, error) {
	var payload timelineBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Timeline == nil {
		return nil, errors.New("response has no timeline")
	}
	records := []map[string]any{}
	for _, series := range *payload.Timeline {
		for _, point := range series.Data {
			records = append(records, map[string]any{
				"station": series.Series,
				"date":    point.Date,
				"value":   point.Value,
			})
		}
	}
	return records, nil
}

// ClipRecords extracts the clip list.
func ClipRecords(body json.RawMessage) ([]map[string]any, error) {
	var payload struct {
		Clips *[]map[string]any `json:"clips"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if payload.Clips == nil {
		return nil, errors.New("response has no clips")
	}
	return *payload.Clips, nil
}
