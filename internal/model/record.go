package model

import (
	"encoding/json"
	"time"
)

// CreatedAtLayout is the fixed created_at format of the search API.
// time.Parse matches day and month names against fixed English tables,
// so parsing does not depend on process locale.
const CreatedAtLayout = "Mon Jan 02 15:04:05 +0000 2006"

// ParseCreatedAt parses a created_at value into a UTC time.
func ParseCreatedAt(s string) (time.Time, error) {
	t, err := time.Parse(CreatedAtLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// MediaURL returns entities.media[0].media_url. Any missing step or
// unexpected shape yields ok=false.
func (r PostRecord) MediaURL() (string, bool) {
	if len(r.Entities) == 0 {
		return "", false
	}
	var ent struct {
		Media []struct {
			MediaURL string `json:"media_url"`
		} `json:"media"`
	}
	if err := json.Unmarshal(r.Entities, &ent); err != nil {
		return "", false
	}
	if len(ent.Media) == 0 || ent.Media[0].MediaURL == "" {
		return "", false
	}
	return ent.Media[0].MediaURL, true
}
