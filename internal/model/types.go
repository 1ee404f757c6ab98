package model

import (
	"encoding/json"
	"time"
)

// PostRecord is a status as returned by the v1.1 search API.
// Only the fields the harvester reads are decoded.
type PostRecord struct {
	ID          json.Number     `json:"id"`
	Text        string          `json:"text"`
	CreatedAt   string          `json:"created_at"`
	User        PostUser        `json:"user"`
	Coordinates *Coordinates    `json:"coordinates"`
	Entities    json.RawMessage `json:"entities,omitempty"`
}

type PostUser struct {
	ScreenName string `json:"screen_name"`
}

// Coordinates is a GeoJSON point; the slice is [longitude, latitude].
type Coordinates struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Point is a WGS84 position.
type Point struct {
	Lon float64
	Lat float64
}

// StickyTweet is a persisted geotagged tweet.
type StickyTweet struct {
	ID          int64
	TwitterName string
	StatusID    int64
	Tweet       string
	Visible     bool
	MediaURL    string
	Time        time.Time // zero when the source carried no created_at
	CreatedOn   time.Time
	UpdatedOn   time.Time
	Geom        *Point
}

func (t StickyTweet) String() string { return t.Tweet }
