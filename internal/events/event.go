// Package events records detection, alert and track events in memory and
// forwards them to external deliverers without blocking the caller.
package events

import (
	"errors"
	"time"
)

// ErrDelivery marks a failed forward to an external target. It is logged, never returned to recorders.
var ErrDelivery = errors.New("event delivery failed")

// Type tags the payload of an Event.
type Type string

// Event types.
const (
	TypeDetection Type = "detection"
	TypeAlert     Type = "alert"
	TypeTrack     Type = "track"
)

// ParseType maps a query value to a Type; the empty string means all types.
func ParseType(s string) (Type, bool) {
	switch Type(s) {
	case "", TypeDetection, TypeAlert, TypeTrack:
		return Type(s), true
	}
	return "", false
}

// Event is one entry of the append-only log.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Source    string    `json:"source"`
	Data      any       `json:"data"`
}

// AlertData is the payload of an alert: a watchlist person was recognised.
type AlertData struct {
	PersonID   string         `json:"person_id"`
	PersonName string         `json:"person_name"`
	Similarity float64        `json:"similarity"`
	ImagePath  string         `json:"image_path"`
	Metadata   map[string]any `json:"metadata"`
}

// TrackData is the payload of a track event: where and when a person was seen.
// FrameNumber is omitted for single images.
type TrackData struct {
	PersonID    string  `json:"person_id"`
	PersonName  string  `json:"person_name"`
	Location    string  `json:"location"`
	FrameNumber *int    `json:"frame_number,omitempty"`
	Timestamp   float64 `json:"timestamp"`
}

// DetectionData is the payload of a detection event, one per processed frame.
type DetectionData struct {
	NumFaces int      `json:"num_faces"`
	BBoxes   [][4]int `json:"bboxes"`
	Source   string   `json:"source"`
}

// Stats summarises the in-memory log.
type Stats struct {
	Total      int `json:"total_events"`
	Detections int `json:"detections"`
	Alerts     int `json:"alerts"`
	Tracks     int `json:"tracks"`
	Dropped    int `json:"dropped_deliveries"`
}
