package models

import "time"

// ResolutionRecord is one persisted resolution, kept for history queries
// and offline quality review.
type ResolutionRecord struct {
	ID             string    `json:"id"`
	QueryText      string    `json:"query_text"`
	Summary        string    `json:"summary"`
	Confidence     float64   `json:"confidence"`
	ProfileCount   int       `json:"profile_count"`
	EventCount     int       `json:"event_count"`
	EventAttrCount int       `json:"event_attr_count"`
	HasAmbiguity   bool      `json:"has_ambiguity"`
	LatencyMS      int64     `json:"latency_ms"`
	CreatedAt      time.Time `json:"created_at"`
}
