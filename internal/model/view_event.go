package model

import "time"

// ViewEvent records how long a grant was used. Append-only.
type ViewEvent struct {
	ID                string    `json:"id"`
	GrantID           string    `json:"grant_id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	CompletionPercent float64   `json:"completion_percent"`
}

// AccessRecord marks the moment a grant was first used to open content.
type AccessRecord struct {
	GrantID    string    `json:"grant_id"`
	RecordedAt time.Time `json:"recorded_at"`
}
