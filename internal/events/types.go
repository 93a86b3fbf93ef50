package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// AccessGranted is emitted when a grant is minted.
	AccessGranted EventType = "access.granted"
	// ViewCompleted carries a finalized ViewEvent.
	ViewCompleted EventType = "view.completed"
	// ScopeMismatch is emitted when a valid token is replayed against another resource.
	ScopeMismatch EventType = "security.scope_mismatch"
	// InteractionSuppressed is emitted when the viewer blocks a copy/print/save attempt.
	InteractionSuppressed EventType = "viewer.interaction_suppressed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Version   string    `json:"version"`
}

// Event is anything that can be routed and serialized.
type Event interface {
	RoutingKey() string
	ToJSON() ([]byte, error)
}

func newBase(t EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().Unix(),
		Version:   "1.0",
	}
}

func (b BaseEvent) RoutingKey() string { return string(b.Type) }

type AccessGrantedEvent struct {
	BaseEvent
	GrantID    string    `json:"grant_id"`
	Subject    string    `json:"subject"`
	ResourceID string    `json:"resource_id"`
	DeviceType string    `json:"device_type"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func NewAccessGrantedEvent(grantID, subject, resourceID, deviceType string, expiresAt time.Time) *AccessGrantedEvent {
	return &AccessGrantedEvent{
		BaseEvent:  newBase(AccessGranted),
		GrantID:    grantID,
		Subject:    subject,
		ResourceID: resourceID,
		DeviceType: deviceType,
		ExpiresAt:  expiresAt,
	}
}

func (e *AccessGrantedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type ViewCompletedEvent struct {
	BaseEvent
	ViewEventID       string    `json:"view_event_id"`
	GrantID           string    `json:"grant_id"`
	StartedAt         time.Time `json:"started_at"`
	EndedAt           time.Time `json:"ended_at"`
	CompletionPercent float64   `json:"completion_percent"`
}

func NewViewCompletedEvent(viewEventID, grantID string, startedAt, endedAt time.Time, completion float64) *ViewCompletedEvent {
	return &ViewCompletedEvent{
		BaseEvent:         newBase(ViewCompleted),
		ViewEventID:       viewEventID,
		GrantID:           grantID,
		StartedAt:         startedAt,
		EndedAt:           endedAt,
		CompletionPercent: completion,
	}
}

func (e *ViewCompletedEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }

type SecurityEvent struct {
	BaseEvent
	GrantID   string `json:"grant_id"`
	Subject   string `json:"subject"`
	Requested string `json:"requested"`
	Detail    string `json:"detail"`
}

func NewSecurityEvent(t EventType, grantID, subject, requested, detail string) *SecurityEvent {
	return &SecurityEvent{
		BaseEvent: newBase(t),
		GrantID:   grantID,
		Subject:   subject,
		Requested: requested,
		Detail:    detail,
	}
}

func (e *SecurityEvent) ToJSON() ([]byte, error) { return json.Marshal(e) }
