package model

import "time"

// ScopeFlags are the permissions a grant inherits from its content unit.
type ScopeFlags struct {
	DownloadAllowed  bool `json:"download_allowed"`
	ViewOnly         bool `json:"view_only"`
	WatermarkEnabled bool `json:"watermark_enabled"`
}

// AccessGrant binds a subject to one content unit for a bounded time window.
// Grants are immutable once issued.
type AccessGrant struct {
	ID             string      `json:"id"`
	Subject        string      `json:"subject"`
	ResourceID     string      `json:"resource_id"`
	ContentType    ContentType `json:"content_type"`
	StorageLocator string      `json:"-"`
	DeviceType     string      `json:"device_type"`
	Scope          ScopeFlags  `json:"scope"`
	IssuedAt       time.Time   `json:"issued_at"`
	ExpiresAt      time.Time   `json:"expires_at"`
}
