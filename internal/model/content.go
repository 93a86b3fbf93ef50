package model

import "time"

// ContentType classifies a learning unit's asset.
type ContentType string

const (
	ContentBook        ContentType = "BOOK"
	ContentVideo       ContentType = "VIDEO"
	ContentInteractive ContentType = "INTERACTIVE"
	ContentImage       ContentType = "IMAGE"
)

// Paged reports whether the content is rasterized page by page on the server.
func (t ContentType) Paged() bool {
	return t == ContentBook
}

// DeliveryType describes how the client consumes the asset.
type DeliveryType string

const (
	DeliveryStream DeliveryType = "STREAM"
	DeliveryEmbed  DeliveryType = "EMBED"
)

// ContentStatus is the publisher-side lifecycle state of a unit.
type ContentStatus string

const (
	StatusActive    ContentStatus = "ACTIVE"
	StatusSuspended ContentStatus = "SUSPENDED"
)

// ContentUnit is a protected learning asset. It is authored elsewhere and read-only here.
type ContentUnit struct {
	ID                   string        `json:"id"`
	Title                string        `json:"title"`
	Type                 ContentType   `json:"type"`
	StorageLocator       string        `json:"-"`
	DeliveryType         DeliveryType  `json:"delivery_type"`
	Status               ContentStatus `json:"status"`
	WatermarkEnabled     bool          `json:"watermark_enabled"`
	SessionExpiryMinutes int           `json:"session_expiry_minutes"`
	DownloadAllowed      bool          `json:"download_allowed"`
	ViewOnly             bool          `json:"view_only"`
	CreatedAt            time.Time     `json:"created_at"`
}
