package shield

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"contentgate/internal/config"
	"contentgate/internal/model"
)

// Viewer modes returned in the resource descriptor.
const (
	ModeCanvas = "canvas"
	ModeMedia  = "media"
)

// MediaPolicy restricts the native element used for video and images. It is a weaker
// guarantee than the canvas path: the browser owns the decoded media.
type MediaPolicy struct {
	ControlsList            string `json:"controlsList"`
	DisablePictureInPicture bool   `json:"disablePictureInPicture"`
	DisableRemotePlayback   bool   `json:"disableRemotePlayback"`
	SuppressContextMenu     bool   `json:"suppressContextMenu"`
	Draggable               bool   `json:"draggable"`
}

// Overlay is the pointer-transparent DOM watermark layer for media surfaces.
type Overlay struct {
	URL           string `json:"url"`
	PointerEvents string `json:"pointerEvents"`
	UserSelect    string `json:"userSelect"`
}

// Descriptor tells the client how to mount a unit.
type Descriptor struct {
	Mode        string       `json:"mode"`
	SessionsURL string       `json:"sessionsUrl,omitempty"`
	Media       *MediaPolicy `json:"media,omitempty"`
	Overlay     *Overlay     `json:"overlay,omitempty"`
	ContentURL  string       `json:"contentUrl,omitempty"`
}

// DefaultMediaPolicy is applied to every media element.
func DefaultMediaPolicy() MediaPolicy {
	return MediaPolicy{
		ControlsList:            "nodownload noplaybackrate noremoteplayback",
		DisablePictureInPicture: true,
		DisableRemotePlayback:   true,
		SuppressContextMenu:     true,
		Draggable:               false,
	}
}

// DescriptorFor returns the mount descriptor for a unit. Paged documents are rendered on the
// server and painted as frames; everything else uses a restricted media element plus overlay.
// contentURL and overlayURL must not carry the token; the client appends it.
func DescriptorFor(t model.ContentType, watermark bool, contentURL, overlayURL string) Descriptor {
	if t.Paged() {
		return Descriptor{Mode: ModeCanvas, SessionsURL: "/viewer/sessions"}
	}
	d := Descriptor{Mode: ModeMedia, ContentURL: contentURL}
	mp := DefaultMediaPolicy()
	d.Media = &mp
	if watermark {
		d.Overlay = &Overlay{URL: overlayURL, PointerEvents: "none", UserSelect: "none"}
	}
	return d
}

// OverlaySVG renders a tiled, rotated, low-opacity text pattern as a standalone SVG.
func OverlaySVG(text string, wm config.WatermarkConfig) []byte {
	sx, sy := wm.SpacingX, wm.SpacingY
	if sx <= 0 {
		sx = 220
	}
	if sy <= 0 {
		sy = 160
	}

	var esc bytes.Buffer
	_ = xml.EscapeText(&esc, []byte(strings.TrimSpace(text)))

	var b bytes.Buffer
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="100%" height="100%" style="pointer-events:none;user-select:none">`)
	fmt.Fprintf(&b, `<defs><pattern id="wm" width="%d" height="%d" patternUnits="userSpaceOnUse" patternTransform="rotate(%g)">`, sx, sy, wm.AngleDeg)
	fmt.Fprintf(&b, `<text x="0" y="%d" font-family="sans-serif" font-size="16" fill="#404040" fill-opacity="%g">%s</text>`, sy/2, wm.Opacity, esc.String())
	fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="sans-serif" font-size="16" fill="#404040" fill-opacity="%g">%s</text>`, sx/2, sy, wm.Opacity, esc.String())
	b.WriteString(`</pattern></defs><rect width="100%" height="100%" fill="url(#wm)"/></svg>`)
	return b.Bytes()
}

// WatermarkText is the identity string burned into frames and overlays.
func WatermarkText(subject, grantID string) string {
	marker := grantID
	if len(marker) > 8 {
		marker = marker[:8]
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(subject) {
		// The raster font covers printable ASCII only.
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		} else {
			b.WriteByte('?')
		}
	}
	if marker != "" {
		b.WriteString(" ")
		b.WriteString(marker)
	}
	return b.String()
}
