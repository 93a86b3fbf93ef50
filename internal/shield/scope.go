package shield

import (
	"strings"
	"sync"
)

// EventKind is a browser interaction reported by the viewer shell.
type EventKind string

const (
	EventContextMenu EventKind = "contextmenu"
	EventCopy        EventKind = "copy"
	EventCut         EventKind = "cut"
	EventDragStart   EventKind = "dragstart"
	EventSelectStart EventKind = "selectstart"
	EventKeyDown     EventKind = "keydown"
	EventBeforePrint EventKind = "beforeprint"
)

// Event is one interaction inside or outside a protected surface.
// Target is the slash-separated element path the event was dispatched on.
type Event struct {
	Kind   EventKind `json:"kind"`
	Key    string    `json:"key,omitempty"`
	Ctrl   bool      `json:"ctrl,omitempty"`
	Meta   bool      `json:"meta,omitempty"`
	Shift  bool      `json:"shift,omitempty"`
	Target string    `json:"target"`
}

// Decision is the outcome of Handle. Reason is empty when the event passes through.
type Decision struct {
	Prevented bool   `json:"prevented"`
	Reason    string `json:"reason,omitempty"`
}

// Policy lists what a protected surface suppresses.
type Policy struct {
	Suppress map[EventKind]bool
	// ChordKeys are blocked with ctrl or meta held.
	ChordKeys map[string]bool
	// ShiftChordKeys are blocked with ctrl or meta plus shift.
	ShiftChordKeys map[string]bool
	// BareKeys are blocked on their own.
	BareKeys map[string]bool
}

// DefaultPolicy covers context menu, clipboard, drag, selection, print/save/view-source
// chords and the common devtools shortcuts.
func DefaultPolicy() Policy {
	return Policy{
		Suppress: map[EventKind]bool{
			EventContextMenu: true,
			EventCopy:        true,
			EventCut:         true,
			EventDragStart:   true,
			EventSelectStart: true,
			EventBeforePrint: true,
		},
		ChordKeys:      map[string]bool{"p": true, "s": true, "c": true, "x": true, "u": true, "a": true},
		ShiftChordKeys: map[string]bool{"i": true, "j": true, "c": true, "s": true},
		BareKeys:       map[string]bool{"f12": true},
	}
}

// Scope is the anti-exfiltration layer of one mounted viewer. It only affects events whose
// target is inside its root, and only between Activate and Deactivate.
type Scope struct {
	root   string
	policy Policy

	mu         sync.Mutex
	active     bool
	suppressed map[EventKind]int
}

// NewScope creates an inactive scope rooted at the given element path.
func NewScope(root string, p Policy) *Scope {
	return &Scope{
		root:       strings.Trim(root, "/"),
		policy:     p,
		suppressed: map[EventKind]int{},
	}
}

// Root returns the element path the scope is attached to.
func (s *Scope) Root() string { return s.root }

// Activate installs suppression for the mount lifetime.
func (s *Scope) Activate() {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()
}

// Deactivate restores default behavior. It is safe to call more than once.
func (s *Scope) Deactivate() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()
}

// Active reports whether suppression is installed.
func (s *Scope) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Contains reports whether target is the root element or one of its descendants.
func (s *Scope) Contains(target string) bool {
	t := strings.Trim(target, "/")
	if s.root == "" || t == "" {
		return false
	}
	return t == s.root || strings.HasPrefix(t, s.root+"/")
}

// Handle decides whether the default action of ev must be prevented.
func (s *Scope) Handle(ev Event) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active || !s.Contains(ev.Target) {
		return Decision{}
	}

	reason := s.match(ev)
	if reason == "" {
		return Decision{}
	}
	s.suppressed[ev.Kind]++
	return Decision{Prevented: true, Reason: reason}
}

func (s *Scope) match(ev Event) string {
	if ev.Kind != EventKeyDown {
		if s.policy.Suppress[ev.Kind] {
			return string(ev.Kind)
		}
		return ""
	}

	key := strings.ToLower(ev.Key)
	chord := ev.Ctrl || ev.Meta
	switch {
	case s.policy.BareKeys[key]:
		return "key:" + key
	case chord && ev.Shift && s.policy.ShiftChordKeys[key]:
		return "shortcut:shift+" + key
	case chord && !ev.Shift && s.policy.ChordKeys[key]:
		return "shortcut:" + key
	}
	return ""
}

// Suppressed returns a copy of the per-kind count of prevented events.
func (s *Scope) Suppressed() map[EventKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[EventKind]int, len(s.suppressed))
	for k, v := range s.suppressed {
		out[k] = v
	}
	return out
}
