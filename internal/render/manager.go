package render

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"contentgate/internal/logger"
	"contentgate/internal/shield"
)

// Options configures a Manager.
type Options struct {
	Limits      Limits
	MaxSessions int
	IdleTimeout time.Duration
	Policy      shield.Policy
	// ObserveRender receives the duration of each page render. Optional.
	ObserveRender func(time.Duration)
	// OnClose receives every session the manager ends on its own: reaped, evicted for
	// capacity, replaced by a newer open of its mount, or closed by CloseAll. Sessions
	// ended through Close are finalized by the caller. Optional.
	OnClose func(*Session)
}

// OpenRequest opens a document for one viewer mount.
type OpenRequest struct {
	// MountID identifies the client-side viewer instance. Opening again with the same
	// mount replaces the previous session.
	MountID       string
	Grant         Grant
	WatermarkText string
}

// Manager owns every live viewer session.
type Manager struct {
	source Source
	raster Rasterizer
	comp   *Compositor
	opts   Options
	log    *logger.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	mounts   map[string]*Session

	// NowFunc is replaceable in tests.
	NowFunc func() time.Time
}

// NewManager creates a Manager.
func NewManager(source Source, raster Rasterizer, comp *Compositor, opts Options, log *logger.Logger) *Manager {
	opts.Limits = opts.Limits.withDefaults()
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = 500
	}
	if opts.Policy.Suppress == nil {
		opts.Policy = shield.DefaultPolicy()
	}
	return &Manager{
		source:   source,
		raster:   raster,
		comp:     comp,
		opts:     opts,
		log:      log,
		sessions: map[string]*Session{},
		mounts:   map[string]*Session{},
		NowFunc:  time.Now,
	}
}

func mountKey(subject, mountID string) string {
	return subject + "\x00" + mountID
}

// Open creates a session and loads its document. On a load failure the session is still
// returned, registered and in StateFailed, so the client can retry or close it.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	mountID := req.MountID
	if mountID == "" {
		mountID = uuid.NewString()
	}
	key := mountKey(req.Grant.Subject, mountID)
	now := m.NowFunc()

	m.mu.Lock()
	prev := m.mounts[key]
	if prev != nil {
		m.removeLocked(prev)
	}
	var reaped []*Session
	if len(m.sessions) >= m.opts.MaxSessions {
		reaped = m.collectLocked(now)
	}
	if len(m.sessions) >= m.opts.MaxSessions {
		m.mu.Unlock()
		m.finalize(prev)
		m.finalize(reaped...)
		return nil, ErrCapacity
	}

	sctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	s := &Session{
		id:       id,
		mountID:  mountID,
		grant:    req.Grant,
		limits:   m.opts.Limits,
		text:     req.WatermarkText,
		comp:     m.comp,
		scope:    shield.NewScope("viewer-"+id, m.opts.Policy),
		observe:  m.opts.ObserveRender,
		now:      m.NowFunc,
		openedAt: now,
		ctx:      sctx,
		cancel:   cancel,
		state:    StateLoading,
		zoom:     m.clampInitialZoom(),
		touched:  now,
	}
	locator := req.Grant.Locator
	s.loader = func(ctx context.Context) (Document, error) {
		data, err := m.source.Fetch(ctx, locator)
		if err != nil {
			return nil, err
		}
		return m.raster.Open(ctx, data)
	}
	m.sessions[id] = s
	m.mounts[key] = s
	m.mu.Unlock()

	// Last request wins: the previous load for this mount is cancelled and its document released.
	m.finalize(prev)
	m.finalize(reaped...)

	s.scope.Activate()
	err := s.reload(ctx)
	if err != nil && !errors.Is(err, ErrSuperseded) && !errors.Is(err, ErrSessionClosed) {
		m.log.Warn("viewer_load_failed", logger.Fields{
			"session_id": id,
			"grant_id":   req.Grant.ID,
			"error":      err,
		})
	}
	return s, err
}

func (m *Manager) clampInitialZoom() float64 {
	z := 1.0
	if z < m.opts.Limits.MinZoom {
		z = m.opts.Limits.MinZoom
	}
	if z > m.opts.Limits.MaxZoom {
		z = m.opts.Limits.MaxZoom
	}
	return z
}

// finalize closes sessions already removed from the registry and hands them to OnClose.
func (m *Manager) finalize(sessions ...*Session) {
	for _, s := range sessions {
		if s == nil {
			continue
		}
		s.Close()
		if m.opts.OnClose != nil {
			m.opts.OnClose(s)
		}
	}
}

// Get returns the session id if it belongs to grantID.
func (m *Manager) Get(id, grantID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok || s.grant.ID != grantID {
		return nil, ErrSessionNotFound
	}
	s.touch()
	return s, nil
}

// Close removes and closes a session owned by grantID.
func (m *Manager) Close(id, grantID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.grant.ID != grantID {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	m.removeLocked(s)
	m.mu.Unlock()

	s.Close()
	return s, nil
}

func (m *Manager) removeLocked(s *Session) {
	delete(m.sessions, s.id)
	key := mountKey(s.grant.Subject, s.mountID)
	if m.mounts[key] == s {
		delete(m.mounts, key)
	}
}

func (m *Manager) collectLocked(now time.Time) []*Session {
	var out []*Session
	for _, s := range m.sessions {
		if s.reapable(now, m.opts.IdleTimeout) {
			m.removeLocked(s)
			out = append(out, s)
		}
	}
	return out
}

// Reap closes sessions whose grant expired or that have been idle past IdleTimeout.
func (m *Manager) Reap(now time.Time) int {
	m.mu.Lock()
	victims := m.collectLocked(now)
	m.mu.Unlock()

	m.finalize(victims...)
	if len(victims) > 0 {
		m.log.Info("viewer_sessions_reaped", logger.Fields{"count": len(victims)})
	}
	return len(victims)
}

// Run reaps on every tick until ctx ends, then closes every remaining session.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-t.C:
			m.Reap(m.NowFunc())
		}
	}
}

// CloseAll closes every session and hands each to OnClose.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = map[string]*Session{}
	m.mounts = map[string]*Session{}
	m.mu.Unlock()

	m.finalize(all...)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
