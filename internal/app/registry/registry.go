// Package registry keeps the live player sessions, one per page load.
package registry

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/queueplayer/internal/app/notification"
	"github.com/osa030/queueplayer/internal/app/player"
	"github.com/osa030/queueplayer/internal/ui"
)

var ErrSessionNotFound = errors.New("session not found")

// Entry is a live session and the page it renders to.
type Entry struct {
	ID        string
	Session   *player.Session
	Page      *ui.Page
	CreatedAt time.Time

	token string
}

// Registry manages sessions with thread-safe access.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*Entry
	deps     player.Deps
	notifier *notification.Manager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a registry. deps.Page is ignored; every session gets its own
// page. ctx bounds background bootstraps.
func New(ctx context.Context, deps player.Deps, notifier *notification.Manager) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		entries:  make(map[string]*Entry),
		deps:     deps,
		notifier: notifier,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Create starts a session from launch parameters and bootstraps it in the
// background. Earlier sessions launched with the same token are closed, since
// they would drive the same device.
func (r *Registry) Create(params url.Values) *Entry {
	id := uuid.New().String()
	token, _ := player.AcquireToken(params)

	page := ui.NewPage()
	if r.notifier != nil {
		page.OnChange(func(s ui.Snapshot) { r.notifier.Broadcast(id, s) })
	}

	deps := r.deps
	deps.Page = page
	entry := &Entry{
		ID:        id,
		Session:   player.NewSession(id, params, deps),
		Page:      page,
		CreatedAt: time.Now(),
		token:     token,
	}

	var replaced []*Entry
	r.mu.Lock()
	if token != "" {
		for oldID, old := range r.entries {
			if old.token == token {
				replaced = append(replaced, old)
				delete(r.entries, oldID)
			}
		}
	}
	r.entries[id] = entry
	r.mu.Unlock()

	for _, old := range replaced {
		old.Session.Close()
		zlog.Info().Msgf("session replaced: old=%s new=%s", old.ID, id)
	}
	zlog.Info().Msgf("session created: id=%s", id)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := entry.Session.Bootstrap(r.ctx); err != nil {
			zlog.Warn().Err(err).Msgf("session bootstrap failed: id=%s", id)
		}
	}()

	return entry
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return entry, nil
}

// Remove closes a session and forgets it.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	entry, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	entry.Session.Close()
	return nil
}

// Count returns the number of sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// CloseAll stops pending bootstraps and closes every session.
func (r *Registry) CloseAll() {
	r.cancel()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	for _, entry := range entries {
		entry.Session.Close()
	}
	r.wg.Wait()
	zlog.Info().Msgf("sessions closed: count=%d", len(entries))
}
