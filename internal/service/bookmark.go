package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/client/storage"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
)

// BookmarkService is the bookmark state machine: a set of restaurants keyed
// by id, persisted locally and reconciled like the cart.
type BookmarkService struct {
	store    storage.Store
	remote   BookmarkRemote
	identity IdentityProvider
	log      *zap.Logger
	hub      Hub[models.BookmarkState]

	mu      sync.Mutex
	state   models.BookmarkState
	tracker tracker
	rev     uint64

	wg sync.WaitGroup
}

// NewBookmarkService constructs a BookmarkService. The owner key of remote
// calls is the identity's user id.
func NewBookmarkService(store storage.Store, remote BookmarkRemote, identity IdentityProvider, log *zap.Logger) *BookmarkService {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	return &BookmarkService{
		store:    store,
		remote:   remote,
		identity: identity,
		log:      logger.OrNop(log).Named("bookmarks"),
		state:    models.BookmarkState{Bookmarks: []models.BookmarkEntry{}},
	}
}

// Snapshot returns a copy of the current state.
func (s *BookmarkService) Snapshot() models.BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers for every new snapshot.
func (s *BookmarkService) Subscribe() (<-chan models.BookmarkState, func()) {
	return s.hub.Subscribe()
}

// IsBookmarked reports whether id is in the set.
func (s *BookmarkService) IsBookmarked(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Index(id) >= 0
}

// Load hydrates the set from the store, where it is kept as a bare array of
// entries.
func (s *BookmarkService) Load(ctx context.Context) models.BookmarkState {
	var saved []models.BookmarkEntry
	if err := storage.LoadJSON(ctx, s.store, storage.KeyBookmarks, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load bookmark snapshot", zap.Error(err))
		}
		saved = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Bookmarks = uniqueEntries(saved)
	s.rev++
	return s.publishLocked()
}

// ApplyAdd inserts entry and persists. It reports false, without
// persisting, when the id is already present.
func (s *BookmarkService) ApplyAdd(ctx context.Context, entry models.BookmarkEntry) (models.BookmarkState, bool, error) {
	if strings.TrimSpace(entry.ID) == "" {
		return s.Snapshot(), false, invalid("Restaurant id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Index(entry.ID) >= 0 {
		return s.state.Clone(), false, nil
	}
	s.state.Bookmarks = append(s.state.Bookmarks, entry)
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked(), true, nil
}

// ApplyRemove filters id out and persists, whether or not it was present.
func (s *BookmarkService) ApplyRemove(ctx context.Context, id string) models.BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.state.Bookmarks[:0:0]
	for _, e := range s.state.Bookmarks {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.state.Bookmarks = kept
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked()
}

// ReconcileAdd reports a new bookmark to the remote service.
func (s *BookmarkService) ReconcileAdd(ctx context.Context, restaurantID, ownerKey string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	s.beginRemote()
	return s.endRemote("add", s.remote.AddBookmark(ctx, restaurantID, ownerKey))
}

// ReconcileRemove reports a removed bookmark to the remote service.
func (s *BookmarkService) ReconcileRemove(ctx context.Context, restaurantID, ownerKey string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	s.beginRemote()
	return s.endRemote("remove", s.remote.RemoveBookmark(ctx, restaurantID, ownerKey))
}

// Add bookmarks entry. Adding a present id is a no-op: nothing is persisted
// and no remote call is made.
func (s *BookmarkService) Add(ctx context.Context, entry models.BookmarkEntry) models.BookmarkState {
	st, added, err := s.ApplyAdd(ctx, entry)
	if err != nil {
		s.log.Warn("rejected bookmark", zap.Error(err))
		return st
	}
	if !added {
		return st
	}
	if id := identityOf(s.identity); id.Authenticated() && s.remote != nil {
		st = s.beginRemote()
		s.dispatch(ctx, func(ctx context.Context) {
			_ = s.endRemote("add", s.remote.AddBookmark(ctx, entry.ID, id.ID))
		})
	}
	return st
}

// Remove drops id from the set and, when signed in, reports it remotely.
func (s *BookmarkService) Remove(ctx context.Context, id string) models.BookmarkState {
	st := s.ApplyRemove(ctx, id)
	if ident := identityOf(s.identity); ident.Authenticated() && s.remote != nil {
		st = s.beginRemote()
		s.dispatch(ctx, func(ctx context.Context) {
			_ = s.endRemote("remove", s.remote.RemoveBookmark(ctx, id, ident.ID))
		})
	}
	return st
}

// SetBookmarks replaces the set and persists it.
func (s *BookmarkService) SetBookmarks(ctx context.Context, entries []models.BookmarkEntry) models.BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Bookmarks = uniqueEntries(entries)
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked()
}

// Clear empties the set and removes the persisted snapshot.
func (s *BookmarkService) Clear(ctx context.Context) models.BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Bookmarks = []models.BookmarkEntry{}
	s.rev++
	if err := s.store.Remove(ctx, storage.KeyBookmarks); err != nil {
		s.log.Error("failed to remove bookmark snapshot", zap.Error(err))
	}
	return s.publishLocked()
}

// FetchRemote replaces the set with the remote bookmarks of ownerKey,
// unless the set changed locally while the request was in flight.
func (s *BookmarkService) FetchRemote(ctx context.Context, ownerKey string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	rev := s.beginFetch()
	marks, err := s.remote.FetchBookmarks(ctx, ownerKey)
	if err != nil {
		return s.endRemote("fetch", err)
	}

	entries := make([]models.BookmarkEntry, 0, len(marks))
	for _, m := range marks {
		entries = append(entries, m.ToEntry())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.end(&s.state.Status, nil, "")
	if s.rev != rev {
		s.log.Debug("dropping stale remote bookmarks", zap.Uint64("rev", rev), zap.Uint64("current", s.rev))
		s.publishLocked()
		return nil
	}
	s.state.Bookmarks = uniqueEntries(entries)
	s.persistLocked(ctx)
	s.publishLocked()
	return nil
}

// Wait blocks until every dispatched reconciliation has finished.
func (s *BookmarkService) Wait() {
	s.wg.Wait()
}

// Close waits for dispatched reconciliations and closes subscriptions.
func (s *BookmarkService) Close() {
	s.wg.Wait()
	s.hub.Close()
}

func (s *BookmarkService) beginRemote() models.BookmarkState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.begin(&s.state.Status)
	return s.publishLocked()
}

func (s *BookmarkService) beginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.begin(&s.state.Status)
	s.publishLocked()
	return s.rev
}

func (s *BookmarkService) endRemote(op string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.end(&s.state.Status, err, "Failed to sync bookmarks")
	if err != nil {
		s.log.Warn("bookmark remote call failed", zap.String("op", op), zap.Error(err))
	}
	s.publishLocked()
	return err
}

func (s *BookmarkService) dispatch(ctx context.Context, run func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(ctx)
	}()
}

func (s *BookmarkService) persistLocked(ctx context.Context) {
	if err := storage.SaveJSON(ctx, s.store, storage.KeyBookmarks, s.state.Bookmarks); err != nil {
		s.log.Error("failed to persist bookmarks", zap.Error(err))
	}
}

func (s *BookmarkService) publishLocked() models.BookmarkState {
	st := s.state.Clone()
	s.hub.Publish(st)
	return st
}

func uniqueEntries(in []models.BookmarkEntry) []models.BookmarkEntry {
	out := make([]models.BookmarkEntry, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, e := range in {
		if e.ID == "" {
			continue
		}
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		out = append(out, e)
	}
	return out
}
