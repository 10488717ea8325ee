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

// CartService is the cart state machine. Local mutations are applied and
// persisted synchronously; the paired remote call runs in the background
// and may only change the status record.
type CartService struct {
	store    storage.Store
	remote   CartRemote
	identity IdentityProvider
	log      *zap.Logger
	hub      Hub[models.CartState]

	mu      sync.Mutex
	state   models.CartState
	tracker tracker
	// rev counts local mutations; a fetch that overlaps one is discarded.
	rev uint64

	wg sync.WaitGroup
}

// NewCartService constructs a CartService. A nil remote keeps the cart
// local-only; a nil store keeps it in memory.
func NewCartService(store storage.Store, remote CartRemote, identity IdentityProvider, log *zap.Logger) *CartService {
	if store == nil {
		store = storage.NewMemoryStore()
	}
	s := &CartService{
		store:    store,
		remote:   remote,
		identity: identity,
		log:      logger.OrNop(log).Named("cart"),
	}
	s.state.Recompute()
	return s
}

// Snapshot returns a copy of the current state.
func (s *CartService) Snapshot() models.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Subscribe registers for every new snapshot, status-only changes included.
func (s *CartService) Subscribe() (<-chan models.CartState, func()) {
	return s.hub.Subscribe()
}

// Count returns the quantity of id in the cart, 0 when absent.
func (s *CartService) Count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.state.Index(id); i >= 0 {
		return s.state.Items[i].Count
	}
	return 0
}

// Load hydrates the cart from the store. A missing or unreadable snapshot
// yields the empty cart.
func (s *CartService) Load(ctx context.Context) models.CartState {
	var saved models.CartState
	if err := storage.LoadJSON(ctx, s.store, storage.KeyCart, &saved); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("failed to load cart snapshot", zap.Error(err))
		}
		saved = models.CartState{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Items = normalizeLines(saved.Items)
	s.state.Recompute()
	s.rev++
	return s.publishLocked()
}

// ApplyAdd merges line into the cart and persists the result. A count below
// one is treated as one.
func (s *CartService) ApplyAdd(ctx context.Context, line models.CartLine) (models.CartState, error) {
	if strings.TrimSpace(line.ID) == "" {
		return s.Snapshot(), invalid("Cart item id is required")
	}
	if line.Price.IsNegative() {
		return s.Snapshot(), invalid("Cart item price must not be negative")
	}
	if line.Count <= 0 {
		line.Count = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.state.Index(line.ID); i >= 0 {
		s.state.Items[i].Count += line.Count
	} else {
		s.state.Items = append(s.state.Items, line)
	}
	s.state.Recompute()
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked(), nil
}

// ApplyRemove takes one unit of id out of the cart and persists the result.
// It reports false and changes nothing when id is absent.
func (s *CartService) ApplyRemove(ctx context.Context, id string) (models.CartState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.state.Index(id)
	if i < 0 {
		return s.state.Clone(), false
	}
	if s.state.Items[i].Count <= 1 {
		s.state.Items = append(s.state.Items[:i:i], s.state.Items[i+1:]...)
	} else {
		s.state.Items[i].Count--
	}
	s.state.Recompute()
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked(), true
}

// ReconcileAdd reports an added unit to the remote service. Only the status
// record is affected by the outcome.
func (s *CartService) ReconcileAdd(ctx context.Context, itemID, userID string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	s.beginRemote()
	return s.endRemote("add", s.remote.AddCartItem(ctx, itemID, userID))
}

// ReconcileRemove reports a removed unit to the remote service.
func (s *CartService) ReconcileRemove(ctx context.Context, itemID, userID string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	s.beginRemote()
	return s.endRemote("remove", s.remote.RemoveCartItem(ctx, itemID, userID))
}

// AddItem applies the add locally and, when signed in, dispatches its
// reconciliation without waiting for it.
func (s *CartService) AddItem(ctx context.Context, line models.CartLine) models.CartState {
	st, err := s.ApplyAdd(ctx, line)
	if err != nil {
		s.log.Warn("rejected cart line", zap.String("id", line.ID), zap.Error(err))
		return st
	}
	if id := identityOf(s.identity); id.Authenticated() && s.remote != nil {
		st = s.beginRemote()
		s.dispatch(ctx, func(ctx context.Context) {
			_ = s.endRemote("add", s.remote.AddCartItem(ctx, line.ID, id.ID))
		})
	}
	return st
}

// RemoveItem applies the removal locally and, when signed in, dispatches
// its reconciliation. Removing an absent id is a no-op.
func (s *CartService) RemoveItem(ctx context.Context, id string) models.CartState {
	st, removed := s.ApplyRemove(ctx, id)
	if !removed {
		return st
	}
	if ident := identityOf(s.identity); ident.Authenticated() && s.remote != nil {
		st = s.beginRemote()
		s.dispatch(ctx, func(ctx context.Context) {
			_ = s.endRemote("remove", s.remote.RemoveCartItem(ctx, id, ident.ID))
		})
	}
	return st
}

// SetItems replaces the cart with snapshot and persists it. Totals are
// recomputed from the items rather than trusted.
func (s *CartService) SetItems(ctx context.Context, snapshot models.CartState) models.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Items = normalizeLines(snapshot.Items)
	s.state.Recompute()
	s.rev++
	s.persistLocked(ctx)
	return s.publishLocked()
}

// Clear empties the cart and persists the empty state.
func (s *CartService) Clear(ctx context.Context) models.CartState {
	return s.SetItems(ctx, models.CartState{})
}

// FetchRemote replaces the cart with the authoritative remote one. On
// failure the local cart is kept and the status error is set. A response
// that lands after a local mutation is dropped and only ends the loading
// status.
func (s *CartService) FetchRemote(ctx context.Context, userID string) error {
	if s.remote == nil {
		return ErrNoRemote
	}
	rev := s.beginFetch()
	lines, err := s.remote.FetchCart(ctx, userID)
	if err != nil {
		return s.endRemote("fetch", err)
	}

	items := make([]models.CartLine, 0, len(lines))
	for _, l := range lines {
		items = append(items, l.ToCartLine())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.end(&s.state.Status, nil, "")
	if s.rev != rev {
		s.log.Debug("dropping stale remote cart", zap.Uint64("rev", rev), zap.Uint64("current", s.rev))
		s.publishLocked()
		return nil
	}
	s.state.Items = items
	s.state.Recompute()
	s.persistLocked(ctx)
	s.publishLocked()
	return nil
}

// Wait blocks until every dispatched reconciliation has finished.
func (s *CartService) Wait() {
	s.wg.Wait()
}

func (s *CartService) beginRemote() models.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.begin(&s.state.Status)
	return s.publishLocked()
}

func (s *CartService) beginFetch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.begin(&s.state.Status)
	s.publishLocked()
	return s.rev
}

func (s *CartService) endRemote(op string, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker.end(&s.state.Status, err, "Failed to sync cart")
	if err != nil {
		s.log.Warn("cart remote call failed", zap.String("op", op), zap.Error(err))
	}
	s.publishLocked()
	return err
}

func (s *CartService) dispatch(ctx context.Context, run func(context.Context)) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(ctx)
	}()
}

func (s *CartService) persistLocked(ctx context.Context) {
	if err := storage.SaveJSON(ctx, s.store, storage.KeyCart, s.state); err != nil {
		s.log.Error("failed to persist cart", zap.Error(err))
	}
}

func (s *CartService) publishLocked() models.CartState {
	st := s.state.Clone()
	s.hub.Publish(st)
	return st
}

// normalizeLines drops lines without id, merges duplicates and lifts counts
// below one, so the uniqueness and count invariants hold for any input.
func normalizeLines(in []models.CartLine) []models.CartLine {
	out := make([]models.CartLine, 0, len(in))
	seen := make(map[string]int, len(in))
	for _, l := range in {
		if l.ID == "" {
			continue
		}
		if l.Count <= 0 {
			l.Count = 1
		}
		if i, ok := seen[l.ID]; ok {
			out[i].Count += l.Count
			continue
		}
		seen[l.ID] = len(out)
		out = append(out, l)
	}
	return out
}

// Close waits for dispatched reconciliations and closes subscriptions.
func (s *CartService) Close() {
	s.wg.Wait()
	s.hub.Close()
}
