package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/logger"
	"github.com/atinyakov/GophFood/internal/models"
)

// AddressPhase is a state of the address selection flow.
type AddressPhase string

// Address flow phases.
const (
	PhaseIdle      AddressPhase = "idle"
	PhaseLocating  AddressPhase = "locating"
	PhaseAddressed AddressPhase = "addressed"
	PhaseEditing   AddressPhase = "editing"
	PhaseSaving    AddressPhase = "saving"
	PhaseError     AddressPhase = "error"
)

// Address tags offered to the user.
const (
	TagHome  = "Home"
	TagWork  = "Work"
	TagOther = "Other"
)

// User facing messages of the address flow.
const (
	MsgPermissionDenied = "permission denied"
	MsgInvalidAddress   = "Please select a valid address"
	MsgNotLoggedIn      = "User not logged in. Please login first."

	AddressPermissionDenied = "Location permission denied"
	AddressUnavailable      = "Unable to get location"
)

// ErrPermissionDenied is returned by Locate when location access is refused.
var ErrPermissionDenied = errors.New(MsgPermissionDenied)

// AddressState is a snapshot of the address flow.
type AddressState struct {
	Phase    AddressPhase       `json:"phase"`
	Address  string             `json:"address"`
	Marker   models.Coordinates `json:"marker"`
	Viewport geo.Viewport       `json:"viewport"`
	Tag      string             `json:"tag"`
	// Draft is the text being edited in the editing phase.
	Draft     string          `json:"draft,omitempty"`
	Results   []geo.Candidate `json:"results"`
	Searching bool            `json:"searching"`
	// Message is the last user facing error or confirmation.
	Message string                  `json:"message,omitempty"`
	Saved   *models.DeliveryAddress `json:"saved,omitempty"`
}

func (s AddressState) clone() AddressState {
	out := s
	out.Results = append([]geo.Candidate(nil), s.Results...)
	if s.Saved != nil {
		saved := *s.Saved
		out.Saved = &saved
	}
	return out
}

// AddressFlowConfig holds the collaborators of an AddressFlow.
type AddressFlowConfig struct {
	Locator  geo.Locator
	Geocoder geo.Geocoder
	Remote   AddressRemote
	Identity IdentityProvider
	// Region clamps device fixes; zero value means geo.DefaultRegion.
	Region geo.Region
	// OnSaved is called with every successfully saved address.
	OnSaved func(models.DeliveryAddress)
	Logger  *zap.Logger
}

// AddressFlow is the address selection state machine:
// idle -> locating -> addressed -> (editing) -> saving -> addressed | error.
type AddressFlow struct {
	cfg AddressFlowConfig
	log *zap.Logger
	hub Hub[AddressState]

	mu    sync.Mutex
	state AddressState
	// seq invalidates reverse geocoding results of superseded positions.
	seq uint64
	// searchSeq invalidates results of superseded searches.
	searchSeq uint64
}

// NewAddressFlow returns a flow in the idle phase, centred on the region
// fallback.
func NewAddressFlow(cfg AddressFlowConfig) *AddressFlow {
	if cfg.Region == (geo.Region{}) {
		cfg.Region = geo.DefaultRegion()
	}
	start := cfg.Region.Fallback
	return &AddressFlow{
		cfg: cfg,
		log: logger.OrNop(cfg.Logger).Named("address"),
		state: AddressState{
			Phase:    PhaseIdle,
			Marker:   start,
			Viewport: geo.ViewportAt(start),
			Tag:      TagHome,
		},
	}
}

// Snapshot returns a copy of the current state.
func (f *AddressFlow) Snapshot() AddressState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.clone()
}

// Subscribe registers for every new snapshot.
func (f *AddressFlow) Subscribe() (<-chan AddressState, func()) {
	return f.hub.Subscribe()
}

// Close closes subscriptions.
func (f *AddressFlow) Close() {
	f.hub.Close()
}

// OnSaved replaces the callback notified of saved addresses.
func (f *AddressFlow) OnSaved(fn func(models.DeliveryAddress)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg.OnSaved = fn
}

// Locate obtains the device position, clamps it to the service region and
// resolves it into an address.
func (f *AddressFlow) Locate(ctx context.Context) (AddressState, error) {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.state.Phase = PhaseLocating
	f.state.Message = ""
	f.publishLocked()
	f.mu.Unlock()

	if f.cfg.Locator == nil {
		return f.failLocate(seq, AddressUnavailable, "Could not get your location", geo.ErrPositionUnavailable)
	}
	granted, err := f.cfg.Locator.RequestPermission(ctx)
	if err != nil || !granted {
		if err != nil {
			f.log.Warn("location permission request failed", zap.Error(err))
		}
		return f.failLocate(seq, AddressPermissionDenied, MsgPermissionDenied, ErrPermissionDenied)
	}

	pos, err := f.cfg.Locator.CurrentPosition(ctx)
	if err != nil {
		f.log.Warn("location fix failed", zap.Error(err))
		return f.failLocate(seq, AddressUnavailable, "Could not get your location", err)
	}
	if clamped := f.cfg.Region.Clamp(pos); clamped != pos {
		f.log.Info("device position outside service region, using fallback",
			zap.Float64("lat", pos.Lat), zap.Float64("lng", pos.Lng))
		pos = clamped
	}
	return f.resolve(ctx, seq, pos, false)
}

// Search forward geocodes query into candidates. A blank query clears the
// results without a lookup.
func (f *AddressFlow) Search(ctx context.Context, query string) ([]geo.Candidate, error) {
	query = strings.TrimSpace(query)

	f.mu.Lock()
	f.searchSeq++
	seq := f.searchSeq
	if query == "" || f.cfg.Geocoder == nil {
		f.state.Results = nil
		f.state.Searching = false
		f.publishLocked()
		f.mu.Unlock()
		return nil, nil
	}
	f.state.Searching = true
	f.publishLocked()
	f.mu.Unlock()

	hits, err := f.cfg.Geocoder.Forward(ctx, query)
	if err != nil {
		f.log.Warn("address search failed", zap.String("query", query), zap.Error(err))
		hits = nil
	}
	results := make([]geo.Candidate, 0, len(hits))
	for i, h := range hits {
		h.ID = i
		if h.Title == "" {
			h.Title = query
		}
		if h.Subtitle == "" {
			h.Subtitle = geo.FormatCoordinates(h.Coordinates)
		}
		results = append(results, h)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq == f.searchSeq {
		f.state.Results = results
		f.state.Searching = false
		f.publishLocked()
	}
	return results, err
}

// Select moves the marker to a search candidate and resolves its address.
func (f *AddressFlow) Select(ctx context.Context, c geo.Candidate) (AddressState, error) {
	return f.Pick(ctx, c.Coordinates)
}

// Pick moves the marker to c, as a map tap or marker drag does, and
// resolves its address.
func (f *AddressFlow) Pick(ctx context.Context, c models.Coordinates) (AddressState, error) {
	f.mu.Lock()
	if f.state.Phase == PhaseSaving {
		f.mu.Unlock()
		return f.Snapshot(), invalid("Address is being saved")
	}
	f.seq++
	seq := f.seq
	f.state.Marker = c
	f.state.Viewport = geo.ViewportAt(c)
	f.state.Results = nil
	f.searchSeq++
	f.state.Searching = false
	f.publishLocked()
	f.mu.Unlock()

	return f.resolve(ctx, seq, c, true)
}

// SetTag selects the address title: Home, Work or Other.
func (f *AddressFlow) SetTag(tag string) (AddressState, error) {
	switch tag {
	case TagHome, TagWork, TagOther:
	default:
		return f.Snapshot(), invalid("Unknown address tag " + tag)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Tag = tag
	return f.publishLocked(), nil
}

// BeginEdit enters the editing phase with the current address as draft.
func (f *AddressFlow) BeginEdit() (AddressState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch f.state.Phase {
	case PhaseAddressed, PhaseError:
	case PhaseEditing:
		return f.state.clone(), nil
	default:
		return f.state.clone(), invalid("No address to edit")
	}
	f.state.Phase = PhaseEditing
	f.state.Draft = f.state.Address
	return f.publishLocked(), nil
}

// UpdateDraft replaces the edited text.
func (f *AddressFlow) UpdateDraft(text string) (AddressState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Phase != PhaseEditing {
		return f.state.clone(), invalid("Address is not being edited")
	}
	f.state.Draft = text
	return f.publishLocked(), nil
}

// CommitEdit makes the draft the address.
func (f *AddressFlow) CommitEdit() (AddressState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Phase != PhaseEditing {
		return f.state.clone(), invalid("Address is not being edited")
	}
	draft := strings.TrimSpace(f.state.Draft)
	if draft == "" {
		f.state.Message = MsgInvalidAddress
		return f.publishLocked(), invalid(MsgInvalidAddress)
	}
	f.state.Address = draft
	f.state.Draft = ""
	f.state.Message = ""
	f.state.Phase = PhaseAddressed
	return f.publishLocked(), nil
}

// CancelEdit leaves the editing phase keeping the address.
func (f *AddressFlow) CancelEdit() AddressState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state.Phase == PhaseEditing {
		f.state.Phase = PhaseAddressed
		f.state.Draft = ""
	}
	return f.publishLocked()
}

// Save stores the selected address remotely. Validation failures make no
// network call, and an open edit must be committed or cancelled first. On success the flow returns to addressed and OnSaved is
// notified; on failure it moves to error and Save may be retried.
func (f *AddressFlow) Save(ctx context.Context) (models.DeliveryAddress, error) {
	f.mu.Lock()
	switch f.state.Phase {
	case PhaseSaving:
		f.mu.Unlock()
		return models.DeliveryAddress{}, invalid("Address is being saved")
	case PhaseEditing:
		f.mu.Unlock()
		return models.DeliveryAddress{}, invalid("Address is being edited")
	}
	address := strings.TrimSpace(f.state.Address)
	if address == "" || address == AddressPermissionDenied || address == AddressUnavailable {
		f.state.Message = MsgInvalidAddress
		f.publishLocked()
		f.mu.Unlock()
		return models.DeliveryAddress{}, invalid(MsgInvalidAddress)
	}
	id := identityOf(f.cfg.Identity)
	if id.ID == "" {
		f.state.Message = MsgNotLoggedIn
		f.publishLocked()
		f.mu.Unlock()
		return models.DeliveryAddress{}, invalid(MsgNotLoggedIn)
	}
	if f.cfg.Remote == nil {
		f.mu.Unlock()
		return models.DeliveryAddress{}, ErrNoRemote
	}

	req := models.SaveAddressRequest{
		UserID:      id.ID,
		Title:       f.state.Tag,
		Address:     address,
		Coordinates: f.state.Marker,
		IsDefault:   false,
	}
	f.state.Phase = PhaseSaving
	f.state.Message = ""
	f.publishLocked()
	f.mu.Unlock()

	res, err := f.cfg.Remote.SaveAddress(ctx, req)
	if err == nil && !res.Status {
		msg := res.Message
		if msg == "" {
			msg = "Failed to save address"
		}
		err = errors.New(msg)
	}

	f.mu.Lock()
	if err != nil {
		f.state.Phase = PhaseError
		f.state.Message = rejectionMessage(err, "Failed to save address")
		if !res.Status && res.Message != "" {
			f.state.Message = res.Message
		}
		f.publishLocked()
		f.mu.Unlock()
		f.log.Warn("address save failed", zap.Error(err))
		return models.DeliveryAddress{}, err
	}

	coords := req.Coordinates
	saved := models.DeliveryAddress{Title: req.Title, Address: req.Address, Coordinates: &coords}
	if res.Data != nil {
		saved.ID = res.Data.ID
		if res.Data.Title != "" {
			saved.Title = res.Data.Title
		}
		if res.Data.Address != "" {
			saved.Address = res.Data.Address
		}
		if res.Data.Coordinates != nil {
			saved.Coordinates = res.Data.Coordinates
		}
		saved.IsDefault = res.Data.IsDefault
	}
	f.state.Phase = PhaseAddressed
	f.state.Message = res.Message
	if f.state.Message == "" {
		f.state.Message = "Address saved successfully"
	}
	f.state.Saved = &saved
	f.publishLocked()
	onSaved := f.cfg.OnSaved
	f.mu.Unlock()

	if onSaved != nil {
		onSaved(saved)
	}
	return saved, nil
}

// resolve reverse geocodes pos and applies the result when no newer
// position superseded it.
func (f *AddressFlow) resolve(ctx context.Context, seq uint64, pos models.Coordinates, keepMarker bool) (AddressState, error) {
	if !keepMarker {
		f.mu.Lock()
		if seq == f.seq {
			f.state.Marker = pos
			f.state.Viewport = geo.ViewportAt(pos)
			f.publishLocked()
		}
		f.mu.Unlock()
	}

	line := geo.Describe(ctx, f.cfg.Geocoder, pos)

	f.mu.Lock()
	defer f.mu.Unlock()
	if seq != f.seq {
		return f.state.clone(), nil
	}
	f.state.Address = line
	f.state.Phase = PhaseAddressed
	f.state.Draft = ""
	f.state.Message = ""
	return f.publishLocked(), nil
}

func (f *AddressFlow) failLocate(seq uint64, sentinel, msg string, err error) (AddressState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq == f.seq {
		f.state.Phase = PhaseError
		f.state.Address = sentinel
		f.state.Message = msg
		f.publishLocked()
	}
	return f.state.clone(), err
}

func (f *AddressFlow) publishLocked() AddressState {
	st := f.state.clone()
	f.hub.Publish(st)
	return st
}
