package http

import (
	"context"
	"net/http"

	"github.com/atinyakov/GophFood/internal/geo"
	"github.com/atinyakov/GophFood/internal/models"
	"github.com/atinyakov/GophFood/internal/service"
)

// AddressFlow defines the address selection operations required by
// AddressHandler.
type AddressFlow interface {
	// Snapshot returns the current flow state.
	Snapshot() service.AddressState
	// Locate centres the flow on the device position.
	Locate(ctx context.Context) (service.AddressState, error)
	// Search forward geocodes the query into candidates.
	Search(ctx context.Context, query string) ([]geo.Candidate, error)
	// Select moves the marker to a search candidate.
	Select(ctx context.Context, c geo.Candidate) (service.AddressState, error)
	// Pick moves the marker to a point chosen on the map.
	Pick(ctx context.Context, c models.Coordinates) (service.AddressState, error)
	// SetTag labels the address Home, Work or Other.
	SetTag(tag string) (service.AddressState, error)
	// BeginEdit starts manual editing of the address text.
	BeginEdit() (service.AddressState, error)
	// UpdateDraft replaces the text being edited.
	UpdateDraft(text string) (service.AddressState, error)
	// CommitEdit accepts the draft as the address.
	CommitEdit() (service.AddressState, error)
	// CancelEdit discards the draft.
	CancelEdit() service.AddressState
	// Save persists the address remotely.
	Save(ctx context.Context) (models.DeliveryAddress, error)
	// Subscribe streams every published flow state.
	Subscribe() (<-chan service.AddressState, func())
}

// AddressHandler handles HTTP requests for the address selection flow.
type AddressHandler struct {
	Flow AddressFlow
}

// Edit actions accepted by AddressHandler.Edit.
const (
	EditBegin  = "begin"
	EditUpdate = "update"
	EditCommit = "commit"
	EditCancel = "cancel"
)

func (h *AddressHandler) respond(w http.ResponseWriter, st service.AddressState, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Get handles GET /api/address.
func (h *AddressHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Flow.Snapshot())
}

// Locate handles POST /api/address/locate.
func (h *AddressHandler) Locate(w http.ResponseWriter, r *http.Request) {
	st, err := h.Flow.Locate(r.Context())
	h.respond(w, st, err)
}

// Search handles POST /api/address/search with {"query": "..."}.
func (h *AddressHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &req) {
		return
	}
	results, err := h.Flow.Search(r.Context(), req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	if results == nil {
		results = []geo.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// Select handles POST /api/address/select with a search candidate.
func (h *AddressHandler) Select(w http.ResponseWriter, r *http.Request) {
	var c geo.Candidate
	if !decode(w, r, &c) {
		return
	}
	st, err := h.Flow.Select(r.Context(), c)
	h.respond(w, st, err)
}

// Pick handles POST /api/address/pick with {"latitude", "longitude"}.
func (h *AddressHandler) Pick(w http.ResponseWriter, r *http.Request) {
	var c models.Coordinates
	if !decode(w, r, &c) {
		return
	}
	st, err := h.Flow.Pick(r.Context(), c)
	h.respond(w, st, err)
}

// Tag handles POST /api/address/tag with {"tag": "Home"}.
func (h *AddressHandler) Tag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tag string `json:"tag"`
	}
	if !decode(w, r, &req) {
		return
	}
	st, err := h.Flow.SetTag(req.Tag)
	h.respond(w, st, err)
}

// Edit handles POST /api/address/edit with {"action": "...", "text": "..."}.
func (h *AddressHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Action string `json:"action"`
		Text   string `json:"text"`
	}
	if !decode(w, r, &req) {
		return
	}

	var (
		st  service.AddressState
		err error
	)
	switch req.Action {
	case EditBegin:
		st, err = h.Flow.BeginEdit()
	case EditUpdate:
		st, err = h.Flow.UpdateDraft(req.Text)
	case EditCommit:
		st, err = h.Flow.CommitEdit()
	case EditCancel:
		st = h.Flow.CancelEdit()
	default:
		http.Error(w, "unknown edit action", http.StatusBadRequest)
		return
	}
	h.respond(w, st, err)
}

// Save handles POST /api/address/save and returns the saved address.
func (h *AddressHandler) Save(w http.ResponseWriter, r *http.Request) {
	saved, err := h.Flow.Save(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"address": saved,
		"state":   h.Flow.Snapshot(),
	})
}

// Watch handles GET /api/address/watch.
func (h *AddressHandler) Watch(w http.ResponseWriter, r *http.Request) {
	watch(w, r, h.Flow.Subscribe, func(st service.AddressState) any { return st })
}
