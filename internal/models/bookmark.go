package models

// BookmarkEntry is a saved restaurant summary, unique by ID.
type BookmarkEntry struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"`
	Address     string  `json:"address"`
	Description string  `json:"description"`
}

// BookmarkState is the bookmark list snapshot.
type BookmarkState struct {
	Bookmarks []BookmarkEntry `json:"bookmarks"`
	Status    Status          `json:"-"`
}

// Index returns the position of the entry with the given id or -1.
func (b BookmarkState) Index(id string) int {
	for i, e := range b.Bookmarks {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy safe to hand out to readers.
func (b BookmarkState) Clone() BookmarkState {
	out := b
	out.Bookmarks = append([]BookmarkEntry(nil), b.Bookmarks...)
	if out.Bookmarks == nil {
		out.Bookmarks = []BookmarkEntry{}
	}
	return out
}

// RemoteRestaurant is the nested restaurant record of a remote bookmark.
type RemoteRestaurant struct {
	Name        string  `json:"name"`
	Image       string  `json:"image"`
	Rating      float64 `json:"rating"`
	Address     string  `json:"address"`
	Description string  `json:"description"`
}

// RemoteBookmark is the service's representation of a bookmark.
type RemoteBookmark struct {
	RestaurantID string            `json:"restaurantId"`
	Restaurant   *RemoteRestaurant `json:"restaurant"`
}

// ToEntry maps a remote bookmark, leaving absent nested fields empty.
func (r RemoteBookmark) ToEntry() BookmarkEntry {
	e := BookmarkEntry{ID: r.RestaurantID}
	if r.Restaurant != nil {
		e.Name = r.Restaurant.Name
		e.Image = r.Restaurant.Image
		e.Rating = r.Restaurant.Rating
		e.Address = r.Restaurant.Address
		e.Description = r.Restaurant.Description
	}
	return e
}
