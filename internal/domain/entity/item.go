package entity

import "time"

// Item is a normalized entry from a feed payload.
//
// Identity is the external id when present; otherwise the
// (FeedID, URL, PublishedAt) triple.
type Item struct {
	ID          int64
	FeedID      int64
	Title       string
	URL         string
	Summary     string
	Content     string
	Author      string
	ImageURL    string
	PublishedAt time.Time
	ExternalID  string
	CreatedAt   time.Time
}

// HasExternalID reports whether the item carries a stable external identifier.
func (i *Item) HasExternalID() bool {
	return i.ExternalID != ""
}
