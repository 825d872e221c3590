package model

import "time"

type ContentStatus string

const (
	StatusDraft     ContentStatus = "DRAFT"
	StatusPublished ContentStatus = "PUBLISHED"
)

type ContentKind string

const (
	KindPost   ContentKind = "post"
	KindReview ContentKind = "review"
)

// ScheduledItem is the narrow view of a content row the scheduler works
// with. Both posts and reviews project into it.
type ScheduledItem struct {
	ID          int64
	Title       string
	Slug        string
	Status      ContentStatus
	ScheduledAt *time.Time
	PublishedAt *time.Time
}

// Due reports whether the item is ready for scheduled publication.
func (s ScheduledItem) Due(now time.Time) bool {
	return s.Status == StatusDraft && s.ScheduledAt != nil && !s.ScheduledAt.After(now)
}
