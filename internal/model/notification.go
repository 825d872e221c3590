package model

import "time"

type NotificationChannel string

const (
	ChannelInApp NotificationChannel = "IN_APP"
	ChannelEmail NotificationChannel = "EMAIL"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
	NotificationSkipped NotificationStatus = "SKIPPED"
)

// Well-known notification types.
const (
	TypeScheduledPostPublished   = "SCHEDULED_POST_PUBLISHED"
	TypeScheduledReviewPublished = "SCHEDULED_REVIEW_PUBLISHED"
	TypeSchedulerFailed          = "SCHEDULER_FAILED"
	TypeSchemaLag                = "SCHEMA_LAG"
)

// Payload is the typed message envelope carried by a notification.
// Per-event extras go into Extra instead of free-form field merging.
type Payload struct {
	Message  string            `json:"message"`
	Href     string            `json:"href,omitempty"`
	Severity string            `json:"severity,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// EntityRefs carries at most the relevant subset of entity references.
type EntityRefs struct {
	PostID    *int64 `json:"post_id,omitempty"`
	ReviewID  *int64 `json:"review_id,omitempty"`
	CommentID *int64 `json:"comment_id,omitempty"`
}

// Empty reports whether no entity references are set.
func (e EntityRefs) Empty() bool {
	return e.PostID == nil && e.ReviewID == nil && e.CommentID == nil
}

type Notification struct {
	ID           int64
	Type         string
	Channel      NotificationChannel
	Status       NotificationStatus
	UserID       *int64
	MemberID     *int64
	Email        string
	Subject      string
	Payload      Payload
	Refs         EntityRefs
	IsRead       bool
	CreatedAt    time.Time
	SentAt       *time.Time
	ErrorMessage string
}
