package model

import "time"

// Audit actions appended by the automation pipeline.
const (
	ActionPostScheduledPublish   = "post.scheduled_publish.executed"
	ActionReviewScheduledPublish = "review.scheduled_publish.executed"
	ActionPostBroadcasted        = "newsletter.post.broadcasted"
	ActionReviewBroadcasted      = "newsletter.review.broadcasted"
)

type AuditEntry struct {
	ID         int64
	Action     string
	EntityType string
	EntityID   int64
	Summary    string
	Details    map[string]any
	CreatedAt  time.Time
}
