package mq

import "time"

// SearchIndexUpsertPayload asks the index worker to refresh one content
// item. Published on routing key "search.index.upsert".
type SearchIndexUpsertPayload struct {
	Kind       string    `json:"kind"` // post / review
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
}
