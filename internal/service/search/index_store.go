package search

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"pressroom/internal/model"
)

const recentSetKey = "search:recent"

// IndexStore maintains the lightweight search index in redis: one hash
// per document plus a recency-ordered set the storefront reads from.
type IndexStore struct {
	rdb *redis.Client
}

func NewIndexStore(rdb *redis.Client) *IndexStore {
	return &IndexStore{rdb: rdb}
}

func docKey(kind string, id int64) string {
	return fmt.Sprintf("search:doc:%s:%d", kind, id)
}

func member(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// UpsertDoc writes the document hash and scores it by publish time.
func (s *IndexStore) UpsertDoc(ctx context.Context, kind string, item model.ScheduledItem) error {
	publishedAt := time.Now()
	if item.PublishedAt != nil {
		publishedAt = *item.PublishedAt
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, docKey(kind, item.ID), map[string]any{
		"title":        item.Title,
		"slug":         item.Slug,
		"published_at": publishedAt.Format(time.RFC3339),
	})
	pipe.ZAdd(ctx, recentSetKey, redis.Z{
		Score:  float64(publishedAt.Unix()),
		Member: member(kind, item.ID),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to upsert search doc %s: %w", member(kind, item.ID), err)
	}
	return nil
}

// RemoveDoc drops a document from the index.
func (s *IndexStore) RemoveDoc(ctx context.Context, kind string, id int64) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, docKey(kind, id))
	pipe.ZRem(ctx, recentSetKey, member(kind, id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove search doc %s: %w", member(kind, id), err)
	}
	return nil
}
