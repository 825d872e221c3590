package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "pressroom/contracts/mq"
	"pressroom/internal/model"
	"pressroom/pkg/metrics"
	"pressroom/pkg/util"
)

const (
	handlerName = "search_index_upsert"
	maxRetries  = 5 // 最大重试次数
)

// ContentSource reads one published item per content kind.
type ContentSource interface {
	GetPublished(ctx context.Context, id int64) (*model.ScheduledItem, error)
}

// DocIndex writes documents into the search index.
type DocIndex interface {
	UpsertDoc(ctx context.Context, kind string, item model.ScheduledItem) error
}

// DLQPublisher parks poison messages.
type DLQPublisher interface {
	PublishToDLQ(routingKey, failedBy string, payload []byte, originalError string) error
}

// Deduper suppresses duplicate deliveries of one event.
type Deduper interface {
	AcquireOnce(ctx context.Context, scope, key string) bool
	Release(ctx context.Context, scope, key string)
}

// RetryCounter bounds redelivery attempts per event.
type RetryCounter interface {
	IncrementAndGet(ctx context.Context, key string) (int64, error)
	Reset(ctx context.Context, key string) error
}

// SearchIndexUpsertHandler consumes search.index.upsert events and
// refreshes the redis index. Returning an error requeues the message;
// non-retryable and retry-exhausted messages go to the DLQ and are
// acked.
type SearchIndexUpsertHandler struct {
	posts        ContentSource
	reviews      ContentSource
	index        DocIndex
	dlq          DLQPublisher
	deduper      Deduper
	retryCounter RetryCounter
	routingKey   string
	logger       *zap.Logger
}

func NewSearchIndexUpsertHandler(
	posts ContentSource,
	reviews ContentSource,
	index DocIndex,
	dlq DLQPublisher,
	deduper Deduper,
	retryCounter RetryCounter,
	routingKey string,
	logger *zap.Logger,
) *SearchIndexUpsertHandler {
	return &SearchIndexUpsertHandler{
		posts:        posts,
		reviews:      reviews,
		index:        index,
		dlq:          dlq,
		deduper:      deduper,
		retryCounter: retryCounter,
		routingKey:   routingKey,
		logger:       logger,
	}
}

func (h *SearchIndexUpsertHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.SearchIndexUpsertPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		// 解码失败不可重试，直接进 DLQ
		h.logger.Error("Failed to unmarshal search index payload, sending to DLQ",
			zap.Error(err),
			zap.String("raw_payload", string(raw)),
		)
		h.sendToDLQ(raw, err.Error())
		return nil
	}

	eventKey := fmt.Sprintf("%s:%d:%d", p.Kind, p.ID, p.OccurredAt.UnixNano())
	if !h.deduper.AcquireOnce(ctx, handlerName, eventKey) {
		metrics.IncrementSearchIndexEvent("duplicate")
		return nil
	}

	source, ok := h.sourceFor(p.Kind)
	if !ok {
		h.logger.Error("Unknown content kind in search index payload, sending to DLQ",
			zap.String("kind", p.Kind),
			zap.Int64("id", p.ID),
		)
		h.sendToDLQ(raw, fmt.Sprintf("unknown content kind %q", p.Kind))
		return nil
	}

	item, err := source.GetPublished(ctx, p.ID)
	if err != nil {
		return h.retryOrPark(ctx, raw, eventKey, fmt.Errorf("failed to load %s %d: %w", p.Kind, p.ID, err))
	}
	if item == nil {
		// 内容已撤回或尚未发布，丢弃即可
		h.logger.Info("Content not published, dropping index event",
			zap.String("kind", p.Kind),
			zap.Int64("id", p.ID),
		)
		metrics.IncrementSearchIndexEvent("dropped")
		return nil
	}

	if err := h.index.UpsertDoc(ctx, p.Kind, *item); err != nil {
		return h.retryOrPark(ctx, raw, eventKey, err)
	}

	if err := h.retryCounter.Reset(ctx, util.FormatRetryKey(handlerName, eventKey)); err != nil {
		h.logger.Warn("Failed to reset retry counter", zap.Error(err))
	}
	metrics.IncrementSearchIndexEvent("indexed")
	h.logger.Info("Search index updated",
		zap.String("kind", p.Kind),
		zap.Int64("id", p.ID),
		zap.String("slug", item.Slug),
	)
	return nil
}

// retryOrPark requeues the message until maxRetries, then parks it.
func (h *SearchIndexUpsertHandler) retryOrPark(ctx context.Context, raw json.RawMessage, eventKey string, cause error) error {
	retryKey := util.FormatRetryKey(handlerName, eventKey)
	count, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		h.logger.Warn("Failed to track retry count, requeueing", zap.Error(err))
		return cause
	}

	// 重投前释放去重锁，否则重投的消息会被当成重复直接丢弃
	h.deduper.Release(ctx, handlerName, eventKey)

	if count >= maxRetries {
		h.logger.Error("Max retries exceeded, sending to DLQ",
			zap.Int64("attempts", count),
			zap.Error(cause),
		)
		h.sendToDLQ(raw, cause.Error())
		if err := h.retryCounter.Reset(ctx, retryKey); err != nil {
			h.logger.Warn("Failed to reset retry counter", zap.Error(err))
		}
		return nil
	}

	metrics.IncrementSearchIndexEvent("failed")
	return cause
}

func (h *SearchIndexUpsertHandler) sendToDLQ(raw json.RawMessage, reason string) {
	if err := h.dlq.PublishToDLQ(h.routingKey, "index-worker", raw, reason); err != nil {
		h.logger.Error("Failed to publish to DLQ", zap.Error(err))
	}
	metrics.IncrementSearchIndexEvent("dropped")
}

func (h *SearchIndexUpsertHandler) sourceFor(kind string) (ContentSource, bool) {
	switch kind {
	case string(model.KindPost):
		return h.posts, true
	case string(model.KindReview):
		return h.reviews, true
	default:
		return nil, false
	}
}
