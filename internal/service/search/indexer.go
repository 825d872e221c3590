package search

import (
	"context"
	"time"

	"go.uber.org/zap"

	mqcontracts "pressroom/contracts/mq"
	"pressroom/internal/model"
	"pressroom/pkg/logger"
)

// RoutingKeyUpsert is the routing key the index worker consumes.
const RoutingKeyUpsert = "search.index.upsert"

// EventPublisher publishes index events to the message broker.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Indexer requests search-index updates as fire-and-forget events. Index
// lag is recoverable on the next relevant write, so failures are logged
// and never propagated.
type Indexer struct {
	publisher EventPublisher
	log       *zap.Logger
}

func NewIndexer(publisher EventPublisher, log *zap.Logger) *Indexer {
	return &Indexer{
		publisher: publisher,
		log:       log,
	}
}

// Upsert publishes a search.index.upsert event for one content item.
func (i *Indexer) Upsert(ctx context.Context, kind model.ContentKind, id int64) {
	payload := mqcontracts.SearchIndexUpsertPayload{
		Kind:       string(kind),
		ID:         id,
		OccurredAt: time.Now(),
	}
	if err := i.publisher.Publish(RoutingKeyUpsert, payload); err != nil {
		logger.WithTrace(ctx, i.log).Warn("Failed to publish search index event",
			zap.String("kind", string(kind)),
			zap.Int64("id", id),
			zap.Error(err),
		)
	}
}
