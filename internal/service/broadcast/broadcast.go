package broadcast

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/service/mailer"
	"pressroom/pkg/metrics"
)

const (
	// DefaultMaxRecipients bounds worst-case fan-out size.
	DefaultMaxRecipients = 2000

	// DefaultBatchSize bounds concurrent outbound mail connections.
	DefaultBatchSize = 20
)

// AuditSink is the append-only store holding broadcast markers.
type AuditSink interface {
	ExistsFor(ctx context.Context, action, entityType string, entityID int64) (bool, error)
	Append(ctx context.Context, action, entityType string, entityID int64, summary string, details map[string]any) error
}

// SubscriberStore resolves the broadcast recipient list.
type SubscriberStore interface {
	ListConfirmedEmails(ctx context.Context, limit int) ([]string, error)
}

// RuntimeResolver yields the active mail runtime, nil when unconfigured.
type RuntimeResolver interface {
	RuntimeConfig(ctx context.Context, force bool) model.MailRuntime
}

// EmailSender performs one email dispatch attempt.
type EmailSender interface {
	Send(ctx context.Context, runtime model.MailRuntime, msg model.EmailMessage) mailer.Outcome
}

// Tally aggregates delivery outcomes across all batches of a broadcast.
type Tally struct {
	Sent    int
	Failed  int
	Skipped int
}

// Broadcaster delivers one-to-many announcements at most once per
// entity, using the audit log as the idempotency marker.
type Broadcaster struct {
	audit         AuditSink
	subscribers   SubscriberStore
	resolver      RuntimeResolver
	sender        EmailSender
	logger        *zap.Logger
	maxRecipients int
	batchSize     int
}

func NewBroadcaster(
	audit AuditSink,
	subscribers SubscriberStore,
	resolver RuntimeResolver,
	sender EmailSender,
	logger *zap.Logger,
) *Broadcaster {
	return &Broadcaster{
		audit:         audit,
		subscribers:   subscribers,
		resolver:      resolver,
		sender:        sender,
		logger:        logger,
		maxRecipients: DefaultMaxRecipients,
		batchSize:     DefaultBatchSize,
	}
}

// WithLimits overrides the recipient cap and batch size.
func (b *Broadcaster) WithLimits(maxRecipients, batchSize int) *Broadcaster {
	if maxRecipients > 0 {
		b.maxRecipients = maxRecipients
	}
	if batchSize > 0 {
		b.batchSize = batchSize
	}
	return b
}

// OncePerEntity delivers subject/body to every confirmed subscriber,
// unless a broadcast marker for (action, entityType, entityID) already
// exists. Exactly one marker is appended afterwards regardless of
// per-recipient failures; partial failures are visible in the tally and
// deliberately not retried.
func (b *Broadcaster) OncePerEntity(ctx context.Context, action, entityType string, entityID int64, notifType, subject, body string) error {
	exists, err := b.audit.ExistsFor(ctx, action, entityType, entityID)
	if err != nil {
		return fmt.Errorf("failed to check broadcast marker: %w", err)
	}
	if exists {
		b.logger.Debug("Broadcast already delivered, skipping",
			zap.String("action", action),
			zap.Int64("entity_id", entityID),
		)
		return nil
	}

	recipients, err := b.subscribers.ListConfirmedEmails(ctx, b.maxRecipients)
	if err != nil {
		return fmt.Errorf("failed to resolve broadcast recipients: %w", err)
	}

	runtime := b.resolver.RuntimeConfig(ctx, false)

	var (
		mu    sync.Mutex
		tally Tally
	)

	// 批内并发，批间串行，限制对邮件服务的瞬时连接数
	for start := 0; start < len(recipients); start += b.batchSize {
		end := start + b.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, email := range recipients[start:end] {
			wg.Add(1)
			go func(to string) {
				defer wg.Done()
				outcome := b.sender.Send(ctx, runtime, model.EmailMessage{
					To:      to,
					Subject: subject,
					HTML:    body,
					Type:    notifType,
				})

				mu.Lock()
				switch outcome.Status {
				case model.NotificationSent:
					tally.Sent++
				case model.NotificationSkipped:
					tally.Skipped++
				default:
					tally.Failed++
				}
				mu.Unlock()

				metrics.IncrementBroadcastRecipient(action, string(outcome.Status))
			}(email)
		}
		wg.Wait()
	}

	summary := fmt.Sprintf("Broadcast delivered: %d sent, %d failed, %d skipped", tally.Sent, tally.Failed, tally.Skipped)
	details := map[string]any{
		"recipients": len(recipients),
		"sent":       tally.Sent,
		"failed":     tally.Failed,
		"skipped":    tally.Skipped,
	}
	if err := b.audit.Append(ctx, action, entityType, entityID, summary, details); err != nil {
		return fmt.Errorf("failed to append broadcast marker: %w", err)
	}

	b.logger.Info("Broadcast completed",
		zap.String("action", action),
		zap.Int64("entity_id", entityID),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", tally.Sent),
		zap.Int("failed", tally.Failed),
		zap.Int("skipped", tally.Skipped),
	)
	return nil
}
