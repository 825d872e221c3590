package publisher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/service/notify"
	"pressroom/pkg/metrics"
	"pressroom/pkg/util"
)

const (
	// BatchLimit caps due items per kind per pass to bound tick latency.
	BatchLimit = 25

	// DefaultCooldown between admitted runs.
	DefaultCooldown = 60 * time.Second

	schemaLagDedupeWindow = 180 * time.Minute
	failureDedupeWindow   = 20 * time.Minute
)

// Admission rejection reasons.
const (
	ReasonRunning  = "running"
	ReasonCooldown = "cooldown"
)

// ContentStore is the narrow "find due items / transition status"
// contract consumed per content kind.
type ContentStore interface {
	FindDue(ctx context.Context, limit int) ([]model.ScheduledItem, error)
	TransitionToPublished(ctx context.Context, id int64, publishedAt time.Time) (int64, error)
}

// AdminNotifier fans operational events out to operators.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, in notify.AdminNotifyInput) (notify.FanoutResult, error)
}

// BroadcastGuard delivers a one-to-many announcement at most once per
// entity.
type BroadcastGuard interface {
	OncePerEntity(ctx context.Context, action, entityType string, entityID int64, notifType, subject, body string) error
}

// SearchIndexer requests a fire-and-forget index update.
type SearchIndexer interface {
	Upsert(ctx context.Context, kind model.ContentKind, id int64)
}

// AuditSink records executed publish actions.
type AuditSink interface {
	Append(ctx context.Context, action, entityType string, entityID int64, summary string, details map[string]any) error
}

// Summary counts items published by one pass.
type Summary struct {
	PublishedPosts   int `json:"published_posts"`
	PublishedReviews int `json:"published_reviews"`
}

// RunResult is the outcome of one MaybeRun call.
type RunResult struct {
	Skipped bool     `json:"skipped"`
	Reason  string   `json:"reason,omitempty"`
	Summary *Summary `json:"summary,omitempty"`
}

// Scheduler discovers content whose scheduled publish time has arrived
// and transitions it to published state, triggering side effects once
// per item. A process-local single-flight flag plus cooldown serializes
// concurrent triggers; the deployment model runs one process, so no
// distributed lock is needed.
type Scheduler struct {
	posts       ContentStore
	reviews     ContentStore
	notifier    AdminNotifier
	broadcaster BroadcastGuard
	indexer     SearchIndexer
	audit       AuditSink
	logger      *zap.Logger
	now         func() time.Time

	mu        sync.Mutex
	running   bool
	lastRunAt time.Time
}

func NewScheduler(
	posts ContentStore,
	reviews ContentStore,
	notifier AdminNotifier,
	broadcaster BroadcastGuard,
	indexer SearchIndexer,
	audit AuditSink,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		posts:       posts,
		reviews:     reviews,
		notifier:    notifier,
		broadcaster: broadcaster,
		indexer:     indexer,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// MaybeRun admits at most one concurrent pass and honors the cooldown
// since the last admitted run. Rejected callers get a skip result, not
// an error. lastRunAt is recorded at admission so a long pass does not
// invite immediate re-entry once it finishes.
func (s *Scheduler) MaybeRun(ctx context.Context, cooldown time.Duration) (RunResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		metrics.IncrementSchedulerSkip(ReasonRunning)
		return RunResult{Skipped: true, Reason: ReasonRunning}, nil
	}
	now := s.now()
	if !s.lastRunAt.IsZero() && now.Sub(s.lastRunAt) < cooldown {
		s.mu.Unlock()
		metrics.IncrementSchedulerSkip(ReasonCooldown)
		return RunResult{Skipped: true, Reason: ReasonCooldown}, nil
	}
	s.running = true
	s.lastRunAt = now
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	summary, err := s.runOnce(ctx)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{Summary: &summary}, nil
}

// runOnce executes one full pass over both content kinds.
func (s *Scheduler) runOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.RecordSchedulerPass(time.Since(start))
	}()

	var summary Summary

	published, err := s.publishKind(ctx, model.KindPost, s.posts)
	summary.PublishedPosts = published
	if err != nil {
		return s.classifyFailure(ctx, summary, err)
	}

	published, err = s.publishKind(ctx, model.KindReview, s.reviews)
	summary.PublishedReviews = published
	if err != nil {
		return s.classifyFailure(ctx, summary, err)
	}

	if summary.PublishedPosts > 0 || summary.PublishedReviews > 0 {
		s.logger.Info("Scheduled publish pass completed",
			zap.Int("published_posts", summary.PublishedPosts),
			zap.Int("published_reviews", summary.PublishedReviews),
		)
	}
	return summary, nil
}

// publishKind processes due items of one kind sequentially, oldest
// scheduled time first.
func (s *Scheduler) publishKind(ctx context.Context, kind model.ContentKind, store ContentStore) (int, error) {
	items, err := store.FindDue(ctx, BatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to find due %ss: %w", kind, err)
	}

	published := 0
	for _, item := range items {
		// 发布时间取计划时间，缺失时兜底当前时间
		publishedAt := s.now()
		if item.ScheduledAt != nil {
			publishedAt = *item.ScheduledAt
		}

		affected, err := store.TransitionToPublished(ctx, item.ID, publishedAt)
		if err != nil {
			return published, fmt.Errorf("failed to publish %s %d: %w", kind, item.ID, err)
		}
		if affected == 0 {
			// Another pass already handled this item.
			continue
		}

		published++
		metrics.IncrementScheduledPublish(string(kind))
		s.logger.Info("Published scheduled content",
			zap.String("kind", string(kind)),
			zap.Int64("id", item.ID),
			zap.String("slug", item.Slug),
		)

		// Side effects are independent: one failing must neither abort
		// the loop nor roll back the publish.
		s.runSideEffects(ctx, kind, item, publishedAt)
	}

	return published, nil
}

func (s *Scheduler) runSideEffects(ctx context.Context, kind model.ContentKind, item model.ScheduledItem, publishedAt time.Time) {
	s.indexer.Upsert(ctx, kind, item.ID)

	action, notifType, refs := kindBindings(kind, item.ID)

	subject := fmt.Sprintf("New %s published: %s", kind, item.Title)
	body := fmt.Sprintf("<p>%s is now live.</p>", item.Title)
	if err := s.broadcaster.OncePerEntity(ctx, action, string(kind), item.ID, notifType, subject, body); err != nil {
		s.logger.Warn("Broadcast side effect failed",
			zap.String("kind", string(kind)),
			zap.Int64("id", item.ID),
			zap.Error(err),
		)
	}

	if _, err := s.notifier.NotifyAdmins(ctx, notify.AdminNotifyInput{
		Type:           notifType,
		Title:          fmt.Sprintf("Scheduled %s published", kind),
		Message:        fmt.Sprintf("%q went live at %s.", item.Title, publishedAt.Format(time.RFC3339)),
		Href:           fmt.Sprintf("/%ss/%s", kind, item.Slug),
		Severity:       "info",
		Refs:           refs,
		DedupeByEntity: true,
	}); err != nil {
		s.logger.Warn("Admin notification side effect failed",
			zap.String("kind", string(kind)),
			zap.Int64("id", item.ID),
			zap.Error(err),
		)
	}

	auditAction := model.ActionPostScheduledPublish
	if kind == model.KindReview {
		auditAction = model.ActionReviewScheduledPublish
	}
	details := map[string]any{
		"slug":         item.Slug,
		"published_at": publishedAt.Format(time.RFC3339),
	}
	if err := s.audit.Append(ctx, auditAction, string(kind), item.ID,
		fmt.Sprintf("Scheduled publish executed for %q", item.Title), details); err != nil {
		s.logger.Warn("Audit append side effect failed",
			zap.String("kind", string(kind)),
			zap.Int64("id", item.ID),
			zap.Error(err),
		)
	}
}

// classifyFailure distinguishes schema lag (expected mid-deploy,
// self-healing, long alert window, swallowed) from unexpected failures
// (short alert window, propagated).
func (s *Scheduler) classifyFailure(ctx context.Context, summary Summary, err error) (Summary, error) {
	if util.IsSchemaLagError(err) {
		s.logger.Warn("Content store schema is behind, skipping pass", zap.Error(err))
		if _, nerr := s.notifier.NotifyAdmins(ctx, notify.AdminNotifyInput{
			Type:         model.TypeSchemaLag,
			Title:        "Scheduler paused: schema migration pending",
			Message:      fmt.Sprintf("Scheduled publishing is paused until the deploy completes: %s", err.Error()),
			Severity:     "warning",
			DedupeWindow: schemaLagDedupeWindow,
		}); nerr != nil {
			s.logger.Error("Failed to notify admins about schema lag", zap.Error(nerr))
		}
		return Summary{}, nil
	}

	s.logger.Error("Scheduler pass failed", zap.Error(err))
	if _, nerr := s.notifier.NotifyAdmins(ctx, notify.AdminNotifyInput{
		Type:         model.TypeSchedulerFailed,
		Title:        "Scheduled publishing failed",
		Message:      err.Error(),
		Severity:     "error",
		DedupeWindow: failureDedupeWindow,
	}); nerr != nil {
		s.logger.Error("Failed to notify admins about scheduler failure", zap.Error(nerr))
	}
	return summary, err
}

func kindBindings(kind model.ContentKind, id int64) (action, notifType string, refs model.EntityRefs) {
	if kind == model.KindReview {
		return model.ActionReviewBroadcasted, model.TypeScheduledReviewPublished, model.EntityRefs{ReviewID: &id}
	}
	return model.ActionPostBroadcasted, model.TypeScheduledPostPublished, model.EntityRefs{PostID: &id}
}
