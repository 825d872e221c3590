package notify

import (
	"context"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/repository"
	"pressroom/internal/service/mailer"
	"pressroom/pkg/metrics"
)

// RecordStore is the slice of the notification repository the fan-out
// engine needs.
type RecordStore interface {
	InsertPending(ctx context.Context, n *model.Notification) (int64, error)
	FindDuplicate(ctx context.Context, f repository.DuplicateFilter) (int64, bool, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
}

// UserStore resolves elevated-role recipients.
type UserStore interface {
	ListByRoles(ctx context.Context, roles []string) ([]model.User, error)
}

// RuntimeResolver yields the active mail runtime, nil when unconfigured.
type RuntimeResolver interface {
	RuntimeConfig(ctx context.Context, force bool) model.MailRuntime
}

// EmailSender performs one email dispatch attempt.
type EmailSender interface {
	Send(ctx context.Context, runtime model.MailRuntime, msg model.EmailMessage) mailer.Outcome
}

// Fanout creates deduplicated in-app notifications for one or many
// recipients and optionally mirrors them to email.
type Fanout struct {
	records  RecordStore
	users    UserStore
	resolver RuntimeResolver
	sender   EmailSender
	unread   *UnreadCache
	logger   *zap.Logger
}

func NewFanout(
	records RecordStore,
	users UserStore,
	resolver RuntimeResolver,
	sender EmailSender,
	unread *UnreadCache,
	logger *zap.Logger,
) *Fanout {
	return &Fanout{
		records:  records,
		users:    users,
		resolver: resolver,
		sender:   sender,
		unread:   unread,
		logger:   logger,
	}
}

// InAppInput describes one in-app notification. Dedup only runs when a
// window or entity dedup is requested; callers that request neither
// always create a new record.
type InAppInput struct {
	UserID   *int64
	MemberID *int64
	Type     string
	Title    string
	Message  string
	Href     string
	Severity string
	Extra    map[string]string
	Refs     model.EntityRefs

	DedupeWindow   time.Duration
	DedupeByEntity bool
}

// CreateInApp writes one in-app notification unless an equivalent record
// already exists under the requested dedup strategy. Returns whether a
// new record was created and the (new or existing) record id.
func (f *Fanout) CreateInApp(ctx context.Context, in InAppInput) (bool, int64, error) {
	dedupeByEntity := in.DedupeByEntity && !in.Refs.Empty()

	if in.DedupeWindow > 0 || dedupeByEntity {
		filter := repository.DuplicateFilter{
			UserID:   in.UserID,
			MemberID: in.MemberID,
			Channel:  model.ChannelInApp,
			Type:     in.Type,
			Subject:  in.Title,
		}
		if in.DedupeWindow > 0 {
			since := time.Now().Add(-in.DedupeWindow)
			filter.Since = &since
		}
		if dedupeByEntity {
			filter.Refs = in.Refs
		}

		existingID, found, err := f.records.FindDuplicate(ctx, filter)
		if err != nil {
			return false, 0, fmt.Errorf("failed to check duplicate notification: %w", err)
		}
		if found {
			metrics.IncrementNotification(in.Type, "deduped")
			return false, existingID, nil
		}
	}

	record := &model.Notification{
		Type:     in.Type,
		Channel:  model.ChannelInApp,
		UserID:   in.UserID,
		MemberID: in.MemberID,
		Subject:  in.Title,
		Payload: model.Payload{
			Message:  in.Message,
			Href:     in.Href,
			Severity: in.Severity,
			Extra:    in.Extra,
		},
		Refs: in.Refs,
	}

	id, err := f.records.InsertPending(ctx, record)
	if err != nil {
		return false, 0, fmt.Errorf("failed to insert notification: %w", err)
	}

	// 站内信落库即送达
	if err := f.records.MarkSent(ctx, id, time.Now()); err != nil {
		f.logger.Warn("Failed to mark in-app notification sent",
			zap.Int64("id", id),
			zap.Error(err),
		)
	}

	if in.UserID != nil {
		f.unread.Invalidate(ctx, *in.UserID)
	}
	metrics.IncrementNotification(in.Type, "created")
	return true, id, nil
}

// AdminNotifyInput describes a one-to-many operator notification.
type AdminNotifyInput struct {
	Type     string
	Title    string
	Message  string
	Href     string
	Severity string
	Extra    map[string]string
	Refs     model.EntityRefs

	// Roles defaults to admin and editor when empty.
	Roles []string

	// SendEmail defaults to true when nil.
	SendEmail *bool

	DedupeWindow   time.Duration
	DedupeByEntity bool
}

// FanoutResult aggregates per-recipient outcomes of one admin fan-out.
type FanoutResult struct {
	Recipients   int
	InAppCreated int
	Emailed      int
}

// NotifyAdmins fans one event out to every elevated-role operator. Each
// recipient is handled independently; one failure never affects another.
// Email is only attempted when the in-app record was newly created, so a
// deduplicated event never re-sends email either.
func (f *Fanout) NotifyAdmins(ctx context.Context, in AdminNotifyInput) (FanoutResult, error) {
	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{model.RoleAdmin, model.RoleEditor}
	}

	admins, err := f.users.ListByRoles(ctx, roles)
	if err != nil {
		return FanoutResult{}, fmt.Errorf("failed to resolve admin recipients: %w", err)
	}

	sendEmail := in.SendEmail == nil || *in.SendEmail
	result := FanoutResult{Recipients: len(admins)}

	for _, admin := range admins {
		userID := admin.ID
		created, _, err := f.CreateInApp(ctx, InAppInput{
			UserID:         &userID,
			Type:           in.Type,
			Title:          in.Title,
			Message:        in.Message,
			Href:           in.Href,
			Severity:       in.Severity,
			Extra:          in.Extra,
			Refs:           in.Refs,
			DedupeWindow:   in.DedupeWindow,
			DedupeByEntity: in.DedupeByEntity,
		})
		if err != nil {
			f.logger.Error("Failed to create admin notification",
				zap.Int64("user_id", userID),
				zap.String("type", in.Type),
				zap.Error(err),
			)
			continue
		}
		if created {
			result.InAppCreated++
		}

		if !created || !sendEmail || admin.Email == "" {
			continue
		}

		runtime := f.resolver.RuntimeConfig(ctx, false)
		outcome := f.sender.Send(ctx, runtime, model.EmailMessage{
			To:      admin.Email,
			Subject: in.Title,
			HTML:    renderEmailBody(in.Message, in.Href),
			Type:    in.Type,
			UserID:  &userID,
			Refs:    in.Refs,
		})
		if outcome.Status == model.NotificationSent {
			result.Emailed++
		}
	}

	return result, nil
}

func renderEmailBody(message, href string) string {
	body := fmt.Sprintf("<p>%s</p>", html.EscapeString(message))
	if href != "" {
		body += fmt.Sprintf(`<p><a href="%s">View details</a></p>`, href)
	}
	return body
}
