package mailer

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"pressroom/internal/model"
	"pressroom/pkg/circuitbreaker"
	"pressroom/pkg/metrics"
)

const (
	transportTimeout = 10 * time.Second
	maxReasonLength  = 256

	// ReasonNotConfigured marks the expected skip path when outbound
	// mail is intentionally disabled.
	ReasonNotConfigured = "provider not configured"
)

// RecordStore persists delivery records around a transport attempt.
type RecordStore interface {
	InsertPending(ctx context.Context, n *model.Notification) (int64, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	MarkSkipped(ctx context.Context, id int64, reason string) error
}

// Outcome is the tri-state result of one dispatch attempt.
type Outcome struct {
	Status   model.NotificationStatus
	Reason   string
	RecordID int64
}

// Dispatcher performs exactly one transport call per message and records
// the delivery outcome. It never retries and never returns an error to
// the caller: a failed send must not fail the operation that caused it.
type Dispatcher struct {
	records RecordStore
	client  *resty.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewDispatcher(records RecordStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		records: records,
		client:  resty.New().SetTimeout(transportTimeout),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig()),
		logger:  logger,
	}
}

type apiSendRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Send persists a PENDING record, attempts one transport call, and
// finalizes the record with the outcome.
func (d *Dispatcher) Send(ctx context.Context, runtime model.MailRuntime, msg model.EmailMessage) Outcome {
	record := &model.Notification{
		Type:     msg.Type,
		Channel:  model.ChannelEmail,
		UserID:   msg.UserID,
		MemberID: msg.MemberID,
		Email:    msg.To,
		Subject:  msg.Subject,
		Payload:  model.Payload{Message: msg.Subject},
		Refs:     msg.Refs,
	}

	recordID, err := d.records.InsertPending(ctx, record)
	if err != nil {
		// 记录写入失败也要继续尝试投递
		d.logger.Error("Failed to persist delivery record", zap.Error(err))
	}

	if runtime == nil {
		d.finalize(ctx, recordID, model.NotificationSkipped, ReasonNotConfigured)
		metrics.IncrementEmailSend("none", "skipped")
		return Outcome{Status: model.NotificationSkipped, Reason: ReasonNotConfigured, RecordID: recordID}
	}

	// 熔断保护：提供商连续失败后短路，避免拖垮调用方
	sendErr := d.breaker.Execute(func() error {
		switch rt := runtime.(type) {
		case *model.APIRuntime:
			return d.sendAPI(ctx, rt, msg)
		case *model.SMTPRuntime:
			return d.sendSMTP(rt, msg)
		default:
			return fmt.Errorf("unsupported mail transport: %s", runtime.Transport())
		}
	})

	provider := string(runtime.Transport())
	if sendErr != nil {
		reason := truncate(sendErr.Error(), maxReasonLength)
		d.logger.Warn("Email dispatch failed",
			zap.String("provider", provider),
			zap.String("to", msg.To),
			zap.String("reason", reason),
		)
		d.finalize(ctx, recordID, model.NotificationFailed, reason)
		metrics.IncrementEmailSend(provider, "failed")
		return Outcome{Status: model.NotificationFailed, Reason: reason, RecordID: recordID}
	}

	if recordID != 0 {
		if err := d.records.MarkSent(ctx, recordID, time.Now()); err != nil {
			d.logger.Error("Failed to mark delivery record sent", zap.Error(err))
		}
	}
	metrics.IncrementEmailSend(provider, "sent")
	return Outcome{Status: model.NotificationSent, RecordID: recordID}
}

func (d *Dispatcher) sendAPI(ctx context.Context, rt *model.APIRuntime, msg model.EmailMessage) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetAuthToken(rt.APIKey).
		SetHeader("Content-Type", "application/json").
		SetBody(apiSendRequest{
			From:    rt.FromEmail,
			To:      msg.To,
			ReplyTo: rt.ReplyTo,
			Subject: msg.Subject,
			HTML:    msg.HTML,
		}).
		Post(rt.Endpoint)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode(), truncate(resp.String(), maxReasonLength))
	}
	return nil
}

func (d *Dispatcher) sendSMTP(rt *model.SMTPRuntime, msg model.EmailMessage) error {
	dialer := gomail.NewDialer(rt.Host, rt.Port, rt.User, rt.Pass)
	dialer.TLSConfig = &tls.Config{ServerName: rt.Host}

	m := gomail.NewMessage()
	m.SetHeader("From", rt.FromEmail)
	m.SetHeader("To", msg.To)
	if rt.ReplyTo != "" {
		m.SetHeader("Reply-To", rt.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)

	return dialer.DialAndSend(m)
}

func (d *Dispatcher) finalize(ctx context.Context, recordID int64, status model.NotificationStatus, reason string) {
	if recordID == 0 {
		return
	}
	var err error
	switch status {
	case model.NotificationFailed:
		err = d.records.MarkFailed(ctx, recordID, reason)
	case model.NotificationSkipped:
		err = d.records.MarkSkipped(ctx, recordID, reason)
	}
	if err != nil {
		d.logger.Error("Failed to finalize delivery record",
			zap.Int64("record_id", recordID),
			zap.Error(err),
		)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
