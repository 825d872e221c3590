package broadcast

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/service/mailer"
)

type fakeAudit struct {
	mu       sync.Mutex
	markers  map[string]bool
	appended []map[string]any
}

func newFakeAudit() *fakeAudit {
	return &fakeAudit{markers: make(map[string]bool)}
}

func markerKey(action, entityType string, entityID int64) string {
	return fmt.Sprintf("%s|%s|%d", action, entityType, entityID)
}

func (f *fakeAudit) ExistsFor(ctx context.Context, action, entityType string, entityID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markers[markerKey(action, entityType, entityID)], nil
}

func (f *fakeAudit) Append(ctx context.Context, action, entityType string, entityID int64, summary string, details map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markers[markerKey(action, entityType, entityID)] = true
	f.appended = append(f.appended, details)
	return nil
}

type fakeSubscribers struct {
	emails []string
}

func (f *fakeSubscribers) ListConfirmedEmails(ctx context.Context, limit int) ([]string, error) {
	if len(f.emails) > limit {
		return f.emails[:limit], nil
	}
	return f.emails, nil
}

type fakeResolver struct {
	runtime model.MailRuntime
}

func (f *fakeResolver) RuntimeConfig(ctx context.Context, force bool) model.MailRuntime {
	return f.runtime
}

type countingSender struct {
	mu       sync.Mutex
	calls    int
	inFlight int
	peak     int
	failFor  map[string]bool
}

func (s *countingSender) Send(ctx context.Context, runtime model.MailRuntime, msg model.EmailMessage) mailer.Outcome {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	fail := s.failFor[msg.To]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if runtime == nil {
		return mailer.Outcome{Status: model.NotificationSkipped}
	}
	if fail {
		return mailer.Outcome{Status: model.NotificationFailed, Reason: "boom"}
	}
	return mailer.Outcome{Status: model.NotificationSent}
}

func emails(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("reader%d@example.com", i)
	}
	return out
}

func TestOncePerEntityDeliversThenAppendsMarker(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(3)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop())

	err := b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "subject", "<p>body</p>")
	require.NoError(t, err)

	assert.Equal(t, 3, sender.calls)
	require.Len(t, audit.appended, 1)
	assert.Equal(t, 3, audit.appended[0]["sent"])
	assert.Equal(t, 0, audit.appended[0]["failed"])
}

func TestOncePerEntitySecondCallIsNoOp(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(3)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop())

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))
	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))

	assert.Equal(t, 3, sender.calls)
	assert.Len(t, audit.appended, 1)
}

func TestOncePerEntityDistinctEntitiesBothDeliver(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(2)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop())

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))
	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 2, "NEW_POST", "s", "b"))

	assert.Equal(t, 4, sender.calls)
	assert.Len(t, audit.appended, 2)
}

func TestOncePerEntityBoundsConcurrency(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(50)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop()).
		WithLimits(2000, 5)

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))

	assert.Equal(t, 50, sender.calls)
	assert.LessOrEqual(t, sender.peak, 5)
}

func TestOncePerEntityRecipientCap(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(30)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop()).
		WithLimits(10, 5)

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))

	assert.Equal(t, 10, sender.calls)
}

func TestOncePerEntityPartialFailureStillAppendsMarker(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{failFor: map[string]bool{"reader1@example.com": true}}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(3)}, &fakeResolver{runtime: &model.APIRuntime{}}, sender, zap.NewNop())

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))

	require.Len(t, audit.appended, 1)
	assert.Equal(t, 2, audit.appended[0]["sent"])
	assert.Equal(t, 1, audit.appended[0]["failed"])

	// 部分失败不重发：第二次调用直接命中标记
	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))
	assert.Equal(t, 3, sender.calls)
}

func TestOncePerEntityUnconfiguredMailTalliesSkips(t *testing.T) {
	audit := newFakeAudit()
	sender := &countingSender{}
	b := NewBroadcaster(audit, &fakeSubscribers{emails: emails(2)}, &fakeResolver{}, sender, zap.NewNop())

	require.NoError(t, b.OncePerEntity(context.Background(), "newsletter.post.broadcasted", "post", 1, "NEW_POST", "s", "b"))

	require.Len(t, audit.appended, 1)
	assert.Equal(t, 2, audit.appended[0]["skipped"])
}
