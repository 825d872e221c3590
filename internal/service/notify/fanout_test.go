package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pressroom/internal/model"
	"pressroom/internal/repository"
	"pressroom/internal/service/mailer"
)

type fakeRecords struct {
	mu        sync.Mutex
	nextID    int64
	inserted  []*model.Notification
	duplicate map[string]int64 // subject -> existing id
	filters   []repository.DuplicateFilter
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{duplicate: make(map[string]int64)}
}

func (f *fakeRecords) InsertPending(ctx context.Context, n *model.Notification) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.inserted = append(f.inserted, n)
	return f.nextID, nil
}

func (f *fakeRecords) FindDuplicate(ctx context.Context, filter repository.DuplicateFilter) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if id, ok := f.duplicate[filter.Subject]; ok {
		return id, true, nil
	}
	return 0, false, nil
}

func (f *fakeRecords) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	return nil
}

type fakeUsers struct {
	users []model.User
}

func (f *fakeUsers) ListByRoles(ctx context.Context, roles []string) ([]model.User, error) {
	return f.users, nil
}

type fakeResolver struct {
	runtime model.MailRuntime
}

func (f *fakeResolver) RuntimeConfig(ctx context.Context, force bool) model.MailRuntime {
	return f.runtime
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []model.EmailMessage
	calls int
}

func (f *fakeSender) Send(ctx context.Context, runtime model.MailRuntime, msg model.EmailMessage) mailer.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, msg)
	if runtime == nil {
		return mailer.Outcome{Status: model.NotificationSkipped, Reason: mailer.ReasonNotConfigured}
	}
	return mailer.Outcome{Status: model.NotificationSent}
}

func newFanoutForTest(records *fakeRecords, users *fakeUsers, sender *fakeSender, runtime model.MailRuntime) *Fanout {
	return NewFanout(records, users, &fakeResolver{runtime: runtime}, sender, nil, zap.NewNop())
}

func TestCreateInAppWithoutDedupAlwaysCreates(t *testing.T) {
	records := newFakeRecords()
	f := newFanoutForTest(records, &fakeUsers{}, &fakeSender{}, nil)
	userID := int64(7)

	created, id, err := f.CreateInApp(context.Background(), InAppInput{
		UserID: &userID, Type: "PING", Title: "t", Message: "m",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(1), id)

	// 未请求去重时不会做查重
	assert.Empty(t, records.filters)

	created, id, err = f.CreateInApp(context.Background(), InAppInput{
		UserID: &userID, Type: "PING", Title: "t", Message: "m",
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(2), id)
}

func TestCreateInAppDedupWindowSuppresses(t *testing.T) {
	records := newFakeRecords()
	records.duplicate["scheduler down"] = 42
	f := newFanoutForTest(records, &fakeUsers{}, &fakeSender{}, nil)
	userID := int64(7)

	created, id, err := f.CreateInApp(context.Background(), InAppInput{
		UserID:       &userID,
		Type:         model.TypeSchedulerFailed,
		Title:        "scheduler down",
		Message:      "boom",
		DedupeWindow: time.Hour,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, int64(42), id)
	assert.Empty(t, records.inserted)

	require.Len(t, records.filters, 1)
	require.NotNil(t, records.filters[0].Since)
}

func TestCreateInAppDedupByEntity(t *testing.T) {
	records := newFakeRecords()
	f := newFanoutForTest(records, &fakeUsers{}, &fakeSender{}, nil)
	userID := int64(7)
	postID := int64(99)

	created, _, err := f.CreateInApp(context.Background(), InAppInput{
		UserID:         &userID,
		Type:           model.TypeScheduledPostPublished,
		Title:          "published",
		Refs:           model.EntityRefs{PostID: &postID},
		DedupeByEntity: true,
	})
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, records.filters, 1)
	require.NotNil(t, records.filters[0].Refs.PostID)
	assert.Equal(t, postID, *records.filters[0].Refs.PostID)
	assert.Nil(t, records.filters[0].Since)
}

func TestCreateInAppEntityDedupNeedsRefs(t *testing.T) {
	records := newFakeRecords()
	f := newFanoutForTest(records, &fakeUsers{}, &fakeSender{}, nil)
	userID := int64(7)

	created, _, err := f.CreateInApp(context.Background(), InAppInput{
		UserID:         &userID,
		Type:           "PING",
		Title:          "t",
		DedupeByEntity: true, // refs 为空，等同于未请求去重
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, records.filters)
}

func TestNotifyAdminsSendsEmailPerNewRecord(t *testing.T) {
	records := newFakeRecords()
	users := &fakeUsers{users: []model.User{
		{ID: 1, Email: "a@example.com", Role: model.RoleAdmin},
		{ID: 2, Email: "b@example.com", Role: model.RoleEditor},
	}}
	sender := &fakeSender{}
	f := newFanoutForTest(records, users, sender, &model.APIRuntime{})

	result, err := f.NotifyAdmins(context.Background(), AdminNotifyInput{
		Type: "PING", Title: "t", Message: "m",
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Recipients)
	assert.Equal(t, 2, result.InAppCreated)
	assert.Equal(t, 2, result.Emailed)
	assert.Equal(t, 2, sender.calls)
}

func TestNotifyAdminsDedupHitSuppressesEmail(t *testing.T) {
	records := newFakeRecords()
	records.duplicate["known event"] = 5
	users := &fakeUsers{users: []model.User{{ID: 1, Email: "a@example.com"}}}
	sender := &fakeSender{}
	f := newFanoutForTest(records, users, sender, &model.APIRuntime{})

	result, err := f.NotifyAdmins(context.Background(), AdminNotifyInput{
		Type:         "PING",
		Title:        "known event",
		Message:      "m",
		DedupeWindow: time.Hour,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Recipients)
	assert.Equal(t, 0, result.InAppCreated)
	assert.Equal(t, 0, result.Emailed)
	// 站内信命中去重时邮件也不再发送
	assert.Equal(t, 0, sender.calls)
}

func TestNotifyAdminsExplicitNoEmail(t *testing.T) {
	records := newFakeRecords()
	users := &fakeUsers{users: []model.User{{ID: 1, Email: "a@example.com"}}}
	sender := &fakeSender{}
	f := newFanoutForTest(records, users, sender, &model.APIRuntime{})

	noEmail := false
	result, err := f.NotifyAdmins(context.Background(), AdminNotifyInput{
		Type: "PING", Title: "t", Message: "m", SendEmail: &noEmail,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.InAppCreated)
	assert.Equal(t, 0, result.Emailed)
	assert.Equal(t, 0, sender.calls)
}

func TestNotifyAdminsUnconfiguredMailCountsNoSends(t *testing.T) {
	records := newFakeRecords()
	users := &fakeUsers{users: []model.User{{ID: 1, Email: "a@example.com"}}}
	sender := &fakeSender{}
	f := newFanoutForTest(records, users, sender, nil)

	result, err := f.NotifyAdmins(context.Background(), AdminNotifyInput{
		Type: "PING", Title: "t", Message: "m",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.InAppCreated)
	assert.Equal(t, 0, result.Emailed)
	// dispatcher 仍被调用一次，留下 SKIPPED 记录
	assert.Equal(t, 1, sender.calls)
}
