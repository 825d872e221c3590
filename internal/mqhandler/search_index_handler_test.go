package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "pressroom/contracts/mq"
	"pressroom/internal/model"
)

type fakeSource struct {
	items map[int64]*model.ScheduledItem
	err   error
}

func (f *fakeSource) GetPublished(ctx context.Context, id int64) (*model.ScheduledItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.items[id], nil
}

type fakeIndex struct {
	upserts []string
	err     error
}

func (f *fakeIndex) UpsertDoc(ctx context.Context, kind string, item model.ScheduledItem) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, fmt.Sprintf("%s:%d", kind, item.ID))
	return nil
}

type fakeDLQ struct {
	parked []string
}

func (f *fakeDLQ) PublishToDLQ(routingKey, failedBy string, payload []byte, originalError string) error {
	f.parked = append(f.parked, originalError)
	return nil
}

type fakeDeduper struct {
	seen map[string]bool
}

func (f *fakeDeduper) AcquireOnce(ctx context.Context, scope, key string) bool {
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	full := scope + ":" + key
	if f.seen[full] {
		return false
	}
	f.seen[full] = true
	return true
}

func (f *fakeDeduper) Release(ctx context.Context, scope, key string) {
	delete(f.seen, scope+":"+key)
}

type fakeRetryCounter struct {
	counts map[string]int64
}

func (f *fakeRetryCounter) IncrementAndGet(ctx context.Context, key string) (int64, error) {
	if f.counts == nil {
		f.counts = make(map[string]int64)
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRetryCounter) Reset(ctx context.Context, key string) error {
	delete(f.counts, key)
	return nil
}

func payload(t *testing.T, kind string, id int64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.SearchIndexUpsertPayload{
		Kind:       kind,
		ID:         id,
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func newHandler(posts, reviews *fakeSource, index *fakeIndex, dlq *fakeDLQ) (*SearchIndexUpsertHandler, *fakeDeduper, *fakeRetryCounter) {
	deduper := &fakeDeduper{}
	retries := &fakeRetryCounter{}
	h := NewSearchIndexUpsertHandler(posts, reviews, index, dlq, deduper, retries, "search.index.upsert", zap.NewNop())
	return h, deduper, retries
}

func TestHandleIndexesPublishedPost(t *testing.T) {
	posts := &fakeSource{items: map[int64]*model.ScheduledItem{
		5: {ID: 5, Title: "Hello", Slug: "hello", Status: model.StatusPublished},
	}}
	index := &fakeIndex{}
	h, _, _ := newHandler(posts, &fakeSource{}, index, &fakeDLQ{})

	err := h.Handle(context.Background(), payload(t, "post", 5))
	require.NoError(t, err)
	assert.Equal(t, []string{"post:5"}, index.upserts)
}

func TestHandleRoutesReviewsToReviewSource(t *testing.T) {
	reviews := &fakeSource{items: map[int64]*model.ScheduledItem{
		9: {ID: 9, Title: "Great", Slug: "great", Status: model.StatusPublished},
	}}
	index := &fakeIndex{}
	h, _, _ := newHandler(&fakeSource{}, reviews, index, &fakeDLQ{})

	err := h.Handle(context.Background(), payload(t, "review", 9))
	require.NoError(t, err)
	assert.Equal(t, []string{"review:9"}, index.upserts)
}

func TestHandleDropsUnpublishedContent(t *testing.T) {
	index := &fakeIndex{}
	dlq := &fakeDLQ{}
	h, _, _ := newHandler(&fakeSource{}, &fakeSource{}, index, dlq)

	err := h.Handle(context.Background(), payload(t, "post", 404))
	require.NoError(t, err)
	assert.Empty(t, index.upserts)
	assert.Empty(t, dlq.parked)
}

func TestHandleSkipsDuplicateDelivery(t *testing.T) {
	posts := &fakeSource{items: map[int64]*model.ScheduledItem{
		5: {ID: 5, Title: "Hello", Slug: "hello", Status: model.StatusPublished},
	}}
	index := &fakeIndex{}
	h, _, _ := newHandler(posts, &fakeSource{}, index, &fakeDLQ{})

	raw := payload(t, "post", 5)
	require.NoError(t, h.Handle(context.Background(), raw))
	require.NoError(t, h.Handle(context.Background(), raw))
	assert.Len(t, index.upserts, 1)
}

func TestHandleParksMalformedPayload(t *testing.T) {
	dlq := &fakeDLQ{}
	h, _, _ := newHandler(&fakeSource{}, &fakeSource{}, &fakeIndex{}, dlq)

	err := h.Handle(context.Background(), json.RawMessage(`{not json`))
	require.NoError(t, err)
	assert.Len(t, dlq.parked, 1)
}

func TestHandleParksUnknownKind(t *testing.T) {
	dlq := &fakeDLQ{}
	h, _, _ := newHandler(&fakeSource{}, &fakeSource{}, &fakeIndex{}, dlq)

	err := h.Handle(context.Background(), payload(t, "podcast", 1))
	require.NoError(t, err)
	require.Len(t, dlq.parked, 1)
	assert.Contains(t, dlq.parked[0], "podcast")
}

func TestHandleRequeuesTransientFailureThenParks(t *testing.T) {
	posts := &fakeSource{err: errors.New("connection refused")}
	dlq := &fakeDLQ{}
	h, _, _ := newHandler(posts, &fakeSource{}, &fakeIndex{}, dlq)

	// The dedup lock is released on each requeue, so redeliveries get
	// processed until the retry budget runs out.
	raw := payload(t, "post", 5)
	for i := 0; i < 4; i++ {
		err := h.Handle(context.Background(), raw)
		require.Error(t, err)
	}

	err := h.Handle(context.Background(), raw)
	require.NoError(t, err)
	assert.Len(t, dlq.parked, 1)
}
