package usage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedIncrement struct {
	key    string
	fields map[string]float64
}

type fakeStats struct {
	increments []recordedIncrement
	err        error
}

func (f *fakeStats) Increment(_ context.Context, key string, fields map[string]float64) error {
	f.increments = append(f.increments, recordedIncrement{key: key, fields: fields})
	return f.err
}

func (f *fakeStats) Get(context.Context, string) (map[string]float64, error) {
	return nil, nil
}

type recordedCall struct {
	user       string
	model      string
	tokenUsage map[string]interface{}
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func sampleUsage() map[string]interface{} {
	return map[string]interface{}{
		"prompt_tokens":     50,
		"completion_tokens": 30,
		"total_tokens":      80,
		"non_numeric_field": "should be ignored",
		"nested_dict": map[string]interface{}{
			"sub_field":     100,
			"another_field": 200,
		},
		"cached": true,
	}
}

func TestRecordCommunityUser(t *testing.T) {
	stats := &fakeStats{}
	var calls []recordedCall
	a := NewAccountant(
		WithStats(stats),
		WithClock(fixedClock),
		WithCallback(func(user, model string, tokenUsage map[string]interface{}) {
			calls = append(calls, recordedCall{user, model, tokenUsage})
		}),
	)

	tokenUsage := sampleUsage()
	require.NoError(t, a.Record(context.Background(), CommunityUser, "gpt-3.5-turbo", tokenUsage))

	require.Len(t, stats.increments, 1)
	assert.Equal(t, "usage:2024-05-01:community", stats.increments[0].key)
	assert.Equal(t, map[string]float64{
		"prompt_tokens:gpt-3.5-turbo":     50,
		"completion_tokens:gpt-3.5-turbo": 30,
		"total_tokens:gpt-3.5-turbo":      80,
	}, stats.increments[0].fields)

	require.Len(t, calls, 1)
	assert.Equal(t, "community", calls[0].user)
	assert.Equal(t, "gpt-3.5-turbo", calls[0].model)
	assert.Equal(t, sampleUsage(), calls[0].tokenUsage)
}

func TestRecordOtherUserOnlyCallsCallback(t *testing.T) {
	stats := &fakeStats{}
	called := 0
	a := NewAccountant(WithStats(stats), WithCallback(func(string, string, map[string]interface{}) {
		called++
	}))

	require.NoError(t, a.Record(context.Background(), "alice", "gpt-4", sampleUsage()))
	assert.Empty(t, stats.increments)
	assert.Equal(t, 1, called)
}

func TestRecordWithoutNumbersOnlyCallsCallback(t *testing.T) {
	stats := &fakeStats{}
	var calls []recordedCall
	a := NewAccountant(WithStats(stats), WithCallback(func(user, model string, tokenUsage map[string]interface{}) {
		calls = append(calls, recordedCall{user, model, tokenUsage})
	}))

	require.NoError(t, a.Record(context.Background(), CommunityUser, "gpt-4", map[string]interface{}{}))
	require.NoError(t, a.Record(context.Background(), CommunityUser, "gpt-4", map[string]interface{}{"cached": true}))
	assert.Empty(t, stats.increments)
	require.Len(t, calls, 2)
	assert.Equal(t, map[string]interface{}{}, calls[0].tokenUsage)
	assert.Equal(t, map[string]interface{}{"cached": true}, calls[1].tokenUsage)
}

func TestRecordStatsFailureStillCallsCallback(t *testing.T) {
	stats := &fakeStats{err: errors.New("down")}
	called := 0
	a := NewAccountant(WithStats(stats), WithCallback(func(string, string, map[string]interface{}) {
		called++
	}))

	err := a.Record(context.Background(), CommunityUser, "gpt-4", sampleUsage())
	assert.Error(t, err)
	assert.Equal(t, 1, called)
}

func TestNumeric(t *testing.T) {
	assert.Equal(t, map[string]float64{
		"a": 1,
		"b": 2.5,
		"c": 3,
		"d": 4,
	}, Numeric(map[string]interface{}{
		"a": 1,
		"b": 2.5,
		"c": uint32(3),
		"d": json.Number("4"),
		"e": "5",
		"f": false,
		"g": nil,
		"h": []int{1},
	}))
	assert.Empty(t, Numeric(nil))
}

func TestBucketKey(t *testing.T) {
	assert.Equal(t, "usage:2024-05-01:community", BucketKey(fixedClock(), CommunityUser))
}

func testStats(t *testing.T, s Stats) {
	ctx := context.Background()
	require.NoError(t, s.Increment(ctx, "k", map[string]float64{"a": 1, "b": 2}))
	require.NoError(t, s.Increment(ctx, "k", map[string]float64{"a": 1.5}))
	require.NoError(t, s.Increment(ctx, "other", map[string]float64{"a": 10}))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"a": 2.5, "b": 2}, got)

	got, err = s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStats(t *testing.T) {
	testStats(t, NewMemoryStats())
}

func TestSQLiteStats(t *testing.T) {
	s, err := NewSQLiteStats(filepath.Join(t.TempDir(), "usage.db"))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	testStats(t, s)

	require.NoError(t, s.Close())
	_, err = s.Get(context.Background(), "k")
	assert.Error(t, err)
}

func TestRedisStats(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStats(context.Background(), RedisOptions{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()
	testStats(t, s)
}

func TestPublishingCallback(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 1}, watermill.NopLogger{})
	defer func() {
		_ = pubSub.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	messages, err := pubSub.Subscribe(ctx, "usage")
	require.NoError(t, err)

	cb := PublishingCallback(pubSub, "usage")
	cb("alice", "gpt-4", map[string]interface{}{"total_tokens": 3})

	select {
	case msg := <-messages:
		msg.Ack()
		var e Event
		require.NoError(t, json.Unmarshal(msg.Payload, &e))
		assert.Equal(t, "alice", e.User)
		assert.Equal(t, "gpt-4", e.Model)
		assert.Equal(t, map[string]interface{}{"total_tokens": 3.0}, e.TokenUsage)
		assert.Equal(t, "gpt-4", msg.Metadata.Get("model"))
	case <-ctx.Done():
		t.Fatal("usage event was not published")
	}
}
