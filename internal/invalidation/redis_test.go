package invalidation

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/chapterhouse/backend/internal/domain"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *RedisPublisher {
	t.Helper()
	server := miniredis.RunT(t)
	publisher, err := NewRedisPublisher("redis://"+server.Addr(), "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = publisher.Close() })
	return publisher
}

func TestNewRedisPublisherRejectsBadURL(t *testing.T) {
	_, err := NewRedisPublisher("not a url", DefaultChannel, nil)
	assert.Error(t, err)
}

func TestRelayDeliversEventsFromOtherInstances(t *testing.T) {
	publisher := setupTestRedis(t)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	subscription, err := publisher.Subscribe(ctx)
	require.NoError(t, err)
	defer subscription.Close()

	received := make(chan Event, 4)
	go func() {
		_ = subscription.Relay(ctx, "instance-a", func(event Event) { received <- event })
	}()

	at := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	own := NewEvent("instance-a", "user-1", domain.NewAffected(domain.Catalog("cat-own")), at)
	remote := NewEvent("instance-b", "user-2", domain.NewAffected(domain.Comments("cat-9"), domain.Catalog("cat-9")), at)
	require.NoError(t, publisher.Publish(ctx, own))
	require.NoError(t, publisher.Publish(ctx, remote))

	select {
	case event := <-received:
		assert.Equal(t, "instance-b", event.Origin)
		assert.Equal(t, "user-2", event.ActorID)
		assert.Equal(t, []domain.Resource{domain.Catalog("cat-9"), domain.Comments("cat-9")}, event.Resources)
		assert.True(t, event.At.Equal(at))
	case <-time.After(2 * time.Second):
		t.Fatal("expected relayed event")
	}

	select {
	case event := <-received:
		t.Fatalf("did not expect a second event, got %+v", event)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventVisibleToHidesOtherReadingLists(t *testing.T) {
	event := NewEvent("x", "reader-1", domain.NewAffected(
		domain.ReadingList("reader-1"),
		domain.Catalog("cat-1"),
	), time.Now())

	mine, ok := event.VisibleTo("reader-1")
	require.True(t, ok)
	assert.Len(t, mine.Resources, 2)

	assert.Equal(t, "reader-1", mine.ActorID)

	theirs, ok := event.VisibleTo("reader-2")
	require.True(t, ok)
	assert.Equal(t, []domain.Resource{domain.Catalog("cat-1")}, theirs.Resources)
	assert.Empty(t, theirs.ActorID)

	privateOnly := NewEvent("x", "reader-1", domain.NewAffected(domain.ReadingList("reader-1")), time.Now())
	_, ok = privateOnly.VisibleTo(domain.Anonymous)
	assert.False(t, ok)
}

func TestEventVisibleToKeepsBookmarksPrivate(t *testing.T) {
	toggled := NewEvent("x", "alice", domain.NewAffected(domain.ReadingList("alice")), time.Now())

	_, ok := toggled.VisibleTo("mallory")
	assert.False(t, ok)
	_, ok = toggled.VisibleTo(domain.Anonymous)
	assert.False(t, ok)

	own, ok := toggled.VisibleTo("alice")
	require.True(t, ok)
	assert.Equal(t, "alice", own.ActorID)
	assert.Equal(t, []domain.Resource{domain.ReadingList("alice")}, own.Resources)
}
