package feed

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func waitEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "event channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return Event{}
	}
}

func TestMemoryFeedPublishAndClose(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()

	sub, err := f.Subscribe(ctx, "d1")
	require.NoError(t, err)
	other, err := f.Subscribe(ctx, "d2")
	require.NoError(t, err)

	u := Update{DocumentID: "d1", Version: 2, Body: "x", UpdatedAt: time.Now()}
	require.NoError(t, f.Publish(ctx, u))

	ev := waitEvent(t, sub)
	require.Equal(t, KindUpdate, ev.Kind)
	require.EqualValues(t, 2, ev.Update.Version)

	// no cross-document leakage
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other document: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	sub.Close()
	sub.Close() // idempotent
	_, ok := <-sub.Events()
	require.False(t, ok)
}

func TestMemoryFeedOverflowForcesResync(t *testing.T) {
	ctx := context.Background()
	f := NewMemoryFeed()
	sub, err := f.Subscribe(ctx, "d1")
	require.NoError(t, err)

	// flood well past the buffer without draining
	for i := 0; i < eventBuffer*3; i++ {
		require.NoError(t, f.Publish(ctx, Update{DocumentID: "d1", Version: int64(i)}))
	}

	sawResync := false
	for drained := false; !drained; {
		select {
		case ev := <-sub.Events():
			if ev.Kind == KindResynced {
				sawResync = true
			}
		default:
			drained = true
		}
	}
	require.True(t, sawResync, "lagging consumer must be told to resync")
}

func TestRedisFeedPublishSubscribe(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	f := NewRedisFeed(client, "test:feed:", 10*time.Millisecond, 100*time.Millisecond)

	ctx := context.Background()
	sub, err := f.Subscribe(ctx, "d1")
	require.NoError(t, err)
	defer sub.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, f.Publish(ctx, Update{DocumentID: "d1", Version: 3, Body: "hello", UpdatedAt: now}))

	ev := waitEvent(t, sub)
	require.Equal(t, KindUpdate, ev.Kind)
	require.EqualValues(t, 3, ev.Update.Version)
	require.Equal(t, "hello", ev.Update.Body)
	require.True(t, ev.Update.UpdatedAt.Equal(now))
}

func TestRedisFeedCloseIsIdempotent(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	f := NewRedisFeed(client, "", 10*time.Millisecond, 50*time.Millisecond)

	sub, err := f.Subscribe(context.Background(), "d1")
	require.NoError(t, err)

	// kill the transport first, then close: must be a quiet no-op
	m.Close()
	time.Sleep(20 * time.Millisecond)
	sub.Close()
	sub.Close()

	// the receive loop must terminate and close the event channel
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed after Close")
		}
	}
}
