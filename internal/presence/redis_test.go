package presence

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisTracker(t *testing.T, liveness time.Duration) (*mr.Miniredis, *RedisTracker) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return m, NewRedisTracker(client, "test:presence:", liveness)
}

func TestRedisTrackerJoinRosterLeave(t *testing.T) {
	_, tr := newRedisTracker(t, 45*time.Second)
	ctx := context.Background()

	cursor := 12
	require.NoError(t, tr.Join(ctx, "d1", "alice", Metadata{Cursor: &cursor}))
	require.NoError(t, tr.Join(ctx, "d1", "bob", Metadata{}))
	require.NoError(t, tr.Join(ctx, "d2", "carol", Metadata{}))

	roster, err := tr.Roster(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, roster, 2)

	require.NoError(t, tr.Leave(ctx, "d1", "bob"))
	roster, err = tr.Roster(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, "alice", roster[0].UserID)
}

func TestRedisTrackerTTLExpiry(t *testing.T) {
	m, tr := newRedisTracker(t, 5*time.Second)
	ctx := context.Background()

	require.NoError(t, tr.Join(ctx, "d1", "ghost", Metadata{}))

	roster, err := tr.Roster(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, roster, 1)

	// no heartbeat past the liveness timeout: key expires, user is offline
	m.FastForward(6 * time.Second)

	roster, err = tr.Roster(ctx, "d1")
	require.NoError(t, err)
	require.Empty(t, roster)
}

func TestRedisTrackerHeartbeatRefreshesTTL(t *testing.T) {
	m, tr := newRedisTracker(t, 5*time.Second)
	ctx := context.Background()

	c1, c2 := 1, 2
	require.NoError(t, tr.Join(ctx, "d1", "alice", Metadata{Cursor: &c1}))

	m.FastForward(3 * time.Second)
	require.NoError(t, tr.Heartbeat(ctx, "d1", "alice", Metadata{Cursor: &c2}))

	m.FastForward(3 * time.Second)
	roster, err := tr.Roster(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, roster, 1)
	require.Equal(t, 2, *roster[0].Cursor)
}

func TestRedisTrackerWatch(t *testing.T) {
	_, tr := newRedisTracker(t, 45*time.Second)
	ctx := context.Background()

	w, err := tr.Watch(ctx, "d1")
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, tr.Join(ctx, "d1", "alice", Metadata{}))
	require.NoError(t, tr.Leave(ctx, "d1", "alice"))

	expect := func(kind ChangeKind) {
		select {
		case c := <-w.Changes():
			require.Equal(t, kind, c.Kind)
			require.Equal(t, "alice", c.UserID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s change", kind)
		}
	}
	expect(ChangeJoined)
	expect(ChangeLeft)
}
