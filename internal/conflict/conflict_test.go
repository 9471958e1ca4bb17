package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkwave/inkwave/sync-engine/internal/feed"
)

func TestClassifyNoDraft(t *testing.T) {
	u := feed.Update{DocumentID: "d", Version: 2, UpdatedAt: time.Now()}
	require.Equal(t, ApplyRemote, Classify(nil, u))
}

func TestClassifyFence(t *testing.T) {
	editStart := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	draft := &Draft{Body: "my edits", EditStart: editStart}

	// updatedAt before the fence: causally stale relative to this edit
	// session, applied silently
	u := feed.Update{Version: 2, UpdatedAt: editStart.Add(-time.Second)}
	require.Equal(t, ApplyRemote, Classify(draft, u))

	// exactly at the fence still counts as stale (updatedAt <= editStart)
	u = feed.Update{Version: 2, UpdatedAt: editStart}
	require.Equal(t, ApplyRemote, Classify(draft, u))

	// after the fence: someone else saved mid-edit, needs a human
	u = feed.Update{Version: 2, UpdatedAt: editStart.Add(time.Second)}
	require.Equal(t, RequireResolution, Classify(draft, u))
}
