package docstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id, err := s.Create(ctx, &Document{Title: "notes.md", Body: "hello", OwnerID: "u1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	d, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", d.Body)
	require.EqualValues(t, 1, d.Version)

	v2, err := s.Put(ctx, id, "hello world", d.Version)
	require.NoError(t, err)
	require.EqualValues(t, 2, v2)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorePutCAS(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, err := s.Create(ctx, &Document{Title: "t", Body: "a", OwnerID: "u1"})
	require.NoError(t, err)

	// stale expected version loses
	_, err = s.Put(ctx, id, "b", 1)
	require.NoError(t, err)
	_, err = s.Put(ctx, id, "c", 1)
	require.ErrorIs(t, err, ErrVersionConflict)

	// unconditional write wins regardless
	v, err := s.Put(ctx, id, "c", -1)
	require.NoError(t, err)
	require.EqualValues(t, 3, v)
}

func TestMemoryStoreGrants(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.UpsertGrant(ctx, Grant{DocumentID: "d1", UserID: "u2", Tier: TierRead, GrantedBy: "u1"}))
	g, err := s.GetGrant(ctx, "d1", "u2")
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, TierRead, g.Tier)

	// re-grant overwrites the tier, never duplicates
	require.NoError(t, s.UpsertGrant(ctx, Grant{DocumentID: "d1", UserID: "u2", Tier: TierWrite, GrantedBy: "u1"}))
	list, err := s.ListGrants(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, TierWrite, list[0].Tier)

	require.NoError(t, s.DeleteGrant(ctx, "d1", "u2"))
	g, err = s.GetGrant(ctx, "d1", "u2")
	require.NoError(t, err)
	require.Nil(t, g)
}

func TestTierOrdering(t *testing.T) {
	require.True(t, TierOwner.AtLeast(TierAdmin))
	require.True(t, TierAdmin.AtLeast(TierWrite))
	require.True(t, TierWrite.AtLeast(TierRead))
	require.True(t, TierRead.AtLeast(TierNone))
	require.False(t, TierRead.AtLeast(TierWrite))
	require.False(t, TierNone.AtLeast(TierRead))
	require.True(t, TierWrite.AtLeast(TierWrite))

	require.True(t, TierWrite.Valid())
	require.False(t, TierOwner.Valid())
	require.False(t, TierNone.Valid())
}
