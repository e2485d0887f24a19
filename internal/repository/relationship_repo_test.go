package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

func TestRelationshipRepositoryRequiresAcceptedConnection(t *testing.T) {
	db := setupRealtimeTestDB(t)
	repo := NewRelationshipRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.Connection{RequesterID: "alice", AddresseeID: "bob", Status: models.ConnectionAccepted}).Error)
	require.NoError(t, db.Create(&models.Connection{RequesterID: "alice", AddresseeID: "carol", Status: models.ConnectionPending}).Error)

	ok, err := repo.AreConnected(ctx, "bob", "alice")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AreConnected(ctx, "alice", "carol")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.AreConnected(ctx, "alice", "alice")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGroupRepositoryMembership(t *testing.T) {
	db := setupRealtimeTestDB(t)
	repo := NewGroupRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.GroupMember{GroupID: "g2", UserID: "alice", Role: "admin"}).Error)
	require.NoError(t, db.Create(&models.GroupMember{GroupID: "g1", UserID: "alice"}).Error)

	ok, err := repo.IsMember(ctx, "g1", "alice")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.IsMember(ctx, "g1", "bob")
	require.NoError(t, err)
	require.False(t, ok)

	role, err := repo.Role(ctx, "g2", "alice")
	require.NoError(t, err)
	require.Equal(t, "admin", role)

	groups, err := repo.GroupIDsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []string{"g1", "g2"}, groups)
}

func TestUserRepositorySetPresenceUpserts(t *testing.T) {
	db := setupRealtimeTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.User{ID: "alice", DisplayName: "Alice"}).Error)
	require.NoError(t, repo.SetPresence(ctx, "alice", true, nil))

	user, err := repo.FindByID(ctx, "alice")
	require.NoError(t, err)
	require.True(t, user.IsOnline)
	require.Equal(t, "Alice", user.DisplayName)

	seen := time.Now().UTC()
	require.NoError(t, repo.SetPresence(ctx, "alice", false, &seen))
	user, err = repo.FindByID(ctx, "alice")
	require.NoError(t, err)
	require.False(t, user.IsOnline)
	require.NotNil(t, user.LastSeenAt)

	require.NoError(t, repo.SetPresence(ctx, "newcomer", true, nil))
	_, err = repo.FindByID(ctx, "newcomer")
	require.NoError(t, err)
}
