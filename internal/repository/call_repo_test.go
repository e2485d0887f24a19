package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-realtime-api/internal/models"
)

func TestCallRecordRepositoryFindRecentHonoursWindow(t *testing.T) {
	repo := NewCallRecordRepository(setupRealtimeTestDB(t))
	ctx := context.Background()

	record := models.CallRecord{CallerID: "alice", CalleeID: "bob", ParticipantKey: "dm:alice:bob", Media: models.CallVideo, Scope: models.CallDirect, Status: models.CallMissed}
	require.NoError(t, repo.Create(ctx, &record))

	found, err := repo.FindRecent(ctx, "dm:alice:bob", "alice", time.Now().Add(-5*time.Second))
	require.NoError(t, err)
	require.Equal(t, record.ID, found.ID)

	_, err = repo.FindRecent(ctx, "dm:alice:bob", "bob", time.Now().Add(-5*time.Second))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindRecent(ctx, "dm:alice:bob", "alice", time.Now().Add(time.Minute))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCallRecordRepositoryListAndClear(t *testing.T) {
	repo := NewCallRecordRepository(setupRealtimeTestDB(t))
	ctx := context.Background()

	records := []models.CallRecord{
		{CallerID: "alice", CalleeID: "bob", ParticipantKey: "dm:alice:bob", Media: models.CallAudio, Scope: models.CallDirect, Status: models.CallAnswered},
		{CallerID: "carol", CalleeID: "alice", ParticipantKey: "dm:alice:carol", Media: models.CallAudio, Scope: models.CallDirect, Status: models.CallRejected},
		{CallerID: "dave", GroupID: "g1", ParticipantKey: "group:g1", Media: models.CallVideo, Scope: models.CallGroup, Status: models.CallAnswered},
		{CallerID: "bob", CalleeID: "carol", ParticipantKey: "dm:bob:carol", Media: models.CallAudio, Scope: models.CallDirect, Status: models.CallMissed},
	}
	for i := range records {
		require.NoError(t, repo.Create(ctx, &records[i]))
	}

	history, err := repo.ListForUser(ctx, "alice", []string{"g1"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)

	withoutGroups, err := repo.ListForUser(ctx, "alice", nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, withoutGroups, 2)

	cleared, err := repo.DeleteForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(2), cleared)

	require.ErrorIs(t, repo.Delete(ctx, records[0].ID), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(ctx, records[3].ID))
}
