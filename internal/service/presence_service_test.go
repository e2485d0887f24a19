package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
	"github.com/noah-isme/gema-realtime-api/internal/realtime/realtimetest"
)

func TestPresenceReflectsRegistry(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	bob := f.connect(t, "bob")
	alice := f.connect(t, "alice")

	presence, err := f.presence.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, presence.IsOnline)

	online := bob.OfKind(realtime.KindPresenceOnline)
	require.Len(t, online, 1)
	require.Equal(t, "alice", online[0].Data.(dto.PresenceResponse).UserID)
	require.Empty(t, alice.OfKind(realtime.KindPresenceOnline))

	before := time.Now().UTC().Add(-time.Second)
	f.gateway.Disconnect(ctx, "alice", alice.ID())

	presence, err = f.presence.Get(ctx, "alice")
	require.NoError(t, err)
	require.False(t, presence.IsOnline)
	require.NotNil(t, presence.LastSeenAt)
	require.False(t, presence.LastSeenAt.Before(before))

	offline := bob.OfKind(realtime.KindPresenceOffline)
	require.Len(t, offline, 1)
	require.NotNil(t, offline[0].Data.(dto.PresenceResponse).LastSeenAt)
}

func TestReconnectKeepsNewestConnection(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	ctx := context.Background()

	bob := f.connect(t, "bob")
	stale := f.connect(t, "alice")
	fresh := f.connect(t, "alice")

	require.Len(t, bob.OfKind(realtime.KindPresenceOnline), 1)

	f.gateway.Disconnect(ctx, "alice", stale.ID())
	presence, err := f.presence.Get(ctx, "alice")
	require.NoError(t, err)
	require.True(t, presence.IsOnline)
	require.Empty(t, bob.OfKind(realtime.KindPresenceOffline))

	require.NoError(t, f.dispatcher.Hub().Push("alice", realtime.NewEvent(realtime.KindPong, nil)))
	require.Len(t, fresh.OfKind(realtime.KindPong), 1)
	require.Empty(t, stale.OfKind(realtime.KindPong))

	f.gateway.Disconnect(ctx, "alice", fresh.ID())
	require.Len(t, bob.OfKind(realtime.KindPresenceOffline), 1)
}

func TestPresenceGetUnknownUser(t *testing.T) {
	f := newRealtimeFixture(t, nil)

	_, err := f.presence.Get(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.presence.Get(context.Background(), " ")
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.gateway.Connect(context.Background(), "ghost", realtimetest.NewConn()))
	presence, err := f.presence.Get(context.Background(), "ghost")
	require.NoError(t, err)
	require.True(t, presence.IsOnline)
}
