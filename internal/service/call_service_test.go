package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-realtime-api/internal/dto"
	"github.com/noah-isme/gema-realtime-api/internal/models"
	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

var testOffer = json.RawMessage(`{"type":"offer","sdp":"v=0"}`)

func countCallRecords(t *testing.T, f *realtimeFixture) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Model(&models.CallRecord{}).Count(&count).Error)
	return count
}

func TestInitiateToOfflineCalleeFailsFast(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	f.befriend(t, "alice", "bob")
	ctx := context.Background()

	alice := f.connect(t, "alice")

	err := f.calls.Initiate(ctx, "alice", dto.CallInitiateRequest{To: "bob", Media: "video", Signal: testOffer})
	require.ErrorIs(t, err, ErrUnreachable)

	failures := alice.OfKind(realtime.KindCallUnreachable)
	require.Len(t, failures, 1)
	require.Equal(t, "bob", failures[0].Data.(dto.CallUnreachable).To)

	state, _ := f.calls.State("alice")
	require.Equal(t, CallIdle, state)
	require.Zero(t, countCallRecords(t, f))

	bob := f.connect(t, "bob")
	require.Empty(t, bob.OfKind(realtime.KindCallIncoming))
}

func TestInitiateRequiresAcceptedConnection(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "mallory")
	f.connect(t, "alice")
	f.connect(t, "mallory")

	err := f.calls.Initiate(context.Background(), "mallory", dto.CallInitiateRequest{To: "alice", Media: "audio", Signal: testOffer})
	require.ErrorIs(t, err, ErrForbidden)

	err = f.calls.Initiate(context.Background(), "alice", dto.CallInitiateRequest{To: "alice", Media: "audio", Signal: testOffer})
	require.ErrorIs(t, err, ErrValidation)

	err = f.calls.Initiate(context.Background(), "alice", dto.CallInitiateRequest{To: "mallory", Media: "hologram", Signal: testOffer})
	require.ErrorIs(t, err, ErrValidation)
}

func TestAnsweredCallIsRecordedOnTerminate(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob", "carol")
	f.befriend(t, "alice", "bob")
	f.befriend(t, "carol", "bob")
	ctx := context.Background()

	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")
	f.connect(t, "carol")

	require.NoError(t, f.calls.Initiate(ctx, "alice", dto.CallInitiateRequest{To: "bob", Media: "video", Signal: testOffer}))

	incoming := bob.OfKind(realtime.KindCallIncoming)
	require.Len(t, incoming, 1)
	offer := incoming[0].Data.(dto.CallSignal)
	require.Equal(t, "alice", offer.From)
	require.Equal(t, "video", offer.Media)
	require.JSONEq(t, string(testOffer), string(offer.Signal))

	state, peer := f.calls.State("alice")
	require.Equal(t, CallCalling, state)
	require.Equal(t, "bob", peer)
	state, _ = f.calls.State("bob")
	require.Equal(t, CallIncoming, state)

	err := f.calls.Initiate(ctx, "carol", dto.CallInitiateRequest{To: "bob", Media: "audio", Signal: testOffer})
	require.ErrorIs(t, err, ErrCallInProgress)

	answer := json.RawMessage(`{"type":"answer"}`)
	require.NoError(t, f.calls.Answer(ctx, "bob", dto.CallAnswerRequest{To: "alice", Signal: answer}))
	require.Len(t, alice.OfKind(realtime.KindCallAnswered), 1)

	state, _ = f.calls.State("bob")
	require.Equal(t, CallActive, state)

	candidate := json.RawMessage(`{"candidate":"udp 1"}`)
	require.NoError(t, f.calls.RelayICE(ctx, "alice", dto.CallICERequest{To: "bob", Signal: candidate}))
	require.Len(t, bob.OfKind(realtime.KindCallICE), 1)

	ended, err := f.calls.Terminate(ctx, "bob", dto.CallTerminateRequest{To: "alice"})
	require.NoError(t, err)
	require.Equal(t, "answered", ended.Status)

	teardown := alice.OfKind(realtime.KindCallEnded)
	require.Len(t, teardown, 1)
	require.Equal(t, "answered", teardown[0].Data.(dto.CallEnded).Status)

	state, _ = f.calls.State("alice")
	require.Equal(t, CallIdle, state)

	var record models.CallRecord
	require.NoError(t, f.db.First(&record).Error)
	require.Equal(t, "alice", record.CallerID)
	require.Equal(t, "bob", record.CalleeID)
	require.Equal(t, models.CallAnswered, record.Status)
	require.Equal(t, models.CallVideo, record.Media)
	require.Equal(t, models.CallDirect, record.Scope)

	err = f.calls.RelayICE(ctx, "alice", dto.CallICERequest{To: "bob", Signal: candidate})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTerminateStatusFollowsTerminatingParty(t *testing.T) {
	cases := map[string]struct {
		actor  string
		peer   string
		status models.CallStatus
	}{
		"caller cancels": {actor: "alice", peer: "bob", status: models.CallMissed},
		"callee rejects": {actor: "bob", peer: "alice", status: models.CallRejected},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newRealtimeFixture(t, nil)
			f.seedUsers(t, "alice", "bob")
			f.befriend(t, "alice", "bob")
			ctx := context.Background()

			f.connect(t, "alice")
			f.connect(t, "bob")

			require.NoError(t, f.calls.Initiate(ctx, "alice", dto.CallInitiateRequest{To: "bob", Media: "audio", Signal: testOffer}))

			ended, err := f.calls.Terminate(ctx, tc.actor, dto.CallTerminateRequest{To: tc.peer})
			require.NoError(t, err)
			require.Equal(t, string(tc.status), ended.Status)

			var record models.CallRecord
			require.NoError(t, f.db.First(&record).Error)
			require.Equal(t, "alice", record.CallerID)
			require.Equal(t, tc.status, record.Status)
			require.Zero(t, record.DurationSeconds)
		})
	}
}

func TestTerminateWithoutSessionStillTearsDown(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	f.befriend(t, "alice", "bob")

	f.connect(t, "alice")
	bob := f.connect(t, "bob")

	ended, err := f.calls.Terminate(context.Background(), "alice", dto.CallTerminateRequest{To: "bob"})
	require.NoError(t, err)
	require.Empty(t, ended.Status)
	require.Len(t, bob.OfKind(realtime.KindCallEnded), 1)
	require.Zero(t, countCallRecords(t, f))
}

func TestTerminateWithoutSessionRequiresConnection(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "mallory")

	alice := f.connect(t, "alice")
	f.connect(t, "mallory")

	_, err := f.calls.Terminate(context.Background(), "mallory", dto.CallTerminateRequest{To: "alice"})
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, alice.OfKind(realtime.KindCallEnded))
}

func TestAnswerAfterCallerVanishedIsUnreachable(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	f.befriend(t, "alice", "bob")
	ctx := context.Background()

	f.connect(t, "alice")
	f.connect(t, "bob")
	require.NoError(t, f.calls.Initiate(ctx, "alice", dto.CallInitiateRequest{To: "bob", Media: "audio", Signal: testOffer}))

	f.hub.Registry().Unregister("alice")

	err := f.calls.Answer(ctx, "bob", dto.CallAnswerRequest{To: "alice", Signal: testOffer})
	require.ErrorIs(t, err, ErrUnreachable)

	state, _ := f.calls.State("bob")
	require.Equal(t, CallIdle, state)
	require.Zero(t, countCallRecords(t, f))

	err = f.calls.Answer(ctx, "bob", dto.CallAnswerRequest{To: "alice", Signal: testOffer})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDisconnectEndsActiveCall(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob")
	f.befriend(t, "alice", "bob")
	ctx := context.Background()

	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")
	require.NoError(t, f.calls.Initiate(ctx, "alice", dto.CallInitiateRequest{To: "bob", Media: "audio", Signal: testOffer}))
	require.NoError(t, f.calls.Answer(ctx, "bob", dto.CallAnswerRequest{To: "alice", Signal: testOffer}))

	f.gateway.Disconnect(ctx, "alice", alice.ID())

	teardown := bob.OfKind(realtime.KindCallEnded)
	require.Len(t, teardown, 1)
	require.Equal(t, "alice", teardown[0].Data.(dto.CallEnded).From)

	state, _ := f.calls.State("bob")
	require.Equal(t, CallIdle, state)

	var record models.CallRecord
	require.NoError(t, f.db.First(&record).Error)
	require.Equal(t, models.CallAnswered, record.Status)
}

func TestGroupCallFullMeshSignaling(t *testing.T) {
	f := newRealtimeFixture(t, nil)
	f.seedUsers(t, "alice", "bob", "carol", "dave")
	f.addMembers(t, "g1", "alice", "bob", "carol")
	ctx := context.Background()

	conns := map[string]interface {
		OfKind(realtime.Kind) []realtime.Event
	}{
		"alice": f.connect(t, "alice"),
		"bob":   f.connect(t, "bob"),
		"carol": f.connect(t, "carol"),
	}
	f.connect(t, "dave")

	require.NoError(t, f.calls.StartGroupCall(ctx, "alice", dto.GroupCallRequest{GroupID: "g1", Media: "video"}))
	require.Empty(t, conns["alice"].OfKind(realtime.KindGroupCallIncoming))
	require.Len(t, conns["bob"].OfKind(realtime.KindGroupCallIncoming), 1)
	require.Len(t, conns["carol"].OfKind(realtime.KindGroupCallIncoming), 1)

	signal := func(from, to string) {
		require.NoError(t, f.calls.RelayGroupSignal(ctx, from, dto.GroupCallSignalRequest{GroupID: "g1", To: to, Signal: testOffer}))
	}

	// Existing participants offer to each joiner, the joiner answers.
	inCall := []string{"alice"}
	links := 0
	for _, joiner := range []string{"bob", "carol"} {
		require.NoError(t, f.calls.JoinGroupCall(ctx, joiner, dto.GroupCallRequest{GroupID: "g1"}))
		for _, member := range inCall {
			joined := conns[member].OfKind(realtime.KindGroupCallJoined)
			require.Equal(t, joiner, joined[len(joined)-1].Data.(dto.GroupCallEvent).UserID)
			signal(member, joiner)
			signal(joiner, member)
			links++
		}
		inCall = append(inCall, joiner)
	}
	require.Equal(t, 3, links)

	for user, conn := range conns {
		signals := conn.OfKind(realtime.KindGroupCallSignal)
		require.Len(t, signals, 2, user)
		peers := map[string]bool{}
		for _, event := range signals {
			payload := event.Data.(dto.GroupCallSignal)
			require.Equal(t, user, payload.To)
			peers[payload.From] = true
		}
		require.Len(t, peers, 2, user)
	}

	require.NoError(t, f.calls.LeaveGroupCall(ctx, "carol", dto.GroupCallRequest{GroupID: "g1"}))
	require.Len(t, conns["alice"].OfKind(realtime.KindGroupCallLeft), 1)
	require.Len(t, conns["bob"].OfKind(realtime.KindGroupCallLeft), 1)
	require.Empty(t, conns["carol"].OfKind(realtime.KindGroupCallLeft))

	err := f.calls.StartGroupCall(ctx, "dave", dto.GroupCallRequest{GroupID: "g1"})
	require.ErrorIs(t, err, ErrForbidden)
	err = f.calls.LeaveGroupCall(ctx, "dave", dto.GroupCallRequest{GroupID: "g1"})
	require.ErrorIs(t, err, ErrForbidden)
	require.Len(t, conns["alice"].OfKind(realtime.KindGroupCallLeft), 1)
	err = f.calls.RelayGroupSignal(ctx, "dave", dto.GroupCallSignalRequest{GroupID: "g1", To: "alice", Signal: testOffer})
	require.ErrorIs(t, err, ErrForbidden)
	err = f.calls.RelayGroupSignal(ctx, "alice", dto.GroupCallSignalRequest{GroupID: "g1", To: "dave", Signal: testOffer})
	require.ErrorIs(t, err, ErrUnreachable)
}
