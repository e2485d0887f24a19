package realtime_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-realtime-api/internal/realtime"
)

func TestKindRoundTripsThroughJSON(t *testing.T) {
	raw, err := json.Marshal(realtime.NewEvent(realtime.KindCallIncoming, map[string]string{"from": "a"}))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"kind":"call.incoming"`)

	var decoded realtime.Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, realtime.KindCallIncoming, decoded.Kind)
}

func TestKindRejectsUnknownNames(t *testing.T) {
	_, err := realtime.ParseKind("message.explode")
	require.Error(t, err)

	_, err = json.Marshal(realtime.Event{Kind: realtime.KindUnknown})
	require.Error(t, err)
}

func TestInboundKinds(t *testing.T) {
	require.True(t, realtime.KindMessageSend.Inbound())
	require.True(t, realtime.KindGroupCallSignal.Inbound())
	require.False(t, realtime.KindAck.Inbound())
	require.False(t, realtime.KindPresenceOnline.Inbound())
}

func TestParseFrame(t *testing.T) {
	frame, err := realtime.ParseFrame([]byte(`{"kind":"typing.start","ref":"r1","data":{"to":"bob"}}`))
	require.NoError(t, err)
	require.Equal(t, realtime.KindTypingStart, frame.Kind)
	require.Equal(t, "r1", frame.Ref)

	var payload struct {
		To string `json:"to"`
	}
	require.NoError(t, frame.Decode(&payload))
	require.Equal(t, "bob", payload.To)
}

func TestParseFrameRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":        `{`,
		"missing kind":    `{"data":{}}`,
		"outbound kind":   `{"kind":"presence.online"}`,
		"unknown kind":    `{"kind":"nope"}`,
		"extra field":     `{"kind":"ping","junk":1}`,
		"non object data": `{"kind":"ping","data":"x"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := realtime.ParseFrame([]byte(raw))
			require.ErrorIs(t, err, realtime.ErrInvalidFrame)
		})
	}
}
