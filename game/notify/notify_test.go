package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventMarshal(t *testing.T) {
	ev := Event{
		Type:      EventMatchFound,
		SessionID: "s1",
		Data:      MatchFound{OpponentID: "bob", OpponentName: "Bob", YourMark: "X"},
	}
	data, err := ev.Marshal()
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"type":"match_found","session_id":"s1","data":{"opponent_id":"bob","opponent_name":"Bob","your_mark":"X"}}`,
		string(data))
}

func TestFanoutAndRecorder(t *testing.T) {
	ctx := context.Background()
	a, b := &Recorder{}, &Recorder{}
	pub := Fanout{a, Discard, b}

	pub.PublishToUser(ctx, "alice", Event{Type: EventGameInvitation, SessionID: "s1"})
	pub.PublishToSession(ctx, "s1", Event{Type: EventOpponentLeft, SessionID: "s1"})

	for _, r := range []*Recorder{a, b} {
		assert.Len(t, r.Deliveries(), 2)
		assert.Len(t, r.ToUser("alice"), 1)
		assert.Len(t, r.ToSession("s1"), 1)
		assert.Equal(t, 1, r.Count(EventOpponentLeft))
	}

	a.Reset()
	assert.Empty(t, a.Deliveries())
	assert.Len(t, b.Deliveries(), 2)
}
