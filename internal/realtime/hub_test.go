package realtime

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/bunbase/bunbase/internal/apperrors"
	"github.com/bunbase/bunbase/internal/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allowAll(string, bool, map[string]any, *Access) bool { return true }

func newTestHub(t *testing.T, check AccessFunc) *Hub {
	t.Helper()
	h := NewHub(check, Options{})
	t.Cleanup(h.Close)
	return h
}

// recvFrame drains one frame or fails fast.
func recvFrame(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case frame := <-c.Send:
		return frame
	case <-time.After(time.Second):
		t.Fatal("no frame received")
		return nil
	}
}

func decodeEvent(t *testing.T, frame []byte) Event {
	t.Helper()
	text := strings.TrimSpace(string(frame))
	require.True(t, strings.HasPrefix(text, "data: "), "frame %q", text)
	var evt Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(text, "data: ")), &evt))
	return evt
}

func TestSetSubscriptionsUnknownClient(t *testing.T) {
	h := newTestHub(t, allowAll)
	err := h.SetSubscriptions("nope", []string{"posts/*"}, nil)
	require.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestBroadcastWildcardAndSpecific(t *testing.T) {
	h := newTestHub(t, allowAll)

	wildcard := h.Register()
	specific := h.Register()
	other := h.Register()
	require.NoError(t, h.SetSubscriptions(wildcard.ID, []string{"posts/*"}, nil))
	require.NoError(t, h.SetSubscriptions(specific.ID, []string{"posts/r1"}, nil))
	require.NoError(t, h.SetSubscriptions(other.ID, []string{"comments/*"}, nil))

	h.Broadcast("update", "posts", map[string]any{"id": "r1", "title": "x"})

	for _, c := range []*Client{wildcard, specific} {
		evt := decodeEvent(t, recvFrame(t, c))
		assert.Equal(t, "update", evt.Action)
		assert.Equal(t, "r1", evt.Record["id"])
	}
	assert.Empty(t, other.Send)
}

func TestBroadcastDeliversOncePerClient(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*", "posts/r1"}, nil))

	h.Broadcast("create", "posts", map[string]any{"id": "r1"})

	recvFrame(t, c)
	assert.Empty(t, c.Send, "overlapping subscriptions must not duplicate delivery")
}

func TestBroadcastAccessFilter(t *testing.T) {
	check := func(collection string, wildcard bool, record map[string]any, access *Access) bool {
		return access != nil && access.Info != nil && record["author"] == access.Info.ID
	}
	h := newTestHub(t, check)

	owner := h.Register()
	stranger := h.Register()
	require.NoError(t, h.SetSubscriptions(owner.ID, []string{"posts/*"},
		&Access{Info: &rules.AuthInfo{ID: "u1", Role: "user"}, Key: "user:u1"}))
	require.NoError(t, h.SetSubscriptions(stranger.ID, []string{"posts/*"},
		&Access{Info: &rules.AuthInfo{ID: "u2", Role: "user"}, Key: "user:u2"}))

	h.Broadcast("create", "posts", map[string]any{"id": "r1", "author": "u1"})

	recvFrame(t, owner)
	assert.Empty(t, stranger.Send)
}

func TestSubscribeSessionHijackGuard(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"},
		&Access{Info: &rules.AuthInfo{ID: "u1"}, Key: "user:u1"}))

	err := h.SetSubscriptions(c.ID, []string{"comments/*"},
		&Access{Info: &rules.AuthInfo{ID: "u2"}, Key: "user:u2"})
	require.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	// The original subscription set survives the rejected call.
	h.Broadcast("create", "posts", map[string]any{"id": "r1"})
	recvFrame(t, c)
}

func TestAnonymousMayResubscribe(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"}, nil))
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"comments/*"}, &Access{}))
}

func TestAnonymousClientMayAuthenticateLater(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"}, nil))

	// Logging in on an open connection upgrades the captured identity.
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"},
		&Access{Info: &rules.AuthInfo{ID: "u1", Role: "user"}, Key: "user:u1"}))

	// The upgraded identity is captured like any other: a different
	// principal is rejected, and so is dropping back to anonymous.
	err := h.SetSubscriptions(c.ID, []string{"posts/*"},
		&Access{Info: &rules.AuthInfo{ID: "u2", Role: "user"}, Key: "user:u2"})
	require.True(t, apperrors.IsKind(err, apperrors.KindForbidden))

	err = h.SetSubscriptions(c.ID, []string{"posts/*"}, nil)
	require.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestSetSubscriptionsReplacesAndClears(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"}, nil))
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"comments/*"}, nil))

	h.Broadcast("create", "posts", map[string]any{"id": "r1"})
	assert.Empty(t, c.Send, "replaced topics must not deliver")

	require.NoError(t, h.SetSubscriptions(c.ID, nil, nil))
	h.Broadcast("create", "comments", map[string]any{"id": "c1"})
	assert.Empty(t, c.Send, "cleared set must not deliver")
}

func TestInvalidTopicsAreDropped(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"no-slash", "_fields/*", "posts/bad id", "posts/*"}, nil))

	h.Broadcast("create", "posts", map[string]any{"id": "r1"})
	recvFrame(t, c)
}

func TestBroadcastEvictsSlowClient(t *testing.T) {
	h := newTestHub(t, allowAll)

	c := h.Register()
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"}, nil))

	// Never drained: the buffer fills and the next send evicts.
	for i := 0; i <= sendBufferSize; i++ {
		h.Broadcast("create", "posts", map[string]any{"id": "r1"})
	}

	err := h.SetSubscriptions(c.ID, []string{"posts/*"}, nil)
	require.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "evicted client must be gone")

	// The closed channel still holds the buffered frames.
	count := 0
	for range c.Send {
		count++
	}
	assert.Equal(t, sendBufferSize, count)
}

func TestBroadcastSurvivesRemoveDuringFanout(t *testing.T) {
	// Remove the target client from inside the access check, which runs
	// in the unlocked window between candidate selection and delivery.
	// The broadcast must drop the frame instead of panicking on a closed
	// channel.
	var h *Hub
	var clientID string
	check := func(string, bool, map[string]any, *Access) bool {
		h.Remove(clientID)
		return true
	}
	h = newTestHub(t, check)

	c := h.Register()
	clientID = c.ID
	require.NoError(t, h.SetSubscriptions(c.ID, []string{"posts/*"}, nil))

	require.NotPanics(t, func() {
		h.Broadcast("create", "posts", map[string]any{"id": "r1"})
	})

	_, open := <-c.Send
	assert.False(t, open, "removed client receives nothing")
}

func TestRemoveIsIdempotent(t *testing.T) {
	h := newTestHub(t, allowAll)
	c := h.Register()
	h.Remove(c.ID)
	h.Remove(c.ID)

	_, open := <-c.Send
	assert.False(t, open)
}

func TestSweepEvictsInactiveClients(t *testing.T) {
	h := NewHub(allowAll, Options{
		SweepInterval:     10 * time.Millisecond,
		InactivityTimeout: 20 * time.Millisecond,
	})
	t.Cleanup(h.Close)

	idle := h.Register()
	active := h.Register()

	// Keep one client warm while the other goes stale.
	for i := 0; i < 20; i++ {
		h.Touch(active.ID)
		time.Sleep(10 * time.Millisecond)
	}

	err := h.SetSubscriptions(idle.ID, nil, nil)
	require.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "idle client must be swept")
	require.NoError(t, h.SetSubscriptions(active.ID, nil, nil), "touched client must survive")
}

func TestCloseDisconnectsEveryone(t *testing.T) {
	h := NewHub(allowAll, Options{})
	a := h.Register()
	b := h.Register()
	h.Close()
	h.Close()

	for _, c := range []*Client{a, b} {
		_, open := <-c.Send
		assert.False(t, open)
	}

	h.Broadcast("create", "posts", map[string]any{"id": "r1"})
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  Subscription
		ok    bool
	}{
		{"posts/*", Subscription{"posts", "*"}, true},
		{"posts/abc123XYZ", Subscription{"posts", "abc123XYZ"}, true},
		{"posts", Subscription{}, false},
		{"posts/", Subscription{}, false},
		{"/r1", Subscription{}, false},
		{"_fields/*", Subscription{}, false},
		{"posts/has space", Subscription{}, false},
		{"1bad/*", Subscription{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			got, ok := ParseTopic(tt.topic)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConnectFrameFormat(t *testing.T) {
	frame, err := ConnectFrame("client-1")
	require.NoError(t, err)
	assert.Equal(t, "event: PB_CONNECT\ndata: {\"clientId\":\"client-1\"}\n\n", string(frame))
}

func TestPingFrameFormat(t *testing.T) {
	assert.Equal(t, ": ping\n\n", string(PingFrame))
}
