package ws

import (
	"chatrelay/internal/chat"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 7, 27, 16, 0, 0, 0, time.UTC)

type fakeConn struct {
	mu     sync.Mutex
	frames [][]byte
	open   bool
	full   bool
}

func newFakeConn() *fakeConn { return &fakeConn{open: true} }

func (c *fakeConn) Send(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.full {
		return false
	}
	c.frames = append(c.frames, b)
	return true
}

func (c *fakeConn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *fakeConn) decoded(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, f := range c.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (c *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range c.decoded(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeConn) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, m := range c.decoded(t) {
		out = append(out, m["type"].(string))
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

type recordingSinks struct {
	presence [][]chat.Member
	events   []chat.SessionEvent
}

func (r *recordingSinks) PublishPresence(m []chat.Member)    { r.presence = append(r.presence, m) }
func (r *recordingSinks) RecordSession(ev chat.SessionEvent) { r.events = append(r.events, ev) }

type testHub struct {
	*Hub
	seq int
}

func newTestHub(opts Options) *testHub {
	h := NewHub(opts)
	h.now = func() time.Time { return t0.Add(time.Hour) }
	return &testHub{Hub: h}
}

func (th *testHub) connect() (*chat.Session, *fakeConn) {
	th.seq++
	c := newFakeConn()
	s := chat.NewSession(fmt.Sprintf("s-%02d", th.seq), c, "127.0.0.1:1", t0.Add(time.Duration(th.seq)*time.Second))
	th.accept(s)
	return s, c
}

func (th *testHub) send(t *testing.T, s *chat.Session, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	th.receive(s.ID, data)
}

func (th *testHub) named(t *testing.T, name string) (*chat.Session, *fakeConn) {
	t.Helper()
	s, c := th.connect()
	th.send(t, s, map[string]any{"type": "setUsername", "username": name})
	require.Equal(t, chat.Named, s.State())
	return s, c
}

func TestHub_AcceptSendsWelcomeWithoutHistory(t *testing.T) {
	h := newTestHub(Options{})
	_, c := h.connect()

	frames := c.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "system", frames[0]["type"])
	assert.Equal(t, welcomeText, frames[0]["message"])
	assert.NotEmpty(t, frames[0]["timestamp"])
}

// Scenario A
func TestHub_SetUsernameCaseInsensitiveCollision(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.connect()
	h.send(t, alice, map[string]any{"type": "setUsername", "username": "Alice"})

	set := aliceConn.ofType(t, "usernameSet")
	require.Len(t, set, 1)
	assert.Equal(t, "Alice", set[0]["username"])

	other, otherConn := h.connect()
	otherConn.reset()
	h.send(t, other, map[string]any{"type": "setUsername", "username": "alice"})

	assert.Equal(t, []string{"error"}, otherConn.types(t))
	assert.Equal(t, chat.ErrNameTaken.Error(), otherConn.decoded(t)[0]["message"])
	assert.Equal(t, chat.Unnamed, other.State())
}

func TestHub_SetUsernameNotifiesOthersAndPresence(t *testing.T) {
	h := newTestHub(Options{})
	_, bobConn := h.named(t, "Bob")
	bobConn.reset()

	alice, aliceConn := h.connect()
	aliceConn.reset()
	h.send(t, alice, map[string]any{"type": "setUsername", "username": "  Alice "})

	assert.Equal(t, []string{"usernameSet", "userList"}, aliceConn.types(t))
	assert.Equal(t, []string{"notification", "userList"}, bobConn.types(t))
	assert.Equal(t, "Alice joined the chat", bobConn.ofType(t, "notification")[0]["message"])

	list := bobConn.ofType(t, "userList")[0]
	assert.EqualValues(t, 2, list["count"])
	users := list["users"].([]any)
	require.Len(t, users, 2)
	assert.Equal(t, "Bob", users[0].(map[string]any)["username"])
	assert.Equal(t, "Alice", users[1].(map[string]any)["username"])
}

func TestHub_SetUsernameValidation(t *testing.T) {
	tests := []struct {
		name     string
		username any
		want     string
	}{
		{name: "empty", username: "   ", want: chat.ErrNameEmpty.Error()},
		{name: "missing", username: nil, want: chat.ErrNameEmpty.Error()},
		{name: "too long", username: strings.Repeat("x", 21), want: chat.ErrNameTooLong.Error()},
		{name: "wrong type", username: 42, want: ErrMalformedFrame.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(Options{})
			_, watcher := h.named(t, "Watcher")
			watcher.reset()

			s, c := h.connect()
			c.reset()
			h.send(t, s, map[string]any{"type": "setUsername", "username": tt.username})

			frames := c.decoded(t)
			require.Len(t, frames, 1)
			assert.Equal(t, "error", frames[0]["type"])
			assert.Equal(t, tt.want, frames[0]["message"])
			assert.Empty(t, watcher.decoded(t), "validation failures must not broadcast")
			assert.Equal(t, chat.Unnamed, s.State())
		})
	}
}

func TestHub_NoRename(t *testing.T) {
	h := newTestHub(Options{})
	s, c := h.named(t, "Alice")
	c.reset()

	h.send(t, s, map[string]any{"type": "setUsername", "username": "Alicia"})

	frames := c.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, chat.ErrAlreadyNamed.Error(), frames[0]["message"])
	assert.Equal(t, "Alice", s.Name())
}

// Scenario B
func TestHub_MessageBroadcastToEveryoneIncludingSender(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")
	_, lurkerConn := h.connect()
	aliceConn.reset()
	bobConn.reset()
	lurkerConn.reset()

	h.send(t, alice, map[string]any{"type": "message", "message": " hi "})

	var got []map[string]any
	for _, c := range []*fakeConn{aliceConn, bobConn, lurkerConn} {
		frames := c.ofType(t, "message")
		require.Len(t, frames, 1)
		got = append(got, frames[0])
	}
	assert.Equal(t, "Alice", got[0]["username"])
	assert.Equal(t, "hi", got[0]["message"])
	assert.NotEmpty(t, got[0]["id"])
	assert.Equal(t, got[0], got[1])
	assert.Equal(t, got[0], got[2])
	assert.Equal(t, 1, h.history.Len())
}

// Scenario C
func TestHub_HistoryReplayAfterEviction(t *testing.T) {
	h := newTestHub(Options{HistoryCapacity: 2, HistoryReplay: 10})
	alice, _ := h.named(t, "Alice")
	for _, body := range []string{"a", "b", "c"} {
		h.send(t, alice, map[string]any{"type": "message", "message": body})
	}

	_, newcomer := h.connect()
	hist := newcomer.ofType(t, "history")
	require.Len(t, hist, 1)

	msgs := hist[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "b", msgs[0].(map[string]any)["message"])
	assert.Equal(t, "c", msgs[1].(map[string]any)["message"])
	assert.Equal(t, []string{"system", "history"}, newcomer.types(t))
}

func TestHub_HistoryReplayWindow(t *testing.T) {
	h := newTestHub(Options{HistoryReplay: 10})
	alice, _ := h.named(t, "Alice")
	for i := 0; i < 15; i++ {
		h.send(t, alice, map[string]any{"type": "message", "message": fmt.Sprint(i)})
	}

	_, newcomer := h.connect()
	msgs := newcomer.ofType(t, "history")[0]["messages"].([]any)
	require.Len(t, msgs, 10)
	assert.Equal(t, "5", msgs[0].(map[string]any)["message"])
	assert.Equal(t, "14", msgs[9].(map[string]any)["message"])
	assert.Equal(t, 15, h.history.Len())
}

// Scenario D
func TestHub_DisconnectNotifiesAndUpdatesPresence(t *testing.T) {
	h := newTestHub(Options{})
	alice, _ := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")
	bobConn.reset()

	h.disconnect(alice.ID)

	assert.Equal(t, []string{"notification", "userList"}, bobConn.types(t))
	assert.Equal(t, "Alice left the chat", bobConn.ofType(t, "notification")[0]["message"])
	list := bobConn.ofType(t, "userList")[0]
	assert.EqualValues(t, 1, list["count"])
	assert.Equal(t, "Bob", list["users"].([]any)[0].(map[string]any)["username"])

	// the name is free again
	_, _ = h.named(t, "alice")
}

func TestHub_DisconnectUnnamedIsQuiet(t *testing.T) {
	h := newTestHub(Options{})
	s, c := h.connect()
	_, bobConn := h.named(t, "Bob")
	bobConn.reset()

	h.disconnect(s.ID)

	assert.Empty(t, bobConn.decoded(t))
	assert.False(t, c.Open())
	assert.Equal(t, 1, h.registry.Len())
}

func TestHub_DisconnectIsIdempotent(t *testing.T) {
	h := newTestHub(Options{})
	alice, _ := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")

	h.disconnect(alice.ID)
	bobConn.reset()
	h.disconnect(alice.ID)
	h.disconnect("never-existed")

	assert.Empty(t, bobConn.decoded(t))
	assert.Equal(t, 1, h.registry.Len())
}

// Scenario E
func TestHub_MessageTooLong(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")
	aliceConn.reset()
	bobConn.reset()

	h.send(t, alice, map[string]any{"type": "message", "message": strings.Repeat("x", 501)})

	assert.Equal(t, []string{"error"}, aliceConn.types(t))
	assert.Equal(t, chat.ErrMessageTooLong.Error(), aliceConn.decoded(t)[0]["message"])
	assert.Empty(t, bobConn.decoded(t))
	assert.Equal(t, 0, h.history.Len())
}

func TestHub_EmptyMessage(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.named(t, "Alice")
	aliceConn.reset()

	h.send(t, alice, map[string]any{"type": "message", "message": "   "})

	assert.Equal(t, chat.ErrMessageEmpty.Error(), aliceConn.decoded(t)[0]["message"])
	assert.Equal(t, 0, h.history.Len())
}

func TestHub_UnnamedChatAndTypingAreDropped(t *testing.T) {
	h := newTestHub(Options{})
	s, c := h.connect()
	_, bobConn := h.named(t, "Bob")
	c.reset()
	bobConn.reset()

	h.send(t, s, map[string]any{"type": "message", "message": "hello"})
	h.send(t, s, map[string]any{"type": "typing", "isTyping": true})

	assert.Empty(t, c.decoded(t))
	assert.Empty(t, bobConn.decoded(t))
	assert.Equal(t, 0, h.history.Len())
	assert.Equal(t, 2, h.registry.Len())
	assert.Equal(t, 1, h.registry.NamedCount())
}

func TestHub_TypingGoesToOthersOnly(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")
	aliceConn.reset()
	bobConn.reset()

	h.send(t, alice, map[string]any{"type": "typing", "isTyping": true})

	assert.Empty(t, aliceConn.decoded(t))
	frames := bobConn.ofType(t, "typing")
	require.Len(t, frames, 1)
	assert.Equal(t, "Alice", frames[0]["username"])
	assert.Equal(t, true, frames[0]["isTyping"])
}

func TestHub_PingRepliesToCallerOnly(t *testing.T) {
	h := newTestHub(Options{})
	s, c := h.connect()
	_, bobConn := h.named(t, "Bob")
	c.reset()
	bobConn.reset()

	h.send(t, s, map[string]any{"type": "ping"})

	frames := c.decoded(t)
	require.Len(t, frames, 1)
	assert.Equal(t, "pong", frames[0]["type"])
	assert.Equal(t, t0.Add(time.Hour).Format(time.RFC3339), frames[0]["timestamp"])
	assert.Empty(t, bobConn.decoded(t))
	assert.Equal(t, t0.Add(time.Hour), s.LastActivityAt)
}

func TestHub_MalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "not json", raw: "hello", want: ErrMalformedFrame.Error()},
		{name: "missing type", raw: `{"message":"hi"}`, want: ErrMalformedFrame.Error()},
		{name: "array", raw: `[1,2]`, want: ErrMalformedFrame.Error()},
		{name: "unknown type", raw: `{"type":"shout"}`, want: "unknown message type: shout"},
		{name: "bad typing flag", raw: `{"type":"typing","isTyping":"yes"}`, want: ErrMalformedFrame.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHub(Options{})
			s, c := h.named(t, "Alice")
			_, bobConn := h.named(t, "Bob")
			c.reset()
			bobConn.reset()

			h.receive(s.ID, []byte(tt.raw))

			frames := c.decoded(t)
			require.Len(t, frames, 1)
			assert.Equal(t, "error", frames[0]["type"])
			assert.Equal(t, tt.want, frames[0]["message"])
			assert.Empty(t, bobConn.decoded(t))
			assert.True(t, c.Open(), "malformed frames are not fatal")
		})
	}
}

func TestHub_ReceiveForUnknownSessionIsNoop(t *testing.T) {
	h := newTestHub(Options{})
	assert.NotPanics(t, func() { h.receive("ghost", []byte(`{"type":"ping"}`)) })
}

func TestHub_UserListCountMatchesNamedSessions(t *testing.T) {
	h := newTestHub(Options{})
	_, watcher := h.connect()

	var sessions []*chat.Session
	for i := 0; i < 5; i++ {
		s, _ := h.named(t, fmt.Sprintf("user%d", i))
		sessions = append(sessions, s)
	}
	h.disconnect(sessions[1].ID)
	h.disconnect(sessions[3].ID)

	lists := watcher.ofType(t, "userList")
	require.Len(t, lists, 7)
	wantCounts := []float64{1, 2, 3, 4, 5, 4, 3}
	for i, l := range lists {
		assert.Equal(t, wantCounts[i], l["count"])
		assert.Len(t, l["users"].([]any), int(wantCounts[i]))
	}
}

func TestHub_SweepRemovesDeadConnections(t *testing.T) {
	h := newTestHub(Options{})
	alice, aliceConn := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")
	bobConn.reset()

	aliceConn.Close() // close event never reached the loop
	h.sweep()

	_, ok := h.registry.Get(alice.ID)
	assert.False(t, ok)
	assert.Equal(t, []string{"notification", "userList"}, bobConn.types(t))
}

func TestHub_FailedSendClosesConnection(t *testing.T) {
	h := newTestHub(Options{})
	alice, _ := h.named(t, "Alice")
	_, bobConn := h.named(t, "Bob")

	bobConn.mu.Lock()
	bobConn.full = true
	bobConn.mu.Unlock()

	h.send(t, alice, map[string]any{"type": "message", "message": "hi"})

	assert.False(t, bobConn.Open())
	assert.Equal(t, 1, h.history.Len())
}

func TestHub_Sinks(t *testing.T) {
	sinks := &recordingSinks{}
	h := newTestHub(Options{Presence: sinks, Sessions: sinks})

	alice, _ := h.named(t, "Alice")
	h.disconnect(alice.ID)

	require.Len(t, sinks.presence, 2)
	assert.Len(t, sinks.presence[0], 1)
	assert.Len(t, sinks.presence[1], 0)

	var kinds []chat.SessionEventKind
	for _, ev := range sinks.events {
		kinds = append(kinds, ev.Kind)
		assert.Equal(t, alice.ID, ev.SessionID)
	}
	assert.Equal(t, []chat.SessionEventKind{chat.SessionOpened, chat.SessionNamed, chat.SessionClosed}, kinds)
	assert.Equal(t, "Alice", sinks.events[2].Username)
}

func TestHub_RunServesQueriesAndShutsDown(t *testing.T) {
	h := newTestHub(Options{SweepInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := newFakeConn()
	s := chat.NewSession("run-1", c, "127.0.0.1:1", t0)
	require.NoError(t, h.Join(ctx, s))
	require.True(t, h.Receive(s.ID, []byte(`{"type":"setUsername","username":"Alice"}`)))
	require.True(t, h.Receive(s.ID, []byte(`{"type":"message","message":"hi"}`)))

	qctx, qcancel := context.WithTimeout(context.Background(), time.Second)
	defer qcancel()

	st, err := h.Stats(qctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Connections)
	assert.Equal(t, 1, st.NamedUsers)
	assert.Equal(t, 1, st.BufferedMessages)

	users, err := h.Users(qctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Username)

	cancel()
	<-h.Done()

	assert.False(t, c.Open())
	_, err = h.Stats(qctx)
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.ErrorIs(t, h.Join(qctx, s), ErrHubStopped)
	assert.False(t, h.Receive(s.ID, nil))
	h.Leave(s.ID) // must not block
}
