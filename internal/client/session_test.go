package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-canvas/internal/canvas"
	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/protocol"
)

func finalOp(id, author string) domain.Operation {
	return domain.Operation{
		ID:       id,
		AuthorID: author,
		Tool:     domain.ToolPencil,
		Points:   []domain.Point{{X: 1, Y: 1}, {X: 20, Y: 20}},
		Final:    true,
	}
}

func msg(t *testing.T, msgType string, data interface{}) []byte {
	raw, err := protocol.Encode(msgType, data)
	require.NoError(t, err)
	return raw
}

func opIDs(ops []domain.Operation) []string {
	ids := make([]string, len(ops))
	for i, op := range ops {
		ids[i] = op.ID
	}
	return ids
}

func TestRoomURL(t *testing.T) {
	u, err := RoomURL("http://localhost:3000/", "studio")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/ws/room/studio", u)

	u, err = RoomURL("https://canvas.example.com", "a")
	require.NoError(t, err)
	assert.Equal(t, "wss://canvas.example.com/ws/room/a", u)

	_, err = RoomURL("ftp://x", "a")
	assert.Error(t, err)
}

func TestSession_HandleDispatch(t *testing.T) {
	recon := canvas.NewReconciler(100, 100)
	s := NewSession("ws://unused", recon)

	init := protocol.InitPayload{
		ID: "me", Color: "#123456", Name: "User-me",
		State: protocol.StatePayload{Ops: []domain.Operation{finalOp("a", "x")}},
		Users: []domain.Participant{{ID: "me"}, {ID: "x", Name: "User-x"}},
	}
	require.NoError(t, s.Handle(msg(t, protocol.TypeInit, init)))
	assert.Equal(t, "me", s.Self().ID)
	assert.Len(t, s.Users(), 2)
	assert.Equal(t, []string{"a"}, opIDs(recon.Ops()))
	select {
	case <-s.Synced():
	default:
		t.Fatal("session should be synced after init")
	}

	require.NoError(t, s.Handle(msg(t, protocol.TypeStroke, finalOp("b", "x"))))
	assert.Equal(t, []string{"a", "b"}, opIDs(recon.Ops()))

	preview := finalOp("c", "x")
	preview.Final = false
	require.NoError(t, s.Handle(msg(t, protocol.TypeStroke, preview)))
	assert.Equal(t, []string{"c"}, recon.TransientIDs())

	require.NoError(t, s.Handle(msg(t, protocol.TypeRemoveOp, protocol.RemoveOpPayload{ID: "a"})))
	assert.Equal(t, []string{"b"}, opIDs(recon.Ops()))

	require.NoError(t, s.Handle(msg(t, protocol.TypeUserUpdated, protocol.UserUpdatedPayload{ID: "x", Name: "Ada"})))
	require.NoError(t, s.Handle(msg(t, protocol.TypeCursor, protocol.CursorPayload{ID: "x", X: 3, Y: 4})))
	c, ok := s.Cursor("x")
	require.True(t, ok)
	assert.Equal(t, 3.0, c.X)

	// 对方离开时清掉其预览和光标
	require.NoError(t, s.Handle(msg(t, protocol.TypeUserLeft, protocol.UserLeftPayload{ID: "x"})))
	assert.Empty(t, recon.TransientIDs())
	assert.Len(t, s.Users(), 1)
	_, ok = s.Cursor("x")
	assert.False(t, ok)

	require.NoError(t, s.Handle(msg(t, protocol.TypeState, protocol.StatePayload{Ops: []domain.Operation{finalOp("z", "me")}})))
	assert.Equal(t, []string{"z"}, opIDs(recon.Ops()))

	require.NoError(t, s.Handle(msg(t, protocol.TypeClear, nil)))
	assert.Empty(t, recon.Ops())

	require.NoError(t, s.Handle(msg(t, "somethingNew", nil)))
	assert.Error(t, s.Handle([]byte("not json")))
}

func TestSession_HandlePong(t *testing.T) {
	s := NewSession("ws://unused", canvas.NewReconciler(10, 10))
	sent := time.Now().Add(-40 * time.Millisecond).UnixMilli()

	require.NoError(t, s.Handle(msg(t, protocol.TypePongCheck, sent)))

	assert.GreaterOrEqual(t, s.Latency(), 40*time.Millisecond)
}

func TestSession_SendWithoutConnection(t *testing.T) {
	s := NewSession("ws://unused", canvas.NewReconciler(10, 10))
	assert.ErrorIs(t, s.Undo(), ErrNotConnected)
}

// fakeServer 第一次连接发送 init 后立即断开，之后的连接发送带两个操作的 init 并记录收到的消息
type fakeServer struct {
	conns    atomic.Int32
	received chan []byte
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := f.conns.Add(1)

	init := protocol.InitPayload{ID: "me"}
	if n > 1 {
		init.State.Ops = []domain.Operation{finalOp("a", "x"), finalOp("b", "x")}
	}
	raw, _ := protocol.Encode(protocol.TypeInit, init)
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil || n == 1 {
		return
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f.received <- data
	}
}

func TestSession_ReconnectsAndResyncs(t *testing.T) {
	fake := &fakeServer{received: make(chan []byte, 8)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	wsURL, err := RoomURL(srv.URL, "main")
	require.NoError(t, err)
	recon := canvas.NewReconciler(50, 50)
	s := NewSession(wsURL, recon)
	s.MaxReconnect = 5 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(recon.Ops()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, fake.conns.Load(), int32(2))

	require.Eventually(t, func() bool { return s.Undo() == nil }, 2*time.Second, 20*time.Millisecond)
	select {
	case data := <-fake.received:
		assert.True(t, strings.Contains(string(data), `"type":"undo"`))
	case <-time.After(2 * time.Second):
		t.Fatal("server did not receive undo")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSession_ConnectRejectedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad room", http.StatusBadRequest)
	}))
	defer srv.Close()

	wsURL, err := RoomURL(srv.URL, "main")
	require.NoError(t, err)
	s := NewSession(wsURL, canvas.NewReconciler(10, 10))
	s.MaxReconnect = 30 * time.Second

	start := time.Now()
	err = s.Connect(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Less(t, time.Since(start), 5*time.Second)
}
