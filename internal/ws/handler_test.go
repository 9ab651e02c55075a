package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/pkg/types"
)

func newServer(t *testing.T, opts Options) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return serve(t, hub.NewHub(ctx, hub.Options{}), opts)
}

func serve(t *testing.T, h *hub.Hub, opts Options) string {
	t.Helper()
	srv := httptest.NewServer(Handler(h, opts))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, payload))
}

func recv(t *testing.T, conn *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func recvType(t *testing.T, conn *websocket.Conn, typ string) types.ServerMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := recv(t, conn); msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %q message arrived", typ)
	return types.ServerMessage{}
}

// createRoom returns the room id and host player id.
func createRoom(t *testing.T, conn *websocket.Conn, rule engine.Rule) (string, string) {
	t.Helper()
	send(t, conn, types.ClientMessage{Type: "create", RoomName: "village", Player: &types.Player{Name: "alice"}, Rule: &rule})
	me := recv(t, conn)
	require.Equal(t, "getUser", me.Type)
	require.NotNil(t, me.User)
	require.NotNil(t, me.Room)
	assert.True(t, me.User.IsHost)
	assert.Equal(t, "getRoom", recv(t, conn).Type)
	return me.Room.ID, me.User.ID
}

func TestHandler_CreateAndJoin(t *testing.T) {
	url := newServer(t, Options{})
	host := dial(t, url)
	roomID, _ := createRoom(t, host, engine.Rule{WereWolves: 1, Villagers: 1})

	guest := dial(t, url)
	send(t, guest, types.ClientMessage{Type: "join", RoomID: roomID, Player: &types.Player{Name: "bob"}})
	me := recv(t, guest)
	assert.Equal(t, "getUser", me.Type)
	require.NotNil(t, me.User)
	assert.Equal(t, "bob", me.User.Name)
	assert.False(t, me.User.IsHost)

	changed := recv(t, host)
	assert.Equal(t, "onMemberChanged", changed.Type)
	assert.Len(t, changed.Users, 2)
}

func TestHandler_StartBroadcastsToEveryone(t *testing.T) {
	url := newServer(t, Options{})
	host := dial(t, url)
	roomID, hostID := createRoom(t, host, engine.Rule{WereWolves: 1, Villagers: 1})

	guest := dial(t, url)
	send(t, guest, types.ClientMessage{Type: "join", RoomID: roomID, Player: &types.Player{Name: "bob"}})
	recvType(t, guest, "getUser")

	send(t, host, types.ClientMessage{Type: "choice", RoomID: roomID, PlayerID: hostID})
	for _, conn := range []*websocket.Conn{host, guest} {
		choice := recvType(t, conn, "choice")
		require.NotNil(t, choice.User)
		assert.NotEmpty(t, choice.User.Role, "everyone learns their own role")
		assert.Equal(t, engine.PhaseDiscussion, recv(t, conn).Room.Phase)
	}
}

func TestHandler_Rejections(t *testing.T) {
	url := newServer(t, Options{})

	t.Run("not in a room", func(t *testing.T) {
		conn := dial(t, url)
		send(t, conn, types.ClientMessage{Type: "vote", TargetID: "x"})
		msg := recv(t, conn)
		assert.Equal(t, "error", msg.Type)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "NotEligible", msg.Error.Code)
	})

	t.Run("unknown room", func(t *testing.T) {
		conn := dial(t, url)
		send(t, conn, types.ClientMessage{Type: "join", RoomID: "NOPE00", Player: &types.Player{Name: "bob"}})
		msg := recv(t, conn)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "RoomNotFound", msg.Error.Code)
	})

	t.Run("malformed json keeps the connection", func(t *testing.T) {
		conn := dial(t, url)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))
		msg := recv(t, conn)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "BadRequest", msg.Error.Code)

		createRoom(t, conn, engine.DefaultRule)
	})

	t.Run("speaking for another player", func(t *testing.T) {
		conn := dial(t, url)
		roomID, _ := createRoom(t, conn, engine.DefaultRule)
		send(t, conn, types.ClientMessage{Type: "choice", RoomID: roomID, PlayerID: "someone-else"})
		msg := recv(t, conn)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "NotEligible", msg.Error.Code)
	})

	t.Run("second create on one connection", func(t *testing.T) {
		conn := dial(t, url)
		createRoom(t, conn, engine.DefaultRule)
		send(t, conn, types.ClientMessage{Type: "create", RoomName: "again", Player: &types.Player{Name: "alice"}})
		msg := recv(t, conn)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "NotEligible", msg.Error.Code)
	})

	t.Run("engine rejection", func(t *testing.T) {
		conn := dial(t, url)
		roomID, hostID := createRoom(t, conn, engine.DefaultRule)
		send(t, conn, types.ClientMessage{Type: "choice", RoomID: roomID, PlayerID: hostID})
		msg := recv(t, conn)
		require.NotNil(t, msg.Error)
		assert.Equal(t, "InvalidCapacity", msg.Error.Code)
	})
}

func TestHandler_RateLimited(t *testing.T) {
	url := newServer(t, Options{RateLimit: rate.Every(time.Hour), RateBurst: 1})
	conn := dial(t, url)

	send(t, conn, types.ClientMessage{Type: "awaitVoting"})
	send(t, conn, types.ClientMessage{Type: "awaitVoting"})
	msg := recv(t, conn)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "RateLimited", msg.Error.Code)
}

func TestHandler_LeaveThenJoinElsewhere(t *testing.T) {
	url := newServer(t, Options{})
	host := dial(t, url)
	roomID, _ := createRoom(t, host, engine.DefaultRule)
	other := dial(t, url)
	otherRoom, _ := createRoom(t, other, engine.DefaultRule)

	guest := dial(t, url)
	send(t, guest, types.ClientMessage{Type: "join", RoomID: roomID, Player: &types.Player{Name: "bob"}})
	recvType(t, guest, "getUser")
	send(t, guest, types.ClientMessage{Type: "leave"})
	recvType(t, host, "onMemberChanged") // bob joined
	left := recvType(t, host, "onMemberChanged")
	assert.Len(t, left.Users, 1)

	// the old membership is released asynchronously, so the first attempt
	// may still see the connection as bound
	deadline := time.Now().Add(time.Second)
	for {
		send(t, guest, types.ClientMessage{Type: "join", RoomID: otherRoom, Player: &types.Player{Name: "bob"}})
		msg := recv(t, guest)
		for msg.Type != "getUser" && msg.Type != "error" {
			msg = recv(t, guest)
		}
		if msg.Type == "getUser" {
			assert.Equal(t, otherRoom, msg.Room.ID)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("could not join a second room: %+v", msg.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// members reports the room's member count, or -1 if the room is gone.
func members(h *hub.Hub, roomID string) int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	rm, err := h.Get(ctx, roomID)
	if err != nil {
		return -1
	}
	reply := make(chan room.View, 1)
	if !rm.Send(ctx, room.GetState{Reply: reply}) {
		return -1
	}
	select {
	case v := <-reply:
		return len(v.State.UserIDs)
	case <-ctx.Done():
		return -1
	}
}

func TestHandler_SlowGuestIsRemovedFromWaitingRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Options{})
	url := serve(t, h, Options{OutboxSize: 1})

	res, err := h.Create(ctx, "village", "alice", engine.Rule{WereWolves: 1, Villagers: 2}, make(chan room.Snapshot, 64))
	require.NoError(t, err)
	roomID := res.Room.ID()

	// getUser fills the one-slot outbox; the member broadcast overflows it
	guest := dial(t, url)
	send(t, guest, types.ClientMessage{Type: "join", RoomID: roomID, Player: &types.Player{Name: "bob"}})
	assert.Equal(t, "getUser", recv(t, guest).Type)

	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	_, _, err = guest.Read(rctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err), "got %v", err)

	assert.Eventually(t, func() bool { return members(h, roomID) == 1 }, time.Second, 10*time.Millisecond)
}

func TestHandler_RejectedLeaveKeepsDetachHandling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := hub.NewHub(ctx, hub.Options{})
	url := serve(t, h, Options{})

	host := dial(t, url)
	roomID, hostID := createRoom(t, host, engine.Rule{WereWolves: 1, Villagers: 1})
	guest := dial(t, url)
	send(t, guest, types.ClientMessage{Type: "join", RoomID: roomID, Player: &types.Player{Name: "bob"}})
	recvType(t, guest, "getUser")
	send(t, host, types.ClientMessage{Type: "choice", RoomID: roomID, PlayerID: hostID})
	recvType(t, guest, "awaitDiscussion")

	send(t, guest, types.ClientMessage{Type: "leave"})
	msg := recvType(t, guest, "error")
	require.NotNil(t, msg.Error)
	assert.Equal(t, "NotEligible", msg.Error.Code)

	// the room goes away under the guest; the server must still hang up
	cancel()
	rctx, rcancel := context.WithTimeout(context.Background(), time.Second)
	defer rcancel()
	for {
		_, _, err := guest.Read(rctx)
		if err != nil {
			assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err), "got %v", err)
			return
		}
	}
}
