package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/hub"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
	"github.com/DoyleJ11/werewolf-backend/internal/session"
	"github.com/DoyleJ11/werewolf-backend/pkg/types"
)

var (
	errBadRequest  = errors.New("bad request")
	errRateLimited = errors.New("rate limited")
	errNotInRoom   = fmt.Errorf("%w: connection is not in a room", engine.ErrNotEligible)
)

type Options struct {
	Logger         *zap.Logger
	Sessions       *session.Directory
	RateLimit      rate.Limit
	RateBurst      int
	OriginPatterns []string
	OutboxSize     int
	ReadTimeout    time.Duration
}

func (o *Options) defaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sessions == nil {
		o.Sessions = session.NewDirectory()
	}
	if o.RateLimit == 0 {
		o.RateLimit = 10
	}
	if o.RateBurst == 0 {
		o.RateBurst = 20
	}
	if o.OutboxSize == 0 {
		o.OutboxSize = 16
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 5 * time.Minute
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	hub     *hub.Hub
	opts    Options
	log     *zap.Logger
	limiter *rate.Limiter

	// current is only touched by the reader loop.
	current *room.Room
	// closing is set once the reader has stopped for good.
	closing atomic.Bool
}

func Handler(h *hub.Hub, opts Options) http.HandlerFunc {
	opts.defaults()
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			opts.Logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		metrics.Connections.Inc()
		defer metrics.Connections.Dec()

		c := &client{
			id:      uuid.NewString(),
			conn:    conn,
			hub:     h,
			opts:    opts,
			limiter: rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		}
		c.log = opts.Logger.Named("ws").With(zap.String("conn", c.id))
		c.log.Debug("connection opened")
		defer c.disconnect()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), opts.ReadTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				// Treat clean close/going-away as normal:
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					c.log.Debug("connection closed")
				default:
					c.log.Debug("read failed", zap.Error(err))
				}
				return
			}

			if !c.limiter.Allow() {
				c.reject(r.Context(), errRateLimited)
				continue
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				c.reject(r.Context(), fmt.Errorf("%w: malformed json", errBadRequest))
				continue
			}
			if err := c.handle(r.Context(), cm); err != nil {
				c.reject(r.Context(), err)
			}
		}
	}
}

func (c *client) handle(ctx context.Context, cm types.ClientMessage) error {
	switch cm.Type {
	case "create":
		return c.create(ctx, cm)
	case "join":
		return c.join(ctx, cm)
	case "awaitVoting":
		// the browser acknowledges the voting broadcast; nothing to do
		return nil
	}

	b, err := c.binding(cm)
	if err != nil {
		return err
	}

	var msg room.Msg
	switch cm.Type {
	case "leave":
		msg = room.Leave{PlayerID: b.PlayerID}
	case "getRoom", "getUser":
		msg = room.Refresh{PlayerID: b.PlayerID, Event: cm.Type}
	default:
		cmd, err := toEngineCommand(cm, b.PlayerID)
		if err != nil {
			return err
		}
		msg = room.FromClient{Cmd: cmd}
	}

	if !c.current.Send(ctx, msg) {
		return hub.ErrRoomNotFound
	}
	return nil
}

func (c *client) create(ctx context.Context, cm types.ClientMessage) error {
	if _, bound := c.opts.Sessions.Lookup(c.id); bound {
		return session.ErrAlreadyBound
	}
	rule := engine.DefaultRule
	if cm.Rule != nil {
		rule = *cm.Rule
	}

	out := make(chan room.Snapshot, c.opts.OutboxSize)
	res, err := c.hub.Create(ctx, cm.RoomName, playerName(cm), rule, out)
	if err != nil {
		return err
	}
	c.attach(res.Room, res.PlayerID, out)
	return nil
}

func (c *client) join(ctx context.Context, cm types.ClientMessage) error {
	if _, bound := c.opts.Sessions.Lookup(c.id); bound {
		return session.ErrAlreadyBound
	}
	rm, err := c.hub.Get(ctx, cm.RoomID)
	if err != nil {
		return err
	}

	out := make(chan room.Snapshot, c.opts.OutboxSize)
	reply := make(chan room.JoinReply, 1)
	if !rm.Send(ctx, room.Join{Name: playerName(cm), Outbox: out, Reply: reply}) {
		return hub.ErrRoomNotFound
	}
	select {
	case res := <-reply:
		if res.Err != nil {
			return res.Err
		}
		c.attach(rm, res.PlayerID, out)
		return nil
	case <-rm.Done():
		return hub.ErrRoomNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// attach binds the connection to its new membership and starts the writer.
func (c *client) attach(rm *room.Room, playerID string, out <-chan room.Snapshot) {
	b := session.Binding{RoomID: rm.ID(), PlayerID: playerID}
	// Bind cannot fail here: only this reader binds c.id and it checked first.
	_ = c.opts.Sessions.Bind(c.id, b)
	c.current = rm
	c.log.Info("joined room", zap.String("room", b.RoomID), zap.String("player", playerID))

	// Writer goroutine
	go func() {
		last := ""
		for snap := range out {
			last = snap.Event
			c.write(context.Background(), toServerMessage(snap))
		}
		c.opts.Sessions.Unbind(c.id)
		// A room that accepted our leave, or closed, says "leave" last. Any
		// other end means we were dropped for being slow or torn down.
		if !c.closing.Load() && last != "leave" {
			c.log.Warn("room detached connection", zap.String("room", b.RoomID))
			c.conn.Close(websocket.StatusPolicyViolation, "detached from room")
		}
	}()
}

func (c *client) binding(cm types.ClientMessage) (session.Binding, error) {
	b, ok := c.opts.Sessions.Lookup(c.id)
	if !ok || c.current == nil {
		return session.Binding{}, errNotInRoom
	}
	if cm.RoomID != "" && cm.RoomID != b.RoomID {
		return session.Binding{}, fmt.Errorf("%w: bound to room %s", engine.ErrNotEligible, b.RoomID)
	}
	if cm.PlayerID != "" && cm.PlayerID != b.PlayerID {
		return session.Binding{}, fmt.Errorf("%w: connection speaks for another player", engine.ErrNotEligible)
	}
	return b, nil
}

// disconnect tells the room the player's connection is gone.
func (c *client) disconnect() {
	c.closing.Store(true)
	b, ok := c.opts.Sessions.Lookup(c.id)
	if !ok || c.current == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.current.Send(ctx, room.Disconnect{PlayerID: b.PlayerID})
}

func (c *client) reject(ctx context.Context, err error) {
	code := errorCode(err)
	metrics.RejectedCommands.WithLabelValues(code).Inc()
	c.log.Debug("event rejected", zap.String("code", code), zap.Error(err))
	c.write(ctx, types.ServerMessage{Type: "error", Error: &types.Error{Code: code, Message: err.Error()}})
}

func (c *client) write(ctx context.Context, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("encoding message", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, payload)
}

func toEngineCommand(m types.ClientMessage, playerID string) (engine.Command, error) {
	cmd := engine.Command{PlayerID: playerID, TargetID: m.TargetID}
	switch m.Type {
	case "choice":
		cmd.Type = engine.CmdStart
	case "rule":
		if m.Rule == nil {
			return engine.Command{}, fmt.Errorf("%w: rule is required", errBadRequest)
		}
		cmd.Type = engine.CmdUpdateRule
		cmd.Rule = *m.Rule
	case "awaitDiscussion":
		cmd.Type = engine.CmdAwaitDiscussion
	case "awaitVotingResult":
		cmd.Type = engine.CmdAwaitVotingResult
	case "awaitNight":
		cmd.Type = engine.CmdAwaitNight
	case "vote":
		cmd.Type = engine.CmdVote
	case "murder":
		cmd.Type = engine.CmdMurder
	case "hunt":
		cmd.Type = engine.CmdHunt
	case "divine":
		cmd.Type = engine.CmdDivine
	default:
		return engine.Command{}, fmt.Errorf("%w: unknown type %q", errBadRequest, m.Type)
	}
	return cmd, nil
}

func toServerMessage(s room.Snapshot) types.ServerMessage {
	if s.Err != nil {
		code := errorCode(s.Err)
		return types.ServerMessage{Type: "error", Version: s.Version, Error: &types.Error{Code: code, Message: s.Err.Error()}}
	}
	v := s.View
	msg := types.ServerMessage{
		Type:        s.Event,
		Version:     s.Version,
		Room:        &v.Room,
		Users:       v.Users,
		User:        v.Self,
		Suspects:    v.Suspects,
		Divinations: v.Divinations,
	}
	if s.Event == "gameSet" {
		msg.Status = v.Room.Status
	}
	return msg
}

func playerName(cm types.ClientMessage) string {
	if cm.Player == nil {
		return ""
	}
	return cm.Player.Name
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, hub.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, session.ErrAlreadyBound):
		return "NotEligible"
	case errors.Is(err, errRateLimited):
		return "RateLimited"
	case errors.Is(err, errBadRequest):
		return "BadRequest"
	}
	if code := engine.ErrorCode(err); code != "" {
		return code
	}
	return "Internal"
}
