package room

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
)

type Msg interface{ isRoomMsg() }

type Join struct {
	Name   string
	Outbox chan Snapshot // where this member wants to receive snapshots
	Reply  chan JoinReply
}

func (Join) isRoomMsg() {}

type JoinReply struct {
	PlayerID string
	Err      error
}

// Leave is an explicit request to leave the room.
type Leave struct{ PlayerID string }

func (Leave) isRoomMsg() {}

// Disconnect reports that a member's connection is gone.
type Disconnect struct{ PlayerID string }

func (Disconnect) isRoomMsg() {}

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isRoomMsg() {}

// Refresh pushes the current snapshot to one member under the given event
// name ("getRoom" or "getUser").
type Refresh struct {
	PlayerID string
	Event    string
}

func (Refresh) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

// Snapshot is one outbound push, already redacted for its recipient.
type Snapshot struct {
	Event   string
	Version int
	View    engine.View
	Err     error
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

// Archiver stores finished games. It is called off the room goroutine.
type Archiver interface {
	SaveGame(ctx context.Context, r engine.Result) error
}

type Options struct {
	Logger      *zap.Logger
	Archiver    Archiver
	OnClose     func(id string)
	NewPlayerID func() string
}

type Host struct {
	Name   string
	Outbox chan Snapshot
}

type Room struct {
	id      string
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	dropped []string // slow members awaiting disconnect handling
	closed  bool
	opts    Options
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New builds the room with host already joined and starts its loop. It
// returns the host's player id.
func New(parent context.Context, initial engine.State, host Host, opts Options) (*Room, string, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewPlayerID == nil {
		opts.NewPlayerID = uuid.NewString
	}

	hostID := opts.NewPlayerID()
	_, state, err := engine.Apply(initial, engine.Command{Type: engine.CmdJoin, PlayerID: hostID, Name: host.Name})
	if err != nil {
		return nil, "", err
	}

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		id:      initial.ID,
		inbox:   make(chan Msg, 64),
		state:   state,
		clients: map[string]chan Snapshot{hostID: host.Outbox},
		opts:    opts,
		log:     opts.Logger.With(zap.String("room", initial.ID)),
		ctx:     ctx,
		cancel:  cancel,
	}
	r.push(hostID, "getUser")
	r.push(hostID, "getRoom")

	go r.loop()
	return r, hostID, nil
}

func (r *Room) ID() string { return r.id }

// Inbox is exposed so tests and the ws layer can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Send delivers m unless the room or ctx is gone first.
func (r *Room) Send(ctx context.Context, m Msg) bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.ctx.Done():
		return false
	case <-ctx.Done():
		return false
	}
}

func (r *Room) loop() {
	r.flushDropped()
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Leave:
				if r.apply(engine.Command{Type: engine.CmdLeave, PlayerID: msg.PlayerID}) {
					r.push(msg.PlayerID, "leave")
					r.detach(msg.PlayerID)
				}

			case Disconnect:
				r.disconnect(msg.PlayerID)

			case FromClient:
				r.apply(msg.Cmd)

			case Refresh:
				r.push(msg.PlayerID, msg.Event)

			case GetState:
				// reflect internal state without data races (tests, /rooms/{id})
				msg.Reply <- View{
					Version:    r.version,
					NumClients: len(r.clients),
					State:      r.state.Clone(),
				}

			case Shutdown:
				r.shutdown()
				return
			}
			r.flushDropped()
			if r.closed {
				return
			}
		}
	}
}

func (r *Room) join(msg Join) JoinReply {
	id := r.opts.NewPlayerID()
	events, next, err := engine.Apply(r.state, engine.Command{Type: engine.CmdJoin, PlayerID: id, Name: msg.Name})
	if err != nil {
		r.reject(err)
		return JoinReply{Err: err}
	}
	r.commit(next)
	r.clients[id] = msg.Outbox
	r.push(id, "getUser")
	r.dispatch(events)
	return JoinReply{PlayerID: id}
}

// apply runs one command through the engine. Rejections go only to the
// sender and leave the state untouched.
func (r *Room) apply(cmd engine.Command) bool {
	events, next, err := engine.Apply(r.state, cmd)
	if errors.Is(err, engine.ErrInvariantViolation) {
		r.log.Error("tearing down room", zap.Error(err), zap.String("command", string(cmd.Type)))
		r.shutdown()
		return false
	}
	if err != nil {
		r.reject(err)
		r.sendTo(cmd.PlayerID, Snapshot{Event: "error", Version: r.version, Err: err})
		return false
	}
	if len(events) > 0 {
		r.commit(next)
		r.dispatch(events)
	}
	return true
}

func (r *Room) commit(next engine.State) {
	r.state = next
	r.version++
}

func (r *Room) reject(err error) {
	metrics.RejectedCommands.WithLabelValues(engine.ErrorCode(err)).Inc()
	r.log.Debug("command rejected", zap.Error(err))
}

// dispatch turns engine events into pushes. Phase changes are broadcast;
// action acknowledgements go to the actor, and a submission that did not
// move the phase refreshes everyone's awaiting flags.
func (r *Room) dispatch(events []engine.Event) {
	advanced := engine.ContainsEvent(events, engine.EvtPhaseEntered) || engine.ContainsEvent(events, engine.EvtGameSet)

	for _, e := range events {
		switch e.Type {
		case engine.EvtMemberChanged:
			r.broadcast("onMemberChanged")

		case engine.EvtRoomClosed:
			r.broadcast("leave")
			r.shutdown()
			return

		case engine.EvtGameStarted:
			metrics.GamesStarted.Inc()
			r.log.Info("game started", zap.Int("players", len(r.state.UserIDs)))
			r.broadcast("choice")

		case engine.EvtPhaseEntered:
			metrics.PhaseTransitions.WithLabelValues(string(e.Phase)).Inc()
			r.log.Debug("phase entered", zap.String("phase", string(e.Phase)), zap.Int("days", r.state.Days))
			r.broadcast(phaseEvent(e.Phase))

		case engine.EvtActionAccepted:
			switch e.Command {
			case engine.CmdVote, engine.CmdMurder, engine.CmdHunt, engine.CmdDivine:
				r.push(e.PlayerID, string(e.Command))
			}
			if !advanced {
				r.broadcast("getRoom")
			}

		case engine.EvtGameSet:
			metrics.GamesFinished.WithLabelValues(string(e.Status)).Inc()
			r.log.Info("game set", zap.String("status", string(e.Status)), zap.Int("days", r.state.Days))
			r.broadcast("gameSet")
			r.archive()
		}
	}
}

func phaseEvent(p engine.Phase) string {
	switch p {
	case engine.PhaseVoting:
		return "awaitVoting"
	case engine.PhaseVotingResult:
		return "awaitVotingResult"
	case engine.PhaseNight:
		return "awaitNight"
	default:
		return "awaitDiscussion"
	}
}

func (r *Room) disconnect(id string) {
	if _, ok := r.state.Users[id]; !ok {
		return
	}
	// Outside a running game a dropped connection is a leave. During one the
	// player stays a member and keeps the barrier waiting.
	if !r.state.InProgress || r.state.Status.Over() {
		r.apply(engine.Command{Type: engine.CmdLeave, PlayerID: id})
	}
	r.detach(id)
}

// detach stops pushes to id. A started room with nobody left to push to
// can never progress again, so it is closed.
func (r *Room) detach(id string) {
	if r.closed {
		return
	}
	if ch, ok := r.clients[id]; ok {
		close(ch)
		delete(r.clients, id)
	}
	if len(r.clients) == 0 && r.state.InProgress {
		r.log.Info("no members connected, closing room")
		r.shutdown()
	}
}

func (r *Room) archive() {
	if r.opts.Archiver == nil {
		return
	}
	result := engine.ResultOf(r.state)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.opts.Archiver.SaveGame(ctx, result); err != nil {
			r.log.Warn("archiving game failed", zap.Error(err))
		}
	}()
}

func (r *Room) snapshot(id, event string) Snapshot {
	return Snapshot{Event: event, Version: r.version, View: engine.Redact(r.state, id)}
}

func (r *Room) push(id, event string) {
	r.sendTo(id, r.snapshot(id, event))
}

func (r *Room) broadcast(event string) {
	for id := range r.clients {
		r.sendTo(id, r.snapshot(id, event))
	}
}

func (r *Room) sendTo(id string, snap Snapshot) {
	ch, ok := r.clients[id]
	if !ok {
		return
	}
	select {
	case ch <- snap:
		//ok
	default:
		// Member is slow/full - drop them.
		r.log.Warn("dropping slow member", zap.String("player", id))
		close(ch)
		delete(r.clients, id)
		r.dropped = append(r.dropped, id)
	}
}

// flushDropped treats every member dropped for being slow as disconnected.
// It runs between messages so a broadcast never re-enters the engine.
func (r *Room) flushDropped() {
	for len(r.dropped) > 0 && !r.closed {
		id := r.dropped[0]
		r.dropped = r.dropped[1:]
		r.disconnect(id)
	}
}

func (r *Room) shutdown() {
	if r.closed {
		return
	}
	r.closed = true
	for id, ch := range r.clients {
		close(ch) // Tell member no more snapshots
		delete(r.clients, id)
	}
	r.state.Barrier.Disarm()
	r.cancel()
	if r.opts.OnClose != nil {
		r.opts.OnClose(r.state.ID)
	}
}
