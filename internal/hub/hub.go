package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	randv2 "math/rand/v2"

	"go.uber.org/zap"

	"github.com/DoyleJ11/werewolf-backend/internal/engine"
	"github.com/DoyleJ11/werewolf-backend/internal/metrics"
	"github.com/DoyleJ11/werewolf-backend/internal/room"
)

var ErrRoomNotFound = errors.New("room not found")

type HubMsg interface{ isHubMsg() }

// CreateRoom registers a new room under a fresh code with the sender as host.
type CreateRoom struct {
	Name     string
	Rule     engine.Rule
	HostName string
	Outbox   chan room.Snapshot
	Reply    chan CreateReply
}

type CreateReply struct {
	Room     *room.Room
	PlayerID string
	Err      error
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

type RemoveRoom struct {
	ID string
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Options struct {
	Logger   *zap.Logger
	Archiver room.Archiver
	// NewCode and NewSeed are swappable for tests.
	NewCode     func() (string, error)
	NewSeed     func() uint64
	NewPlayerID func() string
}

type Hub struct {
	inbox  chan HubMsg
	rooms  map[string]*room.Room
	opts   Options
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.NewCode == nil {
		opts.NewCode = GenerateCode
	}
	if opts.NewSeed == nil {
		opts.NewSeed = randv2.Uint64
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Create asks the hub for a new room and waits for the answer.
func (h *Hub) Create(ctx context.Context, name, hostName string, rule engine.Rule, outbox chan room.Snapshot) (CreateReply, error) {
	reply := make(chan CreateReply, 1)
	if err := h.send(ctx, CreateRoom{Name: name, Rule: rule, HostName: hostName, Outbox: outbox, Reply: reply}); err != nil {
		return CreateReply{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-ctx.Done():
		return CreateReply{}, ctx.Err()
	}
}

// Get looks a room up by code.
func (h *Hub) Get(ctx context.Context, id string) (*room.Room, error) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case rm := <-reply:
		if rm == nil {
			return nil, ErrRoomNotFound
		}
		return rm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				msg.Reply <- h.create(msg)

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // May be nil

			case RemoveRoom:
				if _, ok := h.rooms[msg.ID]; ok {
					delete(h.rooms, msg.ID)
					metrics.RoomsActive.Set(float64(len(h.rooms)))
					h.log.Info("room removed", zap.String("room", msg.ID))
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) create(msg CreateRoom) CreateReply {
	var code string
	for {
		c, err := h.opts.NewCode()
		if err != nil {
			return CreateReply{Err: err}
		}
		if h.rooms[c] == nil {
			code = c
			break
		}
		h.log.Debug("collision on code, regenerating", zap.String("code", c))
	}

	state, err := engine.NewState(code, msg.Name, msg.Rule, h.opts.NewSeed())
	if err != nil {
		return CreateReply{Err: err}
	}

	rm, hostID, err := room.New(h.ctx, state, room.Host{Name: msg.HostName, Outbox: msg.Outbox}, room.Options{
		Logger:      h.log,
		Archiver:    h.opts.Archiver,
		OnClose:     h.onClose,
		NewPlayerID: h.opts.NewPlayerID,
	})
	if err != nil {
		return CreateReply{Err: err}
	}

	h.rooms[code] = rm
	metrics.RoomsActive.Set(float64(len(h.rooms)))
	h.log.Info("room created", zap.String("room", code), zap.String("name", msg.Name))
	return CreateReply{Room: rm, PlayerID: hostID}
}

// onClose runs on the room's goroutine.
func (h *Hub) onClose(id string) {
	select {
	case h.inbox <- RemoveRoom{ID: id}:
	case <-h.ctx.Done():
	}
}

// shutdown cancels the hub context, which every room is parented on.
func (h *Hub) shutdown() {
	h.cancel()
	clear(h.rooms)
	metrics.RoomsActive.Set(0)
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := 0; i < 6; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}
