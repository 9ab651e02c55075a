package types

import "github.com/DoyleJ11/werewolf-backend/internal/engine"

// Client -> Server
//   create:            roomName, player.name, rule (optional)
//   join:              roomId, player.name
//   leave, choice, getRoom, getUser,
//   awaitDiscussion, awaitVotingResult, awaitNight: roomId, playerId
//   rule:              roomId, playerId, rule
//   vote, murder, hunt, divine: roomId, playerId, targetId
//   awaitVoting:       accepted and ignored
//
// Server -> Client
//   every event except error carries version, room, users and user (the
//   recipient's own view). awaitVoting adds suspects, gameSet adds status.
//   error carries { code, message }.

type ClientMessage struct {
	Type     string       `json:"type"`
	RoomID   string       `json:"roomId,omitempty"`
	PlayerID string       `json:"playerId,omitempty"`
	TargetID string       `json:"targetId,omitempty"`
	RoomName string       `json:"roomName,omitempty"`
	Player   *Player      `json:"player,omitempty"`
	Rule     *engine.Rule `json:"rule,omitempty"`
}

type Player struct {
	Name string `json:"name"`
}

type ServerMessage struct {
	Type        string              `json:"type"`
	Version     int                 `json:"version,omitempty"`
	Room        *engine.RoomView    `json:"room,omitempty"`
	Users       []engine.UserView   `json:"users,omitempty"`
	User        *engine.UserView    `json:"user,omitempty"`
	Suspects    []engine.UserView   `json:"suspects,omitempty"`
	Divinations []engine.Divination `json:"divinations,omitempty"`
	Status      engine.Status       `json:"status,omitempty"`
	Error       *Error              `json:"error,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
