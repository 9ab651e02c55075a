package engine

import (
	"errors"
	"maps"
	"slices"
)

func NewState(id, name string, rule Rule, seed uint64) (State, error) {
	if err := rule.Validate(); err != nil {
		return State{}, err
	}
	s := State{
		ID:      id,
		Name:    name,
		Rule:    rule,
		UserIDs: []string{},
		Users:   map[string]User{},
		Phase:   PhaseDiscussion, // nominal until the host starts the game
		Status:  StatusContinue,
		Seed:    seed,
		Divined: map[string][]string{},
	}
	return s, nil
}

func (s State) Clone() State {
	c := s
	c.UserIDs = slices.Clone(s.UserIDs)
	c.Users = maps.Clone(s.Users)
	if c.Users == nil {
		c.Users = map[string]User{}
	}
	c.Suspects = slices.Clone(s.Suspects)
	c.Barrier = s.Barrier.clone()
	c.Divined = make(map[string][]string, len(s.Divined))
	for k, v := range s.Divined {
		c.Divined[k] = slices.Clone(v)
	}
	c.Mediumed = slices.Clone(s.Mediumed)
	return c
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (s State) Full() bool {
	return len(s.UserIDs) >= s.Rule.Capacity()
}

// Result summarises a finished game for the archive.
type Result struct {
	RoomID   string
	RoomName string
	Status   Status
	Days     int
	Players  []User
}

func ResultOf(s State) Result {
	players := make([]User, 0, len(s.UserIDs))
	for _, id := range s.UserIDs {
		players = append(players, s.Users[id])
	}
	return Result{
		RoomID:   s.ID,
		RoomName: s.Name,
		Status:   s.Status,
		Days:     s.Days,
		Players:  players,
	}
}

// ErrorCode maps an engine error onto the code sent to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidCapacity):
		return "InvalidCapacity"
	case errors.Is(err, ErrInvalidRule):
		return "InvalidRule"
	case errors.Is(err, ErrInvalidName):
		return "InvalidName"
	case errors.Is(err, ErrRoomFull):
		return "RoomFull"
	case errors.Is(err, ErrNotEligible):
		return "NotEligible"
	case errors.Is(err, ErrInvalidTarget):
		return "InvalidTarget"
	case errors.Is(err, ErrDuplicateSubmission):
		return "DuplicateSubmission"
	case errors.Is(err, ErrGameAlreadyOver):
		return "GameAlreadyOver"
	case errors.Is(err, ErrUnsupportedCommand):
		return "BadRequest"
	case errors.Is(err, ErrInvariantViolation):
		return "InvariantViolation"
	default:
		return ""
	}
}
