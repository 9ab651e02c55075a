package engine

import "errors"

var ErrInvalidCapacity = errors.New("invalid capacity")
var ErrInvalidRule = errors.New("invalid rule")
var ErrInvalidName = errors.New("invalid name")
var ErrRoomFull = errors.New("room full")
var ErrNotEligible = errors.New("not eligible")
var ErrInvalidTarget = errors.New("invalid target")
var ErrDuplicateSubmission = errors.New("duplicate submission")
var ErrGameAlreadyOver = errors.New("game already over")
var ErrUnsupportedCommand = errors.New("unsupported command")
var ErrInvariantViolation = errors.New("invariant violation")

type Role string

const (
	RoleNone          Role = ""
	RoleWereWolf      Role = "WereWolf"
	RoleFortuneTeller Role = "FortuneTeller"
	RoleMedium        Role = "Medium"
	RoleHunter        Role = "Hunter"
	RoleManiac        Role = "Maniac"
	RoleVillager      Role = "Villager"
)

// HasNightAction reports whether the role owes a targeted action at night.
func (r Role) HasNightAction() bool {
	switch r {
	case RoleWereWolf, RoleFortuneTeller, RoleHunter:
		return true
	}
	return false
}

type Phase string

const (
	PhaseDiscussion   Phase = "Discussion"
	PhaseVoting       Phase = "Voting"
	PhaseVotingResult Phase = "VotingResult"
	PhaseNight        Phase = "Night"
)

type Status string

const (
	StatusContinue  Status = "ContinueGame"
	StatusHumanWin  Status = "HumanWin"
	StatusWolvesWin Status = "WolvesWin"
)

func (s Status) Over() bool {
	return s == StatusHumanWin || s == StatusWolvesWin
}

type Rule struct {
	WereWolves     int `json:"wereWolves"`
	FortuneTellers int `json:"fortuneTellers"`
	Mediums        int `json:"mediumns"`
	Hunters        int `json:"hunters"`
	Maniacs        int `json:"maniacs"`
	Villagers      int `json:"villagers"`
}

type User struct {
	ID        string
	Name      string
	IsHost    bool
	Role      Role
	IsAlive   bool
	VoteCount int
}

type State struct {
	ID            string
	Name          string
	Rule          Rule
	UserIDs       []string
	Users         map[string]User
	InProgress    bool
	Days          int
	Phase         Phase
	IsFinalVoting bool
	LastLynched   string
	LastMurdered  string
	LastHunted    string
	Suspects      []string
	Status        Status
	Seed          uint64
	Barrier       Barrier

	// Revealed information: fortune teller -> divined targets, and the
	// lynched players whose side mediums have learned.
	Divined  map[string][]string
	Mediumed []string
}

type CommandType string

const (
	CmdJoin              CommandType = "join"
	CmdLeave             CommandType = "leave"
	CmdUpdateRule        CommandType = "rule"
	CmdStart             CommandType = "choice"
	CmdAwaitDiscussion   CommandType = "awaitDiscussion"
	CmdVote              CommandType = "vote"
	CmdAwaitVotingResult CommandType = "awaitVotingResult"
	CmdMurder            CommandType = "murder"
	CmdHunt              CommandType = "hunt"
	CmdDivine            CommandType = "divine"
	CmdAwaitNight        CommandType = "awaitNight"
)

/*
	CmdJoin / CmdLeave / CmdUpdateRule -> EvtMemberChanged (host leaving -> EvtRoomClosed)
	CmdStart                           -> EvtGameStarted -> EvtPhaseEntered(Discussion)
	CmdAwaitDiscussion                 -> EvtPhaseEntered(Voting) once the barrier completes
	CmdVote                            -> EvtActionAccepted -> EvtPhaseEntered(VotingResult) [-> EvtGameSet]
	CmdAwaitVotingResult               -> EvtPhaseEntered(Voting | Night)
	CmdMurder / CmdHunt / CmdDivine    -> EvtActionAccepted -> EvtPhaseEntered(Discussion) [-> EvtGameSet]
*/

type Command struct {
	Type     CommandType
	PlayerID string
	TargetID string
	Name     string
	Rule     Rule
}

type EventType string

const (
	EvtMemberChanged  EventType = "MemberChanged"
	EvtRoomClosed     EventType = "RoomClosed"
	EvtGameStarted    EventType = "GameStarted"
	EvtPhaseEntered   EventType = "PhaseEntered"
	EvtActionAccepted EventType = "ActionAccepted"
	EvtGameSet        EventType = "GameSet"
)

type Event struct {
	Type     EventType
	Phase    Phase
	PlayerID string
	Command  CommandType
	Status   Status
}
