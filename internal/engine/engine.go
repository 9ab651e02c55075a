package engine

import (
	"fmt"
	"slices"
	"strings"
)

// Apply validates cmd against s and returns the events it produced together
// with the next state. s itself is never modified: on error the returned
// state is s unchanged.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdJoin:
		return join(s, cmd)
	case CmdLeave:
		return leave(s, cmd)
	case CmdUpdateRule:
		return updateRule(s, cmd)
	case CmdStart:
		return start(s, cmd)
	case CmdAwaitDiscussion, CmdVote, CmdAwaitVotingResult, CmdMurder, CmdHunt, CmdDivine, CmdAwaitNight:
		return play(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func join(s State, cmd Command) ([]Event, State, error) {
	if s.InProgress {
		return nil, s, fmt.Errorf("%w: game already started", ErrNotEligible)
	}
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return nil, s, ErrInvalidName
	}
	if cmd.PlayerID == "" {
		return nil, s, fmt.Errorf("%w: missing player id", ErrNotEligible)
	}
	if _, ok := s.Users[cmd.PlayerID]; ok {
		return nil, s, fmt.Errorf("%w: already a member", ErrNotEligible)
	}
	if s.Full() {
		return nil, s, ErrRoomFull
	}

	ns := s.Clone()
	ns.UserIDs = append(ns.UserIDs, cmd.PlayerID)
	ns.Users[cmd.PlayerID] = User{
		ID:      cmd.PlayerID,
		Name:    name,
		IsHost:  len(s.UserIDs) == 0,
		IsAlive: true,
	}
	return []Event{{Type: EvtMemberChanged, PlayerID: cmd.PlayerID}}, ns, nil
}

func leave(s State, cmd Command) ([]Event, State, error) {
	u, ok := s.Users[cmd.PlayerID]
	if !ok {
		return nil, s, fmt.Errorf("%w: not a member", ErrNotEligible)
	}
	if s.InProgress && !s.Status.Over() {
		return nil, s, fmt.Errorf("%w: game in progress", ErrNotEligible)
	}

	ns := s.Clone()
	ns.UserIDs = slices.DeleteFunc(ns.UserIDs, func(id string) bool { return id == cmd.PlayerID })
	delete(ns.Users, cmd.PlayerID)

	// The waiting room has no host hand-over: the host leaving ends it.
	if len(ns.UserIDs) == 0 || (u.IsHost && !s.InProgress) {
		ns.Barrier.Disarm()
		return []Event{{Type: EvtRoomClosed, PlayerID: cmd.PlayerID}}, ns, nil
	}
	// After a finished game the longest-standing member takes over.
	if u.IsHost {
		next := ns.Users[ns.UserIDs[0]]
		next.IsHost = true
		ns.Users[next.ID] = next
	}
	return []Event{{Type: EvtMemberChanged, PlayerID: cmd.PlayerID}}, ns, nil
}

func updateRule(s State, cmd Command) ([]Event, State, error) {
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, s, err
	}
	if s.InProgress {
		return nil, s, fmt.Errorf("%w: game already started", ErrNotEligible)
	}
	if err := cmd.Rule.Validate(); err != nil {
		return nil, s, err
	}
	if cmd.Rule.Capacity() < len(s.UserIDs) {
		return nil, s, fmt.Errorf("%w: %d members exceed %d seats", ErrInvalidCapacity, len(s.UserIDs), cmd.Rule.Capacity())
	}

	ns := s.Clone()
	ns.Rule = cmd.Rule
	return []Event{{Type: EvtMemberChanged, PlayerID: cmd.PlayerID}}, ns, nil
}

func start(s State, cmd Command) ([]Event, State, error) {
	if s.Status.Over() {
		return nil, s, ErrGameAlreadyOver
	}
	if err := requireHost(s, cmd.PlayerID); err != nil {
		return nil, s, err
	}
	if s.InProgress {
		return nil, s, fmt.Errorf("%w: game already started", ErrNotEligible)
	}

	roles, err := AssignRoles(s.Rule, s.UserIDs, seededRand(s.Seed))
	if err != nil {
		return nil, s, err
	}

	ns := s.Clone()
	for id, role := range roles {
		u := ns.Users[id]
		u.Role = role
		u.IsAlive = true
		u.VoteCount = 0
		ns.Users[id] = u
	}
	ns.InProgress = true
	ns.Days = 1
	ns.Status = StatusContinue

	events := []Event{{Type: EvtGameStarted, PlayerID: cmd.PlayerID}}
	events = append(events, ns.enterDiscussion()...)
	return events, ns, nil
}

func requireHost(s State, id string) error {
	u, ok := s.Users[id]
	if !ok {
		return fmt.Errorf("%w: not a member", ErrNotEligible)
	}
	if !u.IsHost {
		return fmt.Errorf("%w: host only", ErrNotEligible)
	}
	return nil
}

// play handles every in-game action. Each one is a barrier submission for
// the current phase; the submission that completes the barrier also drives
// the phase transition.
func play(s State, cmd Command) ([]Event, State, error) {
	if !s.InProgress {
		return nil, s, fmt.Errorf("%w: game not started", ErrNotEligible)
	}
	if s.Status.Over() {
		return nil, s, ErrGameAlreadyOver
	}
	actor, ok := s.Users[cmd.PlayerID]
	if !ok {
		return nil, s, fmt.Errorf("%w: not a member", ErrNotEligible)
	}
	if !actor.IsAlive {
		return nil, s, fmt.Errorf("%w: dead players cannot act", ErrNotEligible)
	}
	if want := phaseOf(cmd.Type); s.Phase != want {
		return nil, s, fmt.Errorf("%w: %s is not allowed during %s", ErrNotEligible, cmd.Type, s.Phase)
	}
	if err := checkTarget(s, actor, cmd); err != nil {
		return nil, s, err
	}

	// Roles without a night action were submitted when the night was armed;
	// their acknowledgement changes nothing.
	if cmd.Type == CmdAwaitNight {
		return nil, s, nil
	}

	ns := s.Clone()
	done, err := ns.Barrier.Submit(cmd.PlayerID, cmd.TargetID)
	if err != nil {
		return nil, s, err
	}

	events := []Event{{Type: EvtActionAccepted, PlayerID: cmd.PlayerID, Command: cmd.Type}}
	if !done {
		return events, ns, nil
	}

	var next []Event
	switch s.Phase {
	case PhaseDiscussion:
		next = ns.enterVoting()
	case PhaseVoting:
		next = ns.resolveVoting()
	case PhaseVotingResult:
		if ns.IsFinalVoting {
			next = ns.enterVoting()
		} else {
			next, err = ns.enterNight()
		}
	case PhaseNight:
		next, err = ns.resolveNight()
	}
	if err != nil {
		return nil, s, err
	}
	return append(events, next...), ns, nil
}

func phaseOf(t CommandType) Phase {
	switch t {
	case CmdAwaitDiscussion:
		return PhaseDiscussion
	case CmdVote:
		return PhaseVoting
	case CmdAwaitVotingResult:
		return PhaseVotingResult
	default:
		return PhaseNight
	}
}

func checkTarget(s State, actor User, cmd Command) error {
	switch cmd.Type {
	case CmdVote:
		if cmd.TargetID == actor.ID {
			return fmt.Errorf("%w: cannot vote for yourself", ErrInvalidTarget)
		}
		if s.IsFinalVoting && !slices.Contains(s.Suspects, cmd.TargetID) {
			return fmt.Errorf("%w: runoff is limited to the suspects", ErrInvalidTarget)
		}
	case CmdMurder:
		if actor.Role != RoleWereWolf {
			return fmt.Errorf("%w: only werewolves murder", ErrNotEligible)
		}
		if s.Users[cmd.TargetID].Role == RoleWereWolf {
			return fmt.Errorf("%w: werewolves cannot murder werewolves", ErrInvalidTarget)
		}
	case CmdHunt:
		if actor.Role != RoleHunter {
			return fmt.Errorf("%w: only hunters protect", ErrNotEligible)
		}
	case CmdDivine:
		if actor.Role != RoleFortuneTeller {
			return fmt.Errorf("%w: only fortune tellers divine", ErrNotEligible)
		}
	case CmdAwaitNight:
		if actor.Role.HasNightAction() {
			return fmt.Errorf("%w: %s must submit a night action", ErrNotEligible, actor.Role)
		}
		return nil
	default:
		return nil
	}

	target, ok := s.Users[cmd.TargetID]
	if !ok {
		return fmt.Errorf("%w: %q is not a member", ErrInvalidTarget, cmd.TargetID)
	}
	if !target.IsAlive {
		return fmt.Errorf("%w: %s is dead", ErrInvalidTarget, target.Name)
	}
	return nil
}

func (s *State) enterDiscussion() []Event {
	s.Phase = PhaseDiscussion
	s.Barrier.Arm(s.living())
	return []Event{{Type: EvtPhaseEntered, Phase: PhaseDiscussion}}
}

func (s *State) enterVoting() []Event {
	s.Phase = PhaseVoting
	s.LastLynched = ""
	if !s.IsFinalVoting {
		s.Suspects = nil
	}
	for id, u := range s.Users {
		u.VoteCount = 0
		s.Users[id] = u
	}
	s.Barrier.Arm(s.living())
	return []Event{{Type: EvtPhaseEntered, Phase: PhaseVoting}}
}

func (s *State) resolveVoting() []Event {
	ballots := make(map[string]string)
	for _, voter := range s.Barrier.Order() {
		target, _ := s.Barrier.Payload(voter)
		ballots[voter] = target
	}

	tally := Tally(ballots, s.UserIDs)
	for id, c := range tally.Counts {
		u := s.Users[id]
		u.VoteCount = c
		s.Users[id] = u
	}

	out := ResolveVote(tally, s.IsFinalVoting)
	s.LastLynched = out.Lynched
	s.IsFinalVoting = out.IsFinalVoting
	s.Suspects = out.Suspects
	if out.Lynched != "" {
		s.kill(out.Lynched)
	}

	s.Phase = PhaseVotingResult
	s.Barrier.Arm(s.living())
	events := []Event{{Type: EvtPhaseEntered, Phase: PhaseVotingResult}}
	if out.Lynched != "" {
		events = append(events, s.checkWin()...)
	}
	return events
}

func (s *State) enterNight() ([]Event, error) {
	living := s.living()
	if !slices.ContainsFunc(living, func(id string) bool { return s.Users[id].Role == RoleWereWolf }) {
		return nil, fmt.Errorf("%w: night with no living werewolf", ErrInvariantViolation)
	}

	s.Phase = PhaseNight
	s.LastMurdered = ""
	s.LastHunted = ""
	s.Suspects = nil
	s.Barrier.Arm(living)
	for _, id := range living {
		if !s.Users[id].Role.HasNightAction() {
			_, _ = s.Barrier.Submit(id, "")
		}
	}
	return []Event{{Type: EvtPhaseEntered, Phase: PhaseNight}}, nil
}

func (s *State) resolveNight() ([]Event, error) {
	var actions NightActions
	for _, id := range s.Barrier.Order() {
		target, _ := s.Barrier.Payload(id)
		if target == "" {
			continue
		}
		sub := Submission{ActorID: id, TargetID: target}
		switch s.Users[id].Role {
		case RoleWereWolf:
			actions.Murders = append(actions.Murders, sub)
		case RoleHunter:
			actions.Protects = append(actions.Protects, sub)
		case RoleFortuneTeller:
			actions.Divines = append(actions.Divines, sub)
		}
	}
	if len(actions.Murders) == 0 {
		return nil, fmt.Errorf("%w: night resolved without a murder target", ErrInvariantViolation)
	}

	out := ResolveNight(actions)
	s.LastHunted = out.Protected
	for teller, target := range out.Divined {
		if !slices.Contains(s.Divined[teller], target) {
			s.Divined[teller] = append(s.Divined[teller], target)
		}
	}
	if s.LastLynched != "" && !slices.Contains(s.Mediumed, s.LastLynched) {
		s.Mediumed = append(s.Mediumed, s.LastLynched)
	}

	if out.Murdered != "" {
		s.LastMurdered = out.Murdered
		s.kill(out.Murdered)
		if events := s.checkWin(); len(events) > 0 {
			return events, nil
		}
	}

	s.Days++
	return s.enterDiscussion(), nil
}

// checkWin freezes the game when the living players decide it.
func (s *State) checkWin() []Event {
	status := Evaluate(s.Users)
	if !status.Over() {
		return nil
	}
	s.Status = status
	s.Barrier.Disarm()
	return []Event{{Type: EvtGameSet, Status: status}}
}

func (s *State) kill(id string) {
	u := s.Users[id]
	u.IsAlive = false
	s.Users[id] = u
}

func (s State) living() []string {
	ids := make([]string, 0, len(s.UserIDs))
	for _, id := range s.UserIDs {
		if s.Users[id].IsAlive {
			ids = append(ids, id)
		}
	}
	return ids
}
