package engine

import "slices"

type RoomView struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Rule          Rule     `json:"rule"`
	UserIDs       []string `json:"userIds"`
	InProgress    bool     `json:"inProgress"`
	Days          int      `json:"days"`
	Phase         Phase    `json:"phase"`
	IsFinalVoting bool     `json:"isFinalVoting"`
	LastLynched   *string  `json:"lastLynched"`
	LastMurdered  *string  `json:"lastMurdered"`
	LastHunted    *string  `json:"lastHunted"`
	Status        Status   `json:"status"`
}

type UserView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	IsHost     bool   `json:"isHost"`
	Role       Role   `json:"role,omitempty"`
	IsAlive    bool   `json:"isAlive"`
	VoteCount  int    `json:"voteCount"`
	IsAwaiting bool   `json:"isAwaiting"`
}

type Divination struct {
	TargetID   string `json:"targetId"`
	IsWereWolf bool   `json:"isWereWolf"`
}

// View is everything one recipient is allowed to see of a room.
type View struct {
	Room        RoomView
	Users       []UserView
	Self        *UserView
	Suspects    []UserView
	Divinations []Divination
}

// Redact projects s for viewerID. An empty or unknown viewer gets the
// public projection.
func Redact(s State, viewerID string) View {
	viewer, hasViewer := s.Users[viewerID]

	v := View{
		Room: RoomView{
			ID:            s.ID,
			Name:          s.Name,
			Rule:          s.Rule,
			UserIDs:       slices.Clone(s.UserIDs),
			InProgress:    s.InProgress,
			Days:          s.Days,
			Phase:         s.Phase,
			IsFinalVoting: s.IsFinalVoting,
			LastLynched:   ref(s.LastLynched),
			LastMurdered:  ref(s.LastMurdered),
			Status:        s.Status,
		},
		Users: make([]UserView, 0, len(s.UserIDs)),
	}
	if s.Status.Over() || (hasViewer && viewer.Role == RoleHunter) {
		v.Room.LastHunted = ref(s.LastHunted)
	}

	byID := make(map[string]UserView, len(s.UserIDs))
	for _, id := range s.UserIDs {
		u := s.Users[id]
		uv := UserView{
			ID:         u.ID,
			Name:       u.Name,
			IsHost:     u.IsHost,
			IsAlive:    u.IsAlive,
			IsAwaiting: s.Barrier.Submitted(id),
		}
		if s.Phase == PhaseVotingResult {
			uv.VoteCount = u.VoteCount
		}
		if hasViewer && canSeeRole(s, viewer, u) || s.Status.Over() {
			uv.Role = u.Role
		}
		v.Users = append(v.Users, uv)
		byID[id] = uv
	}

	if hasViewer {
		self := byID[viewerID]
		v.Self = &self
		if viewer.Role == RoleFortuneTeller {
			for _, target := range s.Divined[viewerID] {
				v.Divinations = append(v.Divinations, Divination{
					TargetID:   target,
					IsWereWolf: s.Users[target].Role == RoleWereWolf,
				})
			}
		}
	}
	for _, id := range s.Suspects {
		v.Suspects = append(v.Suspects, byID[id])
	}
	return v
}

func canSeeRole(s State, viewer, target User) bool {
	switch {
	case viewer.ID == target.ID:
		return true
	case viewer.Role == RoleWereWolf && target.Role == RoleWereWolf:
		return true
	case viewer.Role == RoleMedium && slices.Contains(s.Mediumed, target.ID):
		return true
	case viewer.Role == RoleFortuneTeller && slices.Contains(s.Divined[viewer.ID], target.ID):
		return true
	}
	return false
}

func ref(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
