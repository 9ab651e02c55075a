package engine

type TallyResult struct {
	Counts  map[string]int
	Leaders []string
}

// Tally counts ballots (voter -> target). Leaders holds every target with the
// maximum count, listed in the order given by order.
func Tally(ballots map[string]string, order []string) TallyResult {
	counts := make(map[string]int)
	for _, target := range ballots {
		counts[target]++
	}

	maxVotes := 0
	for _, c := range counts {
		if c > maxVotes {
			maxVotes = c
		}
	}

	var leaders []string
	if maxVotes > 0 {
		for _, id := range order {
			if counts[id] == maxVotes {
				leaders = append(leaders, id)
			}
		}
	}
	return TallyResult{Counts: counts, Leaders: leaders}
}

type VoteOutcome struct {
	Lynched       string
	IsFinalVoting bool
	Suspects      []string
}

// ResolveVote applies the tie-break policy: a single leader is lynched, a tie
// on a normal vote starts a runoff among the leaders, and a tie on a runoff
// lynches nobody.
func ResolveVote(t TallyResult, isFinal bool) VoteOutcome {
	switch {
	case len(t.Leaders) == 1:
		return VoteOutcome{Lynched: t.Leaders[0], Suspects: []string{t.Leaders[0]}}
	case len(t.Leaders) > 1 && !isFinal:
		return VoteOutcome{IsFinalVoting: true, Suspects: t.Leaders}
	default:
		return VoteOutcome{}
	}
}
