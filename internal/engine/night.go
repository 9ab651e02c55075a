package engine

// Submission is one night action, in the order it was accepted.
type Submission struct {
	ActorID  string
	TargetID string
}

type NightActions struct {
	Murders  []Submission
	Protects []Submission
	Divines  []Submission
}

type NightOutcome struct {
	Target    string // the wolves' chosen victim, before protection
	Murdered  string
	Protected string
	Divined   map[string]string // fortune teller -> target
}

// ResolveNight picks the wolves' victim by plurality, ties going to the
// target whose first vote came earliest, then cancels the murder if any
// hunter guarded that target.
func ResolveNight(a NightActions) NightOutcome {
	out := NightOutcome{Divined: make(map[string]string, len(a.Divines))}

	counts := make(map[string]int)
	var firstSeen []string
	for _, m := range a.Murders {
		if counts[m.TargetID] == 0 {
			firstSeen = append(firstSeen, m.TargetID)
		}
		counts[m.TargetID]++
	}
	best := 0
	for _, target := range firstSeen {
		if counts[target] > best {
			best = counts[target]
			out.Target = target
		}
	}

	guarded := make(map[string]bool, len(a.Protects))
	for i, p := range a.Protects {
		if i == 0 {
			out.Protected = p.TargetID
		}
		guarded[p.TargetID] = true
	}

	if out.Target != "" && !guarded[out.Target] {
		out.Murdered = out.Target
	}

	for _, d := range a.Divines {
		out.Divined[d.ActorID] = d.TargetID
	}
	return out
}
