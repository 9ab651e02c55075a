package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ballotsFor(counts map[string]int) map[string]string {
	ballots := map[string]string{}
	n := 0
	for _, target := range []string{"A", "B", "C", "D"} {
		for range counts[target] {
			n++
			ballots["voter"+string(rune('0'+n))] = target
		}
	}
	return ballots
}

func TestResolveVote(t *testing.T) {
	order := []string{"A", "B", "C", "D"}

	cases := []struct {
		name    string
		counts  map[string]int
		isFinal bool
		want    VoteOutcome
	}{
		{
			name:   "single leader",
			counts: map[string]int{"A": 2, "B": 1},
			want:   VoteOutcome{Lynched: "A", Suspects: []string{"A"}},
		},
		{
			name:   "tie starts a runoff",
			counts: map[string]int{"A": 3, "B": 3, "C": 1},
			want:   VoteOutcome{IsFinalVoting: true, Suspects: []string{"A", "B"}},
		},
		{
			name:    "tie on the runoff lynches nobody",
			counts:  map[string]int{"A": 1, "B": 1},
			isFinal: true,
			want:    VoteOutcome{},
		},
		{
			name:    "runoff with a leader",
			counts:  map[string]int{"A": 1, "B": 2},
			isFinal: true,
			want:    VoteOutcome{Lynched: "B", Suspects: []string{"B"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ResolveVote(Tally(ballotsFor(tc.counts), order), tc.isFinal)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("outcome (-want +got):\n%s", diff)
			}
		})
	}
}

func TestTally_LeadersFollowJoinOrder(t *testing.T) {
	ballots := map[string]string{"v1": "C", "v2": "A", "v3": "C", "v4": "A"}
	got := Tally(ballots, []string{"A", "B", "C"})
	if diff := cmp.Diff([]string{"A", "C"}, got.Leaders); diff != "" {
		t.Fatalf("leaders (-want +got):\n%s", diff)
	}
	if got.Counts["A"] != 2 || got.Counts["C"] != 2 || got.Counts["B"] != 0 {
		t.Fatalf("unexpected counts %v", got.Counts)
	}
}

func TestTally_NoBallots(t *testing.T) {
	got := ResolveVote(Tally(nil, []string{"A"}), false)
	if got.Lynched != "" || got.IsFinalVoting {
		t.Fatalf("empty tally must not lynch: %+v", got)
	}
}
