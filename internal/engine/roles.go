package engine

import (
	"fmt"
	"math/rand/v2"
)

// DefaultRule mirrors the rule the browser pre-fills on the create form.
var DefaultRule = Rule{WereWolves: 1, FortuneTellers: 1, Villagers: 4}

func (r Rule) Capacity() int {
	return r.WereWolves + r.FortuneTellers + r.Mediums + r.Hunters + r.Maniacs + r.Villagers
}

func (r Rule) Validate() error {
	counts := []int{r.WereWolves, r.FortuneTellers, r.Mediums, r.Hunters, r.Maniacs, r.Villagers}
	for _, c := range counts {
		if c < 0 {
			return fmt.Errorf("%w: negative role count", ErrInvalidRule)
		}
	}
	if r.WereWolves < 1 {
		return fmt.Errorf("%w: at least one werewolf required", ErrInvalidRule)
	}
	if r.Villagers < 1 {
		return fmt.Errorf("%w: at least one villager required", ErrInvalidRule)
	}
	return nil
}

// Roles flattens the rule into one tag per seat, in a fixed order.
func (r Rule) Roles() []Role {
	roles := make([]Role, 0, r.Capacity())
	add := func(role Role, n int) {
		for range n {
			roles = append(roles, role)
		}
	}
	add(RoleWereWolf, r.WereWolves)
	add(RoleFortuneTeller, r.FortuneTellers)
	add(RoleMedium, r.Mediums)
	add(RoleHunter, r.Hunters)
	add(RoleManiac, r.Maniacs)
	add(RoleVillager, r.Villagers)
	return roles
}

func AssignRoles(rule Rule, ids []string, rng *rand.Rand) (map[string]Role, error) {
	if len(ids) != rule.Capacity() {
		return nil, fmt.Errorf("%w: %d players for %d seats", ErrInvalidCapacity, len(ids), rule.Capacity())
	}

	roles := rule.Roles()
	rng.Shuffle(len(roles), func(i, j int) { roles[i], roles[j] = roles[j], roles[i] })

	assigned := make(map[string]Role, len(ids))
	for i, id := range ids {
		assigned[id] = roles[i]
	}
	return assigned, nil
}

func seededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
