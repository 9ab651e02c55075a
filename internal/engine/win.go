package engine

// Evaluate decides the game from the living players alone. Maniacs count
// as humans.
func Evaluate(users map[string]User) Status {
	wolves, humans := 0, 0
	for _, u := range users {
		if !u.IsAlive {
			continue
		}
		if u.Role == RoleWereWolf {
			wolves++
		} else {
			humans++
		}
	}

	switch {
	case wolves == 0:
		return StatusHumanWin
	case wolves >= humans:
		return StatusWolvesWin
	default:
		return StatusContinue
	}
}
