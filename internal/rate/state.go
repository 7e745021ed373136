package rate

// DefaultThreshold is the number of attempts allowed before cooldown.
const DefaultThreshold = 5

// State is the attempt counter for one class of sensitive actions.
//
// Cooldown == true means further attempts are rejected until Reset.
type State struct {
	Attempts int  `json:"attempts"`
	Cooldown bool `json:"cooldown"`
}

// CheckAndRecord records one attempt against s.
//
// When s is in cooldown the attempt is rejected and s is returned unchanged.
// Otherwise the attempt is allowed, Attempts is incremented, and Cooldown is
// set once Attempts reaches threshold.
func CheckAndRecord(s State, threshold int) (bool, State) {
	threshold = normalizeThreshold(threshold)
	if s.Cooldown {
		return false, s
	}
	if s.Attempts < 0 {
		s.Attempts = 0
	}

	next := State{Attempts: s.Attempts + 1}
	next.Cooldown = next.Attempts >= threshold
	return true, next
}

// ForceCooldown returns the state a server-side 429 maps to, independent of
// the local counter.
func ForceCooldown(threshold int) State {
	return State{Attempts: normalizeThreshold(threshold), Cooldown: true}
}

// Reset returns the zero state.
func Reset() State {
	return State{}
}

func normalizeThreshold(threshold int) int {
	if threshold <= 0 {
		return DefaultThreshold
	}
	return threshold
}
