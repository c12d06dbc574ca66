package engine

import "time"

func NewState(sessionID, gameKey string, rules Rules) State {
	return State{
		SessionID: sessionID,
		GameKey:   gameKey,
		Phase:     PhaseWaiting,
		Players:   map[string]Participant{},
		Rules:     rules,
	}
}

// Remaining reports time left in the round at now, and whether the round is
// bounded at all. Negative remainders clamp to zero.
func (s State) Remaining(now time.Time) (time.Duration, bool) {
	if s.Rules.Unbounded() || s.EndsAt.IsZero() {
		return 0, false
	}
	d := s.EndsAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
