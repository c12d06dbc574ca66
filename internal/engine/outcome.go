package engine

// Result is computed exactly once per session and immutable afterwards. An
// empty WinnerID with Draw set means draw or void.
type Result struct {
	WinnerID string
	Draw     bool
	Reason   EndReason
	Scores   map[string]int
}

// Resolve determines the winner from final participant states. Lives
// exhaustion (including forfeit) dominates score comparison: an exhausted
// participant never beats one still standing, whatever the scores say. Both
// abandoning voids the match entirely.
//
// Deterministic and side-effect free; ids give the comparison a stable
// participant order.
func Resolve(ids []string, players map[string]Participant, lowerIsBetter bool, trigger EndReason) Result {
	r := Result{Reason: trigger, Scores: make(map[string]int, len(players))}
	for id, p := range players {
		r.Scores[id] = p.Score
	}

	if trigger == EndAbandonment || len(ids) < 2 {
		r.Draw = true
		return r
	}

	a, b := ids[0], ids[1]
	pa, pb := players[a], players[b]

	switch {
	case pa.exhausted() && !pb.exhausted():
		r.WinnerID = b
		r.Reason = EndLivesExhausted
		return r
	case pb.exhausted() && !pa.exhausted():
		r.WinnerID = a
		r.Reason = EndLivesExhausted
		return r
	}

	switch {
	case pa.Score == pb.Score:
		r.Draw = true
	case (pa.Score > pb.Score) != lowerIsBetter:
		r.WinnerID = a
	default:
		r.WinnerID = b
	}
	return r
}
