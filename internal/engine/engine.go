package engine

import (
	"errors"
	"time"
)

var ErrDuplicateJoin = errors.New("participant already joined")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrStaleUpdate = errors.New("stale update")
var ErrWrongPhase = errors.New("wrong phase")
var ErrSessionEnded = errors.New("session already ended")

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseEnded     Phase = "ended"
)

type EndReason string

const (
	EndTimeExpired    EndReason = "time_expired"
	EndLivesExhausted EndReason = "lives_exhausted"
	EndAbandonment    EndReason = "abandonment"
	EndBothFinished   EndReason = "both_finished"
)

// UnlimitedLives is the sentinel for game types without a failure budget.
const UnlimitedLives = -1

// Rules is the slice of per-game-type configuration the state machine needs.
type Rules struct {
	Duration       time.Duration // <= 0 means unbounded round
	Lives          int           // UnlimitedLives disables the budget
	LowerIsBetter  bool
	MonotonicScore bool
}

func (r Rules) Unbounded() bool { return r.Duration <= 0 }

type Participant struct {
	Score     int
	Lives     int
	Connected bool
	Finished  bool
	Forfeited bool
}

// exhausted reports whether the participant is out of the match for reasons
// other than time: lives spent, or forfeited after the disconnect grace.
func (p Participant) exhausted() bool {
	return p.Finished && (p.Forfeited || p.Lives == 0)
}

type State struct {
	SessionID string
	GameKey   string
	Phase     Phase
	Seed      uint64
	Players   map[string]Participant
	JoinOrder []string
	StartedAt time.Time
	EndsAt    time.Time
	Result    *Result
	Rules     Rules
}

type CommandType string

const (
	CmdJoin          CommandType = "Join"
	CmdLeave         CommandType = "Leave"
	CmdScoreUpdate   CommandType = "ScoreUpdate"
	CmdFailure       CommandType = "Failure"
	CmdFinish        CommandType = "Finish"
	CmdDisconnect    CommandType = "Disconnect"
	CmdCountdownOver CommandType = "CountdownOver"
	CmdDeadline      CommandType = "Deadline"
	CmdGraceOver     CommandType = "GraceOver"
)

type Command struct {
	Type          CommandType
	ParticipantID string
	Score         int
	Seed          uint64    // consumed only by the session-starting Join
	Now           time.Time // wall clock supplied by the caller
}

type EventType string

const (
	EvtJoined           EventType = "Joined"
	EvtReconnected      EventType = "Reconnected"
	EvtCountdownStarted EventType = "CountdownStarted"
	EvtRoundStarted     EventType = "RoundStarted"
	EvtScoreApplied     EventType = "ScoreApplied"
	EvtLifeLost         EventType = "LifeLost"
	EvtFinished         EventType = "Finished"
	EvtDisconnected     EventType = "Disconnected"
	EvtEnded            EventType = "Ended"
	EvtVoided           EventType = "Voided"
)

type Event struct {
	Type          EventType
	ParticipantID string
}

// Apply runs one command against the session state and returns the events
// the caller should act on, plus the successor state. State is treated as a
// value; the player map is copied before mutation so callers can keep old
// snapshots safely.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Phase == PhaseEnded {
		if cmd.Type == CmdJoin {
			return nil, s, ErrSessionEnded
		}
		return nil, s, ErrStaleUpdate
	}

	ns := s
	ns.Players = clonePlayers(s.Players)

	switch cmd.Type {
	case CmdJoin:
		if p, ok := ns.Players[cmd.ParticipantID]; ok {
			if p.Connected {
				return nil, s, ErrDuplicateJoin
			}
			p.Connected = true
			ns.Players[cmd.ParticipantID] = p
			return []Event{{Type: EvtReconnected, ParticipantID: cmd.ParticipantID}}, ns, nil
		}
		if len(ns.Players) >= 2 {
			return nil, s, ErrDuplicateJoin
		}
		ns.Players[cmd.ParticipantID] = Participant{Lives: ns.Rules.Lives, Connected: true}
		ns.JoinOrder = append(append([]string(nil), ns.JoinOrder...), cmd.ParticipantID)

		events := []Event{{Type: EvtJoined, ParticipantID: cmd.ParticipantID}}
		if len(ns.Players) == 2 {
			ns.Seed = cmd.Seed
			ns.Phase = PhaseCountdown
			events = append(events, Event{Type: EvtCountdownStarted})
		}
		return events, ns, nil

	case CmdCountdownOver:
		if ns.Phase != PhaseCountdown {
			return nil, s, ErrWrongPhase
		}
		ns.Phase = PhaseActive
		ns.StartedAt = cmd.Now
		if !ns.Rules.Unbounded() {
			ns.EndsAt = cmd.Now.Add(ns.Rules.Duration)
		}
		events := []Event{{Type: EvtRoundStarted}}
		// Forfeits during the countdown (grace shorter than the countdown)
		// only become resolvable once the round is live.
		if ended, evs := maybeEnd(&ns); ended {
			events = append(events, evs...)
		}
		return events, ns, nil

	case CmdScoreUpdate:
		p, err := activePlayer(ns, cmd.ParticipantID)
		if err != nil {
			return nil, s, err
		}
		if ns.Rules.MonotonicScore && cmd.Score < p.Score {
			// Out-of-order or duplicate snapshot; committed score stands.
			return nil, s, nil
		}
		p.Score = cmd.Score
		ns.Players[cmd.ParticipantID] = p
		return []Event{{Type: EvtScoreApplied, ParticipantID: cmd.ParticipantID}}, ns, nil

	case CmdFailure:
		p, err := activePlayer(ns, cmd.ParticipantID)
		if err != nil {
			return nil, s, err
		}
		if p.Lives == UnlimitedLives {
			return nil, s, nil
		}
		p.Lives--
		events := []Event{{Type: EvtLifeLost, ParticipantID: cmd.ParticipantID}}
		if p.Lives <= 0 {
			p.Lives = 0
			p.Finished = true
			events = append(events, Event{Type: EvtFinished, ParticipantID: cmd.ParticipantID})
		}
		ns.Players[cmd.ParticipantID] = p
		if ended, evs := maybeEnd(&ns); ended {
			events = append(events, evs...)
		}
		return events, ns, nil

	case CmdFinish:
		p, err := activePlayer(ns, cmd.ParticipantID)
		if err != nil {
			return nil, s, err
		}
		p.Finished = true
		ns.Players[cmd.ParticipantID] = p
		events := []Event{{Type: EvtFinished, ParticipantID: cmd.ParticipantID}}
		if ended, evs := maybeEnd(&ns); ended {
			events = append(events, evs...)
		}
		return events, ns, nil

	case CmdDisconnect:
		p, ok := ns.Players[cmd.ParticipantID]
		if !ok {
			return nil, s, ErrUnknownParticipant
		}
		p.Connected = false
		ns.Players[cmd.ParticipantID] = p
		events := []Event{{Type: EvtDisconnected, ParticipantID: cmd.ParticipantID}}
		if ns.Phase == PhaseActive && allDisconnected(ns) {
			endSession(&ns, EndAbandonment)
			events = append(events, Event{Type: EvtEnded})
		}
		return events, ns, nil

	case CmdGraceOver:
		p, ok := ns.Players[cmd.ParticipantID]
		if !ok {
			return nil, s, ErrUnknownParticipant
		}
		if p.Connected || p.Finished {
			// Came back (or was already done) before the grace ran out.
			return nil, s, nil
		}
		p.Finished = true
		p.Forfeited = true
		p.Lives = 0
		ns.Players[cmd.ParticipantID] = p
		events := []Event{{Type: EvtFinished, ParticipantID: cmd.ParticipantID}}
		if ended, evs := maybeEnd(&ns); ended {
			events = append(events, evs...)
		}
		return events, ns, nil

	case CmdLeave:
		// Leaving before the session ever reached Countdown voids the whole
		// session: no competitive content started, no Result.
		if ns.Phase == PhaseWaiting {
			ns.Phase = PhaseEnded
			return []Event{{Type: EvtVoided}}, ns, nil
		}
		return Apply(s, Command{Type: CmdDisconnect, ParticipantID: cmd.ParticipantID, Now: cmd.Now})

	case CmdDeadline:
		if ns.Phase != PhaseActive {
			return nil, s, ErrWrongPhase
		}
		// A participant still disconnected when the clock runs out never
		// reconnected in time. Their pending grace becomes a forfeit now, so
		// the resolver treats them as finished with zero lives.
		var events []Event
		forfeited := 0
		for _, id := range ns.JoinOrder {
			p := ns.Players[id]
			if !p.Connected && !p.Finished {
				p.Finished = true
				p.Forfeited = true
				p.Lives = 0
				ns.Players[id] = p
				events = append(events, Event{Type: EvtFinished, ParticipantID: id})
			}
			if ns.Players[id].Forfeited {
				forfeited++
			}
		}
		if forfeited == len(ns.Players) && len(ns.Players) > 0 {
			endSession(&ns, EndAbandonment)
		} else {
			endSession(&ns, EndTimeExpired)
		}
		return append(events, Event{Type: EvtEnded}), ns, nil

	default:
		return nil, s, ErrWrongPhase
	}
}

// maybeEnd closes the session when every participant is finished, or when a
// lives exhaustion happens in an unbounded round (nothing else would ever
// end it). Bounded rounds with one finished participant keep running until
// the deadline.
func maybeEnd(ns *State) (bool, []Event) {
	if ns.Phase != PhaseActive || len(ns.Players) < 2 {
		return false, nil
	}
	finished, exhausted, forfeited := 0, 0, 0
	for _, p := range ns.Players {
		if p.Finished {
			finished++
		}
		if p.exhausted() {
			exhausted++
		}
		if p.Forfeited {
			forfeited++
		}
	}
	switch {
	case forfeited == len(ns.Players):
		// Everyone timed out of the grace window; nobody earned the win.
		endSession(ns, EndAbandonment)
	case finished == len(ns.Players):
		if exhausted > 0 {
			endSession(ns, EndLivesExhausted)
		} else {
			endSession(ns, EndBothFinished)
		}
	case exhausted > 0 && ns.Rules.Unbounded():
		endSession(ns, EndLivesExhausted)
	default:
		return false, nil
	}
	return true, []Event{{Type: EvtEnded}}
}

func endSession(ns *State, trigger EndReason) {
	r := Resolve(ns.JoinOrder, ns.Players, ns.Rules.LowerIsBetter, trigger)
	ns.Phase = PhaseEnded
	ns.Result = &r
}

func activePlayer(ns State, id string) (Participant, error) {
	p, ok := ns.Players[id]
	if !ok {
		return Participant{}, ErrUnknownParticipant
	}
	if ns.Phase != PhaseActive || p.Finished || !p.Connected {
		return Participant{}, ErrStaleUpdate
	}
	return p, nil
}

func allDisconnected(ns State) bool {
	for _, p := range ns.Players {
		if p.Connected {
			return false
		}
	}
	return true
}

func clonePlayers(m map[string]Participant) map[string]Participant {
	out := make(map[string]Participant, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
