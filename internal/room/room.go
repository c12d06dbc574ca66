// Package room runs one score-race session as a single actor: every
// mutation for a match flows through one inbox, so score updates and phase
// transitions never race each other. Different matches are independent.
package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pocketplay/scorerace-backend/internal/engine"
	"github.com/pocketplay/scorerace-backend/internal/game"
	"github.com/pocketplay/scorerace-backend/internal/notify"
	"github.com/pocketplay/scorerace-backend/internal/seed"
	"github.com/pocketplay/scorerace-backend/internal/store"
)

type Msg interface{ isRoomMsg() }

// Join registers a participant connection. Outbox is where this client
// wants to receive server messages. When Accepted is non-nil it receives
// whether the room took the connection; a rejected connection owns no seat
// and must not issue a Disconnect for the id it claimed.
type Join struct {
	ParticipantID string
	Outbox        chan Outbound
	Accepted      chan bool
}

func (Join) isRoomMsg() {}

// Disconnect is the transport-level drop for one participant.
type Disconnect struct{ ParticipantID string }

func (Disconnect) isRoomMsg() {}

type FromClient struct {
	Cmd engine.Command
}

func (FromClient) isRoomMsg() {}

type Shutdown struct{}

func (Shutdown) isRoomMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isRoomMsg() {}

// internal timer messages; Gen guards against stale fires racing a
// transition that already superseded the timer
type countdownFired struct{ Gen int }

func (countdownFired) isRoomMsg() {}

type deadlineFired struct{ Gen int }

func (deadlineFired) isRoomMsg() {}

type graceFired struct {
	ParticipantID string
	Gen           int
}

func (graceFired) isRoomMsg() {}

type lingerFired struct{}

func (lingerFired) isRoomMsg() {}

type OutKind string

const (
	OutJoined       OutKind = "Joined"
	OutSessionStart OutKind = "SessionStart"
	OutSnapshot     OutKind = "StateSnapshot"
	OutResult       OutKind = "Result"
)

type Outbound struct {
	Kind    OutKind
	Version int
	State   engine.State
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Options struct {
	Countdown    time.Duration
	DefaultGrace time.Duration
	Linger       time.Duration

	Log      *zap.Logger
	Notifier notify.Notifier
	Results  store.ResultStore

	// OnClose runs once after teardown so the registry can forget us.
	OnClose func()
}

type Room struct {
	matchID string
	cfg     game.Config
	opts    Options

	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Outbound

	countdownGen int
	deadlineGen  int
	graceGen     map[string]int
	timers       []*time.Timer

	resultSent bool
	log        *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewRoom(parent context.Context, matchID string, cfg game.Config, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)

	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Countdown <= 0 {
		opts.Countdown = 3 * time.Second
	}
	if opts.Linger <= 0 {
		opts.Linger = 30 * time.Second
	}

	r := &Room{
		matchID:  matchID,
		cfg:      cfg,
		opts:     opts,
		inbox:    make(chan Msg, 64),
		state:    engine.NewState(matchID, cfg.Key, cfg.Rules),
		clients:  make(map[string]chan Outbound),
		graceGen: make(map[string]int),
		log:      opts.Log.With(zap.String("match", matchID), zap.String("game", cfg.Key)),
		ctx:      ctx,
		cancel:   cancel,
	}

	go r.loop()
	return r
}

// Inbox exposes the actor mailbox to the transport layer and tests.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Done is closed once the room tears down. Senders must select against it:
// after linger or shutdown nothing drains the inbox anymore.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			r.shutdown()
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				r.handleJoin(msg)

			case Disconnect:
				r.handleDisconnect(msg.ParticipantID)

			case FromClient:
				cmd := msg.Cmd
				cmd.Now = time.Now()
				events, ns, err := engine.Apply(r.state, cmd)
				if err != nil {
					// Stale and unknown updates are dropped, never fatal.
					r.log.Debug("command dropped",
						zap.String("cmd", string(cmd.Type)),
						zap.String("participant", cmd.ParticipantID),
						zap.Error(err))
					break
				}
				r.state = ns
				r.react(events)

			case countdownFired:
				if msg.Gen != r.countdownGen {
					break
				}
				events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdCountdownOver, Now: time.Now()})
				if err != nil {
					break
				}
				r.state = ns
				r.react(events)

			case deadlineFired:
				if msg.Gen != r.deadlineGen {
					break
				}
				events, ns, err := engine.Apply(r.state, engine.Command{Type: engine.CmdDeadline, Now: time.Now()})
				if err != nil {
					break
				}
				r.state = ns
				r.react(events)

			case graceFired:
				if msg.Gen != r.graceGen[msg.ParticipantID] {
					break
				}
				events, ns, err := engine.Apply(r.state, engine.Command{
					Type:          engine.CmdGraceOver,
					ParticipantID: msg.ParticipantID,
					Now:           time.Now(),
				})
				if err != nil {
					break
				}
				r.state = ns
				r.react(events)

			case lingerFired:
				r.shutdown()
				return

			case GetState:
				msg.Reply <- View{Version: r.version, NumClients: len(r.clients), State: r.state}

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) {
	cmd := engine.Command{Type: engine.CmdJoin, ParticipantID: msg.ParticipantID, Now: time.Now()}
	if _, known := r.state.Players[msg.ParticipantID]; !known && len(r.state.Players) == 1 {
		// Second participant: this join starts the session, so mint the
		// shared seed here. Assigned exactly once.
		cmd.Seed = seed.Generate()
	}

	events, ns, err := engine.Apply(r.state, cmd)
	if err != nil {
		if msg.Accepted != nil {
			msg.Accepted <- false
		}
		if r.state.Result != nil {
			// Late joiner during the linger window still gets the result.
			msg.Outbox <- Outbound{Kind: OutResult, Version: r.version, State: r.state}
			close(msg.Outbox)
			return
		}
		r.log.Info("join rejected", zap.String("participant", msg.ParticipantID), zap.Error(err))
		close(msg.Outbox)
		return
	}

	r.state = ns
	r.clients[msg.ParticipantID] = msg.Outbox
	if msg.Accepted != nil {
		msg.Accepted <- true
	}
	r.react(events)
}

func (r *Room) handleDisconnect(id string) {
	if ch, ok := r.clients[id]; ok {
		close(ch)
		delete(r.clients, id)
	}

	cmdType := engine.CmdDisconnect
	if r.state.Phase == engine.PhaseWaiting {
		cmdType = engine.CmdLeave
	}
	events, ns, err := engine.Apply(r.state, engine.Command{Type: cmdType, ParticipantID: id, Now: time.Now()})
	if err != nil {
		return
	}
	r.state = ns
	r.react(events)
}

// react turns engine events into broadcasts and timer changes. Exactly one
// outbound message goes out per state change, with a bumped version.
func (r *Room) react(events []engine.Event) {
	snapshot := false

	for _, ev := range events {
		switch ev.Type {
		case engine.EvtJoined:
			r.version++
			r.broadcast(Outbound{Kind: OutJoined, Version: r.version, State: r.state})

		case engine.EvtCountdownStarted:
			r.version++
			r.broadcast(Outbound{Kind: OutSessionStart, Version: r.version, State: r.state})
			r.countdownGen++
			gen := r.countdownGen
			r.afterFunc(r.opts.Countdown, func() { r.post(countdownFired{Gen: gen}) })

		case engine.EvtRoundStarted:
			if remaining, bounded := r.state.Remaining(time.Now()); bounded {
				r.deadlineGen++
				gen := r.deadlineGen
				r.afterFunc(remaining, func() { r.post(deadlineFired{Gen: gen}) })
			}
			snapshot = true

		case engine.EvtScoreApplied, engine.EvtLifeLost, engine.EvtFinished:
			snapshot = true

		case engine.EvtDisconnected:
			r.armGrace(ev.ParticipantID)
			snapshot = true

		case engine.EvtReconnected:
			r.graceGen[ev.ParticipantID]++ // invalidate any pending grace fire
			// The rejoining client lost its in-memory session; replay the
			// start payload so it can rebuild identical content.
			r.send(ev.ParticipantID, Outbound{Kind: OutSessionStart, Version: r.version, State: r.state})
			snapshot = true

		case engine.EvtEnded:
			r.finalize()
			snapshot = false
			return

		case engine.EvtVoided:
			r.log.Info("session voided before start")
			r.shutdownAsync()
			return
		}
	}

	if snapshot && r.state.Phase == engine.PhaseActive {
		r.version++
		r.broadcast(Outbound{Kind: OutSnapshot, Version: r.version, State: r.state})
	}
}

func (r *Room) armGrace(id string) {
	if r.state.Phase != engine.PhaseCountdown && r.state.Phase != engine.PhaseActive {
		return
	}
	grace := r.cfg.Grace
	if grace <= 0 {
		grace = r.opts.DefaultGrace
	}
	if grace <= 0 {
		grace = 10 * time.Second
	}
	r.graceGen[id]++
	gen := r.graceGen[id]
	r.afterFunc(grace, func() { r.post(graceFired{ParticipantID: id, Gen: gen}) })
}

// finalize broadcasts the Result exactly once, informs the host surface,
// archives the outcome, and keeps the room up briefly for late readers.
func (r *Room) finalize() {
	if r.resultSent {
		return
	}
	r.resultSent = true
	r.countdownGen++
	r.deadlineGen++
	for id := range r.graceGen {
		r.graceGen[id]++
	}

	res := r.state.Result
	r.version++
	r.broadcast(Outbound{Kind: OutResult, Version: r.version, State: r.state})
	r.log.Info("session ended",
		zap.String("reason", string(res.Reason)),
		zap.String("winner", res.WinnerID),
		zap.Bool("draw", res.Draw))

	r.opts.Notifier.Notify(r.ctx, "round_end", map[string]any{
		"match_id":   r.matchID,
		"game_type":  r.cfg.Key,
		"winner_id":  res.WinnerID,
		"draw":       res.Draw,
		"end_reason": string(res.Reason),
	})

	if r.opts.Results != nil {
		rec := store.MatchResult{
			MatchID:   r.matchID,
			GameType:  r.cfg.Key,
			WinnerID:  res.WinnerID,
			Draw:      res.Draw,
			EndReason: string(res.Reason),
		}
		rec.SetScores(res.Scores)
		go func(results store.ResultStore, log *zap.Logger) {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.ctx), 10*time.Second)
			defer cancel()
			if err := results.SaveResult(ctx, rec); err != nil {
				log.Warn("result archive failed", zap.Error(err))
			}
		}(r.opts.Results, r.log)
	}

	r.afterFunc(r.opts.Linger, func() { r.post(lingerFired{}) })
}

// post delivers a timer message unless the room is already torn down; a
// fire after teardown must be a no-op rather than a blocked goroutine.
func (r *Room) post(m Msg) {
	select {
	case r.inbox <- m:
	case <-r.ctx.Done():
	}
}

func (r *Room) afterFunc(d time.Duration, f func()) {
	r.timers = append(r.timers, time.AfterFunc(d, f))
}

func (r *Room) shutdownAsync() {
	// Defer the actual teardown to the context path so we never close the
	// inbox paths out from under the current message.
	r.cancel()
}

func (r *Room) shutdown() {
	for _, t := range r.timers {
		t.Stop()
	}
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	r.cancel()
	if r.opts.OnClose != nil {
		r.opts.OnClose()
		r.opts.OnClose = nil
	}
}

func (r *Room) send(id string, out Outbound) {
	ch, ok := r.clients[id]
	if !ok {
		return
	}
	select {
	case ch <- out:
	default:
		r.log.Warn("dropping slow client", zap.String("participant", id))
		close(ch)
		delete(r.clients, id)
	}
}

func (r *Room) broadcast(out Outbound) {
	for id, ch := range r.clients {
		select {
		case ch <- out:
			// ok
		default:
			// Client is slow/full - drop the pipe; the socket teardown
			// will follow up with a Disconnect.
			r.log.Warn("dropping slow client", zap.String("participant", id))
			close(ch)
			delete(r.clients, id)
		}
	}
}
