package room

import (
	"context"
	"testing"
	"time"

	"github.com/pocketplay/scorerace-backend/internal/engine"
	"github.com/pocketplay/scorerace-backend/internal/game"
)

// helpers: receive with a timeout so tests never hang

func recvOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) Outbound {
	t.Helper()
	select {
	case ob, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return ob
	case <-time.After(within):
		t.Fatalf("timed out waiting for outbound")
		return Outbound{} // unreachable
	}
}

// recvKind drains messages until one of the wanted kind shows up.
func recvKind(t *testing.T, ch <-chan Outbound, kind OutKind, within time.Duration) Outbound {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ob, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed while waiting for %s", kind)
			}
			if ob.Kind == kind {
				return ob
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", kind)
			return Outbound{} // unreachable
		}
	}
}

func recvNoOutbound(t *testing.T, ch <-chan Outbound, within time.Duration) {
	t.Helper()
	select {
	case ob, ok := <-ch:
		if !ok {
			// closed is fine; no further messages possible
			return
		}
		t.Fatalf("expected no outbound within %v, got %+v", within, ob)
	case <-time.After(within):
	}
}

func recvClosed(t *testing.T, ch <-chan Outbound, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case ob, ok := <-ch:
			if !ok {
				return
			}
			if ob.Kind == OutResult {
				t.Fatalf("expected void teardown, got result %+v", ob)
			}
		case <-deadline:
			t.Fatalf("outbox not closed within %v", within)
		}
	}
}

func recvView(t *testing.T, ch <-chan View, within time.Duration) View {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(within):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

func testOpts() Options {
	return Options{
		Countdown:    20 * time.Millisecond,
		DefaultGrace: 40 * time.Millisecond,
		Linger:       time.Second,
	}
}

func tapGame(duration time.Duration) game.Config {
	return game.Config{
		Key:      "timed_tap_game",
		Rules:    engine.Rules{Duration: duration, Lives: engine.UnlimitedLives, MonotonicScore: true},
		Realtime: true,
	}
}

func joinBoth(t *testing.T, r *Room) (chan Outbound, chan Outbound) {
	t.Helper()
	out1 := make(chan Outbound, 16)
	out2 := make(chan Outbound, 16)
	r.Inbox() <- Join{ParticipantID: "p1", Outbox: out1}
	r.Inbox() <- Join{ParticipantID: "p2", Outbox: out2}
	return out1, out2
}

func TestRoom_SeedSharedIdentically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(10*time.Second), testOpts())
	out1, out2 := joinBoth(t, r)

	start1 := recvKind(t, out1, OutSessionStart, 500*time.Millisecond)
	start2 := recvKind(t, out2, OutSessionStart, 500*time.Millisecond)

	if start1.State.Seed == 0 {
		t.Fatalf("seed not generated")
	}
	if start1.State.Seed != start2.State.Seed {
		t.Fatalf("seed differs between participants: %d vs %d", start1.State.Seed, start2.State.Seed)
	}
	if start1.Version != start2.Version {
		t.Fatalf("session start versions differ")
	}

	r.Inbox() <- Shutdown{}
}

func TestRoom_SeedsIndependentAcrossSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := map[uint64]bool{}
	for i := 0; i < 8; i++ {
		r := NewRoom(ctx, "m", tapGame(10*time.Second), testOpts())
		out1, _ := joinBoth(t, r)
		start := recvKind(t, out1, OutSessionStart, 500*time.Millisecond)
		if seen[start.State.Seed] {
			t.Fatalf("seed repeated across sessions: %d", start.State.Seed)
		}
		seen[start.State.Seed] = true
		r.Inbox() <- Shutdown{}
	}
}

func TestRoom_TimedRoundEndsWithResult(t *testing.T) {
	// scenario: 150ms round, p1 reports 42, p2 reports 37, deadline decides
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(150*time.Millisecond), testOpts())
	out1, out2 := joinBoth(t, r)

	_ = recvKind(t, out1, OutSessionStart, 500*time.Millisecond)
	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // round started

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 42}}
	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p2", Score: 37}}

	res := recvKind(t, out1, OutResult, time.Second)
	if res.State.Result == nil {
		t.Fatalf("result missing on Result outbound")
	}
	if res.State.Result.WinnerID != "p1" {
		t.Fatalf("want p1 wins, got %+v", res.State.Result)
	}
	if res.State.Result.Reason != engine.EndTimeExpired {
		t.Fatalf("want time_expired, got %v", res.State.Result.Reason)
	}

	// the other participant receives the same result
	res2 := recvKind(t, out2, OutResult, time.Second)
	if res2.State.Result.WinnerID != "p1" {
		t.Fatalf("result differs for p2: %+v", res2.State.Result)
	}
}

func TestRoom_ScoreUpdateBroadcastsVersionedSnapshot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(10*time.Second), testOpts())
	out1, _ := joinBoth(t, r)

	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // active

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 5}}
	snap := recvKind(t, out1, OutSnapshot, 500*time.Millisecond)
	if snap.State.Players["p1"].Score != 5 {
		t.Fatalf("score not in snapshot: %+v", snap.State.Players)
	}

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 9}}
	next := recvKind(t, out1, OutSnapshot, 500*time.Millisecond)
	if next.Version <= snap.Version {
		t.Fatalf("version did not advance: %d then %d", snap.Version, next.Version)
	}

	r.Inbox() <- Shutdown{}
}

func TestRoom_StaleUpdateAfterEndIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(60*time.Millisecond), testOpts())
	out1, _ := joinBoth(t, r)

	_ = recvKind(t, out1, OutResult, time.Second)

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 999}}

	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 500*time.Millisecond)

	if view.State.Players["p1"].Score == 999 {
		t.Fatalf("update applied after session end")
	}
	if view.State.Phase != engine.PhaseEnded {
		t.Fatalf("phase moved after end: %v", view.State.Phase)
	}
}

func TestRoom_WaitingLeaveVoidsWithoutBroadcast(t *testing.T) {
	// scenario: one participant joins and bails before an opponent shows up
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", game.Config{
		Key:      "dot_match_game",
		Rules:    engine.Rules{Duration: 60 * time.Second, Lives: engine.UnlimitedLives},
		Realtime: true,
	}, testOpts())

	out := make(chan Outbound, 4)
	r.Inbox() <- Join{ParticipantID: "p2", Outbox: out}
	_ = recvKind(t, out, OutJoined, 500*time.Millisecond)

	r.Inbox() <- Disconnect{ParticipantID: "p2"}

	// no Result ever shows up; the outbox just closes on teardown
	recvClosed(t, out, time.Second)
}

func TestRoom_DisconnectGraceForfeitsUnboundedRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pong := game.Config{
		Key:      "pong_game",
		Rules:    engine.Rules{Lives: 3},
		Realtime: true,
	}
	r := NewRoom(ctx, "m1", pong, testOpts())
	out1, _ := joinBoth(t, r)

	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // active

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 2}}
	r.Inbox() <- Disconnect{ParticipantID: "p2"}

	res := recvKind(t, out1, OutResult, time.Second)
	if res.State.Result.WinnerID != "p1" {
		t.Fatalf("want p1 wins by forfeit, got %+v", res.State.Result)
	}
	if res.State.Result.Reason != engine.EndLivesExhausted {
		t.Fatalf("want lives_exhausted, got %v", res.State.Result.Reason)
	}
}

func TestRoom_ReconnectWithinGraceResumes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOpts()
	opts.DefaultGrace = 300 * time.Millisecond
	r := NewRoom(ctx, "m1", tapGame(10*time.Second), opts)
	out1, out2 := joinBoth(t, r)

	_ = recvKind(t, out2, OutSnapshot, 500*time.Millisecond) // active
	r.Inbox() <- Disconnect{ParticipantID: "p1"}

	// reconnect well inside the grace window
	out1b := make(chan Outbound, 16)
	r.Inbox() <- Join{ParticipantID: "p1", Outbox: out1b}

	start := recvKind(t, out1b, OutSessionStart, 500*time.Millisecond)
	if start.State.Seed == 0 {
		t.Fatalf("reconnect did not replay the session seed")
	}

	// the old grace timer must not forfeit p1 afterwards
	time.Sleep(400 * time.Millisecond)
	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 500*time.Millisecond)
	if view.State.Players["p1"].Finished {
		t.Fatalf("reconnected participant was forfeited by a stale grace fire")
	}
	_ = out1

	r.Inbox() <- Shutdown{}
}

func TestRoom_ShutdownStopsTimers_NoFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOpts()
	opts.Countdown = 200 * time.Millisecond
	r := NewRoom(ctx, "m1", tapGame(200*time.Millisecond), opts)
	out1, _ := joinBoth(t, r)

	_ = recvKind(t, out1, OutSessionStart, 500*time.Millisecond)
	r.Inbox() <- Shutdown{}

	// neither the countdown nor the deadline may produce anything now
	recvNoOutbound(t, out1, 400*time.Millisecond)
}

func TestRoom_DuplicateJoinLeavesSessionIntact(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(10*time.Second), testOpts())
	out1, _ := joinBoth(t, r)
	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // active

	out3 := make(chan Outbound, 4)
	r.Inbox() <- Join{ParticipantID: "p3", Outbox: out3}

	// intruder is rejected: channel closes without game traffic
	select {
	case _, ok := <-out3:
		if ok {
			t.Fatalf("third participant received room traffic")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("third join not rejected")
	}

	reply := make(chan View, 1)
	r.Inbox() <- GetState{Reply: reply}
	view := recvView(t, reply, 500*time.Millisecond)
	if len(view.State.Players) != 2 {
		t.Fatalf("session resized by rejected join: %d players", len(view.State.Players))
	}
	if view.State.Phase != engine.PhaseActive {
		t.Fatalf("phase disturbed by rejected join: %v", view.State.Phase)
	}
}

func TestRoom_DeadlineForfeitsDisconnectedParticipant(t *testing.T) {
	// p1 leads on score but drops with more grace left than round time; the
	// deadline must hand the win to p2, not count p1's score
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := testOpts()
	opts.DefaultGrace = 10 * time.Second
	r := NewRoom(ctx, "m1", tapGame(200*time.Millisecond), opts)
	out1, out2 := joinBoth(t, r)

	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // active

	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 100}}
	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p2", Score: 1}}
	r.Inbox() <- Disconnect{ParticipantID: "p1"}

	res := recvKind(t, out2, OutResult, time.Second)
	if res.State.Result.WinnerID != "p2" {
		t.Fatalf("want p2 wins by forfeit, got %+v", res.State.Result)
	}
	if res.State.Result.Reason != engine.EndLivesExhausted {
		t.Fatalf("want lives_exhausted, got %v", res.State.Result.Reason)
	}
}

func TestRoom_JoinAcknowledgesAcceptance(t *testing.T) {
	// a rejected connection must learn it holds no seat, so the transport
	// never issues a Disconnect for the participant it impersonated
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(10*time.Second), testOpts())

	out1 := make(chan Outbound, 16)
	acc1 := make(chan bool, 1)
	r.Inbox() <- Join{ParticipantID: "p1", Outbox: out1, Accepted: acc1}
	if ok := <-acc1; !ok {
		t.Fatalf("genuine join not accepted")
	}

	out2 := make(chan Outbound, 16)
	r.Inbox() <- Join{ParticipantID: "p2", Outbox: out2}
	_ = recvKind(t, out1, OutSnapshot, 500*time.Millisecond) // active

	// second socket claiming p1's id while p1 is connected
	dup := make(chan Outbound, 4)
	accDup := make(chan bool, 1)
	r.Inbox() <- Join{ParticipantID: "p1", Outbox: dup, Accepted: accDup}
	if ok := <-accDup; ok {
		t.Fatalf("duplicate join reported accepted")
	}

	// the real p1 keeps its seat and its pipe
	r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: 7}}
	snap := recvKind(t, out1, OutSnapshot, 500*time.Millisecond)
	if snap.State.Players["p1"].Score != 7 {
		t.Fatalf("real participant lost its pipe after rejected duplicate: %+v", snap.State.Players)
	}
	p1 := snap.State.Players["p1"]
	if !p1.Connected || p1.Finished || p1.Forfeited {
		t.Fatalf("real participant damaged by rejected duplicate: %+v", p1)
	}

	r.Inbox() <- Shutdown{}
}

func TestRoom_DoneUnblocksSendersAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := NewRoom(ctx, "m1", tapGame(10*time.Second), testOpts())
	r.Inbox() <- Shutdown{}

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done not signalled after shutdown")
	}

	// more sends than the inbox buffers; the guard keeps each one from
	// blocking forever on the dead room
	for i := 0; i < 100; i++ {
		select {
		case r.Inbox() <- FromClient{Cmd: engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: "p1", Score: i}}:
		case <-r.Done():
		case <-time.After(time.Second):
			t.Fatalf("send %d blocked on a torn-down room", i)
		}
	}
}
