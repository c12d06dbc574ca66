package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pocketplay/scorerace-backend/internal/engine"
	"github.com/pocketplay/scorerace-backend/internal/hub"
	"github.com/pocketplay/scorerace-backend/internal/room"
	"github.com/pocketplay/scorerace-backend/pkg/types"
)

// Handler upgrades `GET /ws?match=<id>&player=<id>` and plumbs the
// connection into the match's room actor. The player id comes from the
// invite context; absent one we mint an id so solo testing still works.
func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := r.URL.Query().Get("match")
		if matchID == "" {
			http.Error(w, "missing match", http.StatusBadRequest)
			return
		}
		playerID := r.URL.Query().Get("player")
		if playerID == "" {
			playerID = uuid.NewString()
		}

		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{MatchID: matchID, Reply: reply}
		rm := <-reply
		if rm == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Debug("websocket accept failed", zap.String("match", matchID), zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan room.Outbound, 8)
		accepted := make(chan bool, 1)
		select {
		case rm.Inbox() <- room.Join{ParticipantID: playerID, Outbox: out, Accepted: accepted}:
		case <-rm.Done():
			return
		}

		// Writer goroutine: drains the room outbox until it closes or the
		// handler is done.
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				select {
				case ob, open := <-out:
					if !open {
						return
					}
					payload, _ := json.Marshal(toServerMessage(ob))
					ctx, cancel := context.WithTimeout(writeCtx, 3*time.Second)
					_ = conn.Write(ctx, websocket.MessageText, payload)
					cancel()
				case <-writeCtx.Done():
					return
				}
			}
		}()

		var seated bool
		select {
		case seated = <-accepted:
		case <-rm.Done():
		}
		if !seated {
			// Rejected joins (duplicate id, full session) hold no seat; a
			// Disconnect here would hit the participant who does. The room
			// closed our outbox; let the writer flush any late-result
			// payload, then drop the socket.
			select {
			case <-writerDone:
			case <-time.After(3 * time.Second):
			}
			return
		}
		defer func() {
			select {
			case rm.Inbox() <- room.Disconnect{ParticipantID: playerID}:
			case <-rm.Done():
			}
		}()

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), 90*time.Second)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Anything else still lands on the deferred Disconnect.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"bad json"}`))
				continue
			}

			cmd, ok := toCommand(cm, playerID)
			if !ok {
				_ = conn.Write(r.Context(), websocket.MessageText,
					[]byte(`{"type":"Error","error":"unknown type"}`))
				continue
			}

			select {
			case rm.Inbox() <- room.FromClient{Cmd: cmd}:
			case <-rm.Done():
				return
			}
		}
	}
}

func toCommand(m types.ClientMessage, playerID string) (engine.Command, bool) {
	switch m.Type {
	case "ScoreUpdate":
		return engine.Command{Type: engine.CmdScoreUpdate, ParticipantID: playerID, Score: m.Score}, true
	case "Failure":
		return engine.Command{Type: engine.CmdFailure, ParticipantID: playerID}, true
	case "Finish":
		return engine.Command{Type: engine.CmdFinish, ParticipantID: playerID}, true
	default:
		return engine.Command{}, false
	}
}

// toServerMessage projects a room outbound into the wire envelope. The
// session-start payload is built from shared state only, so both clients
// see identical bytes.
func toServerMessage(ob room.Outbound) types.ServerMessage {
	s := ob.State
	msg := types.ServerMessage{Type: string(ob.Kind), Version: ob.Version}

	switch ob.Kind {
	case room.OutJoined:
		msg.Phase = string(s.Phase)
		msg.ParticipantCount = len(s.Players)

	case room.OutSessionStart:
		msg.Seed = strconv.FormatUint(s.Seed, 10)
		msg.GameType = s.GameKey
		if s.Rules.Unbounded() {
			msg.DurationSec = -1
		} else {
			msg.DurationSec = int(s.Rules.Duration / time.Second)
		}

	case room.OutSnapshot:
		msg.Phase = string(s.Phase)
		msg.Scores = make(map[string]int, len(s.Players))
		msg.Lives = make(map[string]int, len(s.Players))
		for id, p := range s.Players {
			msg.Scores[id] = p.Score
			msg.Lives[id] = p.Lives
		}
		if remaining, bounded := s.Remaining(time.Now()); bounded {
			msg.RemainingMS = remaining.Milliseconds()
		}

	case room.OutResult:
		res := s.Result
		if res == nil {
			break
		}
		msg.WinnerID = res.WinnerID
		msg.Draw = res.Draw
		msg.EndReason = string(res.Reason)
		msg.FinalScores = res.Scores
	}
	return msg
}
