// Package hub owns the match registry. One actor, rooms keyed by match id;
// rooms remove themselves after their post-result linger.
package hub

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pocketplay/scorerace-backend/internal/game"
	"github.com/pocketplay/scorerace-backend/internal/notify"
	"github.com/pocketplay/scorerace-backend/internal/room"
	"github.com/pocketplay/scorerace-backend/internal/store"
)

type HubMsg interface{ isHubMsg() }

type GetRoom struct {
	MatchID string
	Reply   chan *room.Room
}

// EnsureRoom returns the match's room, creating it first if needed.
type EnsureRoom struct {
	MatchID string
	Game    game.Config // only used if creation happens
	Reply   chan *room.Room
}

type RemoveRoom struct {
	MatchID string
}

type ShutdownHub struct{}

func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

// Options carries the per-room collaborators the hub hands to every room
// it creates.
type Options struct {
	Countdown    time.Duration
	DefaultGrace time.Duration
	Linger       time.Duration

	Log      *zap.Logger
	Notifier notify.Notifier
	Results  store.ResultStore
}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	opts  Options
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		opts:   opts,
		log:    opts.Log,
		ctx:    ctx,
		cancel: cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case GetRoom:
				msg.Reply <- h.rooms[msg.MatchID] // may be nil

			case EnsureRoom:
				if r := h.rooms[msg.MatchID]; r != nil {
					msg.Reply <- r
					break
				}
				msg.Reply <- h.spawn(msg.MatchID, msg.Game)

			case RemoveRoom:
				delete(h.rooms, msg.MatchID)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) spawn(matchID string, cfg game.Config) *room.Room {
	opts := room.Options{
		Countdown:    h.opts.Countdown,
		DefaultGrace: h.opts.DefaultGrace,
		Linger:       h.opts.Linger,
		Log:          h.log,
		Notifier:     h.opts.Notifier,
		Results:      h.opts.Results,
		OnClose: func() {
			// Runs on the room goroutine; go through the inbox so the
			// registry map is only ever touched by the hub loop.
			select {
			case h.inbox <- RemoveRoom{MatchID: matchID}:
			case <-h.ctx.Done():
			}
		},
	}
	r := room.NewRoom(h.ctx, matchID, cfg, opts)
	h.rooms[matchID] = r
	h.log.Info("room created", zap.String("match", matchID), zap.String("game", cfg.Key))
	return r
}

func (h *Hub) shutdown() {
	for _, r := range h.rooms {
		r.Inbox() <- room.Shutdown{}
	}
	clear(h.rooms)
	h.cancel()
}
