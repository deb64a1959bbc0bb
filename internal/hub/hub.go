package hub

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/code"
	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/race"
	"github.com/typeracehq/race-server/internal/room"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrAllocationFailed = errors.New("could not allocate a unique room code")

// Bounded retries against the (astronomically unlikely) live-code collision.
const maxCodeAttempts = 10

const sweepInterval = time.Minute

type HubMsg interface{ isHubMsg() }

type CreateRoom struct {
	HostID   string
	HostName string
	Reply    chan CreateReply
}

type CreateReply struct {
	Code string
	Room *room.Room
	Err  error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

type RemoveRoom struct {
	Code string
}

type ShutdownHub struct{}

// roomClosed arrives via each room's onClose callback. A finished room
// keeps serving late reads, so its entry just expires after a short grace;
// a terminal close means the coordinator loop is gone and the entry must
// stop resolving at once, or a join would block on a dead inbox.
type roomClosed struct {
	Code     string
	Terminal bool
}

type sweep struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}
func (roomClosed) isHubMsg()  {}
func (sweep) isHubMsg()       {}

type Options struct {
	Room        room.Options
	RoomTTL     time.Duration // hard lifetime bound per room
	FinishedTTL time.Duration // directory grace after a room closes
}

type entry struct {
	room      *room.Room
	expiresAt time.Time
}

// Hub is the room directory: the only structure shared across rooms. Like
// each room it is a single-goroutine actor, so registration, lookup and
// removal need no locks. Entries carry a hard expiry, which also reclaims
// rooms whose coordinator died without reporting back.
type Hub struct {
	inbox   chan HubMsg
	rooms   map[string]entry
	opts    Options
	clock   clockwork.Clock
	log     *zap.Logger
	metrics *metrics.Metrics

	finalizer room.Finalizer

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, opts Options, clock clockwork.Clock,
	finalizer room.Finalizer, m *metrics.Metrics, log *zap.Logger) *Hub {

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:     make(chan HubMsg, 64),
		rooms:     make(map[string]entry),
		opts:      opts,
		clock:     clock,
		log:       log,
		metrics:   m,
		finalizer: finalizer,
		ctx:       ctx,
		cancel:    cancel,
	}
	go h.loop()
	go h.sweepLoop()
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
			case CreateRoom:
				msg.Reply <- h.handleCreate(msg)

			case GetRoom:
				msg.Reply <- h.lookup(msg.Code)

			case RemoveRoom:
				h.remove(msg.Code)

			case roomClosed:
				if e, ok := h.rooms[msg.Code]; ok {
					if msg.Terminal {
						delete(h.rooms, msg.Code)
						if h.metrics != nil {
							h.metrics.ActiveRooms.Set(float64(len(h.rooms)))
						}
					} else {
						e.expiresAt = h.clock.Now().Add(h.opts.FinishedTTL)
						h.rooms[msg.Code] = e
					}
				}

			case sweep:
				h.sweepExpired(h.clock.Now())

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) handleCreate(msg CreateRoom) CreateReply {
	now := h.clock.Now()
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		c, err := code.Generate()
		if err != nil {
			return CreateReply{Err: err}
		}
		if _, taken := h.rooms[c]; taken {
			h.log.Warn("room code collision, regenerating", zap.String("code", c))
			continue
		}

		host := race.Player{ID: msg.HostID, DisplayName: msg.HostName, JoinedAtMs: now.UnixMilli()}
		initial := race.New(c, host, now.UnixMilli(), h.opts.RoomTTL.Milliseconds())
		rm := room.NewRoom(h.ctx, initial, h.opts.Room, h.clock, h.finalizer, h.metrics, h.log,
			func(closedCode string, terminal bool) {
				select {
				case h.inbox <- roomClosed{Code: closedCode, Terminal: terminal}:
				case <-h.ctx.Done():
				}
			})

		h.rooms[c] = entry{room: rm, expiresAt: now.Add(h.opts.RoomTTL)}
		if h.metrics != nil {
			h.metrics.ActiveRooms.Set(float64(len(h.rooms)))
		}
		h.log.Info("room created", zap.String("code", c), zap.String("host", msg.HostID))
		return CreateReply{Code: c, Room: rm}
	}
	return CreateReply{Err: ErrAllocationFailed}
}

func (h *Hub) lookup(c string) *room.Room {
	c = code.Normalize(c)
	if e, ok := h.rooms[c]; ok {
		return e.room
	}
	return nil
}

func (h *Hub) remove(c string) {
	if e, ok := h.rooms[c]; ok {
		e.room.Close()
		delete(h.rooms, c)
		if h.metrics != nil {
			h.metrics.ActiveRooms.Set(float64(len(h.rooms)))
		}
	}
}

func (h *Hub) sweepExpired(now time.Time) {
	for c, e := range h.rooms {
		if !e.expiresAt.After(now) {
			h.log.Info("sweeping expired room", zap.String("code", c))
			e.room.Close()
			delete(h.rooms, c)
		}
	}
	if h.metrics != nil {
		h.metrics.ActiveRooms.Set(float64(len(h.rooms)))
	}
}

func (h *Hub) sweepLoop() {
	ticker := h.clock.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.Chan():
			select {
			case h.inbox <- sweep{}:
			case <-h.ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for c, e := range h.rooms {
		e.room.Close()
		delete(h.rooms, c)
	}
	if h.metrics != nil {
		h.metrics.ActiveRooms.Set(0)
	}
	h.cancel()
}
