package room

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/protocol"
	"github.com/typeracehq/race-server/internal/race"
)

type Msg interface{ isRoomMsg() }

// Join attaches a player connection. If the player is already a member with
// no live connection (host connecting after create, or a reconnect inside the
// disconnect grace window) the outbox is attached without a state change.
type Join struct {
	Player race.Player
	Outbox chan []byte // where this connection wants its frames
	Reply  chan error
}

// Leave is an explicit, immediate departure.
type Leave struct {
	PlayerID string
}

type Start struct {
	RequesterID string
	Snippet     string
	Reply       chan error
}

type Progress struct {
	PlayerID string
	Progress float64
	WPM      float64
	Reply    chan error
}

type Finish struct {
	PlayerID string
	Result   race.Result
	Reply    chan error
}

// Disconnect reports a dropped connection. In waiting it behaves like Leave;
// mid-race the player keeps their seat for a grace period.
type Disconnect struct {
	PlayerID string
}

type GetState struct {
	Reply chan race.Room
}

type Shutdown struct{}

func (Join) isRoomMsg()       {}
func (Leave) isRoomMsg()      {}
func (Start) isRoomMsg()      {}
func (Progress) isRoomMsg()   {}
func (Finish) isRoomMsg()     {}
func (Disconnect) isRoomMsg() {}
func (GetState) isRoomMsg()   {}
func (Shutdown) isRoomMsg()   {}

// internal timer-driven messages
type beginRace struct{ startAtMs int64 }

type graceExpired struct{ PlayerID string }

func (beginRace) isRoomMsg()    {}
func (graceExpired) isRoomMsg() {}

type Options struct {
	MaxPlayers      int
	AllowSolo       bool
	Countdown       time.Duration
	DisconnectGrace time.Duration
}

// Finalizer receives the finished room after the race_finished broadcast.
type Finalizer interface {
	Finalize(r race.Room)
}

// Room is the single owner of one race's state. Every mutation flows through
// the inbox and is applied by one goroutine, so broadcasts go out in exactly
// the order transitions were applied.
type Room struct {
	inbox       chan Msg
	state       race.Room
	clients     map[string]chan []byte
	graceTimers map[string]clockwork.Timer
	countdown   clockwork.Timer

	opts      Options
	clock     clockwork.Clock
	log       *zap.Logger
	metrics   *metrics.Metrics
	finalizer Finalizer
	onClose   func(code string, terminal bool)

	ctx    context.Context
	cancel context.CancelFunc
}

func NewRoom(parent context.Context, initial race.Room, opts Options, clock clockwork.Clock,
	finalizer Finalizer, m *metrics.Metrics, log *zap.Logger, onClose func(code string, terminal bool)) *Room {

	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		inbox:       make(chan Msg, 64),
		state:       initial,
		clients:     make(map[string]chan []byte),
		graceTimers: make(map[string]clockwork.Timer),
		opts:        opts,
		clock:       clock,
		log:         log.With(zap.String("room", initial.Code)),
		metrics:     m,
		finalizer:   finalizer,
		onClose:     onClose,
		ctx:         ctx,
		cancel:      cancel,
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Close stops the room loop from outside (directory sweep, server shutdown).
func (r *Room) Close() { r.cancel() }

// Done closes once the room has torn down and stopped draining its inbox.
// Senders must select on it so a send never blocks against a dead room.
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
				msg.Reply <- r.handleJoin(msg)

			case Leave:
				if r.handleLeave(msg.PlayerID) {
					return
				}

			case Start:
				msg.Reply <- r.handleStart(msg)

			case beginRace:
				r.handleBeginRace(msg)

			case Progress:
				msg.Reply <- r.handleProgress(msg)

			case Finish:
				msg.Reply <- r.handleFinish(msg)

			case Disconnect:
				if r.handleDisconnect(msg.PlayerID) {
					return
				}

			case graceExpired:
				if r.handleGraceExpired(msg.PlayerID) {
					return
				}

			case GetState:
				msg.Reply <- r.state

			case Shutdown:
				r.shutdown()
				return
			}
		}
	}
}

func (r *Room) handleJoin(msg Join) error {
	id := msg.Player.ID

	// Existing member with no live connection: attach, don't re-join.
	if _, known := r.state.PlayerByID(id); known {
		if _, connected := r.clients[id]; connected {
			return race.ErrDuplicatePlayer
		}
		r.stopGrace(id)
		r.clients[id] = msg.Outbox
		r.broadcast(protocol.RoomUpdate(r.state))
		r.log.Info("player connected", zap.String("player", id))
		return nil
	}

	next, err := race.Join(r.state, msg.Player, r.opts.MaxPlayers)
	if err != nil {
		return err
	}
	r.state = next
	r.clients[id] = msg.Outbox
	r.broadcast(protocol.RoomUpdate(r.state))
	r.log.Info("player joined", zap.String("player", id), zap.Int("players", len(r.state.Players)))
	return nil
}

// handleLeave reports true when the departure abandoned the room, so the
// loop exits right here instead of applying further messages to a
// torn-down room.
func (r *Room) handleLeave(playerID string) bool {
	next, err := race.Leave(r.state, playerID)
	if err != nil {
		return false
	}
	r.state = next
	r.dropClient(playerID)
	if r.state.Abandoned {
		r.log.Info("room abandoned")
		r.shutdown()
		return true
	}
	r.broadcast(protocol.Disconnected(playerID))
	r.broadcast(protocol.RoomUpdate(r.state))
	if r.state.Status == race.StatusFinished {
		// the departure left only finishers behind
		r.finishRace()
	}
	return false
}

func (r *Room) handleStart(msg Start) error {
	next, err := race.Start(r.state, msg.RequesterID, msg.Snippet, r.opts.AllowSolo)
	if err != nil {
		return err
	}
	r.state = next
	startsAt := r.clock.Now().Add(r.opts.Countdown).UnixMilli()
	r.armCountdown(startsAt)
	r.broadcast(protocol.CountdownStarted(r.state.Snippet, startsAt))
	r.log.Info("countdown started", zap.Int64("starts_at_ms", startsAt))
	return nil
}

// handleBeginRace stamps the race with the instant the countdown frame
// promised, not a fresh clock read, so every client and the recorded state
// agree on the same start.
func (r *Room) handleBeginRace(msg beginRace) {
	next, err := race.BeginRace(r.state, msg.startAtMs)
	if err != nil {
		return // countdown was cancelled by a state change
	}
	r.state = next
	r.broadcast(protocol.RoomUpdate(r.state))
	r.log.Info("race started", zap.Int64("start_ms", r.state.RaceStartAtMs))
}

func (r *Room) handleProgress(msg Progress) error {
	next, err := race.ApplyProgress(r.state, msg.PlayerID, msg.Progress, msg.WPM)
	if err != nil {
		return err
	}
	r.state = next
	// fan out to everyone except the sender; the sender already knows
	r.broadcastExcept(msg.PlayerID, protocol.ProgressUpdate(msg.PlayerID, msg.Progress, msg.WPM))
	return nil
}

func (r *Room) handleFinish(msg Finish) error {
	next, err := race.Finish(r.state, msg.PlayerID, msg.Result, r.clock.Now().UnixMilli())
	if err != nil {
		return err
	}
	r.state = next
	r.broadcast(protocol.RoomUpdate(r.state))
	if r.state.Status == race.StatusFinished {
		r.finishRace()
	}
	return nil
}

func (r *Room) handleDisconnect(playerID string) bool {
	if _, connected := r.clients[playerID]; !connected {
		return false
	}
	switch r.state.Status {
	case race.StatusWaiting:
		// no race state at stake, drop immediately
		return r.handleLeave(playerID)
	case race.StatusFinished:
		r.dropClient(playerID)
	default:
		// keep the seat for a grace period in case this is a transient drop
		r.dropClient(playerID)
		r.broadcast(protocol.Disconnected(playerID))
		r.armGrace(playerID)
		r.log.Info("player disconnected, grace running", zap.String("player", playerID))
	}
	return false
}

func (r *Room) handleGraceExpired(playerID string) bool {
	delete(r.graceTimers, playerID)
	if _, connected := r.clients[playerID]; connected {
		return false // reconnected in time
	}
	return r.handleLeave(playerID)
}

// finishRace runs once, when the room reaches finished: broadcast the final
// ranking, persist, and tell the directory this room is done.
func (r *Room) finishRace() {
	r.stopCountdown()
	r.broadcast(protocol.RaceFinished(r.state))
	if r.metrics != nil {
		r.metrics.RacesFinished.Inc()
	}
	r.finalizer.Finalize(r.state)
	if r.onClose != nil {
		// the loop stays alive for late reads; the directory just shortens
		// the entry's lifetime
		r.onClose(r.state.Code, false)
	}
	r.log.Info("race finished", zap.Int("players", len(r.state.Players)))
}

func (r *Room) armCountdown(startAtMs int64) {
	r.stopCountdown()
	t := r.clock.NewTimer(r.opts.Countdown)
	r.countdown = t
	go func() {
		select {
		case <-t.Chan():
			select {
			case r.inbox <- beginRace{startAtMs: startAtMs}:
			case <-r.ctx.Done():
			}
		case <-r.ctx.Done():
			stopAndDrain(t)
		}
	}()
}

func (r *Room) stopCountdown() {
	if r.countdown != nil {
		stopAndDrain(r.countdown)
		r.countdown = nil
	}
}

func (r *Room) armGrace(playerID string) {
	r.stopGrace(playerID)
	t := r.clock.NewTimer(r.opts.DisconnectGrace)
	r.graceTimers[playerID] = t
	go func() {
		select {
		case <-t.Chan():
			select {
			case r.inbox <- graceExpired{PlayerID: playerID}:
			case <-r.ctx.Done():
			}
		case <-r.ctx.Done():
			stopAndDrain(t)
		}
	}()
}

func (r *Room) stopGrace(playerID string) {
	if t, ok := r.graceTimers[playerID]; ok {
		stopAndDrain(t)
		delete(r.graceTimers, playerID)
	}
}

// stopAndDrain follows the time.Timer.Stop documentation so timer goroutines
// never leak a pending fire.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

func (r *Room) dropClient(playerID string) {
	if ch, ok := r.clients[playerID]; ok {
		close(ch)
		delete(r.clients, playerID)
	}
}

// broadcast never blocks: a slow reader loses frames, not the whole room.
func (r *Room) broadcast(frame []byte) {
	for id, ch := range r.clients {
		select {
		case ch <- frame:
		default:
			if r.metrics != nil {
				r.metrics.DroppedMessages.Inc()
			}
			r.log.Warn("dropping frame for slow client", zap.String("player", id))
		}
	}
}

func (r *Room) broadcastExcept(senderID string, frame []byte) {
	for id, ch := range r.clients {
		if id == senderID {
			continue
		}
		select {
		case ch <- frame:
		default:
			if r.metrics != nil {
				r.metrics.DroppedMessages.Inc()
			}
			r.log.Warn("dropping frame for slow client", zap.String("player", id))
		}
	}
}

// shutdown runs exactly once: every path that reaches it returns from the
// loop immediately after. Cancelling first unblocks anyone selecting on
// Done before the close callback lands at the directory.
func (r *Room) shutdown() {
	r.cancel()
	r.stopCountdown()
	for id := range r.graceTimers {
		r.stopGrace(id)
	}
	for id, ch := range r.clients {
		close(ch)
		delete(r.clients, id)
	}
	if r.onClose != nil {
		r.onClose(r.state.Code, true)
	}
}
