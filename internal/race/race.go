package race

import (
	"errors"
	"slices"
)

var ErrRoomFull = errors.New("room is full")
var ErrRoomNotJoinable = errors.New("room is not joinable")
var ErrDuplicatePlayer = errors.New("player already in room")
var ErrUnknownPlayer = errors.New("player not in room")
var ErrNotHost = errors.New("only the host can do that")
var ErrNotEnoughPlayers = errors.New("not enough players to start")
var ErrRaceNotRunning = errors.New("race is not running")
var ErrNotInCountdown = errors.New("room is not in countdown")
var ErrInvalidProgress = errors.New("invalid progress value")
var ErrAlreadyFinished = errors.New("player already finished")
var ErrRoomFinished = errors.New("race already finished")

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
)

type Player struct {
	ID          string
	DisplayName string
	JoinedAtMs  int64

	Progress     float64
	WPM          float64
	Finished     bool
	FinishTimeMs int64

	Accuracy   float64
	Characters int
	Errors     int
}

// Result is what a player reports when it completes the snippet.
type Result struct {
	WPM        float64
	Accuracy   float64
	Characters int
	Errors     int
}

// Room is an immutable snapshot of one race. Transition functions return a
// fresh copy; callers must not mutate a snapshot they handed out.
type Room struct {
	Code          string
	HostID        string
	Players       []Player // join order
	Status        Status
	Snippet       string
	RaceStartAtMs int64 // set once, at countdown -> playing
	CreatedAtMs   int64
	ExpiresAtMs   int64
	Abandoned     bool
}

func New(roomCode string, host Player, nowMs, ttlMs int64) Room {
	return Room{
		Code:        roomCode,
		HostID:      host.ID,
		Players:     []Player{host},
		Status:      StatusWaiting,
		CreatedAtMs: nowMs,
		ExpiresAtMs: nowMs + ttlMs,
	}
}

func (r Room) clone() Room {
	r.Players = slices.Clone(r.Players)
	return r
}

func (r Room) indexOf(playerID string) int {
	return slices.IndexFunc(r.Players, func(p Player) bool { return p.ID == playerID })
}

// PlayerByID returns the player's current snapshot, if present.
func (r Room) PlayerByID(playerID string) (Player, bool) {
	i := r.indexOf(playerID)
	if i < 0 {
		return Player{}, false
	}
	return r.Players[i], true
}

// Join admits a player while the room is still waiting. Duplicate joins are
// rejected rather than treated as no-ops so reconnect bugs surface.
func Join(r Room, p Player, maxPlayers int) (Room, error) {
	if r.Status != StatusWaiting {
		return r, ErrRoomNotJoinable
	}
	if len(r.Players) >= maxPlayers {
		return r, ErrRoomFull
	}
	if r.indexOf(p.ID) >= 0 {
		return r, ErrDuplicatePlayer
	}
	next := r.clone()
	next.Players = append(next.Players, p)
	return next, nil
}

// Leave removes a player in any non-finished status. If the host leaves, the
// host role passes to the next remaining player in join order. An emptied
// room is marked abandoned.
func Leave(r Room, playerID string) (Room, error) {
	if r.Status == StatusFinished {
		return r, ErrRoomFinished
	}
	i := r.indexOf(playerID)
	if i < 0 {
		return r, ErrUnknownPlayer
	}
	next := r.clone()
	next.Players = append(next.Players[:i], next.Players[i+1:]...)
	if len(next.Players) == 0 {
		next.Abandoned = true
		return next, nil
	}
	if next.HostID == playerID {
		next.HostID = next.Players[0].ID
	}
	// Mid-race, a departure can leave everyone else already finished.
	if next.Status == StatusPlaying && next.allFinished() {
		next.Status = StatusFinished
	}
	return next, nil
}

// Start fixes the snippet and moves the room into countdown. Host only, from
// waiting only. allowSolo permits a single-player race.
func Start(r Room, requesterID, snippet string, allowSolo bool) (Room, error) {
	if r.Status != StatusWaiting {
		return r, ErrRoomNotJoinable
	}
	if requesterID != r.HostID {
		return r, ErrNotHost
	}
	minPlayers := 2
	if allowSolo {
		minPlayers = 1
	}
	if len(r.Players) < minPlayers {
		return r, ErrNotEnoughPlayers
	}
	next := r.clone()
	next.Snippet = snippet
	next.Status = StatusCountdown
	return next, nil
}

// BeginRace is the timer-driven countdown -> playing transition. nowMs
// becomes the shared race start instant every client measures against.
func BeginRace(r Room, nowMs int64) (Room, error) {
	if r.Status != StatusCountdown {
		return r, ErrNotInCountdown
	}
	next := r.clone()
	next.Status = StatusPlaying
	next.RaceStartAtMs = nowMs
	return next, nil
}

// ApplyProgress records a progress sample. Progress is monotonically
// non-decreasing per player; regressive or out-of-range samples are rejected
// so client bugs don't go unnoticed.
func ApplyProgress(r Room, playerID string, progress, wpm float64) (Room, error) {
	if r.Status != StatusPlaying {
		return r, ErrRaceNotRunning
	}
	i := r.indexOf(playerID)
	if i < 0 {
		return r, ErrUnknownPlayer
	}
	if progress < 0 || progress > 1 || progress < r.Players[i].Progress {
		return r, ErrInvalidProgress
	}
	if r.Players[i].Finished {
		return r, ErrAlreadyFinished
	}
	next := r.clone()
	next.Players[i].Progress = progress
	next.Players[i].WPM = wpm
	return next, nil
}

// Finish records a player's completion at nowMs. Once every current player
// has finished the room itself moves to finished.
func Finish(r Room, playerID string, res Result, nowMs int64) (Room, error) {
	if r.Status != StatusPlaying {
		return r, ErrRaceNotRunning
	}
	i := r.indexOf(playerID)
	if i < 0 {
		return r, ErrUnknownPlayer
	}
	if r.Players[i].Finished {
		return r, ErrAlreadyFinished
	}
	next := r.clone()
	p := &next.Players[i]
	p.Finished = true
	p.FinishTimeMs = nowMs - next.RaceStartAtMs
	p.Progress = 1
	p.WPM = res.WPM
	p.Accuracy = res.Accuracy
	p.Characters = res.Characters
	p.Errors = res.Errors
	if next.allFinished() {
		next.Status = StatusFinished
	}
	return next, nil
}

func (r Room) allFinished() bool {
	for _, p := range r.Players {
		if !p.Finished {
			return false
		}
	}
	return len(r.Players) > 0
}

// Rankings orders finished players by finish time ascending; an equal-time
// tie goes to the earlier joiner. Unfinished players trail in join order.
func Rankings(r Room) []Player {
	ranked := slices.Clone(r.Players)
	joinRank := make(map[string]int, len(r.Players))
	for i, p := range r.Players {
		joinRank[p.ID] = i
	}
	slices.SortStableFunc(ranked, func(a, b Player) int {
		switch {
		case a.Finished && !b.Finished:
			return -1
		case !a.Finished && b.Finished:
			return 1
		case a.Finished && b.Finished:
			if a.FinishTimeMs != b.FinishTimeMs {
				if a.FinishTimeMs < b.FinishTimeMs {
					return -1
				}
				return 1
			}
			return joinRank[a.ID] - joinRank[b.ID]
		default:
			return joinRank[a.ID] - joinRank[b.ID]
		}
	})
	return ranked
}
