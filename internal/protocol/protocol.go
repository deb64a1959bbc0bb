package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/typeracehq/race-server/internal/race"
)

var ErrBadEnvelope = errors.New("malformed message envelope")
var ErrUnknownType = errors.New("unknown message type")
var ErrBadPayload = errors.New("malformed message payload")
var ErrOutOfRange = errors.New("value out of range")

type MsgType string

const (
	// client -> server
	MsgJoin     MsgType = "join"
	MsgLeave    MsgType = "leave"
	MsgStart    MsgType = "start"
	MsgProgress MsgType = "progress"
	MsgFinish   MsgType = "finish"

	// server -> client
	MsgRoomUpdate       MsgType = "room_update"
	MsgCountdownStarted MsgType = "countdown_started"
	MsgRaceFinished     MsgType = "race_finished"
	MsgError            MsgType = "error"
	MsgDisconnected     MsgType = "disconnected"
)

// Envelope is the wire shape in both directions.
type Envelope struct {
	Type MsgType         `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type JoinData struct {
	Code        string `json:"code"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type StartData struct {
	Snippet string `json:"snippet"`
}

type ProgressData struct {
	Progress float64 `json:"progress"`
	WPM      float64 `json:"wpm"`
}

type FinishData struct {
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	Characters int     `json:"characters"`
	Errors     int     `json:"errors"`
}

// ClientMessage is a decoded, validated inbound message. Exactly one payload
// field is set, matching Type.
type ClientMessage struct {
	Type     MsgType
	Join     JoinData
	Start    StartData
	Progress ProgressData
	Finish   FinishData
}

// DecodeClient parses and validates one inbound frame. Range checks happen
// here so nothing malformed ever reaches a coordinator. maxWPM is the sanity
// ceiling for client-reported speed.
func DecodeClient(data []byte, maxWPM float64) (ClientMessage, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientMessage{}, ErrBadEnvelope
	}
	msg := ClientMessage{Type: env.Type}
	switch env.Type {
	case MsgJoin:
		if err := json.Unmarshal(env.Data, &msg.Join); err != nil {
			return ClientMessage{}, ErrBadPayload
		}
		if msg.Join.Code == "" || msg.Join.UserID == "" || msg.Join.DisplayName == "" {
			return ClientMessage{}, ErrBadPayload
		}
	case MsgLeave:
		// no payload
	case MsgStart:
		if err := json.Unmarshal(env.Data, &msg.Start); err != nil {
			return ClientMessage{}, ErrBadPayload
		}
		if msg.Start.Snippet == "" {
			return ClientMessage{}, ErrBadPayload
		}
	case MsgProgress:
		if err := json.Unmarshal(env.Data, &msg.Progress); err != nil {
			return ClientMessage{}, ErrBadPayload
		}
		if msg.Progress.Progress < 0 || msg.Progress.Progress > 1 {
			return ClientMessage{}, fmt.Errorf("%w: progress %v", ErrOutOfRange, msg.Progress.Progress)
		}
		if msg.Progress.WPM < 0 || msg.Progress.WPM > maxWPM {
			return ClientMessage{}, fmt.Errorf("%w: wpm %v", ErrOutOfRange, msg.Progress.WPM)
		}
	case MsgFinish:
		if err := json.Unmarshal(env.Data, &msg.Finish); err != nil {
			return ClientMessage{}, ErrBadPayload
		}
		if msg.Finish.WPM < 0 || msg.Finish.WPM > maxWPM {
			return ClientMessage{}, fmt.Errorf("%w: wpm %v", ErrOutOfRange, msg.Finish.WPM)
		}
		if msg.Finish.Accuracy < 0 || msg.Finish.Accuracy > 1 {
			return ClientMessage{}, fmt.Errorf("%w: accuracy %v", ErrOutOfRange, msg.Finish.Accuracy)
		}
		if msg.Finish.Characters < 0 || msg.Finish.Errors < 0 {
			return ClientMessage{}, ErrBadPayload
		}
	default:
		return ClientMessage{}, ErrUnknownType
	}
	return msg, nil
}

// PlayerView is the roster entry broadcast in room_update frames.
type PlayerView struct {
	ID          string  `json:"id"`
	DisplayName string  `json:"display_name"`
	Progress    float64 `json:"progress"`
	WPM         float64 `json:"wpm"`
	Finished    bool    `json:"finished"`
}

type RoomUpdateData struct {
	Code          string       `json:"code"`
	HostID        string       `json:"host_id"`
	Status        string       `json:"status"`
	Players       []PlayerView `json:"players"`
	Snippet       string       `json:"snippet,omitempty"`
	RaceStartAtMs int64        `json:"race_start_at_ms,omitempty"`
}

type CountdownStartedData struct {
	Snippet    string `json:"snippet"`
	StartsAtMs int64  `json:"starts_at_ms"`
}

type ProgressUpdateData struct {
	PlayerID string  `json:"player_id"`
	Progress float64 `json:"progress"`
	WPM      float64 `json:"wpm"`
}

type RankedResult struct {
	UserID      string  `json:"user_id"`
	DisplayName string  `json:"display_name"`
	WPM         float64 `json:"wpm"`
	Accuracy    float64 `json:"accuracy"`
	ElapsedMs   int64   `json:"elapsed_ms"`
	Rank        int     `json:"rank"`
}

type RaceFinishedData struct {
	Results []RankedResult `json:"results"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DisconnectedData struct {
	PlayerID string `json:"player_id"`
}

func encode(t MsgType, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		// all outbound payloads are plain structs; this cannot fail
		panic(err)
	}
	out, _ := json.Marshal(Envelope{Type: t, Data: raw})
	return out
}

// RoomUpdate renders the full roster snapshot sent on every membership or
// progress change.
func RoomUpdate(r race.Room) []byte {
	d := RoomUpdateData{
		Code:          r.Code,
		HostID:        r.HostID,
		Status:        string(r.Status),
		Players:       make([]PlayerView, 0, len(r.Players)),
		Snippet:       r.Snippet,
		RaceStartAtMs: r.RaceStartAtMs,
	}
	for _, p := range r.Players {
		d.Players = append(d.Players, PlayerView{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			Progress:    p.Progress,
			WPM:         p.WPM,
			Finished:    p.Finished,
		})
	}
	return encode(MsgRoomUpdate, d)
}

// CountdownStarted carries the snippet and the absolute start instant so
// every client renders the same countdown regardless of delivery latency.
func CountdownStarted(snippet string, startsAtMs int64) []byte {
	return encode(MsgCountdownStarted, CountdownStartedData{Snippet: snippet, StartsAtMs: startsAtMs})
}

func ProgressUpdate(playerID string, progress, wpm float64) []byte {
	return encode(MsgProgress, ProgressUpdateData{PlayerID: playerID, Progress: progress, WPM: wpm})
}

// RaceFinished renders the final ranking: finish time ascending, ties broken
// by join order.
func RaceFinished(r race.Room) []byte {
	ranked := race.Rankings(r)
	d := RaceFinishedData{Results: make([]RankedResult, 0, len(ranked))}
	for i, p := range ranked {
		d.Results = append(d.Results, RankedResult{
			UserID:      p.ID,
			DisplayName: p.DisplayName,
			WPM:         p.WPM,
			Accuracy:    p.Accuracy,
			ElapsedMs:   p.FinishTimeMs,
			Rank:        i + 1,
		})
	}
	return encode(MsgRaceFinished, d)
}

func Error(errCode, message string) []byte {
	return encode(MsgError, ErrorData{Code: errCode, Message: message})
}

func Disconnected(playerID string) []byte {
	return encode(MsgDisconnected, DisconnectedData{PlayerID: playerID})
}
