package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/typeracehq/race-server/internal/race"
)

const maxWPM = 400

func TestDecodeClient(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{"bad json", `{"type":`, ErrBadEnvelope},
		{"unknown type", `{"type":"dance","data":{}}`, ErrUnknownType},
		{"join ok", `{"type":"join","data":{"code":"AB23CD","user_id":"u1","display_name":"Ada"}}`, nil},
		{"join missing name", `{"type":"join","data":{"code":"AB23CD","user_id":"u1"}}`, ErrBadPayload},
		{"leave ok", `{"type":"leave"}`, nil},
		{"start ok", `{"type":"start","data":{"snippet":"package main"}}`, nil},
		{"start empty snippet", `{"type":"start","data":{}}`, ErrBadPayload},
		{"progress ok", `{"type":"progress","data":{"progress":0.5,"wpm":72}}`, nil},
		{"progress above one", `{"type":"progress","data":{"progress":1.01,"wpm":72}}`, ErrOutOfRange},
		{"progress negative", `{"type":"progress","data":{"progress":-0.1,"wpm":72}}`, ErrOutOfRange},
		{"progress wpm over ceiling", `{"type":"progress","data":{"progress":0.5,"wpm":9000}}`, ErrOutOfRange},
		{"progress negative wpm", `{"type":"progress","data":{"progress":0.5,"wpm":-1}}`, ErrOutOfRange},
		{"progress wrong shape", `{"type":"progress","data":{"progress":"half"}}`, ErrBadPayload},
		{"finish ok", `{"type":"finish","data":{"wpm":88,"accuracy":0.96,"characters":300,"errors":4}}`, nil},
		{"finish bad accuracy", `{"type":"finish","data":{"wpm":88,"accuracy":1.5}}`, ErrOutOfRange},
		{"finish negative errors", `{"type":"finish","data":{"wpm":88,"accuracy":0.9,"errors":-1}}`, ErrBadPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeClient([]byte(tc.raw), maxWPM)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotEmpty(t, msg.Type)
		})
	}
}

func TestDecodeClient_JoinFields(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"type":"join","data":{"code":"ab23cd","user_id":"u1","display_name":"Ada"}}`), maxWPM)
	require.NoError(t, err)
	require.Equal(t, MsgJoin, msg.Type)
	require.Equal(t, "ab23cd", msg.Join.Code)
	require.Equal(t, "u1", msg.Join.UserID)
	require.Equal(t, "Ada", msg.Join.DisplayName)
}

func TestRoomUpdate_Roster(t *testing.T) {
	r := race.New("AB23CD", race.Player{ID: "h", DisplayName: "Host"}, 0, 60_000)
	r, err := race.Join(r, race.Player{ID: "a", DisplayName: "Ada"}, 8)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(RoomUpdate(r), &env))
	require.Equal(t, MsgRoomUpdate, env.Type)

	var d RoomUpdateData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, "AB23CD", d.Code)
	require.Equal(t, "h", d.HostID)
	require.Equal(t, "waiting", d.Status)
	require.Len(t, d.Players, 2)
	require.Equal(t, "Ada", d.Players[1].DisplayName)
}

func TestRaceFinished_RankedResults(t *testing.T) {
	r := race.New("AB23CD", race.Player{ID: "h", DisplayName: "Host"}, 0, 60_000)
	r, err := race.Join(r, race.Player{ID: "a", DisplayName: "Ada"}, 8)
	require.NoError(t, err)
	r, err = race.Start(r, "h", "snippet", true)
	require.NoError(t, err)
	r, err = race.BeginRace(r, 1000)
	require.NoError(t, err)
	r, err = race.Finish(r, "a", race.Result{WPM: 110, Accuracy: 0.99}, 9000)
	require.NoError(t, err)
	r, err = race.Finish(r, "h", race.Result{WPM: 70, Accuracy: 0.91}, 12_000)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(RaceFinished(r), &env))
	require.Equal(t, MsgRaceFinished, env.Type)

	var d RaceFinishedData
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Len(t, d.Results, 2)
	require.Equal(t, "a", d.Results[0].UserID)
	require.Equal(t, 1, d.Results[0].Rank)
	require.Equal(t, int64(8000), d.Results[0].ElapsedMs)
	require.Equal(t, "h", d.Results[1].UserID)
	require.Equal(t, 2, d.Results[1].Rank)
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{ErrBadEnvelope, "validation_error"},
		{race.ErrInvalidProgress, "validation_error"},
		{race.ErrRoomFull, "capacity_error"},
		{race.ErrUnknownPlayer, "not_found"},
		{race.ErrRoomNotJoinable, "state_conflict"},
		{race.ErrAlreadyFinished, "state_conflict"},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
