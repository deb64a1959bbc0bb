package results

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/race"
)

type fakeSaver struct {
	saved   []Result
	failFor string
}

func (f *fakeSaver) Save(res Result) error {
	if res.UserID == f.failFor {
		return errors.New("boom")
	}
	f.saved = append(f.saved, res)
	return nil
}

func finishedRoom(t *testing.T) race.Room {
	t.Helper()
	r := race.New("AB23CD", race.Player{ID: "h", DisplayName: "Host"}, 0, 60_000)
	r, err := race.Join(r, race.Player{ID: "a", DisplayName: "Ada"}, 8)
	require.NoError(t, err)
	r, err = race.Start(r, "h", "snippet", true)
	require.NoError(t, err)
	r, err = race.BeginRace(r, 1000)
	require.NoError(t, err)
	r, err = race.Finish(r, "a", race.Result{WPM: 120, Accuracy: 0.98, Characters: 280, Errors: 2}, 9000)
	require.NoError(t, err)
	r, err = race.Finish(r, "h", race.Result{WPM: 85, Accuracy: 0.94, Characters: 280, Errors: 9}, 12_000)
	require.NoError(t, err)
	return r
}

func TestFinalize_OneRecordPerPlayer(t *testing.T) {
	saver := &fakeSaver{}
	f := NewFinalizer(saver, nil, zap.NewNop())

	f.Finalize(finishedRoom(t))

	require.Len(t, saver.saved, 2)

	first := saver.saved[0]
	require.Equal(t, "a", first.UserID)
	require.Equal(t, 1, first.Rank)
	require.Equal(t, 120.0, first.WPM)
	require.Equal(t, int64(8000), first.ElapsedMs)
	require.Equal(t, "AB23CD", first.RoomCode)
	require.False(t, first.PlayedAt.IsZero())

	second := saver.saved[1]
	require.Equal(t, "h", second.UserID)
	require.Equal(t, 2, second.Rank)
	require.Equal(t, int64(11_000), second.ElapsedMs)
}

func TestFinalize_SaveFailureDoesNotStopOthers(t *testing.T) {
	saver := &fakeSaver{failFor: "a"}
	f := NewFinalizer(saver, nil, zap.NewNop())

	f.Finalize(finishedRoom(t))

	require.Len(t, saver.saved, 1)
	require.Equal(t, "h", saver.saved[0].UserID)
}

func TestDiscardSaver(t *testing.T) {
	s := DiscardSaver{Log: zap.NewNop()}
	require.NoError(t, s.Save(Result{UserID: "u"}))
}
