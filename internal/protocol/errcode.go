package protocol

import (
	"errors"

	"github.com/typeracehq/race-server/internal/race"
)

// ErrorCode buckets an error into the wire-level error taxonomy sent in
// error frames.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrBadEnvelope),
		errors.Is(err, ErrBadPayload),
		errors.Is(err, ErrUnknownType),
		errors.Is(err, ErrOutOfRange),
		errors.Is(err, race.ErrInvalidProgress):
		return "validation_error"

	case errors.Is(err, race.ErrRoomFull):
		return "capacity_error"

	case errors.Is(err, race.ErrUnknownPlayer):
		return "not_found"

	case errors.Is(err, race.ErrRoomNotJoinable),
		errors.Is(err, race.ErrDuplicatePlayer),
		errors.Is(err, race.ErrNotHost),
		errors.Is(err, race.ErrNotEnoughPlayers),
		errors.Is(err, race.ErrRaceNotRunning),
		errors.Is(err, race.ErrNotInCountdown),
		errors.Is(err, race.ErrAlreadyFinished),
		errors.Is(err, race.ErrRoomFinished):
		return "state_conflict"

	default:
		return "internal_error"
	}
}
