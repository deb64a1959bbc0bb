package results

import (
	"time"

	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/race"
)

// Result is one player's persisted outcome for one race.
type Result struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	UserID     string    `gorm:"index" json:"user_id"`
	WPM        float64   `json:"wpm"`
	Accuracy   float64   `json:"accuracy"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Characters int       `json:"characters"`
	Errors     int       `json:"errors"`
	Rank       int       `json:"rank"`
	RoomCode   string    `gorm:"index" json:"room_code"`
	PlayedAt   time.Time `json:"played_at"`
}

// Saver persists one result record. The store implementation talks to
// postgres; tests and the no-database dev mode inject something lighter.
type Saver interface {
	Save(res Result) error
}

type Finalizer struct {
	saver   Saver
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewFinalizer(saver Saver, m *metrics.Metrics, log *zap.Logger) *Finalizer {
	return &Finalizer{saver: saver, metrics: m, log: log}
}

// Finalize writes one record per ranked player of a finished room. Persistence
// failures are logged and skipped: the outcome was already broadcast to the
// room and is not rolled back.
func (f *Finalizer) Finalize(r race.Room) {
	playedAt := time.Now().UTC()
	for i, p := range race.Rankings(r) {
		res := Result{
			UserID:     p.ID,
			WPM:        p.WPM,
			Accuracy:   p.Accuracy,
			ElapsedMs:  p.FinishTimeMs,
			Characters: p.Characters,
			Errors:     p.Errors,
			Rank:       i + 1,
			RoomCode:   r.Code,
			PlayedAt:   playedAt,
		}
		if err := f.saver.Save(res); err != nil {
			if f.metrics != nil {
				f.metrics.PersistFailures.Inc()
			}
			f.log.Error("persisting race result",
				zap.String("room", r.Code),
				zap.String("user", p.ID),
				zap.Error(err))
		}
	}
}
