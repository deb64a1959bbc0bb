package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/typeracehq/race-server/internal/config"
	"github.com/typeracehq/race-server/internal/httpapi"
	"github.com/typeracehq/race-server/internal/hub"
	"github.com/typeracehq/race-server/internal/metrics"
	"github.com/typeracehq/race-server/internal/results"
	"github.com/typeracehq/race-server/internal/room"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	var saver results.Saver
	if cfg.DatabaseURL != "" {
		store, err := results.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("opening results store", zap.Error(err))
		}
		saver = store
	} else {
		logger.Warn("DATABASE_URL not set, race results will not be persisted")
		saver = results.DiscardSaver{Log: logger}
	}

	m := metrics.New()
	finalizer := results.NewFinalizer(saver, m, logger)

	ctx := context.Background()
	h := hub.NewHub(ctx, hub.Options{
		Room: room.Options{
			MaxPlayers:      cfg.MaxPlayers,
			AllowSolo:       cfg.AllowSoloRace,
			Countdown:       time.Duration(cfg.CountdownSec) * time.Second,
			DisconnectGrace: time.Duration(cfg.DisconnectGraceSec) * time.Second,
		},
		RoomTTL:     time.Duration(cfg.RoomTTLMin) * time.Minute,
		FinishedTTL: time.Duration(cfg.FinishedTTLSec) * time.Second,
	}, clockwork.NewRealClock(), finalizer, m, logger)

	handler := httpapi.SetupRoutes(h, cfg.MaxWPM, m, logger)

	logger.Info("listening", zap.String("port", cfg.Port))
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
