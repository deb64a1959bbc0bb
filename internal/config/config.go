package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	MaxPlayers         int
	AllowSoloRace      bool
	CountdownSec       int
	DisconnectGraceSec int
	RoomTTLMin         int
	FinishedTTLSec     int
	MaxWPM             float64
}

func Load() Config {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	return Config{
		Port:               getEnv("PORT", "8080"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		MaxPlayers:         getEnvInt("MAX_PLAYERS", 8),
		AllowSoloRace:      getEnvBool("ALLOW_SOLO_RACE", true),
		CountdownSec:       getEnvInt("COUNTDOWN_SEC", 5),
		DisconnectGraceSec: getEnvInt("DISCONNECT_GRACE_SEC", 10),
		RoomTTLMin:         getEnvInt("ROOM_TTL_MIN", 30),
		FinishedTTLSec:     getEnvInt("FINISHED_TTL_SEC", 30),
		MaxWPM:             float64(getEnvInt("MAX_WPM", 400)),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
