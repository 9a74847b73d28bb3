package main

import (
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/buzzroom/go/internal/dbconfig"
	"github.com/rs/zerolog"
)

// Store backends selectable with STORE.
const (
	storeMemory   = "memory"
	storeNATS     = "nats"
	storePostgres = "postgres"
)

type Config struct {
	Port     string
	LogLevel zerolog.Level

	Store    string
	KVBucket string
	// NATSURL enables the JetStream event stream and the media transport.
	// Required when Store is nats.
	NATSURL     string
	EventMaxAge time.Duration

	ModesFile         string
	CountdownInterval time.Duration

	SignalRate  float64
	SignalBurst int

	Database dbconfig.Config
}

func loadConfig() Config {
	level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}

	return Config{
		Port:              getEnv("PORT", "8080"),
		LogLevel:          level,
		Store:             getEnv("STORE", storeMemory),
		KVBucket:          getEnv("NATS_KV_BUCKET", "buzz_rooms"),
		NATSURL:           os.Getenv("NATS_URL"),
		EventMaxAge:       getEnvAsDuration("EVENT_MAX_AGE", time.Hour),
		ModesFile:         os.Getenv("MODES_FILE"),
		CountdownInterval: getEnvAsDuration("COUNTDOWN_INTERVAL", time.Second),
		SignalRate:        float64(getEnvAsInt("SIGNAL_RATE_PER_SECOND", 5)),
		SignalBurst:       getEnvAsInt("SIGNAL_BURST", 3),
		Database:          dbconfig.NewConfigFromEnv(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
