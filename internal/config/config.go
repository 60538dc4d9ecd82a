package config

import (
	"log"
	"os"
	"time"
)

type Config struct {
	Port          string
	DBDSN         string
	LogFile       string
	NATSURL       string        // empty disables the external event mirror
	SweepInterval time.Duration // auction expiry sweep cadence
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		dsn = "agritrade.db"
	} // sqlite file in project root
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "./agritrade.log"
	}
	natsURL := os.Getenv("NATS_URL") // optional

	sweep := 30 * time.Second
	if v := os.Getenv("SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			sweep = d
		} else {
			log.Printf("[config] bad SWEEP_INTERVAL %q, keeping %s", v, sweep)
		}
	}

	cfg := Config{Port: port, DBDSN: dsn, LogFile: logFile, NATSURL: natsURL, SweepInterval: sweep}
	log.Printf("[config] PORT=%s DB_DSN=%s LOG_FILE=%s NATS_URL=%s SWEEP_INTERVAL=%s",
		cfg.Port, cfg.DBDSN, cfg.LogFile, cfg.NATSURL, cfg.SweepInterval)
	return cfg
}
