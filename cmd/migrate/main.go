package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/noah-isme/backend-fruver/internal/config"
	"github.com/noah-isme/backend-fruver/internal/db"
	"github.com/noah-isme/backend-fruver/internal/obs"
)

func main() {
	steps := flag.Int("steps", 1, "migrations to roll back with down")
	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), "usage: migrate [-steps n] up|down|version")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "migrate").Logger()
	m := db.Migrator{DatabaseURL: cfg.DatabaseURL, Logger: logger}

	switch flag.Arg(0) {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down(*steps)
	case "version":
		var (
			version uint
			dirty   bool
		)
		version, dirty, err = m.Version()
		if err == nil {
			logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}
}
