package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"crazygift/internal/config"
	"crazygift/internal/db"
	"crazygift/internal/logger"

	"github.com/golang-migrate/migrate/v4"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: migrate [up|down N|version|force V]")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("invalid config", "error", err)
	}
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	m, err := db.NewMigrator(cfg.Database.URL)
	if err != nil {
		logger.Fatal("migrator", "error", err)
	}
	defer m.Close()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		steps := 1
		if n, perr := strconv.Atoi(flag.Arg(1)); perr == nil && n > 0 {
			steps = n
		}
		err = m.Steps(-steps)
	case "force":
		v, perr := strconv.Atoi(flag.Arg(1))
		if perr != nil {
			usage()
			os.Exit(2)
		}
		err = m.Force(v)
	case "version":
	default:
		usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		m.Close()
		logger.Fatal("migrate "+cmd, "error", err)
	}

	version, dirty, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		m.Close()
		logger.Fatal("migrate version", "error", verr)
	}
	logger.Info("migrations", "command", cmd, "version", version, "dirty", dirty)
}
