package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/robfig/cron/v3"

	"github.com/malzahar-db/sgbd/config"
	"github.com/malzahar-db/sgbd/rm"
)

// runCompact runs a full-file reorganization pass ("VACUUM"-style) over
// every table's data file, either once (cfg.Compact.Schedule empty) or on
// the configured cron schedule, grounded on
// internal/storage/scheduler.go's cron.New(cron.WithSeconds()) usage.
// Index files are left as they are (reorganization keeps every RID). Each
// run opens its own Engine on the data directory and closes it afterwards;
// it does not attach to an Engine already running, and nothing here stops
// another process from opening the same files meanwhile.
func runCompact(cfg config.EngineConfig) error {
	if cfg.Compact.Schedule == "" {
		return compactOnce(cfg)
	}

	c := cron.New(cron.WithSeconds())
	_, err := c.AddFunc(cfg.Compact.Schedule, func() {
		if err := compactOnce(cfg); err != nil {
			log.Printf("sgbdctl compact: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("sgbdctl compact: bad schedule %q: %w", cfg.Compact.Schedule, err)
	}
	c.Start()
	defer c.Stop()

	log.Printf("sgbdctl compact: scheduled %q, waiting for signal to exit", cfg.Compact.Schedule)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	return nil
}

func compactOnce(cfg config.EngineConfig) error {
	e := rm.New(cfg.DataDir)
	if err := e.Open(); err != nil {
		return fmt.Errorf("compact: open: %w", err)
	}
	defer e.Close()

	n, err := e.CompactAll()
	if err != nil {
		return fmt.Errorf("compact: %w", err)
	}
	log.Printf("sgbdctl compact: reorganized %d tables", n)
	return nil
}
