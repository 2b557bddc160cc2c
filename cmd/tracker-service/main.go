package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"tracker-service/internal/config"
	"tracker-service/internal/journal"
	"tracker-service/internal/service"
)

var version = "dev" // set with -ldflags "-X main.version=..."

func main() {
	cfg := config.New()
	showVersion := flag.Bool("version", false, "Print version and exit")

	err := cfg.Parse()
	if *showVersion {
		fmt.Printf("tracker-service %s\n", version)
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracker-service: %v\n", err)
		os.Exit(2)
	}

	if cfg.JournalDump > 0 {
		if err := dumpJournal(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "tracker-service: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg, logger, version)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}
	if err := svc.Run(ctx); err != nil {
		logger.Fatalf("Service failed: %v", err)
	}
}

// newLogger leaves timestamps to journald when running under systemd.
func newLogger() *log.Logger {
	if os.Getenv("JOURNAL_STREAM") != "" {
		return log.New(os.Stdout, "", 0)
	}
	return log.New(os.Stdout, "tracker-service: ", log.LstdFlags|log.Lmsgprefix)
}

func dumpJournal(cfg *config.Config) error {
	j, err := journal.Open(cfg.JournalPath, cfg.JournalMax)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.WriteRecent(os.Stdout, cfg.JournalDump)
}
