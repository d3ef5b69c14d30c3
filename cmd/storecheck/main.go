package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/joseph-ayodele/exam-grader/internal/app"
	"github.com/joseph-ayodele/exam-grader/internal/common"
)

func main() {
	configPath := flag.String("config", os.Getenv("GRADER_CONFIG"), "path to YAML config")
	flag.Parse()

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := common.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cps, cache, db, err := app.Storage(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening storage: %v", err)
	}
	if db != nil {
		defer db.Close()
		if err := db.HealthCheck(ctx, 3*time.Second); err != nil {
			log.Fatalf("storage health: FAIL (%v)", err)
		}
		log.Printf("storage health: OK (%s)", db.Dialect())
	} else {
		log.Printf("storage health: OK (file, %s)", cfg.Paths.Checkpoints)
	}

	ids, err := cps.List(ctx)
	if err != nil {
		log.Fatalf("listing checkpoints: %v", err)
	}
	log.Printf("checkpoints: %d", len(ids))
	for _, id := range ids {
		cp, found, err := cps.Load(ctx, id)
		if err != nil || !found {
			log.Printf("- %s (unreadable)", id)
			continue
		}
		hit := "no"
		if cp.Meta.ExamID != "" {
			if ok, err := cache.Has(ctx, cp.Meta.ExamID); err == nil && ok {
				hit = "yes"
			}
		}
		log.Printf("- %s stage=%s exam=%s cached=%s", id, cp.Stage, cp.Meta.ExamID, hit)
	}
}
