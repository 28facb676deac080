package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/config"
	"schoolattendance/internal/queue"
	"schoolattendance/internal/store"
	"schoolattendance/internal/worker"
)

// Worker consumes attendance events and keeps per-student summaries warm in the cache.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is consumed inside the api process; the standalone worker needs redis")
	}

	db, err := store.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Printf("WARNING: redis at %s not reachable yet, consumer will keep retrying", cfg.RedisAddr)
	}

	att := attendance.NewService(
		attendance.NewRepository(db),
		cfg.SessionWindow,
		attendance.WithLocation(cfg.SchoolTimezone),
		attendance.WithSummaryCache(attendance.NewRedisSummaryCache(redisClient.Client, cfg.SummaryCacheTTL)),
	)

	q := queue.New(cfg.QueueBackend, redisClient.Client)
	log.Println("worker started, waiting for messages...")
	if err := worker.Run(ctx, q, att); err != nil {
		log.Fatalf("queue consume failed: %v", err)
	}
	log.Println("worker stopped")
}
