package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"schoolattendance/internal/attendance"
	"schoolattendance/internal/config"
	"schoolattendance/internal/httpapi"
	"schoolattendance/internal/queue"
	"schoolattendance/internal/store"
	"schoolattendance/internal/worker"
)

func main() {
	cfg := config.Load()

	// Set Gin mode based on environment
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(cfg.QueueBackend, redisClient.Client)
	att := attendance.NewService(
		attendance.NewRepository(db),
		cfg.SessionWindow,
		attendance.WithLocation(cfg.SchoolTimezone),
		attendance.WithEvents(q),
		attendance.WithSummaryCache(attendance.NewRedisSummaryCache(redisClient.Client, cfg.SummaryCacheTTL)),
	)

	// The in-memory queue only lives in this process, so consume it here.
	if _, ok := q.(*queue.InMemory); ok {
		go func() {
			if err := worker.Run(ctx, q, att); err != nil {
				log.Printf("in-process worker stopped: %v", err)
			}
		}()
		log.Println("queue backend is memory, summary worker running in-process")
	}

	r := httpapi.NewRouter(att, httpapi.Options{
		SigningKey:      cfg.JWTSigningKey,
		Issuer:          cfg.JWTIssuer,
		PublicBaseURL:   cfg.PublicBaseURL,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Health: map[string]httpapi.HealthCheck{
			"db":    db.Healthy,
			"redis": redisClient.Healthy,
		},
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (window %s, timezone %s)", cfg.HTTPPort, att.Window(), cfg.SchoolTimezone)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	cancel()

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
