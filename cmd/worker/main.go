package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/crm"
	"github.com/ignite/campaign-dispatch/internal/dispatch"
	"github.com/ignite/campaign-dispatch/internal/pkg/retry"
	"github.com/ignite/campaign-dispatch/internal/provider"
	"github.com/ignite/campaign-dispatch/internal/queue"
	"github.com/ignite/campaign-dispatch/internal/repository/postgres"
)

func main() {
	log.Println("Starting Campaign Dispatch Worker...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("Connected to redis")

	repo := postgres.NewDispatchRepo(db)
	crmClient := crm.NewClient(cfg.CRM.BaseURL, cfg.CRM.APIKey)
	notifier := crm.NewNotifier(cfg.CRM.BaseURL, cfg.CRM.APIKey)
	registry := provider.NewRegistry(retry.New())
	queueClient := queue.NewClient(rdb)

	intake := dispatch.NewIntakeStage(repo, crmClient, queueClient, notifier)
	send := dispatch.NewSendStage(repo, crmClient, queueClient, notifier, registry)
	followUp := dispatch.NewFollowUpStage(repo, crmClient, notifier, registry)

	ctx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	consumers := []*queue.Consumer{
		queue.NewConsumer(rdb, dispatch.QueueIntake, cfg.Worker.IntakeWorkers, intake.Handle),
	}
	for _, name := range []string{
		provider.CDA, provider.GOSAC, provider.GOSACOficial, provider.RCS,
		provider.OmniRCS, provider.OmniWhatsApp, provider.Salesforce, provider.Noah,
	} {
		consumers = append(consumers,
			queue.NewConsumer(rdb, dispatch.SendQueue(name), cfg.Worker.SendWorkers, send.Handle),
			queue.NewConsumer(rdb, dispatch.FollowUpQueue(name), cfg.Worker.FollowUpWorkers, followUp.Handle),
		)
	}
	for _, c := range consumers {
		c.Start(ctx)
	}
	log.Printf("Worker running with %d consumers", len(consumers))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancelRun()
	for _, c := range consumers {
		c.Stop()
		stats := c.Stats()
		log.Printf("Consumer stats: processed=%d failed=%d retried=%d dead=%d",
			stats.Processed, stats.Failed, stats.Retried, stats.Dead)
	}
	log.Println("Worker stopped")
}
