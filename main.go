package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pathakanu/medibuddy/internal/api"
	"github.com/pathakanu/medibuddy/internal/config"
	"github.com/pathakanu/medibuddy/internal/database"
	"github.com/pathakanu/medibuddy/internal/feed"
	"github.com/pathakanu/medibuddy/internal/ingest"
	"github.com/pathakanu/medibuddy/internal/logging"
	"github.com/pathakanu/medibuddy/internal/notify"
	"github.com/pathakanu/medibuddy/internal/reconcile"
	"github.com/pathakanu/medibuddy/internal/report"
	"github.com/pathakanu/medibuddy/internal/store"
)

func main() {
	logger := logging.Init()
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database init failed", "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	var (
		pub feed.Publisher
		sub feed.Subscriber
	)
	if cfg.RedisURL != "" {
		redisFeed, err := feed.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Error("redis feed init failed", "error", err)
			os.Exit(1)
		}
		defer redisFeed.Close()
		pub, sub = redisFeed, redisFeed
		logger.Info("cell-state feed on redis")
	} else {
		memoryFeed := feed.NewMemory()
		pub, sub = memoryFeed, memoryFeed
		logger.Info("cell-state feed in-process")
	}

	sink := notify.NewTwilioSink(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)
	scheduler := notify.NewScheduler(st, sink, cfg.LocalTimezone, logger)
	ingestor := ingest.New(st, pub, logger, cfg.IngestRetryAttempts)
	reports := report.New(st, report.NewSummarizer(cfg.OpenAIAPIKey), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Re-arm every stored reminder and mirror device state for each of
	// its users for the lifetime of the process.
	reminders, err := st.ListAll(ctx)
	if err != nil {
		logger.Error("boot: listing reminders failed", "error", err)
		os.Exit(1)
	}
	users := make(map[string]bool)
	for _, reminder := range reminders {
		if err := scheduler.Arm(reminder); err != nil {
			logger.Error("boot: arming reminder failed", "reminder_id", reminder.ID, "error", err)
		}
		users[reminder.UserID] = true
	}
	scheduler.Start()

	var sessions sync.WaitGroup
	for userID := range users {
		reconciler := reconcile.New(userID, st, sub, sink, logger)
		sessions.Add(1)
		go func() {
			defer sessions.Done()
			if err := reconciler.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("reconciler exited", "error", err)
			}
		}()
	}

	var mqttConsumer *ingest.MQTTConsumer
	if cfg.MQTTBrokerURL != "" {
		mqttConsumer, err = ingest.NewMQTTConsumer(cfg.MQTTBrokerURL, cfg.MQTTTopic, logger)
		if err != nil {
			logger.Error("mqtt init failed", "error", err)
			os.Exit(1)
		}
		if err := mqttConsumer.Start(ctx, ingestor); err != nil {
			logger.Error("mqtt subscribe failed", "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/iot/update", ingestor.Handler(cfg.DeviceSecret))
	mux.HandleFunc("/report", reports.Handler(cfg.DeviceSecret))
	api.New(st, scheduler, cfg.DeviceSecret, logger).Register(mux)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdown(server, scheduler, mqttConsumer, cancel, &sessions, logger)
}

func waitForShutdown(server *http.Server, scheduler *notify.Scheduler, mqttConsumer *ingest.MQTTConsumer, cancel context.CancelFunc, sessions *sync.WaitGroup, logger *slog.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if mqttConsumer != nil {
		mqttConsumer.Close()
	}
	cancel()
	sessions.Wait()
	scheduler.Stop()
}
