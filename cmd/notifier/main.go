package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, cfgErr := config.Load()
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	if cfgErr != nil {
		log.Fatal("config", "error", cfgErr)
	}
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatal("KAFKA_BROKERS is required for the notifier")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (dedup event_id)
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	renderer, err := notify.NewRenderer()
	if err != nil {
		log.Fatal("templates", "error", err)
	}
	h := &notify.Handler{
		Sender: &notify.Sender{
			Renderer: renderer,
			Mailer: notify.NewSendGrid(notify.SendGridConfig{
				APIKey:     cfg.SendGridAPIKey,
				BaseURL:    cfg.SendGridBaseURL,
				FromEmail:  cfg.MailFrom,
				FromName:   cfg.MailFromName,
				MaxRetries: cfg.SendGridMaxRetries,
			}, log),
			Operator: notify.EmailAddress{Email: cfg.OperatorEmail},
			Log:      log,
		},
		Dedup:       &redisx.Dedup{RDB: rdb},
		ServiceName: cfg.ServiceName + "-notifier",
		Log:         log.With("component", "notifier"),
	}

	// Consumer
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notify.TopicNotifications, cfg.NotifierWorkers, log)

	go func() {
		log.Info("notifier consumer started", "group", cfg.NotifierGroup, "topic", notify.TopicNotifications, "workers", cfg.NotifierWorkers)
		if err := cons.Start(ctx, h.HandleMessage); err != nil {
			log.Error("consumer exit", "error", err)
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
