package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/config"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/notify"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	service := cfg.ServiceName + "-notifier"
	log, err := logging.New(service, cfg.LogLevel, cfg.Development)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: 4})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	var mailer notify.Mailer = &notify.LogMailer{Log: log}
	if cfg.SMTP.Addr != "" {
		mailer = &notify.SMTPMailer{
			Addr:     cfg.SMTP.Addr,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		}
	}

	svc := &notify.Service{
		Orders:      &shop.OrderRepo{DB: db},
		Redis:       rdb,
		Mailer:      mailer,
		Log:         log,
		ServiceName: service,
		SiteName:    cfg.SiteName,
		SiteURL:     cfg.SiteURL,
	}

	// Consumer
	group, workers := cfg.Notifier.Group, cfg.Notifier.Workers
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, shop.TopicOrderNotifications, workers, log)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("notifier consumer started",
			zap.String("group", group), zap.String("topic", shop.TopicOrderNotifications), zap.Int("workers", workers))
		if err := cons.Start(ctx, svc.HandleMessage); err != nil {
			log.Error("consumer exit", zap.Error(err))
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
	log.Info("shutting down consumer")
	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("consumer did not stop in time")
	}
}
