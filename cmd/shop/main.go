package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-checkout/internal/checkout"
	"github.com/ariefcatur/go-shop-checkout/internal/config"
	"github.com/ariefcatur/go-shop-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-checkout/internal/kafka"
	"github.com/ariefcatur/go-shop-checkout/internal/logging"
	"github.com/ariefcatur/go-shop-checkout/internal/metrics"
	"github.com/ariefcatur/go-shop-checkout/internal/notify"
	"github.com/ariefcatur/go-shop-checkout/internal/payment"
	"github.com/ariefcatur/go-shop-checkout/internal/postgres"
	"github.com/ariefcatur/go-shop-checkout/internal/redisx"
	"github.com/ariefcatur/go-shop-checkout/internal/session"
	"github.com/ariefcatur/go-shop-checkout/internal/shop"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log, err := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.Development)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for order mail
	prod := kafkax.NewProducer(cfg.KafkaBrokers, shop.TopicOrderNotifications, 1024, log)
	prod.Start(ctx)
	notifier := &notify.KafkaNotifier{Pub: prod, ServiceName: cfg.ServiceName}

	m := metrics.New(prometheus.DefaultRegisterer, "api")
	orders := &shop.OrderRepo{DB: db}
	discounts := &shop.DiscountRepo{DB: db}
	sessions := session.NewStore(rdb, cfg.SessionTTL)
	provider := payment.New(payment.Config{
		BaseURL:      cfg.Provider.BaseURL,
		AuthorizeURL: cfg.Provider.AuthorizeURL,
		Username:     cfg.Provider.Username,
		Password:     cfg.Provider.Password,
		Signature:    cfg.Provider.Signature,
		Currency:     cfg.Shop.Currency,
		Timeout:      cfg.Provider.Timeout,
	})

	pipeline := checkout.Pipeline{
		BillShip: checkout.FlatRateShipping{Label: cfg.Shop.ShippingLabel, Amount: cfg.Shop.FlatShipping},
		Tax:      checkout.PercentTax{Label: cfg.Shop.TaxLabel, Rate: cfg.Shop.TaxRate},
		Payment:  checkout.NoopPayment{},
		Order:    checkout.NoopOrderHandler{},
	}
	if cfg.Shop.PaymentHandler == "gateway" {
		pipeline.Payment = checkout.GatewayPayment{Charger: provider, Currency: cfg.Shop.Currency}
	}
	core := &checkout.Core{
		Pipeline:        pipeline,
		Discounts:       shop.NewDiscountEngine(discounts),
		Finalizer:       &checkout.Finalizer{Orders: orders, Sessions: sessions},
		Sessions:        sessions,
		Notifier:        notifier,
		Metrics:         m,
		Log:             log,
		AccountRequired: cfg.Shop.AccountRequired,
		LoginURL:        cfg.Shop.LoginURL,
		CompleteURL:     "/shop/checkout/complete",
	}
	machine := &checkout.Machine{
		Core:        core,
		Steps:       checkout.NewSteps(cfg.Shop.CheckoutPaymentStep, cfg.Shop.CheckoutConfirmation),
		Signer:      checkout.NewSigner(cfg.SecretKey),
		Orders:      orders,
		CheckoutURL: "/shop/checkout",
	}
	var express *checkout.Express
	if cfg.Shop.ExpressEnabled {
		site := strings.TrimRight(cfg.SiteURL, "/")
		express = &checkout.Express{
			Core:       core,
			Provider:   provider,
			ExpressURL: "/shop/express-checkout",
			CancelURL:  "/shop/express-checkout-cancel",
			CartURL:    "/shop/cart",
			ReturnURL:  site + "/shop/express-checkout",
			AbortURL:   site + "/shop/express-checkout-cancel",
		}
	}

	router := httpx.NewRouter(log, m)
	router.Handle("/metrics", metrics.Handler(prometheus.DefaultGatherer))
	sh := &httpx.ShopHandler{
		Sessions: &httpx.Sessions{
			Store:      sessions,
			TTL:        cfg.SessionTTL,
			Secure:     cfg.SecureCookies,
			Log:        log,
			UserHeader: cfg.UserHeader,
		},
		Catalog:             &shop.CatalogRepo{DB: db},
		Orders:              orders,
		Discounts:           discounts,
		Core:                core,
		Checkout:            machine,
		Express:             express,
		Mailer:              notifier,
		Log:                 log,
		SiteName:            cfg.SiteName,
		LoginURL:            cfg.Shop.LoginURL,
		WishlistEnabled:     cfg.Shop.WishlistEnabled,
		DiscountFieldInCart: cfg.Shop.DiscountFieldInCart,
		PerPage:             cfg.Shop.PerPage,
	}
	sh.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: httpx.Instrument(router, cfg.ServiceName)}

	// graceful shutdown
	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()      // stop accepting, flush the inbox
	cancel()          // stop producer loop
	prod.WaitClosed() // drain
}
