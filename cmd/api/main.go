package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-checkout/internal/account"
	"github.com/ariefcatur/go-storefront-checkout/internal/cart"
	"github.com/ariefcatur/go-storefront-checkout/internal/catalog"
	"github.com/ariefcatur/go-storefront-checkout/internal/checkout"
	"github.com/ariefcatur/go-storefront-checkout/internal/config"
	"github.com/ariefcatur/go-storefront-checkout/internal/discount"
	"github.com/ariefcatur/go-storefront-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-checkout/internal/kafka"
	"github.com/ariefcatur/go-storefront-checkout/internal/logger"
	"github.com/ariefcatur/go-storefront-checkout/internal/notify"
	"github.com/ariefcatur/go-storefront-checkout/internal/orders"
	"github.com/ariefcatur/go-storefront-checkout/internal/payment"
	"github.com/ariefcatur/go-storefront-checkout/internal/postgres"
	"github.com/ariefcatur/go-storefront-checkout/internal/redisx"
	"github.com/ariefcatur/go-storefront-checkout/internal/registration"
	"github.com/ariefcatur/go-storefront-checkout/internal/session"
	"github.com/ariefcatur/go-storefront-checkout/internal/telemetry"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal("tracer init", "error", err)
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", "error", err)
	}
	defer db.Close()
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatal("db schema", "error", err)
	}
	discounts := &discount.Repo{DB: db}
	if n, err := discounts.NormalizeLegacy(ctx); err != nil {
		log.Warn("normalize legacy discount codes", "error", err)
	} else if n > 0 {
		log.Info("normalized legacy discount codes", "rows", n)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Notifications: lewat Kafka kalau broker tersedia, selain itu kirim langsung
	var dispatcher notify.Dispatcher
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, notify.TopicNotifications, 1024, log)
		prod.Start()
		dispatcher = notify.NewPublisher(prod, cfg.ServiceName, log)
	} else {
		renderer, err := notify.NewRenderer()
		if err != nil {
			log.Fatal("templates", "error", err)
		}
		dispatcher = &notify.Direct{Sender: &notify.Sender{
			Renderer: renderer,
			Mailer:   newMailer(cfg, log),
			Operator: notify.EmailAddress{Email: cfg.OperatorEmail},
			Log:      log,
		}}
		log.Warn("KAFKA_BROKERS not set, sending notifications inline")
	}

	// Payments
	payments := payment.NewAdapter(map[payment.Provider]payment.Gateway{
		payment.ProviderStripe:   payment.NewStripeGateway(cfg.StripeBaseURL, cfg.StripeSecretKey),
		payment.ProviderRazorpay: payment.NewRazorpayGateway(cfg.RazorpayBaseURL, cfg.RazorpayKeyID, cfg.RazorpayKeySecret),
	}, cfg.Currency, cfg.PaymentIntentTimeout, log)

	// Repos & services
	products := &catalog.Repo{DB: db}
	users := &account.Repo{DB: db}
	carts := &cart.Repo{DB: db}
	accounts := &account.Service{Store: users}
	validator := &discount.Validator{Store: discounts, Cache: &discount.RedisCache{RDB: rdb}, Log: log}

	checkouts := &checkout.Service{
		Store:       &checkout.Repo{DB: db},
		Carts:       carts,
		Products:    products,
		Addresses:   accounts,
		Payments:    payments,
		Currency:    cfg.Currency,
		Locker:      &redisx.Locker{RDB: rdb},
		Notifier:    dispatcher,
		Log:         log.With("component", "checkout"),
		Transient:   postgres.IsTransient,
		LockTTL:     cfg.CheckoutLockTTL,
		MaxAttempts: cfg.CheckoutApplyAttempts,
	}
	sweeper := &checkout.Sweeper{Service: checkouts, Interval: cfg.SweepInterval, Grace: cfg.SweepGrace}
	go sweeper.Run(ctx)

	regRepo := &registration.Repo{DB: db}
	registrations := &registration.Service{
		Store:     regRepo,
		Offerings: regRepo,
		Discounts: validator,
		Payments:  payments,
		Notifier:  dispatcher,
		Log:       log.With("component", "registration"),
		Currency:  cfg.Currency,
	}
	cartSvc := &cart.Service{Store: carts, Products: products, Users: users}

	api := &httpx.API{
		Verifier: session.NewVerifier(cfg.JWTSecret),
		Shop: &httpx.ShopHandler{
			Catalog:   products,
			Carts:     cartSvc,
			Addresses: accounts,
			Log:       log,
		},
		Checkout: &httpx.CheckoutHandler{Checkouts: checkouts, Log: log},
		Payments: &httpx.PaymentsHandler{Intents: payments, Registrations: registrations, Carts: cartSvc, Log: log},
		Registrations: &httpx.RegistrationsHandler{
			Registrations: registrations,
			Discounts:     validator,
			Log:           log,
		},
		Orders: &httpx.OrdersHandler{
			Orders: &orders.Service{Store: &orders.Repo{DB: db}, Notifier: dispatcher, Log: log.With("component", "orders")},
			Log:    log,
		},
	}
	router := httpx.NewRouter(log)
	api.Mount(router)

	// HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", "error", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	cancel() // stop sweeper
	if prod != nil {
		prod.Close()      // tutup inbox -> flush & close writer
		prod.WaitClosed() // drain
	}
	if err := shutdownTracer(ctx2); err != nil {
		log.Warn("tracer shutdown", "error", err)
	}
}

func newMailer(cfg config.Config, log *logger.Logger) notify.Mailer {
	return notify.NewSendGrid(notify.SendGridConfig{
		APIKey:     cfg.SendGridAPIKey,
		BaseURL:    cfg.SendGridBaseURL,
		FromEmail:  cfg.MailFrom,
		FromName:   cfg.MailFromName,
		MaxRetries: cfg.SendGridMaxRetries,
	}, log)
}
