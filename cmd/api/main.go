package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ariefcatur/clickcart-checkout/internal/checkout"
	"github.com/ariefcatur/clickcart-checkout/internal/config"
	"github.com/ariefcatur/clickcart-checkout/internal/httpx"
	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	"github.com/ariefcatur/clickcart-checkout/internal/inventory"
	kafkax "github.com/ariefcatur/clickcart-checkout/internal/kafka"
	"github.com/ariefcatur/clickcart-checkout/internal/logx"
	"github.com/ariefcatur/clickcart-checkout/internal/metrics"
	"github.com/ariefcatur/clickcart-checkout/internal/notify"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/payment"
	"github.com/ariefcatur/clickcart-checkout/internal/postgres"
	"github.com/ariefcatur/clickcart-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logx.New(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checkoutMetrics := metrics.NewCheckout(prometheus.DefaultRegisterer)
	serverMetrics := metrics.NewServer(prometheus.DefaultRegisterer, cfg.ServiceName)

	svc := &checkout.Service{Log: log, Metrics: checkoutMetrics, Currency: cfg.Currency}
	var publisher notify.Publisher
	var shutdown []func()

	switch cfg.PaymentMode {
	case "sandbox":
		ledger, store, users := sandboxBackends()
		svc.Ledger, svc.Store, svc.Users = ledger, store, users
		svc.Gateway = payment.NewSandbox()
		publisher = notify.LogPublisher{Log: log.Named("notify")}
		log.Warn("running in sandbox mode: in-memory storage, no real payments")

	case "stripe":
		gw, err := payment.NewStripe(payment.StripeConfig{SecretKey: cfg.StripeSecretKey, Timeout: cfg.PaymentTimeout})
		if err != nil {
			log.Fatal("stripe gateway", zap.Error(err))
		}
		svc.Gateway = gw

		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		shutdown = append(shutdown, db.Close)
		if cfg.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				log.Fatal("db migrate", zap.Error(err))
			}
		}

		rdb := redisx.New(cfg.RedisAddr)
		shutdown = append(shutdown, func() { _ = rdb.Close() })

		svc.Ledger = &inventory.Repo{DB: db}
		svc.Users = &identity.Repo{DB: db}
		svc.Store = &orders.CachedStore{Store: &orders.Repo{DB: db}, Cache: &redisx.JSONCache{R: rdb}}

		prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderNotifications, cfg.NotifyQueue, log)
		prod.Start()
		// producer must flush after the dispatcher has drained into it
		shutdown = append([]func(){func() {
			prod.Close()
			prod.WaitClosed()
		}}, shutdown...)
		publisher = &notify.KafkaPublisher{Producer: prod, Service: cfg.ServiceName}

	default:
		log.Fatal("unknown PAYMENT_MODE", zap.String("mode", cfg.PaymentMode))
	}

	dispatcher := notify.NewDispatcher(publisher, log.Named("dispatcher"), notify.Options{
		Workers: cfg.NotifyWorkers,
		Queue:   cfg.NotifyQueue,
		Metrics: checkoutMetrics,
	})
	svc.Notifier = dispatcher

	router := httpx.NewRouter(log, serverMetrics)
	h := &httpx.CheckoutHandler{
		Svc:     svc,
		Limiter: httpx.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Log:     log,
		Timeout: cfg.PaymentTimeout + 2*time.Second,
	}
	h.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("payment_mode", cfg.PaymentMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(ctx2); err != nil {
		log.Warn("notification queue not drained", zap.Error(err))
	}
	cancel()
	for _, f := range shutdown {
		f()
	}
}
