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
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/clickcart-checkout/internal/config"
	"github.com/ariefcatur/clickcart-checkout/internal/httpx"
	"github.com/ariefcatur/clickcart-checkout/internal/identity"
	kafkax "github.com/ariefcatur/clickcart-checkout/internal/kafka"
	"github.com/ariefcatur/clickcart-checkout/internal/logx"
	"github.com/ariefcatur/clickcart-checkout/internal/metrics"
	"github.com/ariefcatur/clickcart-checkout/internal/notify"
	"github.com/ariefcatur/clickcart-checkout/internal/orders"
	"github.com/ariefcatur/clickcart-checkout/internal/postgres"
	"github.com/ariefcatur/clickcart-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	name := cfg.ServiceName + "-notifier"

	log, err := logx.New(name, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &notify.Service{
		Users:  &identity.Repo{DB: db},
		Claims: &redisx.Claims{R: rdb},
		Channels: []notify.Channel{
			notify.EmailLog{Log: log.Named("email")},
			notify.SMSLog{Log: log.Named("sms")},
		},
		Log:  log,
		Name: cfg.NotifierGroup,
	}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, orders.TopicOrderNotifications, cfg.NotifierWorkers, log)

	router := httpx.NewRouter(log, metrics.NewServer(prometheus.DefaultRegisterer, name))
	srv := &http.Server{Addr: cfg.NotifierHTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("notifier consumer started",
			zap.String("group", cfg.NotifierGroup), zap.String("topic", orders.TopicOrderNotifications),
			zap.Int("workers", cfg.NotifierWorkers))
		return cons.Start(gctx, svc.HandleMessage)
	})
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.NotifierHTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		log.Error("notifier stopped", zap.Error(err))
		os.Exit(1)
	}
	log.Info("notifier stopped")
}
