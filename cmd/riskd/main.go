package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lv-risk/internal/alteration"
	"lv-risk/internal/config"
	"lv-risk/internal/db"
	"lv-risk/internal/health"
	"lv-risk/internal/httpserver"
	"lv-risk/internal/ledger"
	"lv-risk/internal/logging"
	"lv-risk/internal/marketdata"
	"lv-risk/internal/metrics"
	"lv-risk/internal/notify"
	"lv-risk/internal/risk"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info").Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)
	startedAt := time.Now()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	feed := marketdata.NewFeed(cfg.PriceMaxAge, nil)
	catalog := marketdata.NewStore(pool)
	alts := alteration.NewEngine(alteration.NewPgStore(pool), alteration.Options{
		Logger:           logger.With("component", "alteration"),
		Metrics:          m,
		CandleVolatility: cfg.CandleVolatility,
	})
	if err := alts.Load(ctx); err != nil {
		logger.Error("load alterations", "error", err)
		os.Exit(1)
	}
	ledgerSvc := ledger.NewService(pool)

	var wg sync.WaitGroup
	bus := notify.NewBus()
	sinks := []notify.Sink{bus}
	if cfg.KafkaEnabled() {
		pub := notify.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaNotifyTopic)
		defer pub.Close()
		queue := notify.NewQueue(cfg.NotifyQueueSize, pub, logger.With("component", "notify"))
		sinks = append(sinks, queue)
		wg.Add(1)
		go func() {
			defer wg.Done()
			queue.Run(ctx)
		}()

		consumer := marketdata.NewFeedConsumer(cfg.KafkaBrokers, cfg.KafkaPriceTopic, cfg.KafkaGroupID, feed, logger.With("component", "prices"))
		defer consumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil {
				logger.Error("price consumer stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("kafka is not configured; prices must be pushed by another feed")
	}

	driver := risk.New(risk.Deps{
		Ledger:      ledgerSvc,
		Catalog:     catalog,
		Feed:        feed,
		Alterations: alts,
		Sink:        notify.Multi(sinks...),
		Logger:      logger,
		Metrics:     m,
	}, risk.Config{
		Interval:      cfg.TickInterval,
		MarginCallPct: cfg.MarginCallLevel,
		StopOutPct:    cfg.StopOutLevel,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = driver.Run(ctx)
	}()

	stats := func() map[string]int {
		return map[string]int{
			"active_alterations": len(alts.List()),
			"ws_subscribers":     bus.Subscribers(),
			"fresh_prices":       len(feed.Snapshot()),
		}
	}
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Logger:            logger,
		HealthHandler:     health.NewHandler(pool, startedAt, cfg.HTTPAddr, cfg.InternalToken, stats),
		AlterationHandler: httpserver.NewAlterationHandler(alts),
		CandleHandler:     httpserver.NewCandleHandler(alts, cfg.CandleInterval),
		AccountHandler:    httpserver.NewAccountHandler(driver.Margin),
		PositionsWS:       notify.NewWSHandler(bus, cfg.WebSocketOrigin),
		Gatherer:          reg,
		InternalToken:     cfg.InternalToken,
		RateLimiter:       httpserver.NewRateLimiter(20, 40),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server listening", "addr", cfg.HTTPAddr, "alterations", len(alts.List()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server", "error", err)
		stop()
	}
	wg.Wait()
	logger.Info("shutdown complete")
}
