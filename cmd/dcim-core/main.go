package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/database"
	"github.com/proecheng/dcim-platform-sub000/internal/engine"
	"github.com/proecheng/dcim-platform-sub000/internal/history"
	"github.com/proecheng/dcim-platform-sub000/internal/httpapi"
	"github.com/proecheng/dcim-platform-sub000/internal/hub"
	"github.com/proecheng/dcim-platform-sub000/internal/logger"
	"github.com/proecheng/dcim-platform-sub000/internal/notify"
	"github.com/proecheng/dcim-platform-sub000/internal/realtime"
	"github.com/proecheng/dcim-platform-sub000/internal/redisx"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/sampler"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// dcim-core: 采集、报警、历史归档与实时推送服务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dcim-core")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient := redisx.NewRedisClient(&cfg.Redis)
	defer redisx.Close(redisClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisx.Ping(ctx, redisClient); err != nil {
		log.Fatal("failed to connect redis", zap.Error(err))
	}

	// 仓储
	pointsRepo := repository.NewPointsRepository(db, log)
	realtimeRepo := repository.NewRealtimeRepository(db, log)
	historyRepo := repository.NewHistoryRepository(db, log)
	thresholdsRepo := repository.NewThresholdsRepository(db, log)
	alarmsRepo := repository.NewAlarmsRepository(db, log)
	pricingRepo := repository.NewPricingRepository(db, log)

	// 推送与报警
	pushHub := hub.NewHub(cfg.Hub.SubscriberBuffer, log)
	stateManager := engine.NewStateManager(cfg, redisClient, log)
	alarmEngine := engine.NewAlarmEngine(thresholdsRepo, alarmsRepo, stateManager, pushHub, redisClient, log)
	if cfg.Notify.WebhookURL != "" {
		notifier := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.RetryCount, cfg.Notify.TimeoutSec, log)
		alarmEngine.SetNotifier(notifier)
		log.Info("alarm webhook enabled", zap.String("url", cfg.Notify.WebhookURL))
	}

	// 采集
	cache := realtime.NewCache(cfg, redisClient, log)
	smp := sampler.NewSampler(cfg, db, pointsRepo, realtimeRepo, historyRepo, alarmEngine, cache, pushHub, log)
	go func() {
		if err := smp.Start(ctx); err != nil && err != context.Canceled {
			log.Error("sampler stopped", zap.Error(err))
		}
	}()

	// 归档与清理
	aggregator := history.NewAggregator(cfg, historyRepo, log)
	if err := aggregator.Start(); err != nil {
		log.Fatal("failed to start aggregator", zap.Error(err))
	}
	defer aggregator.Stop()

	// HTTP
	tariffSvc := tariff.NewService(pricingRepo, log)
	exporter := history.NewExporter(historyRepo, log)

	router := httpapi.NewRouter(log)
	router.RegisterPointRoutes(httpapi.NewPointHandler(pointsRepo, realtimeRepo, log))
	router.RegisterHistoryRoutes(httpapi.NewHistoryHandler(historyRepo, exporter, cfg.History.TrendMaxRows, log))
	router.RegisterAlarmRoutes(httpapi.NewAlarmHandler(alarmsRepo, thresholdsRepo, alarmEngine, log))
	router.RegisterTariffRoutes(httpapi.NewTariffHandler(pricingRepo, tariffSvc, log))
	router.HandleHandler("/ws/", hub.NewGateway(pushHub, log))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dcim-core listening", zap.String("addr", cfg.HTTP.Addr))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("http server stopped", zap.Error(err))
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	pushHub.CloseAll()
}
