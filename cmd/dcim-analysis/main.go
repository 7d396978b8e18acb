package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/proecheng/dcim-platform-sub000/internal/analysis"
	"github.com/proecheng/dcim-platform-sub000/internal/config"
	"github.com/proecheng/dcim-platform-sub000/internal/database"
	"github.com/proecheng/dcim-platform-sub000/internal/demand"
	"github.com/proecheng/dcim-platform-sub000/internal/execution"
	"github.com/proecheng/dcim-platform-sub000/internal/httpapi"
	"github.com/proecheng/dcim-platform-sub000/internal/logger"
	"github.com/proecheng/dcim-platform-sub000/internal/matcher"
	"github.com/proecheng/dcim-platform-sub000/internal/mqttx"
	"github.com/proecheng/dcim-platform-sub000/internal/notify"
	"github.com/proecheng/dcim-platform-sub000/internal/repository"
	"github.com/proecheng/dcim-platform-sub000/internal/simulation"
	"github.com/proecheng/dcim-platform-sub000/internal/tariff"
)

// dcim-analysis: 节能分析、仿真与执行闭环服务
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "dcim-analysis")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	// 仓储
	pointsRepo := repository.NewPointsRepository(db, log)
	devicesRepo := repository.NewDevicesRepository(db, log)
	metersRepo := repository.NewMetersRepository(db, log)
	energyRepo := repository.NewEnergyRepository(db, log)
	pricingRepo := repository.NewPricingRepository(db, log)
	suggestionsRepo := repository.NewSuggestionsRepository(db, log)
	executionRepo := repository.NewExecutionRepository(db, log)

	// 分析链
	tariffSvc := tariff.NewService(pricingRepo, log)
	demandAnalyzer := demand.NewAnalyzer(metersRepo, demand.DefaultThresholds(), log)

	registry := analysis.NewRegistry(suggestionsRepo, log)
	registry.Register(analysis.NewLoadShiftAnalyzer())
	registry.Register(analysis.NewDemandAnalyzerPlugin(demandAnalyzer))
	registry.Register(analysis.NewPowerFactorAnalyzer())
	registry.Register(analysis.NewStorageAnalyzer())
	registry.Register(analysis.NewPUEAnalyzer())
	registry.Register(analysis.NewEquipmentAnalyzer())

	ctxBuilder := analysis.NewContextBuilder(cfg, energyRepo, devicesRepo, metersRepo, tariffSvc, log)
	simulator := simulation.NewSimulator(metersRepo, devicesRepo, tariffSvc, demandAnalyzer, log)

	// 控制下发：MQTT不可达时降级为纯仿真模式
	var publisher execution.Publisher
	if mqttClient, err := mqttx.NewClient(&cfg.MQTT, log); err != nil {
		log.Warn("mqtt unavailable, device control runs without publishing", zap.Error(err))
	} else {
		publisher = mqttClient
		defer mqttClient.Close()
	}
	control := execution.NewControlAdapter(devicesRepo, publisher, cfg.MQTT.ControlTopicPrefix, log)

	tracker := execution.NewTracker(executionRepo, energyRepo, tariffSvc, log)
	executionSvc := execution.NewService(executionRepo, suggestionsRepo, metersRepo, control, tracker, log)
	if cfg.Notify.WebhookURL != "" {
		notifier := notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.RetryCount, cfg.Notify.TimeoutSec, log)
		executionSvc.SetNotifier(notifier)
	}

	pointMatcher := matcher.NewMatcher(pointsRepo, devicesRepo, log)

	// 夜间定时分析
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Analysis.CronSpec, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		actx, err := ctxBuilder.Build(runCtx)
		if err != nil {
			log.Error("failed to build analysis context", zap.Error(err))
			return
		}
		suggestions, err := registry.RunAll(runCtx, actx, true)
		if err != nil {
			log.Error("nightly analysis failed", zap.Error(err))
			return
		}
		log.Info("nightly analysis done", zap.Int("suggestions", len(suggestions)))
	}); err != nil {
		log.Fatal("invalid analysis cron spec",
			zap.String("spec", cfg.Analysis.CronSpec), zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP
	router := httpapi.NewRouter(log)
	router.RegisterTariffRoutes(httpapi.NewTariffHandler(pricingRepo, tariffSvc, log))
	router.RegisterAnalysisRoutes(httpapi.NewAnalysisHandler(
		registry, ctxBuilder, suggestionsRepo, executionRepo,
		executionSvc, tracker, simulator, demandAnalyzer, tariffSvc, pointMatcher, log,
	))

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("dcim-analysis listening", zap.String("addr", cfg.HTTP.Addr))
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
