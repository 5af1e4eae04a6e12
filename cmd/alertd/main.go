package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/analyze"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/api"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/dispatch"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/engine"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/ingest"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/logging"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/presence"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/rules"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/storage"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "alertd.yaml", "path to config file")
	flag.Parse()

	cfgManager, err := config.NewManager(config.ResolvePath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
		err = store.Init(initCtx)
		initCancel()
		if err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	counters := window.NewStore()
	statsStore := stats.NewStore()
	alertStore := alerts.NewStore(cfg.Alerts.AlertBufferLimit)
	center := alerts.NewCenter(cfg.Alerts.NotificationLimit)
	tracker := presence.NewTracker(cfg.Presence, logger)
	analyzer := analyze.New(cfgManager, logger)

	notifier := &dispatch.LogNotifier{Permission: cfg.Alerts.EnableBrowser, Logger: logger}
	var mailer dispatch.Mailer
	if cfg.Dispatch.EmailOutbox.Enabled {
		outbox := dispatch.NewOutboxMailer(cfg.Dispatch.EmailOutbox, logger)
		defer outbox.Close()
		mailer = outbox
	}

	ruleEngine := rules.NewEngine(cfg.AlertRules(), counters, logger)
	dispatcher := dispatch.New(cfgManager, alertStore, center, notifier, mailer, logger)
	eng := engine.New(cfgManager, ruleEngine, dispatcher, statsStore, store, counters, notifier, logger)

	events := make(chan model.SecurityEvent, cfg.Ingest.ChannelBuffer)
	eng.Start(ctx, events)
	tracker.Start(ctx)
	analyzer.Counters().StartJanitor(ctx, time.Hour, cfg.Alerts.CounterMaxIdle, logger)

	ingest.StartKafka(ctx, cfgManager, events, statsStore, logger)
	ingest.StartREST(ctx, cfgManager, events, analyzer, statsStore, logger)
	api.Start(ctx, cfgManager, eng, alertStore, center, tracker, statsStore, logger, version)

	go cfgManager.Watch(3*time.Second, func(next *config.Config) {
		logger.Info("config reloaded", "path", cfgManager.Path())
		eng.UpdateConfig(next)
	}, func(err error) {
		logger.Warn("config reload failed", "err", err)
	}, ctx.Done())

	logger.Info("alertd started",
		"version", version,
		"rules", ruleEngine.RuleCount(),
		"active_rules", ruleEngine.ActiveRuleCount(),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}
