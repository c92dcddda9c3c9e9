package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iskodirajga/sauce-hipchat-service/internal/broadcast"
	"github.com/iskodirajga/sauce-hipchat-service/internal/config"
	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/lifecycle"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/metrics"
	"github.com/iskodirajga/sauce-hipchat-service/internal/server"
	"github.com/iskodirajga/sauce-hipchat-service/internal/settings"
	"github.com/iskodirajga/sauce-hipchat-service/internal/tenant"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}

	logSvc, log := logx.New(cfg.Logging)
	defer logSvc.Close()

	store, err := settings.Open(cfg.Settings, log)
	if err != nil {
		log.Error("settings store open failed", logx.Err(err))
		os.Exit(1)
	}
	defer store.Close()

	met := metrics.New()
	chat := hipchat.NewClient()
	resolver := tenant.NewResolver(store, nil)
	life := lifecycle.New(store, chat, cfg.Addon.Name, log)

	interval, _ := cfg.BroadcastInterval()
	sweeper := broadcast.New(broadcast.Config{
		Interval:   interval,
		RatePerSec: cfg.Broadcast.RatePerSec,
		GlanceKey:  cfg.Addon.GlanceKey,
	}, store, resolver, chat, met, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Error("broadcast start failed", logx.Err(err))
		os.Exit(1)
	}

	srv := server.New(cfg, store, resolver, chat, life, sweeper, met, log)

	// Live-reload the log config on file change; everything else needs a
	// restart.
	go func() {
		if err := config.Watch(ctx, cfgPath, log, func(next *config.Config) {
			logSvc.Apply(next.Logging)
		}); err != nil {
			log.Warn("config watch unavailable", logx.Err(err))
		}
	}()

	err = srv.Start(ctx)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	sweeper.Stop(stopCtx)

	if err != nil {
		log.Error("server exited", logx.Err(err))
		os.Exit(1)
	}
}
