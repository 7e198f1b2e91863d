package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/crosspool/resolver-lib/common/types"
	"github.com/crosspool/resolver-lib/config"
	"github.com/crosspool/resolver-lib/service"
	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	logger := log.New()
	logger.SetLevel(log.Level(cfg.LogLevel))

	chainConfigs, err := cfg.LoadChains()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load chain configurations")
	}

	svc, err := service.New(&service.Config{
		PostgresURL: cfg.PostgresURL,
		EventBuffer: cfg.EventBuffer,
		Chains:      chainConfigs,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create resolver service")
	}

	if err := svc.Start(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to start resolver service")
	}

	go logEvents(svc.Events(), logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down")
	svc.Stop()
}

// logEvents drains the operational event stream so the buffer never fills up
// when no external consumer is attached.
func logEvents(events <-chan types.ResolverEvent, logger *log.Logger) {
	for event := range events {
		entry := logger.WithField("chain", event.Chain)
		if event.SwapID != "" {
			entry = entry.WithField("swapId", event.SwapID)
		}
		if event.Token != "" {
			entry = entry.WithField("token", event.Token)
		}

		switch event.Type {
		case types.EventError:
			entry.WithError(event.Err).Warn("Resolver event: error")
		case types.EventPoolLiquidityLow:
			entry.Warn("Resolver event: pool liquidity low")
		default:
			entry.WithField("eventType", string(event.Type)).Info("Resolver event")
		}
	}
}
