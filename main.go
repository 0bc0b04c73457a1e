package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketview/config"
	"marketview/internal/channel"
	"marketview/internal/collector"
	"marketview/internal/dashboard"
	"marketview/internal/metrics"
	"marketview/internal/snapshot"
	"marketview/internal/stream"
	"marketview/logger"
	"marketview/models"
	"marketview/processor"
	"marketview/reader/binance"
)

func main() {
	log := logger.GetLogger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", config.DefaultPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.MarketView.Name,
		"version":     cfg.MarketView.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting marketview")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(ctx, cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace)
	}

	metrics.Init()

	var wg sync.WaitGroup

	if cfg.Metrics.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				log.WithError(err).Warn("metrics server stopped")
			}
		}()
	}

	channels := channel.NewChannels(cfg.Channels.TickerBuffer, cfg.Channels.DepthBuffer)
	go channels.StartMetricsReporting(ctx, 30*time.Second)

	dialer := stream.NewDialer(cfg.Stream)

	tickerReader := binance.NewTickerReader(cfg.Stream, dialer, channels.Ticker,
		binance.WithStatusListener(func(status models.ConnectionStatus) {
			entry := log.WithComponent("main").WithFields(logger.Fields{
				"state":    status.State.String(),
				"attempts": status.Attempts,
			})
			if status.State == models.StateExhausted {
				entry.Error("ticker stream gave up reconnecting; POST /api/reconnect to retry")
				return
			}
			entry.Debug("ticker stream state changed")
		}),
	)
	depthReader := binance.NewDepthReader(cfg.Stream, dialer, channels.Depth)

	marketProcessor, err := processor.NewMarketProcessor(cfg, channels.Ticker.Batches, snapshot.New())
	if err != nil {
		log.WithError(err).Error("failed to create market processor")
		os.Exit(1)
	}
	bookProcessor := processor.NewBookProcessor(channels.Depth.Raw, depthReader, cfg.Stream.DepthLevels)

	rest := collector.New(cfg.Collector)

	dash, err := dashboard.NewServer(cfg.Dashboard, dashboard.Deps{
		Markets:   marketProcessor,
		Books:     bookProcessor,
		Depth:     depthReader,
		Ticker:    tickerReader,
		Collector: rest,
	}, log)
	if err != nil {
		log.WithError(err).Error("failed to create dashboard")
		os.Exit(1)
	}

	starters := []struct {
		name  string
		start func(context.Context) error
	}{
		{"market processor", marketProcessor.Start},
		{"book processor", bookProcessor.Start},
		{"depth reader", depthReader.Start},
		{"ticker reader", tickerReader.Start},
		{"collector", rest.Start},
	}
	for _, s := range starters {
		if err := s.start(ctx); err != nil {
			log.WithError(err).WithFields(logger.Fields{"component_name": s.name}).Error("failed to start component")
			os.Exit(1)
		}
	}

	if dash != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dash.Run(ctx); err != nil {
				log.WithError(err).Error("dashboard stopped")
			}
		}()
	} else {
		log.WithComponent("main").Info("dashboard disabled")
	}

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		tickerReader.Stop()
		depthReader.Stop()
		rest.Stop()
		marketProcessor.Stop()
		bookProcessor.Stop()
		wg.Wait()
		channels.Close()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("marketview stopped")
}
