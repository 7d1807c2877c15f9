package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/quantdesk/tradeterm/api"
	"github.com/quantdesk/tradeterm/internal/config"
	"github.com/quantdesk/tradeterm/pkg/gateway"
	"github.com/quantdesk/tradeterm/pkg/ledger"
	"github.com/quantdesk/tradeterm/pkg/marketdata"
	"github.com/quantdesk/tradeterm/pkg/orders"
	"github.com/quantdesk/tradeterm/pkg/poller"
	"github.com/quantdesk/tradeterm/pkg/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	logger  *logrus.Logger
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tradeterm",
		Short: "Trading terminal engine",
		Long:  `Market data and trading session engine: gateway session management, layered quote sourcing, order routing and durable trade history`,
		Run:   runEngine,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runEngine(cmd *cobra.Command, args []string) {
	// Local overrides for development; missing .env is fine.
	godotenv.Load()

	logger = logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		logger.WithError(err).Error("Invalid log level, using INFO")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if cfg.Logging.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trades := ledger.Open(cfg.Ledger.Path, logger)

	client := gateway.NewWSClient(time.Duration(cfg.Gateway.ConnectTimeout)*time.Second, logger)
	sess := session.NewManager(client, trades, cfg.Gateway.AutoReconnect, logger)

	cascade := marketdata.NewCascade(
		logger,
		marketdata.NewSyntheticSource(),
		marketdata.NewLiveSource(client),
		marketdata.NewBarSource(cfg.MarketData.ProviderURL, cfg.MarketData.ProviderAPIKey, cfg.MarketData.RequestsPerSec),
	)

	scheduler := poller.NewScheduler(cascade, sess,
		cfg.Polling.Symbols,
		time.Duration(cfg.Polling.Interval)*time.Second,
		logger)

	coordinator := orders.NewCoordinator(sess,
		time.Duration(cfg.MarketData.MaxQuoteAge)*time.Second,
		logger)

	if err := sess.Connect(ctx, cfg.Gateway.Host, cfg.Gateway.Port, cfg.Gateway.ClientID); err != nil {
		// A dead gateway is not fatal: the cascade and cached snapshots
		// keep read paths alive in degraded mode.
		logger.WithError(err).Warn("Gateway connection failed, running in degraded mode")
	}

	scheduler.Start(ctx)

	apiServer := api.NewServer(sess, coordinator, scheduler, trades,
		fmt.Sprintf("%d", cfg.Server.Port), cfg.Server.AuthSecret, logger)
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start API server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Trading terminal engine is running. Press Ctrl+C to stop.")

	<-sigChan
	logger.Info("Received shutdown signal")

	scheduler.Stop()
	sess.Disconnect()
	cancel()

	logger.Info("Trading terminal engine stopped")
}
