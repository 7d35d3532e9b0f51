package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"satspay/breez"
	"satspay/config"
	"satspay/gateway"
	"satspay/observability/logging"
	"satspay/observability/otel"
	"satspay/rewards"
	"satspay/wallet"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "satspayd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("SATSPAY_CONFIG"), "path to YAML configuration")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("satspayd", cfg.Telemetry.Environment, logging.Options{
		FilePath:   cfg.Log.FilePath,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := otel.Init(ctx, otel.Config{
		ServiceName: "satspayd",
		Environment: cfg.Telemetry.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "err", err)
		}
	}()

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := rewards.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate rewards schema: %w", err)
	}

	network, err := breez.ParseNetwork(cfg.Node.Network)
	if err != nil {
		return err
	}
	connector := &breez.RPCConnector{
		BaseURL:   cfg.Node.URL,
		EventsURL: cfg.Node.EventsURL,
		Logger:    logger,
	}
	walletSvc := wallet.NewService(connector, wallet.Config{
		Network:    network,
		APIKey:     cfg.Node.APIKey,
		Mnemonic:   cfg.Node.Mnemonic,
		Passphrase: cfg.Node.Passphrase,
		StorageDir: cfg.Node.StorageDir,
		CacheTTL:   cfg.Node.CacheTTL.Duration,
	}, wallet.WithLogger(logger))

	reconciler, err := rewards.NewReconciler(db, rewards.WithLogger(logger))
	if err != nil {
		return err
	}
	observer := rewards.NewSettlementObserver(reconciler, logger)
	walletSvc.Events().Subscribe(observer.HandleEvent)

	var authorizer gateway.Authorizer = &gateway.HTTPAuthorizer{
		BaseURL: cfg.Auth.UserServiceURL,
		APIKey:  cfg.Auth.UserServiceKey,
	}

	srv, err := gateway.New(gateway.Config{
		Wallet:        walletSvc,
		Reconciler:    reconciler,
		Authorizer:    authorizer,
		SessionSecret: cfg.Auth.SessionSecret,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	if err := walletSvc.Connect(ctx); err != nil {
		// The HTTP surface still serves; wallet calls report not-ready until
		// a later connect succeeds.
		logger.Error("initial node connect failed", "err", err)
	}

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "err", err)
	}
	if err := walletSvc.Disconnect(shutdownCtx); err != nil {
		logger.Warn("node disconnect", "err", err)
	}
	return nil
}
