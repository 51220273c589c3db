// Command gateway is the trading gateway's entry point. It loads
// configuration, validates it, wires the venue connectors, router, position
// tracker, signal feed, relay client, and strategy engine into a Gateway,
// and runs until asked to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	s3blob "github.com/alanyoungcy/polymarketbot/internal/blob/s3"
	cacheredis "github.com/alanyoungcy/polymarketbot/internal/cache/redis"
	"github.com/alanyoungcy/polymarketbot/internal/config"
	"github.com/alanyoungcy/polymarketbot/internal/crypto"
	"github.com/alanyoungcy/polymarketbot/internal/gateway"
	"github.com/alanyoungcy/polymarketbot/internal/gateway/httpapi"
	"github.com/alanyoungcy/polymarketbot/internal/logging"
	"github.com/alanyoungcy/polymarketbot/internal/notify"
	"github.com/alanyoungcy/polymarketbot/internal/position"
	"github.com/alanyoungcy/polymarketbot/internal/relay"
	"github.com/alanyoungcy/polymarketbot/internal/router"
	"github.com/alanyoungcy/polymarketbot/internal/signalfeed"
	"github.com/alanyoungcy/polymarketbot/internal/venue"
	"github.com/alanyoungcy/polymarketbot/internal/venue/kalshi"
	"github.com/alanyoungcy/polymarketbot/internal/venue/polymarket"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(bootLogger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger.Error("failed to load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		bootLogger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel})
	logger.Info("trading gateway starting", slog.String("version", cfg.Gateway.Version), slog.String("config", *configPath))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectors, err := buildConnectors(cfg, logger)
	if err != nil {
		logger.Error("failed to build venue connectors", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := venue.NewRegistry()
	rtr := router.New(registry)
	tracker := position.New()

	signals := signalfeed.New(signalfeed.Config{
		Host:          cfg.Signals.Host,
		APIKey:        cfg.Signals.APIKey,
		SignalTypes:   cfg.Signals.SignalTypes,
		Symbols:       cfg.Signals.Symbols,
		MinConfidence: cfg.Signals.MinConfidence,
		Logger:        logger,
	})

	gwCfg := gateway.Config{
		Version:          cfg.Gateway.Version,
		AutoTradeEnabled: cfg.Gateway.AutoTradeEnabled,
		CancelOnShutdown: cfg.Gateway.CancelOnShutdown,
		PositionSizer:    tracker,
	}
	if cfg.Strategy.Enabled {
		sc := cfg.Strategy.ToStrategyConfig()
		gwCfg.StrategyConfig = &sc
	}

	gw := gateway.New(gwCfg, logger, nil, registry, rtr, tracker, signals)

	relayClient, err := relay.New(relay.Config{
		Host:        cfg.Relay.Host,
		APIKey:      cfg.Relay.APIKey,
		PairingID:   cfg.Relay.PairingID,
		PairingCode: cfg.Relay.PairingCode,
		Logger:      logger,
	}, gw, nil)
	if err != nil {
		logger.Error("failed to build relay client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	gw.SetRelay(relayClient)

	if n := buildNotifier(cfg, logger); n != nil {
		gw.SetNotifier(n)
	}

	if cfg.Redis.Enabled {
		redisClient, err := cacheredis.New(context.Background(), cacheredis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			logger.Error("failed to connect to redis; report archive disabled", slog.String("error", err.Error()))
		} else {
			gw.SetReportArchive(cacheredis.NewBus(redisClient))
		}
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(context.Background(), s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			logger.Error("failed to build s3 client; settlement archival disabled", slog.String("error", err.Error()))
		} else {
			archiver := s3blob.NewSettlementArchiver(s3blob.NewWriter(s3Client), tracker.Settlements)
			go runSettlementArchiver(ctx, archiver, cfg.S3.ArchiveInterval.Duration, logger)
		}
	}

	var httpServer *httpapi.Server
	if cfg.Server.Enabled {
		httpServer = httpapi.New(httpapi.Config{
			Enabled:     cfg.Server.Enabled,
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
		}, gw, logger)
	}

	if err := gw.Start(ctx, connectors); err != nil {
		logger.Error("gateway failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	signals.Start(ctx)
	signalCh, unsubSignals := signals.Events().Subscribe()
	defer unsubSignals()
	go func() {
		for sig := range signalCh {
			gw.HandleSignal(ctx, sig)
		}
	}()

	if httpServer != nil {
		go func() {
			if err := httpServer.Start(ctx); err != nil {
				logger.Error("local dashboard server stopped", slog.String("error", err.Error()))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}

	gw.Stop(context.Background())
	logger.Info("trading gateway stopped")
}

// buildConnectors constructs the enabled venue connectors from cfg. A venue
// section with an empty BaseURL is treated as not configured and skipped;
// Config.Validate rejects an empty base_url for either venue, so a config
// that passed validation builds both connectors.
func buildConnectors(cfg *config.Config, logger *slog.Logger) ([]venue.Connector, error) {
	var out []venue.Connector

	if cfg.Kalshi.BaseURL != "" {
		var keyPEM []byte
		if cfg.Kalshi.RSAPrivateKeyPath != "" {
			b, err := os.ReadFile(cfg.Kalshi.RSAPrivateKeyPath)
			if err != nil {
				return nil, fmt.Errorf("reading kalshi private key: %w", err)
			}
			keyPEM = b
		}
		conn, err := kalshi.New(kalshi.Config{
			BaseURL:    cfg.Kalshi.BaseURL,
			APIKeyID:   cfg.Kalshi.APIKeyID,
			PrivateKey: keyPEM,
			WSURL:      cfg.Kalshi.WSURL,
		})
		if err != nil {
			return nil, fmt.Errorf("building kalshi connector: %w", err)
		}
		out = append(out, conn)
		logger.Info("kalshi connector configured", slog.String("base_url", cfg.Kalshi.BaseURL))
	}

	if cfg.Polymarket.BaseURL != "" {
		keyHex, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKeyHex,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			return nil, fmt.Errorf("resolving wallet key: %w", err)
		}
		conn, err := polymarket.New(polymarket.Config{
			BaseURL:       cfg.Polymarket.BaseURL,
			PrivateKeyHex: keyHex,
			ChainID:       cfg.Polymarket.ChainID,
		})
		if err != nil {
			return nil, fmt.Errorf("building polymarket connector: %w", err)
		}
		out = append(out, conn)
		logger.Info("polymarket connector configured", slog.String("base_url", cfg.Polymarket.BaseURL))
	}

	return out, nil
}

// buildNotifier assembles the configured notification senders. It returns
// nil when no channel has credentials configured, leaving operator
// notifications disabled rather than erroring the whole process.
func buildNotifier(cfg *config.Config, logger *slog.Logger) *notify.Notifier {
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) == 0 {
		return nil
	}
	return notify.NewNotifier(senders, cfg.Notify.Events, logger)
}

// runSettlementArchiver drives the settlement archiver on interval until ctx
// is cancelled. A zero interval falls back to 15 minutes rather than
// spinning.
func runSettlementArchiver(ctx context.Context, a *s3blob.SettlementArchiver, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.Run(ctx, time.Now())
			if err != nil {
				logger.Error("settlement archive run failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				logger.Info("archived settlements", slog.Int("count", n))
			}
		}
	}
}
