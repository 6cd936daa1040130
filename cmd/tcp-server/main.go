package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tcpgateway/internal/config"
	httpserver "tcpgateway/internal/microservices/http-api/server"
	"tcpgateway/internal/microservices/tcp"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load config (fallback to env/default)
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Config validation failed: %v", err)
	}

	// Setup structured logging
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	codec, err := tcp.NewCodec(cfg.Framing, cfg.MaxMessageSize)
	if err != nil {
		log.Fatalf("Failed to build codec: %v", err)
	}

	server := tcp.NewServer(cfg.TCPAddr(),
		tcp.WithCodec(codec),
		tcp.WithDispatcher(tcp.NewDefaultRouter()),
		tcp.WithReadTimeout(cfg.ReadTimeout),
		tcp.WithWriteTimeout(cfg.WriteTimeout),
		tcp.WithShutdownTimeout(cfg.ShutdownTimeout),
		tcp.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		tcp.WithLogger(logger),
	)
	if err := server.Listen(); err != nil {
		log.Fatalf("Failed to start TCP server: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx)
	})

	if addr := cfg.HTTPAddr(); addr != "" {
		if cfg.IsProduction() {
			gin.SetMode(gin.ReleaseMode)
		}
		router := httpserver.NewRouter(server.Manager, logger)
		g.Go(func() error {
			return httpserver.Run(ctx, addr, router, logger)
		})
	}

	logger.Info("microservice_started",
		"tcp_addr", server.ListenAddr().String(),
		"stats_addr", cfg.HTTPAddr(),
		"framing", codec.Name(),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
	logger.Info("server_stopped_gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
