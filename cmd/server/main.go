package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/control"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/generator"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/hub"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/liveness"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/mirror"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/session"
	"github.com/shubham-shewale/quote-stream/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	tickers, err := config.LoadTickers(cfg.Server.TickersFile)
	if err != nil {
		logger.Fatal("Failed to load tickers", zap.Error(err))
	}

	// Bind failures are fatal: nothing can run without both sockets.
	listener, err := net.Listen("tcp", cfg.Server.TCPAddr)
	if err != nil {
		logger.Fatal("Failed to bind control endpoint", zap.String("addr", cfg.Server.TCPAddr), zap.Error(err))
	}
	pingConn, err := net.ListenPacket("udp", cfg.Server.TCPAddr)
	if err != nil {
		logger.Fatal("Failed to bind liveness listener", zap.String("addr", cfg.Server.TCPAddr), zap.Error(err))
	}

	quoteHub := hub.New(logger.Named("hub"), cfg.Session.QueueSize)

	gen := generator.NewQuoteGenerator(
		logger.Named("generator"),
		quoteHub,
		tickers,
		generator.Options{
			Interval:      cfg.Generator.Interval(),
			MaxMove:       cfg.Generator.MaxMove,
			DefaultPrice:  cfg.Generator.DefaultPrice,
			InitialPrices: cfg.Generator.InitialPrices,
			Popular:       cfg.Generator.Popular,
		},
		generator.NewRealRand(),
		generator.RealClock{},
	)

	clock := session.RealClock{}
	monitor := liveness.NewMonitor(logger.Named("liveness"), pingConn, clock)

	// expiry must be noticed within one tick
	poll := min(cfg.Session.PollInterval(), cfg.Generator.Interval())
	factory := session.NewFactory(logger.Named("session"), quoteHub, monitor, clock, session.DialUDP, cfg.Session.KeepaliveTimeout(), poll)
	endpoint := control.NewEndpoint(logger.Named("control"), listener, factory, control.Options{ReadTimeout: cfg.Server.ReadTimeout()})

	quoteMirror := mirror.New(logger.Named("mirror"), quoteHub, buildSinks(cfg, logger)...)
	defer func() {
		if err := quoteMirror.Close(); err != nil {
			logger.Error("Error closing mirror sinks", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Quote server started",
		zap.String("addr", cfg.Server.TCPAddr),
		zap.Int("tickers", len(tickers)),
		zap.Duration("keepalive_timeout", cfg.Session.KeepaliveTimeout()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return gen.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return endpoint.Serve(gctx) })
	if quoteMirror.Enabled() {
		g.Go(func() error { return quoteMirror.Run(gctx) })
	}

	<-gctx.Done()
	logger.Info("Shutdown signal received, stopping server...")

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
	quoteHub.Close()
	logger.Info("Server exited cleanly")
}

func buildSinks(cfg *config.Config, logger *zap.Logger) []mirror.Sink {
	var sinks []mirror.Sink

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		sinks = append(sinks, mirror.NewRedisSink(rdb, cfg.Redis.TTL()))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		dialer := &mirror.RealKafkaDialer{Dialer: &kafka.Dialer{Timeout: 5 * time.Second}}
		mirror.NewTopicCreator(logger.Named("kafka"), dialer, nil).Create(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, 4)
		cancel()
		sinks = append(sinks, mirror.NewKafkaSink(mirror.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)))
	}

	return sinks
}
