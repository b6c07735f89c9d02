package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/client/internal/streamclient"
	"github.com/shubham-shewale/quote-stream/pkg/config"
	"github.com/shubham-shewale/quote-stream/pkg/models"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	serverAddr := flag.String("server-addr", cfg.Client.ServerAddr, "quote server control address (host:port)")
	udpPort := flag.Int("udp-port", cfg.Client.UDPPort, "local UDP port for receiving quotes")
	tickersFile := flag.String("tickers-file", cfg.Client.TickersFile, "file with one ticker per line")
	tickerList := flag.String("tickers", "", "comma separated tickers, overrides -tickers-file")
	advertiseIP := flag.String("advertise-ip", "", "IP sent in the STREAM command (default: local IP of the control connection)")
	pingInterval := flag.Duration("ping-interval", cfg.Client.PingInterval(), "keep-alive interval")
	flag.Parse()

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	var tickers []string
	if *tickerList != "" {
		tickers = config.ParseTickerList(*tickerList)
	} else if tickers, err = config.LoadTickers(*tickersFile); err != nil {
		logger.Fatal("Failed to load tickers", zap.Error(err))
	}

	client, err := streamclient.New(logger, streamclient.Config{
		ServerAddr:   *serverAddr,
		UDPPort:      *udpPort,
		AdvertiseIP:  *advertiseIP,
		Tickers:      tickers,
		PingInterval: *pingInterval,
	})
	if err != nil {
		logger.Fatal("Failed to start client", zap.Error(err))
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Subscribe(ctx); err != nil {
		logger.Fatal("Subscription failed", zap.Error(err))
	}

	err = client.Run(ctx, func(q models.Quote) {
		logger.Info("Quote",
			zap.String("ticker", q.Ticker),
			zap.Float64("price", q.Price),
			zap.Uint32("volume", q.Volume),
			zap.Int64("timestamp", q.Timestamp),
		)
	})
	if err != nil {
		logger.Error("Client stopped with error", zap.Error(err))
		return
	}
	logger.Info("Client exited cleanly")
}
