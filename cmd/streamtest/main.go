// streamtest connects to a venue's market data WebSocket and streams
// parsed messages to the console.
// Usage: go run ./cmd/streamtest --config configs/example.yaml --symbols XBTUSD,ETHUSD
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/venuelink/venuelink/internal/adapter"
	"github.com/venuelink/venuelink/internal/auth"
	"github.com/venuelink/venuelink/internal/config"
	"github.com/venuelink/venuelink/internal/metrics"
	"github.com/venuelink/venuelink/internal/model"
	"github.com/venuelink/venuelink/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/example.yaml", "path to config file")
	symbols := flag.String("symbols", "XBTUSD", "comma-separated symbols to subscribe")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	logger.Info("streamtest", "version", version.String())

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Load credentials when configured; market data works without them
	var creds *auth.Credentials
	if cfg.Venue.APIKey != "" {
		creds, err = auth.LoadCredentials(cfg.Venue.APIKey, cfg.Venue.APISecret)
		if err != nil {
			logger.Error("failed to load credentials", "error", err)
			os.Exit(1)
		}
		logger.Info("using API credentials", "key", cfg.Venue.APIKey)
	}

	// Serve metrics
	metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, metrics.Handler())
	metricsServer := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		logger.Info("serving metrics", "addr", metricsAddr, "path", cfg.Metrics.Path)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	// Create the data client
	venue := model.Venue(cfg.Venue.Name)
	out := make(chan adapter.Message, 10000)
	client, err := adapter.NewClient(adapter.Config{
		ClientID:                  cfg.Instance.ID,
		Venue:                     venue,
		HTTPBaseURL:               cfg.Venue.RestURL,
		WSURL:                     cfg.Venue.WSURL,
		Credentials:               creds,
		ActiveOnly:                cfg.Venue.ActiveOnly,
		UpdateInstrumentsInterval: time.Duration(cfg.Venue.UpdateInstrumentsIntervalMins) * time.Minute,
		HTTPTimeout:               time.Duration(cfg.Venue.TimeoutSecs) * time.Second,
		MaxRetries:                cfg.Venue.MaxRetries,
		RetryBackoff:              time.Duration(cfg.Venue.RetryBackoffMs) * time.Millisecond,
		Heartbeat:                 cfg.Venue.Heartbeat.ToConnection(),
		Reconnect:                 cfg.Reconnect.ToConnection(),
		DefaultQuota:              cfg.RateLimit.Default,
		KeyedQuotas:               cfg.RateLimit.Keyed,
	}, out, logger)
	if err != nil {
		logger.Error("failed to create data client", "error", err)
		os.Exit(1)
	}

	client.Start()
	logger.Info("connecting", "venue", venue, "ws_url", cfg.Venue.WSURL)
	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	logger.Info("connected", "instruments", len(client.Instruments()))

	// Subscribe to trades and quotes for the requested symbols
	for _, symbol := range strings.Split(*symbols, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		id := model.InstrumentID{Symbol: symbol, Venue: venue}
		if err := client.SubscribeTrades(adapter.SubscribeTrades{
			ClientID: cfg.Instance.ID, InstrumentID: id,
		}); err != nil {
			logger.Error("trade subscription failed", "symbol", symbol, "error", err)
		}
		if err := client.SubscribeQuotes(adapter.SubscribeQuotes{
			ClientID: cfg.Instance.ID, InstrumentID: id,
		}); err != nil {
			logger.Error("quote subscription failed", "symbol", symbol, "error", err)
		}
	}

	var trades, quotes, bars, books atomic.Int64
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-out:
				printMessage(msg, *verbose, &trades, &quotes, &bars, &books)
			}
		}
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"trades", trades.Load(),
					"quotes", quotes.Load(),
					"bars", bars.Load(),
					"books", books.Load(),
					"queue", len(out),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	client.Disconnect()
	client.Dispose()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}

func printMessage(msg adapter.Message, verbose bool, trades, quotes, bars, books *atomic.Int64) {
	if verbose {
		data, _ := json.MarshalIndent(msg, "", "  ")
		fmt.Printf("%s\n", data)
		return
	}

	switch {
	case msg.Trade != nil:
		trades.Add(1)
		fmt.Printf("[TRADE] %s price=%s size=%s buy=%t\n",
			msg.Trade.InstrumentID, msg.Trade.Price, msg.Trade.Size, msg.Trade.AggressorBuy)
	case msg.Quote != nil:
		quotes.Add(1)
		fmt.Printf("[QUOTE] %s bid=%s/%s ask=%s/%s\n",
			msg.Quote.InstrumentID, msg.Quote.BidPrice, msg.Quote.BidSize,
			msg.Quote.AskPrice, msg.Quote.AskSize)
	case msg.Bar != nil:
		bars.Add(1)
		fmt.Printf("[BAR] %s o=%s h=%s l=%s c=%s v=%s\n",
			msg.Bar.BarType, msg.Bar.Open, msg.Bar.High, msg.Bar.Low, msg.Bar.Close, msg.Bar.Volume)
	case msg.Book != nil:
		books.Add(1)
		fmt.Printf("[BOOK %s] %s levels=%d\n",
			msg.Book.Action, msg.Book.InstrumentID, len(msg.Book.Levels))
	case msg.Response != nil:
		fmt.Printf("[RESPONSE] request_id=%s\n", msg.Response.RequestID)
	}
}
