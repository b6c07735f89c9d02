package generator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// QuoteGenerator owns the per-ticker price state and emits one batch per tick.
type QuoteGenerator struct {
	logger    *zap.Logger
	publisher Publisher
	tickers   []string
	opts      Options
	rand      Rand
	clock     Clock
	popular   map[string]struct{}

	mu     sync.Mutex
	prices map[string]float64
	lastTS int64
	seq    uint64
}

func NewQuoteGenerator(
	logger *zap.Logger,
	publisher Publisher,
	tickers []string,
	opts Options,
	rnd Rand,
	clock Clock,
) *QuoteGenerator {
	opts = opts.withDefaults()

	prices := make(map[string]float64, len(tickers))
	for _, sym := range tickers {
		price, ok := opts.InitialPrices[sym]
		if !ok || price <= 0 {
			price = opts.DefaultPrice
		}
		prices[sym] = price
	}

	popular := make(map[string]struct{}, len(opts.Popular))
	for _, sym := range opts.Popular {
		popular[sym] = struct{}{}
	}

	return &QuoteGenerator{
		logger:    logger,
		publisher: publisher,
		tickers:   tickers,
		opts:      opts,
		rand:      rnd,
		clock:     clock,
		popular:   popular,
		prices:    prices,
	}
}

// Run publishes a batch every interval until ctx is done.
func (g *QuoteGenerator) Run(ctx context.Context) error {
	g.logger.Info("Generator Started", zap.Strings("tickers", g.tickers), zap.Duration("interval", g.opts.Interval))

	if len(g.tickers) == 0 {
		g.logger.Warn("No tickers configured, generator idle")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Generator Stopped", zap.Uint64("ticks", g.Seq()))
			return nil
		case <-ticker.C:
			batch := g.Tick()
			g.publisher.Broadcast(batch)
			g.logger.Debug("Published batch", zap.Uint64("seq", batch.Seq), zap.Int("quotes", len(batch.Quotes)))
		}
	}
}

// Tick advances every ticker once and returns the resulting batch.
func (g *QuoteGenerator) Tick() *models.Batch {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.clock.Now().UnixMilli()
	if ts < g.lastTS {
		ts = g.lastTS // wall clock stepped back
	}
	g.lastTS = ts
	g.seq++

	quotes := make([]models.Quote, 0, len(g.tickers))
	for _, sym := range g.tickers {
		quotes = append(quotes, models.Quote{
			Ticker:    sym,
			Price:     g.nextPrice(sym),
			Volume:    g.nextVolume(sym),
			Timestamp: ts,
		})
	}

	return &models.Batch{Seq: g.seq, Quotes: quotes}
}

// Prices returns a copy of the current price state.
func (g *QuoteGenerator) Prices() map[string]float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]float64, len(g.prices))
	for k, v := range g.prices {
		out[k] = v
	}
	return out
}

func (g *QuoteGenerator) Seq() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

func (g *QuoteGenerator) IsPopular(sym string) bool {
	_, ok := g.popular[sym]
	return ok
}

func (g *QuoteGenerator) nextPrice(sym string) float64 {
	u := (g.rand.Float64()*2 - 1) * g.opts.MaxMove
	price := g.prices[sym] * (1 + u)
	if price < g.opts.MinPrice {
		price = g.opts.MinPrice
	}
	g.prices[sym] = price
	return price
}

func (g *QuoteGenerator) nextVolume(sym string) uint32 {
	r := g.opts.RegularVolume
	if g.IsPopular(sym) {
		r = g.opts.PopularVolume
	}
	return r.Min + uint32(g.rand.Intn(int(r.Max-r.Min)+1))
}
