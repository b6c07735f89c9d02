package mirror

import (
	"context"
	"time"

	"github.com/shubham-shewale/quote-stream/pkg/models"
	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

const (
	KeyPrefix     = "stock:"
	ChannelPrefix = "prices."
)

var _ Sink = (*RedisSink)(nil)

// RedisSink keeps the latest quote per ticker under stock:<TICKER> and
// publishes it on prices.<TICKER>.
type RedisSink struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisSink(client RedisClient, ttl time.Duration) *RedisSink {
	return &RedisSink{client: client, ttl: ttl}
}

func (r *RedisSink) Name() string { return "redis" }

// Write applies SET + PUBLISH for every quote in one pipeline.
func (r *RedisSink) Write(ctx context.Context, batch *models.Batch) error {
	if len(batch.Quotes) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, q := range batch.Quotes {
		payload, err := protocol.EncodeQuote(q)
		if err != nil {
			return err
		}
		pipe.Set(ctx, KeyPrefix+q.Ticker, payload, r.ttl)
		pipe.Publish(ctx, ChannelPrefix+q.Ticker, payload)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// Latest fetches the stored quotes for tickers (MGET); missing keys are skipped.
func (r *RedisSink) Latest(ctx context.Context, tickers []string) ([]models.Quote, error) {
	if len(tickers) == 0 {
		return nil, nil
	}

	keys := make([]string, len(tickers))
	for i, t := range tickers {
		keys[i] = KeyPrefix + t
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var quotes []models.Quote
	for _, val := range results {
		payload, ok := val.(string)
		if !ok || payload == "" {
			continue
		}
		q, err := protocol.DecodeQuote([]byte(payload))
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}
