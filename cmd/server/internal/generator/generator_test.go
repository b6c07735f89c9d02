package generator_test

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/quote-stream/cmd/server/internal/generator"
	"github.com/shubham-shewale/quote-stream/cmd/server/internal/testutils"
)

func seeded() generator.RealRand {
	return generator.RealRand{Rand: rand.New(rand.NewSource(42))}
}

func TestGenerator_TickLogic(t *testing.T) {
	// 0.5 maps to a zero perturbation, Intn(0) to the range minimum
	mockRand := &testutils.MockRand{ValInt: 0, ValFloat: 0.5}
	mockClock := &testutils.MockClock{CurrentTime: time.UnixMilli(1699564800000)}
	opts := generator.DefaultOptions()
	opts.InitialPrices = map[string]float64{"AAPL": 150.0}

	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockPublisher{}, []string{"AAPL", "IBM"}, opts, mockRand, mockClock)

	batch := gen.Tick()
	if batch.Seq != 1 {
		t.Errorf("Expected seq 1, got %d", batch.Seq)
	}
	if len(batch.Quotes) != 2 {
		t.Fatalf("Expected one quote per ticker, got %d", len(batch.Quotes))
	}

	aapl, ibm := batch.Quotes[0], batch.Quotes[1]
	if aapl.Ticker != "AAPL" || aapl.Price != 150.0 {
		t.Errorf("Expected AAPL at 150.0, got %+v", aapl)
	}
	if ibm.Price != 100.0 {
		t.Errorf("Expected default price 100.0 for IBM, got %f", ibm.Price)
	}
	if aapl.Volume != 1000 || ibm.Volume != 100 {
		t.Errorf("Expected range minimums 1000/100, got %d/%d", aapl.Volume, ibm.Volume)
	}
	if aapl.Timestamp != 1699564800000 {
		t.Errorf("Expected timestamp from clock, got %d", aapl.Timestamp)
	}
}

func TestGenerator_PriceBounds(t *testing.T) {
	mockClock := &testutils.MockClock{CurrentTime: time.Unix(0, 0)}
	opts := generator.DefaultOptions()
	opts.InitialPrices = map[string]float64{"AAPL": 150.0, "PENNY": 0.011}

	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockPublisher{}, []string{"AAPL", "PENNY", "IBM"}, opts, seeded(), mockClock)

	prev := gen.Prices()
	for i := 0; i < 5000; i++ {
		batch := gen.Tick()
		for _, q := range batch.Quotes {
			if q.Price <= 0 {
				t.Fatalf("Price for %s reached %f", q.Ticker, q.Price)
			}
			change := math.Abs(q.Price-prev[q.Ticker]) / prev[q.Ticker]
			if change > 0.02+1e-12 {
				t.Fatalf("Tick %d: %s moved %.4f%%", i, q.Ticker, change*100)
			}
			prev[q.Ticker] = q.Price
		}
	}
}

func TestGenerator_PriceFloor(t *testing.T) {
	// 0.0 maps to the full downward move every tick
	mockRand := &testutils.MockRand{ValFloat: 0.0}
	opts := generator.DefaultOptions()
	opts.InitialPrices = map[string]float64{"DOWN": 0.02}

	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockPublisher{}, []string{"DOWN"}, opts, mockRand, &testutils.MockClock{})

	for i := 0; i < 200; i++ {
		gen.Tick()
	}
	if got := gen.Prices()["DOWN"]; got != 0.01 {
		t.Errorf("Expected price floored at 0.01, got %f", got)
	}
}

func TestGenerator_VolumeRanges(t *testing.T) {
	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockPublisher{}, []string{"AAPL", "MSFT", "TSLA", "GOOG", "IBM"}, generator.DefaultOptions(), seeded(), &testutils.MockClock{})

	for i := 0; i < 2000; i++ {
		for _, q := range gen.Tick().Quotes {
			if gen.IsPopular(q.Ticker) {
				if q.Volume < 1000 || q.Volume > 6000 {
					t.Fatalf("Popular %s volume %d out of [1000, 6000]", q.Ticker, q.Volume)
				}
			} else if q.Volume < 100 || q.Volume > 1100 {
				t.Fatalf("Regular %s volume %d out of [100, 1100]", q.Ticker, q.Volume)
			}
		}
	}
}

func TestGenerator_TimestampNonDecreasing(t *testing.T) {
	mockClock := &testutils.MockClock{CurrentTime: time.UnixMilli(5000)}
	gen := generator.NewQuoteGenerator(zap.NewNop(), &testutils.MockPublisher{}, []string{"AAPL"}, generator.DefaultOptions(), seeded(), mockClock)

	first := gen.Tick().Quotes[0].Timestamp
	mockClock.Set(time.UnixMilli(1000)) // clock steps back
	second := gen.Tick().Quotes[0].Timestamp
	mockClock.Advance(10 * time.Second)
	third := gen.Tick().Quotes[0].Timestamp

	if second < first {
		t.Errorf("Timestamp went backwards: %d -> %d", first, second)
	}
	if third <= second {
		t.Errorf("Expected timestamp to advance with clock, got %d -> %d", second, third)
	}
}

func TestGenerator_RunPublishes(t *testing.T) {
	pub := &testutils.MockPublisher{}
	opts := generator.DefaultOptions()
	opts.Interval = 5 * time.Millisecond

	gen := generator.NewQuoteGenerator(zap.NewNop(), pub, []string{"AAPL"}, opts, seeded(), generator.RealClock{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		gen.Run(ctx)
		close(done)
	}()

	testutils.Eventually(t, time.Second, func() bool { return pub.Count() >= 3 }, "three batches published")
	cancel()
	<-done

	pub.Mu.Lock()
	defer pub.Mu.Unlock()
	for i, b := range pub.Batches {
		if b.Seq != uint64(i+1) {
			t.Errorf("Expected batches in generation order, batch %d has seq %d", i, b.Seq)
		}
	}
}

func TestGenerator_EmptyTickersIsNoop(t *testing.T) {
	pub := &testutils.MockPublisher{}
	opts := generator.DefaultOptions()
	opts.Interval = time.Millisecond

	gen := generator.NewQuoteGenerator(zap.NewNop(), pub, nil, opts, seeded(), generator.RealClock{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := gen.Run(ctx); err != nil {
		t.Fatalf("Run returned %v", err)
	}
	if pub.Count() != 0 {
		t.Errorf("Expected no batches for empty ticker set, got %d", pub.Count())
	}
}
