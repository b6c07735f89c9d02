package generator

import (
	"math/rand"
	"time"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// for deterministic testing
type Clock interface {
	Now() time.Time
}

// for deterministic values
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// Publisher receives every generated batch. The hub implements it.
type Publisher interface {
	Broadcast(batch *models.Batch)
}

// VolumeRange is an inclusive volume interval.
type VolumeRange struct {
	Min uint32
	Max uint32
}

type Options struct {
	Interval      time.Duration
	MaxMove       float64 // fractional bound of one tick's price change
	DefaultPrice  float64 // used for tickers missing from InitialPrices
	MinPrice      float64
	InitialPrices map[string]float64
	Popular       []string
	PopularVolume VolumeRange
	RegularVolume VolumeRange
}

func DefaultOptions() Options {
	return Options{
		Interval:      time.Second,
		MaxMove:       0.02,
		DefaultPrice:  100.0,
		MinPrice:      0.01,
		Popular:       []string{"AAPL", "MSFT", "TSLA"},
		PopularVolume: VolumeRange{Min: 1000, Max: 6000},
		RegularVolume: VolumeRange{Min: 100, Max: 1100},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.MaxMove <= 0 {
		o.MaxMove = d.MaxMove
	}
	if o.DefaultPrice <= 0 {
		o.DefaultPrice = d.DefaultPrice
	}
	if o.MinPrice <= 0 {
		o.MinPrice = d.MinPrice
	}
	if o.Popular == nil {
		o.Popular = d.Popular
	}
	if o.PopularVolume == (VolumeRange{}) {
		o.PopularVolume = d.PopularVolume
	}
	if o.RegularVolume == (VolumeRange{}) {
		o.RegularVolume = d.RegularVolume
	}
	return o
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

type RealRand struct{ *rand.Rand }

func NewRealRand() RealRand {
	return RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

func (r RealRand) Intn(n int) int   { return r.Rand.Intn(n) }
func (r RealRand) Float64() float64 { return r.Rand.Float64() }
