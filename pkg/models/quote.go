package models

// Quote is a single generated market tick for one ticker.
type Quote struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Volume    uint32  `json:"volume"`
	Timestamp int64   `json:"timestamp"` // unix milli
}

// Batch holds every quote produced by one generator tick.
// It is shared between sessions and must not be modified after publication.
type Batch struct {
	Seq    uint64
	Quotes []Quote
}
