package protocol

import (
	"encoding/json"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// EncodeQuote serializes one quote as a self-contained datagram payload.
func EncodeQuote(q models.Quote) ([]byte, error) {
	return json.Marshal(q)
}

func DecodeQuote(b []byte) (models.Quote, error) {
	var q models.Quote
	err := json.Unmarshal(b, &q)
	return q, err
}
