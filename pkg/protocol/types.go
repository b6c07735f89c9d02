package protocol

import "errors"

const (
	KeywordStream = "STREAM"
	SchemeUDP     = "udp"

	ReplyOK        = "OK"
	ReplyErrPrefix = "ERR "

	// PingPayload is the keep-alive sentinel a subscriber sends over UDP.
	PingPayload = "PING"

	// MaxCommandLength bounds a single control line, newline included.
	MaxCommandLength = 4096
)

var (
	ErrMissingPrefix     = errors.New("missing STREAM prefix")
	ErrMissingTickers    = errors.New("STREAM command missing ticker list")
	ErrMissingScheme     = errors.New("STREAM command missing udp:// prefix")
	ErrUnsupportedScheme = errors.New("unsupported scheme")
	ErrInvalidAddress    = errors.New("invalid UDP address")
	ErrEmptyTickers      = errors.New("ticker list cannot be empty")
	ErrInvalidTicker     = errors.New("invalid ticker symbol")
	ErrCommandTooLong    = errors.New("command too long")
	ErrUnexpectedReply   = errors.New("unexpected server response")
)

// StreamCommand is a parsed STREAM request.
type StreamCommand struct {
	Scheme  string
	Address string // host:port
	Tickers []string
}

// RejectedError carries the reason of an ERR reply.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string { return "server rejected request: " + e.Reason }
