package protocol

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ParseStreamCommand validates a control line of the form
// "STREAM udp://host:port SYM1,SYM2". Checks run keyword first, then
// address, then ticker list.
func ParseStreamCommand(line string) (StreamCommand, error) {
	line = strings.TrimSpace(line)

	rest, ok := strings.CutPrefix(line, KeywordStream+" ")
	if !ok {
		return StreamCommand{}, ErrMissingPrefix
	}

	target, list, ok := strings.Cut(strings.TrimSpace(rest), " ")
	if !ok {
		return StreamCommand{}, ErrMissingTickers
	}

	scheme, hostport, ok := strings.Cut(target, "://")
	if !ok {
		return StreamCommand{}, ErrMissingScheme
	}
	if scheme != SchemeUDP {
		return StreamCommand{}, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	if err := validateHostPort(hostport); err != nil {
		return StreamCommand{}, fmt.Errorf("%w: %s", ErrInvalidAddress, hostport)
	}

	tickers := NormalizeTickers(strings.Split(list, ","))
	if len(tickers) == 0 {
		return StreamCommand{}, ErrEmptyTickers
	}
	for _, t := range tickers {
		if !validTicker(t) {
			return StreamCommand{}, fmt.Errorf("%w: %s", ErrInvalidTicker, t)
		}
	}

	return StreamCommand{Scheme: scheme, Address: hostport, Tickers: tickers}, nil
}

// FormatStreamCommand builds the newline-terminated STREAM line.
func FormatStreamCommand(addr string, tickers []string) string {
	return fmt.Sprintf("%s %s://%s %s\n", KeywordStream, SchemeUDP, addr, strings.Join(tickers, ","))
}

// NormalizeTickers trims and upper-cases symbols, drops blanks and duplicates,
// keeping the first occurrence order.
func NormalizeTickers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		t := strings.ToUpper(strings.TrimSpace(r))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// FormatOK returns the acceptance reply line.
func FormatOK() string { return ReplyOK + "\n" }

// FormatError returns the rejection reply line for err.
func FormatError(err error) string {
	reason := strings.ReplaceAll(err.Error(), "\n", " ")
	return ReplyErrPrefix + reason + "\n"
}

// ParseReply interprets a server reply line. OK yields nil, ERR yields a
// *RejectedError, anything else ErrUnexpectedReply.
func ParseReply(line string) error {
	line = strings.TrimSpace(line)
	if line == ReplyOK {
		return nil
	}
	if reason, ok := strings.CutPrefix(line, ReplyErrPrefix); ok {
		return &RejectedError{Reason: reason}
	}
	return fmt.Errorf("%w: %q", ErrUnexpectedReply, line)
}

// IsPing reports whether a datagram is the keep-alive sentinel.
func IsPing(payload []byte) bool {
	return string(bytes.TrimSpace(payload)) == PingPayload
}

func validateHostPort(hostport string) error {
	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		return err
	}
	if host == "" {
		return ErrInvalidAddress
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidAddress
	}
	return nil
}

func validTicker(t string) bool {
	for _, r := range t {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return false
		}
	}
	return true
}
