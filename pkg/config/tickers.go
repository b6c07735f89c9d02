package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/shubham-shewale/quote-stream/pkg/protocol"
)

// LoadTickers reads one symbol per line. Lines are trimmed and upper-cased;
// blank lines and duplicates are skipped.
func LoadTickers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ticker file %s: %w", path, err)
	}
	defer f.Close()

	var raw []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw = append(raw, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticker file %s: %w", path, err)
	}

	tickers := protocol.NormalizeTickers(raw)
	if len(tickers) == 0 {
		return nil, fmt.Errorf("ticker file %s contained no symbols", path)
	}
	return tickers, nil
}

// ParseTickerList splits a comma separated list, used for CLI overrides.
func ParseTickerList(list string) []string {
	return protocol.NormalizeTickers(strings.Split(list, ","))
}
