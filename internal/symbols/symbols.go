// Package symbols normalizes user supplied instrument names to the Binance
// spot form used as snapshot keys, and back to stream names.
package symbols

import (
	"errors"
	"strings"
)

var ErrEmpty = errors.New("empty symbol")

var separators = strings.NewReplacer("-", "", "/", "", "_", "", " ", "")

// Normalize uppercases sym and strips pair separators, so "btc-usdt",
// "BTC/USDT" and "btcusdt" all become "BTCUSDT".
func Normalize(sym string) (string, error) {
	sym = separators.Replace(strings.TrimSpace(sym))
	if sym == "" {
		return "", ErrEmpty
	}
	return strings.ToUpper(sym), nil
}

// StreamName is the lowercase form Binance expects in stream paths.
func StreamName(sym string) string {
	return strings.ToLower(sym)
}
