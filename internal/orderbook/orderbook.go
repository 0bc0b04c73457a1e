// Package orderbook turns partial depth events into display ready books.
package orderbook

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"marketview/models"
)

// DefaultDepth is the number of levels kept per side.
const DefaultDepth = 10

var ErrMalformedDepth = errors.New("malformed depth message")

// Decode parses a raw depth frame and normalizes it.
func Decode(data []byte, depth int) (models.Book, error) {
	var raw models.RawDepth
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.Book{}, fmt.Errorf("%w: %v", ErrMalformedDepth, err)
	}
	return Normalize(raw, depth)
}

// Normalize keeps the first depth levels of each side, scales sizes against
// the largest level on the same side and computes the spread from the best
// bid and best ask. Asks are returned highest price first.
func Normalize(raw models.RawDepth, depth int) (models.Book, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}

	bids, err := parseSide("bids", raw.Bids, depth)
	if err != nil {
		return models.Book{}, err
	}
	asks, err := parseSide("asks", raw.Asks, depth)
	if err != nil {
		return models.Book{}, err
	}

	book := models.Book{
		LastUpdateID: raw.LastUpdateID,
		Bids:         bids,
		Asks:         asks,
	}

	if len(bids) > 0 && len(asks) > 0 {
		bestBid, bestAsk := bids[0].Price, asks[0].Price
		book.Spread = bestAsk - bestBid
		if bestBid != 0 {
			book.SpreadPercent = book.Spread / bestBid * 100
			book.HasSpread = true
		}
	}

	scale(book.Bids)
	scale(book.Asks)
	reverse(book.Asks)

	return book, nil
}

func parseSide(side string, levels [][]string, depth int) ([]models.OrderBookLevel, error) {
	if len(levels) > depth {
		levels = levels[:depth]
	}
	out := make([]models.OrderBookLevel, 0, len(levels))
	for i, lvl := range levels {
		if len(lvl) < 2 {
			return nil, fmt.Errorf("%w: %s[%d] has %d fields", ErrMalformedDepth, side, i, len(lvl))
		}
		price, err := parseAmount(lvl[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] price: %v", ErrMalformedDepth, side, i, err)
		}
		size, err := parseAmount(lvl[1])
		if err != nil {
			return nil, fmt.Errorf("%w: %s[%d] size: %v", ErrMalformedDepth, side, i, err)
		}
		out = append(out, models.OrderBookLevel{Price: price, Size: size, Total: price * size})
	}
	return out, nil
}

// parseAmount accepts finite, non-negative decimals only.
func parseAmount(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	if v < 0 {
		return 0, fmt.Errorf("negative value %q", s)
	}
	return v, nil
}

// scale sets Percent relative to the largest size. A side without a positive
// maximum reports 0 for every level.
func scale(levels []models.OrderBookLevel) {
	max := 0.0
	for _, l := range levels {
		if l.Size > max {
			max = l.Size
		}
	}
	for i := range levels {
		if max > 0 {
			levels[i].Percent = levels[i].Size / max * 100
		} else {
			levels[i].Percent = 0
		}
	}
}

func reverse(levels []models.OrderBookLevel) {
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}
}
