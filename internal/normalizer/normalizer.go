// Package normalizer turns raw !ticker@arr entries into market records and
// decides which of them are tracked at all.
package normalizer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"marketview/config"
	"marketview/models"
)

// FieldError records a numeric field that failed to parse. The record keeps
// NaN in that field.
type FieldError struct {
	Symbol string
	Field  string
	Value  string
	Err    error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: field %s: cannot parse %q: %v", e.Symbol, e.Field, e.Value, e.Err)
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Result is the outcome of normalizing one batch.
type Result struct {
	Admitted    []models.MarketRecord
	Rejected    int
	Capped      int
	FieldErrors []FieldError
}

// Normalizer applies the admission rules from config.AdmissionConfig.
type Normalizer struct {
	suffix    string
	excluded  []string
	minVolume float64
	cap       int
	now       func() time.Time
}

func New(cfg config.AdmissionConfig) *Normalizer {
	return &Normalizer{
		suffix:    cfg.QuoteSuffix,
		excluded:  cfg.ExcludedSubstrings,
		minVolume: cfg.MinQuoteVolume,
		cap:       cfg.BatchCap,
		now:       time.Now,
	}
}

// Normalize converts every entry, keeps those passing admission and caps the
// admitted set to the first BatchCap entries in delivery order.
func (n *Normalizer) Normalize(batch models.TickerBatch) Result {
	var res Result

	stamp := batch.ReceivedAt
	if stamp.IsZero() {
		stamp = n.now()
	}

	for _, raw := range batch.Entries {
		rec, errs := Convert(raw, stamp)
		res.FieldErrors = append(res.FieldErrors, errs...)

		if !n.Admit(rec) {
			res.Rejected++
			continue
		}
		if len(res.Admitted) >= n.cap {
			res.Capped++
			continue
		}
		res.Admitted = append(res.Admitted, rec)
	}

	return res
}

// Admit reports whether a record should be tracked. A NaN volume never passes.
func (n *Normalizer) Admit(rec models.MarketRecord) bool {
	if rec.Symbol == "" || !strings.HasSuffix(rec.Symbol, n.suffix) {
		return false
	}
	for _, sub := range n.excluded {
		if sub != "" && strings.Contains(rec.Symbol, sub) {
			return false
		}
	}
	return rec.Volume > n.minVolume
}

// Convert parses the numeric fields of raw. Unparsable fields become NaN and
// are reported in the returned slice.
func Convert(raw models.RawTicker, stamp time.Time) (models.MarketRecord, []FieldError) {
	var errs []FieldError
	parse := func(field, value string) float64 {
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			errs = append(errs, FieldError{Symbol: raw.Symbol, Field: field, Value: value, Err: err})
			return math.NaN()
		}
		return v
	}

	if raw.EventTime > 0 {
		stamp = time.UnixMilli(raw.EventTime)
	}

	rec := models.MarketRecord{
		Symbol:         raw.Symbol,
		Price:          parse("c", raw.LastPrice),
		Change:         parse("P", raw.PriceChangePercent),
		Volume:         parse("q", raw.QuoteVolume),
		High:           parse("h", raw.HighPrice),
		Low:            parse("l", raw.LowPrice),
		PriceChangeAbs: parse("p", raw.PriceChange),
		LastUpdate:     stamp,
	}
	return rec, errs
}
