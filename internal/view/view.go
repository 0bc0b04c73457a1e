// Package view computes the ranked, filtered projection of the snapshot.
package view

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"marketview/config"
	"marketview/models"
)

// QuickStats summarises the whole snapshot, independent of the view params.
type QuickStats struct {
	ActivePairs int `json:"active_pairs"`
	Gainers     int `json:"gainers"`
	Losers      int `json:"losers"`
}

type Pipeline struct {
	limit           int
	volumeThreshold float64
	defaults        Params
}

func New(cfg config.ViewConfig) (*Pipeline, error) {
	defaults, err := ParseParams("", "", cfg.DefaultSort, cfg.DefaultDirection)
	if err != nil {
		return nil, fmt.Errorf("view defaults: %w", err)
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("view limit must be positive, got %d", cfg.Limit)
	}
	return &Pipeline{limit: cfg.Limit, volumeThreshold: cfg.VolumeThreshold, defaults: defaults}, nil
}

func (p *Pipeline) DefaultParams() Params {
	return p.defaults
}

// Compute applies search, filter, a stable sort and truncation, in that
// order. The input slice is not modified.
func (p *Pipeline) Compute(records []models.MarketRecord, params Params) []models.MarketRecord {
	query := strings.ToLower(params.Query)

	out := make([]models.MarketRecord, 0, len(records))
	for _, rec := range records {
		if query != "" && !strings.Contains(strings.ToLower(rec.Symbol), query) {
			continue
		}
		if !p.keep(rec, params.Filter) {
			continue
		}
		out = append(out, rec)
	}

	col := collate.New(language.English)
	sort.SliceStable(out, func(i, j int) bool {
		return less(col, out[i], out[j], params.Sort, params.Direction)
	})

	if len(out) > p.limit {
		out = out[:p.limit]
	}
	return out
}

func (p *Pipeline) keep(rec models.MarketRecord, f Filter) bool {
	switch f {
	case FilterGainers:
		return rec.Change > 0
	case FilterLosers:
		return rec.Change < 0
	case FilterVolume:
		return rec.Volume > p.volumeThreshold
	default:
		return true
	}
}

// less orders a before b. NaN keys go last in both directions and equal keys
// fall back to ascending symbol order.
func less(col *collate.Collator, a, b models.MarketRecord, c Column, d Direction) bool {
	if c == ColumnSymbol {
		cmp := col.CompareString(a.Symbol, b.Symbol)
		if cmp == 0 {
			return a.Symbol < b.Symbol
		}
		if d == Asc {
			return cmp < 0
		}
		return cmp > 0
	}

	x, y := key(a, c), key(b, c)
	xNaN, yNaN := math.IsNaN(x), math.IsNaN(y)
	switch {
	case xNaN && yNaN:
		return symbolLess(col, a, b)
	case xNaN:
		return false
	case yNaN:
		return true
	case x == y:
		return symbolLess(col, a, b)
	case d == Asc:
		return x < y
	default:
		return x > y
	}
}

func symbolLess(col *collate.Collator, a, b models.MarketRecord) bool {
	if cmp := col.CompareString(a.Symbol, b.Symbol); cmp != 0 {
		return cmp < 0
	}
	return a.Symbol < b.Symbol
}

func key(rec models.MarketRecord, c Column) float64 {
	switch c {
	case ColumnPrice:
		return rec.Price
	case ColumnChange:
		return rec.Change
	default:
		return rec.Volume
	}
}

// Summarize counts tracked pairs and how many moved up or down.
func Summarize(records []models.MarketRecord) QuickStats {
	stats := QuickStats{ActivePairs: len(records)}
	for _, rec := range records {
		switch {
		case rec.Change > 0:
			stats.Gainers++
		case rec.Change < 0:
			stats.Losers++
		}
	}
	return stats
}
