package models

import "time"

// RawTicker is one element of the Binance !ticker@arr payload. Numeric
// fields arrive as strings.
type RawTicker struct {
	EventTime          int64  `json:"E"`
	Symbol             string `json:"s"`
	LastPrice          string `json:"c"`
	PriceChangePercent string `json:"P"`
	PriceChange        string `json:"p"`
	QuoteVolume        string `json:"q"`
	HighPrice          string `json:"h"`
	LowPrice           string `json:"l"`
}

// TickerBatch is a decoded !ticker@arr message as handed to the processor.
type TickerBatch struct {
	Entries    []RawTicker
	ReceivedAt time.Time
}

// MarketRecord is the normalized state of one instrument. Price fields may be
// NaN when the upstream string did not parse.
type MarketRecord struct {
	Symbol         string    `json:"symbol"`
	Price          float64   `json:"price"`
	Change         float64   `json:"change"`
	Volume         float64   `json:"volume"`
	High           float64   `json:"high"`
	Low            float64   `json:"low"`
	PriceChangeAbs float64   `json:"price_change_abs"`
	LastUpdate     time.Time `json:"last_update"`
}
