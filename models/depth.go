package models

import "time"

// RawDepth mirrors a Binance partial book depth event (@depth10). Each level
// is a [price, quantity] pair of strings.
type RawDepth struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// RawDepthMessage wraps one depth frame with the subscription that produced it.
type RawDepthMessage struct {
	SubscriptionID string
	Symbol         string
	Data           []byte
	Timestamp      time.Time
}

// OrderBookLevel is one display row of a book side.
type OrderBookLevel struct {
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
	Total   float64 `json:"total"`
	Percent float64 `json:"percent"`
}

// Book is a normalized top-N order book. Asks are ordered highest price
// first so that the best ask sits next to the best bid when rendered.
type Book struct {
	Symbol         string           `json:"symbol"`
	SubscriptionID string           `json:"subscription_id"`
	LastUpdateID   int64            `json:"last_update_id"`
	Asks           []OrderBookLevel `json:"asks"`
	Bids           []OrderBookLevel `json:"bids"`
	Spread         float64          `json:"spread"`
	SpreadPercent  float64          `json:"spread_percent"`
	HasSpread      bool             `json:"has_spread"`
	UpdatedAt      time.Time        `json:"updated_at"`
}
