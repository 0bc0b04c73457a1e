package dashboard

import (
	"math"
	"time"

	"marketview/internal/format"
	"marketview/internal/view"
	"marketview/models"
	"marketview/processor"
)

// number maps NaN and Inf to JSON null.
func number(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

type marketDisplay struct {
	Price  string `json:"price"`
	Change string `json:"change"`
	Volume string `json:"volume"`
	High   string `json:"high"`
	Low    string `json:"low"`
}

type marketDTO struct {
	Symbol         string        `json:"symbol"`
	Price          *float64      `json:"price"`
	Change         *float64      `json:"change"`
	Volume         *float64      `json:"volume"`
	High           *float64      `json:"high"`
	Low            *float64      `json:"low"`
	PriceChangeAbs *float64      `json:"price_change_abs"`
	LastUpdate     time.Time     `json:"last_update"`
	Display        marketDisplay `json:"display"`
}

func newMarketDTO(rec models.MarketRecord) marketDTO {
	return marketDTO{
		Symbol:         rec.Symbol,
		Price:          number(rec.Price),
		Change:         number(rec.Change),
		Volume:         number(rec.Volume),
		High:           number(rec.High),
		Low:            number(rec.Low),
		PriceChangeAbs: number(rec.PriceChangeAbs),
		LastUpdate:     rec.LastUpdate,
		Display: marketDisplay{
			Price:  format.Price(rec.Price),
			Change: format.Change(rec.Change),
			Volume: format.Volume(rec.Volume),
			High:   format.Price(rec.High),
			Low:    format.Price(rec.Low),
		},
	}
}

type marketsResponse struct {
	Markets   []marketDTO     `json:"markets"`
	Params    view.Params     `json:"params"`
	Stats     view.QuickStats `json:"stats"`
	Version   uint64          `json:"version"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newMarketsResponse(mv processor.MarketView) marketsResponse {
	out := make([]marketDTO, 0, len(mv.Records))
	for _, rec := range mv.Records {
		out = append(out, newMarketDTO(rec))
	}
	return marketsResponse{
		Markets:   out,
		Params:    mv.Params,
		Stats:     mv.Stats,
		Version:   mv.Version,
		UpdatedAt: mv.UpdatedAt,
	}
}

type levelDTO struct {
	models.OrderBookLevel
	Display struct {
		Price string `json:"price"`
		Size  string `json:"size"`
		Total string `json:"total"`
	} `json:"display"`
}

type bookDTO struct {
	Symbol         string     `json:"symbol"`
	SubscriptionID string     `json:"subscription_id"`
	LastUpdateID   int64      `json:"last_update_id"`
	Asks           []levelDTO `json:"asks"`
	Bids           []levelDTO `json:"bids"`
	Spread         *float64   `json:"spread"`
	SpreadPercent  *float64   `json:"spread_percent"`
	SpreadDisplay  string     `json:"spread_display"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newBookDTO(book models.Book) bookDTO {
	out := bookDTO{
		Symbol:         book.Symbol,
		SubscriptionID: book.SubscriptionID,
		LastUpdateID:   book.LastUpdateID,
		Asks:           levels(book.Asks),
		Bids:           levels(book.Bids),
		SpreadDisplay:  format.Missing,
		UpdatedAt:      book.UpdatedAt,
	}
	if book.HasSpread {
		out.Spread = number(book.Spread)
		out.SpreadPercent = number(book.SpreadPercent)
		out.SpreadDisplay = format.Price(book.Spread) + " (" + format.SpreadPercent(book.SpreadPercent) + ")"
	}
	return out
}

func levels(side []models.OrderBookLevel) []levelDTO {
	out := make([]levelDTO, 0, len(side))
	for _, lvl := range side {
		dto := levelDTO{OrderBookLevel: lvl}
		dto.Display.Price = format.Price(lvl.Price)
		dto.Display.Size = format.Amount(lvl.Size)
		dto.Display.Total = format.Total(lvl.Total)
		out = append(out, dto)
	}
	return out
}
