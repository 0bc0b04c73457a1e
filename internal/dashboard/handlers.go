package dashboard

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketview/internal/collector"
	"marketview/internal/format"
	"marketview/internal/symbols"
	"marketview/internal/view"
	"marketview/logger"
	"marketview/models"
	"marketview/processor"
)

var (
	ErrNotTracked  = errors.New("symbol is not tracked")
	ErrNoOrderBook = errors.New("no order book for the current selection")
)

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// viewStatus maps processor and parameter errors to HTTP codes.
func viewStatus(err error) int {
	switch {
	case errors.Is(err, view.ErrInvalidColumn),
		errors.Is(err, view.ErrInvalidDirection),
		errors.Is(err, view.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.Is(err, processor.ErrNotRunning),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listMarkets(c *gin.Context) {
	var query *string
	if q, ok := c.GetQuery("search"); ok {
		query = &q
	}
	filter, sort, direction := c.Query("filter"), c.Query("sort"), c.Query("direction")

	if query == nil && filter == "" && sort == "" && direction == "" {
		c.JSON(http.StatusOK, newMarketsResponse(s.deps.Markets.View()))
		return
	}

	mv, err := s.deps.Markets.SetParams(c.Request.Context(), query, filter, sort, direction)
	if err != nil {
		respondError(c, viewStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, newMarketsResponse(mv))
}

func (s *Server) toggleSort(c *gin.Context) {
	mv, err := s.deps.Markets.ToggleSort(c.Request.Context(), c.Param("column"))
	if err != nil {
		respondError(c, viewStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, newMarketsResponse(mv))
}

func (s *Server) getMarket(c *gin.Context) {
	symbol, err := symbols.Normalize(c.Param("symbol"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rec, ok, err := s.deps.Markets.Lookup(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, viewStatus(err), err)
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, ErrNotTracked)
		return
	}
	c.JSON(http.StatusOK, gin.H{"market": newMarketDTO(rec)})
}

// selectMarket opens the details of a tracked symbol and points the depth
// stream at it. A failed depth subscription still returns the details.
func (s *Server) selectMarket(c *gin.Context) {
	symbol, err := symbols.Normalize(c.Param("symbol"))
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	rec, ok, err := s.deps.Markets.Lookup(c.Request.Context(), symbol)
	if err != nil {
		respondError(c, viewStatus(err), err)
		return
	}
	if !ok {
		respondError(c, http.StatusNotFound, ErrNotTracked)
		return
	}

	resp := gin.H{"market": newMarketDTO(rec)}
	id, err := s.deps.Depth.Select(c.Request.Context(), symbol)
	if err != nil {
		resp["depth_error"] = err.Error()
	} else {
		resp["subscription_id"] = id
	}
	resp["depth"] = s.deps.Depth.Current()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{
		"symbol":          symbol,
		"subscription_id": id,
	}).Info("market selected")
	c.JSON(http.StatusOK, resp)
}

func (s *Server) closeDetails(c *gin.Context) {
	s.deps.Depth.Close()
	c.JSON(http.StatusOK, gin.H{"depth": s.deps.Depth.Current()})
}

func (s *Server) getOrderBook(c *gin.Context) {
	book, ok := s.deps.Books.Latest()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": ErrNoOrderBook.Error(),
			"depth": s.deps.Depth.Current(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": newBookDTO(book)})
}

func (s *Server) getChart(c *gin.Context) {
	candles, err := s.deps.Collector.Chart(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"candles": candles})
}

func (s *Server) getNews(c *gin.Context) {
	articles, err := s.deps.Collector.News(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) getSentiment(c *gin.Context) {
	sentiment, err := s.deps.Collector.Sentiment(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusBadGateway, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sentiment": sentiment})
}

func (s *Server) getGlobal(c *gin.Context) {
	stats, err := s.deps.Collector.Global()
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, collector.ErrNoGlobalStats) {
			status = http.StatusServiceUnavailable
		}
		respondError(c, status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"global":  stats,
		"display": gin.H{"total_quote_volume": format.Volume(stats.TotalQuoteVolume)},
	})
}

func (s *Server) getStatus(c *gin.Context) {
	ticker := s.deps.Ticker.Status()
	c.JSON(http.StatusOK, gin.H{
		"ticker":    ticker,
		"depth":     s.deps.Depth.Current(),
		"processor": s.deps.Markets.Stats(),
		"exhausted": ticker.State == models.StateExhausted,
	})
}

func (s *Server) reconnect(c *gin.Context) {
	if err := s.deps.Ticker.Reconnect(); err != nil {
		respondError(c, http.StatusConflict, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"ticker": s.deps.Ticker.Status()})
}

func (s *Server) getLogs(c *gin.Context) {
	logs := s.logStore.snapshot()
	payload := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		payload = append(payload, gin.H{
			"timestamp": l.Timestamp.Format(time.RFC3339Nano),
			"level":     l.Level,
			"component": l.Component,
			"message":   l.Message,
			"fields":    l.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"logs": payload})
}

func (s *Server) getMetrics(c *gin.Context) {
	snapshot := s.metricStore.snapshot()
	payload := make([]gin.H, 0, len(snapshot))
	for _, m := range snapshot {
		payload = append(payload, gin.H{
			"timestamp": m.Timestamp.Format(time.RFC3339Nano),
			"component": m.Component,
			"name":      m.Name,
			"value":     m.Value,
			"type":      m.Type,
			"fields":    m.Fields,
		})
	}
	c.JSON(http.StatusOK, gin.H{"metrics": payload})
}
