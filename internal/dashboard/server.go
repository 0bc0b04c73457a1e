// Package dashboard serves the market view, the selected order book and the
// collaborator data over a gin JSON API.
package dashboard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"marketview/config"
	"marketview/internal/collector"
	"marketview/internal/metrics"
	"marketview/logger"
	"marketview/models"
	"marketview/processor"
)

// Markets is the market processor as seen by the API.
type Markets interface {
	View() processor.MarketView
	SetParams(ctx context.Context, query *string, filter, sort, direction string) (processor.MarketView, error)
	ToggleSort(ctx context.Context, column string) (processor.MarketView, error)
	Lookup(ctx context.Context, symbol string) (models.MarketRecord, bool, error)
	Stats() processor.ProcessorStats
}

type Books interface {
	Latest() (models.Book, bool)
}

type DepthStream interface {
	Select(ctx context.Context, symbol string) (string, error)
	Close()
	Current() models.ConnectionStatus
}

type TickerStream interface {
	Status() models.ConnectionStatus
	Reconnect() error
}

type Collaborators interface {
	Chart(ctx context.Context, symbol string) ([]collector.Candle, error)
	News(ctx context.Context) ([]collector.Article, error)
	Sentiment(ctx context.Context) (collector.Sentiment, error)
	Global() (collector.GlobalStats, error)
}

// Deps are the components the API reads from and drives.
type Deps struct {
	Markets   Markets
	Books     Books
	Depth     DepthStream
	Ticker    TickerStream
	Collector Collaborators
}

type Server struct {
	cfg           config.DashboardConfig
	deps          Deps
	log           *logger.Log
	metricStore   *metricStore
	logStore      *logStore
	metricHandler metrics.MetricHandlerID
	httpServer    *http.Server
}

// NewServer returns nil when the dashboard is disabled.
func NewServer(cfg config.DashboardConfig, deps Deps, log *logger.Log) (*Server, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if deps.Markets == nil || deps.Books == nil || deps.Depth == nil || deps.Ticker == nil || deps.Collector == nil {
		return nil, errors.New("dashboard: all dependencies are required")
	}

	cfg.Address = normalizeAddress(cfg.Address)
	if cfg.LogHistory <= 0 {
		cfg.LogHistory = 200
	}

	metricStore := newMetricStore(cfg.LogHistory)
	handlerID := metrics.RegisterMetricHandler(metricStore.handle)

	logStore := newLogStore(cfg.LogHistory)
	log.AddHook(logStore)

	return &Server{
		cfg:           cfg,
		deps:          deps,
		log:           log,
		metricStore:   metricStore,
		logStore:      logStore,
		metricHandler: handlerID,
	}, nil
}

// Run serves the API until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	defer s.cleanup()

	router, err := s.buildRouter()
	if err != nil {
		return err
	}

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.log.WithComponent("dashboard").WithFields(logger.Fields{"address": s.cfg.Address}).Info("dashboard listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) cleanup() {
	metrics.UnregisterMetricHandler(s.metricHandler)
	if s.logStore != nil {
		s.logStore.close()
	}
}

func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.cfg.Address
}

func (s *Server) buildRouter() (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if err := router.SetTrustedProxies(nil); err != nil {
		return nil, err
	}

	api := router.Group("/api")
	api.GET("/markets", s.listMarkets)
	api.POST("/markets/sort/:column", s.toggleSort)
	api.GET("/markets/:symbol", s.getMarket)
	api.POST("/markets/:symbol/select", s.selectMarket)
	api.DELETE("/details", s.closeDetails)
	api.GET("/orderbook", s.getOrderBook)

	api.GET("/chart/:symbol", s.getChart)
	api.GET("/news", s.getNews)
	api.GET("/sentiment", s.getSentiment)
	api.GET("/global", s.getGlobal)

	api.GET("/status", s.getStatus)
	api.POST("/reconnect", s.reconnect)
	api.GET("/logs", s.getLogs)
	api.GET("/metrics", s.getMetrics)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router, nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	if addr == "" {
		return "0.0.0.0:8080"
	}

	if strings.Contains(addr, "://") {
		if parsed, err := url.Parse(addr); err == nil {
			if host := parsed.Host; host != "" {
				addr = host
			} else if parsed.Opaque != "" {
				addr = parsed.Opaque
			}
		}
	}

	if strings.HasPrefix(addr, ":") {
		if len(addr) > 1 && addr[1] >= '0' && addr[1] <= '9' {
			return "0.0.0.0" + addr
		}
	}

	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		if host == "" || host == "*" {
			host = "0.0.0.0"
		}
		if port == "" {
			port = "8080"
		}
		return net.JoinHostPort(host, port)
	}

	if ip := net.ParseIP(addr); ip != nil {
		return net.JoinHostPort(addr, "8080")
	}

	if !strings.Contains(addr, ":") {
		return net.JoinHostPort(addr, "8080")
	}

	return addr
}
