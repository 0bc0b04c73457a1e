package dashboard

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketview/config"
	"marketview/internal/collector"
	"marketview/internal/metrics"
	"marketview/logger"
	"marketview/models"
	"marketview/processor"
)

type testEnv struct {
	srv       *Server
	router    *gin.Engine
	markets   *fakeMarkets
	books     *fakeBooks
	depth     *fakeDepth
	ticker    *fakeTicker
	collector *fakeCollector
}

func newTestEnv(t *testing.T, records ...models.MarketRecord) *testEnv {
	t.Helper()
	env := &testEnv{
		markets:   newFakeMarkets(records...),
		books:     &fakeBooks{},
		depth:     &fakeDepth{},
		ticker:    &fakeTicker{status: models.ConnectionStatus{State: models.StateConnected, MaxAttempts: 5}},
		collector: &fakeCollector{global: collector.GlobalStats{TotalQuoteVolume: 2.5e9, Pairs: 2}},
	}

	srv, err := NewServer(config.DashboardConfig{Enabled: true, Address: ":0", LogHistory: 10}, Deps{
		Markets:   env.markets,
		Books:     env.books,
		Depth:     env.depth,
		Ticker:    env.ticker,
		Collector: env.collector,
	}, logger.Logger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(srv.cleanup)

	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter: %v", err)
	}
	env.srv, env.router = srv, router
	return env
}

func (e *testEnv) do(t *testing.T, method, target string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)

	var body map[string]interface{}
	if strings.HasPrefix(res.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s %s: decode body: %v", method, target, err)
		}
	}
	return res.Code, body
}

var (
	btc = models.MarketRecord{Symbol: "BTCUSDT", Price: 50000.1, Change: 1.5, Volume: 2e9, High: 51000, Low: 49000}
	odd = models.MarketRecord{Symbol: "ODDUSDT", Price: math.NaN(), Change: -2, Volume: 3e6, High: math.NaN(), Low: 1}
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:8080",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:8080",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:8080",
		"*:8080":                         "0.0.0.0:8080",
		"http://10.0.0.5:8080":           "10.0.0.5:8080",
		"https://10.0.0.5":               "10.0.0.5:8080",
		"http://:7070":                   "0.0.0.0:7070",
		"tcp://localhost:5050":           "localhost:5050",
		"https://dashboard.example.com/": "dashboard.example.com:8080",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestNewServer(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: false}, Deps{}, logger.Logger())
	if err != nil || srv != nil {
		t.Fatalf("disabled dashboard should return nil, nil; got %v, %v", srv, err)
	}
	if srv.Address() != "" {
		t.Fatal("nil server should report an empty address")
	}

	if _, err := NewServer(config.DashboardConfig{Enabled: true}, Deps{}, logger.Logger()); err == nil {
		t.Fatal("expected error for missing dependencies")
	}

	env := newTestEnv(t)
	if got := env.srv.Address(); got != "0.0.0.0:0" {
		t.Fatalf("server address = %q", got)
	}
}

func TestListMarketsRendersNaNAsNull(t *testing.T) {
	env := newTestEnv(t, btc, odd)

	code, body := env.do(t, http.MethodGet, "/api/markets")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if env.markets.calls != 0 {
		t.Fatal("a bare GET should not touch the params")
	}

	markets := body["markets"].([]interface{})
	if len(markets) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(markets))
	}
	first := markets[0].(map[string]interface{})
	display := first["display"].(map[string]interface{})
	if display["price"] != "$50,000.10" || display["volume"] != "$2.00B" || display["change"] != "+1.50%" {
		t.Errorf("unexpected display: %v", display)
	}

	second := markets[1].(map[string]interface{})
	if second["price"] != nil || second["high"] != nil {
		t.Errorf("NaN fields should be null: %v", second)
	}
	if second["display"].(map[string]interface{})["price"] != "N/A" {
		t.Errorf("NaN price should display N/A: %v", second["display"])
	}
}

func TestListMarketsParams(t *testing.T) {
	env := newTestEnv(t, btc)

	code, body := env.do(t, http.MethodGet, "/api/markets?search=btc&filter=gainers&sort=change&direction=asc")
	if code != http.StatusOK {
		t.Fatalf("status = %d: %v", code, body)
	}
	params := body["params"].(map[string]interface{})
	if params["search"] != "btc" || params["filter"] != "gainers" || params["sort"] != "change" || params["direction"] != "asc" {
		t.Errorf("unexpected params: %v", params)
	}

	for _, target := range []string{
		"/api/markets?filter=popular",
		"/api/markets?sort=name",
		"/api/markets?direction=up",
	} {
		if code, body := env.do(t, http.MethodGet, target); code != http.StatusBadRequest || body["error"] == nil {
			t.Errorf("%s: status = %d body = %v", target, code, body)
		}
	}

	env.markets.err = processor.ErrNotRunning
	if code, _ := env.do(t, http.MethodGet, "/api/markets?filter=all"); code != http.StatusServiceUnavailable {
		t.Errorf("stopped processor should yield 503, got %d", code)
	}
}

func TestToggleSort(t *testing.T) {
	env := newTestEnv(t, btc)

	_, body := env.do(t, http.MethodPost, "/api/markets/sort/volume")
	if p := body["params"].(map[string]interface{}); p["direction"] != "asc" {
		t.Errorf("same column should flip to asc: %v", p)
	}
	_, body = env.do(t, http.MethodPost, "/api/markets/sort/price")
	if p := body["params"].(map[string]interface{}); p["sort"] != "price" || p["direction"] != "desc" {
		t.Errorf("new column should sort desc: %v", p)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/markets/sort/bogus"); code != http.StatusBadRequest {
		t.Errorf("invalid column status = %d", code)
	}
}

func TestGetMarket(t *testing.T) {
	env := newTestEnv(t, btc)

	code, body := env.do(t, http.MethodGet, "/api/markets/btcusdt")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if m := body["market"].(map[string]interface{}); m["symbol"] != "BTCUSDT" {
		t.Errorf("unexpected market: %v", m)
	}

	if code, _ := env.do(t, http.MethodGet, "/api/markets/NOPEUSDT"); code != http.StatusNotFound {
		t.Errorf("untracked symbol status = %d", code)
	}
}

func TestSelectMarket(t *testing.T) {
	env := newTestEnv(t, btc)

	code, _ := env.do(t, http.MethodPost, "/api/markets/ETHUSDT/select")
	if code != http.StatusNotFound {
		t.Fatalf("untracked select status = %d", code)
	}
	if len(env.depth.selected) != 0 {
		t.Fatal("untracked symbol must not open a depth stream")
	}

	code, body := env.do(t, http.MethodPost, "/api/markets/btcusdt/select")
	if code != http.StatusOK {
		t.Fatalf("select status = %d", code)
	}
	if body["subscription_id"] != "sub-btcusdt" {
		t.Errorf("subscription id = %v", body["subscription_id"])
	}
	if depth := body["depth"].(map[string]interface{}); depth["state"] != "connected" || depth["symbol"] != "BTCUSDT" {
		t.Errorf("unexpected depth status: %v", depth)
	}

	env.depth.err = fmt.Errorf("subscribe BTCUSDT: %w", errUpstream)
	code, body = env.do(t, http.MethodPost, "/api/markets/BTCUSDT/select")
	if code != http.StatusOK || body["depth_error"] == nil || body["market"] == nil {
		t.Errorf("failed depth should still return details: %d %v", code, body)
	}

	code, body = env.do(t, http.MethodDelete, "/api/details")
	if code != http.StatusOK || env.depth.closed != 1 {
		t.Fatalf("close details: %d closed=%d", code, env.depth.closed)
	}
	if depth := body["depth"].(map[string]interface{}); depth["state"] != "idle" {
		t.Errorf("depth should be idle after close: %v", depth)
	}
}

func TestOrderBook(t *testing.T) {
	env := newTestEnv(t, btc)

	if code, body := env.do(t, http.MethodGet, "/api/orderbook"); code != http.StatusNotFound || body["error"] == nil {
		t.Fatalf("expected 404 without a book, got %d %v", code, body)
	}

	env.books.ok = true
	env.books.book = models.Book{
		Symbol:         "BTCUSDT",
		SubscriptionID: "sub-btcusdt",
		Asks:           []models.OrderBookLevel{{Price: 101, Size: 4, Total: 404, Percent: 100}},
		Bids:           []models.OrderBookLevel{{Price: 100, Size: 2, Total: 200, Percent: 100}},
		Spread:         1,
		SpreadPercent:  1,
		HasSpread:      true,
		UpdatedAt:      time.Unix(100, 0),
	}

	code, body := env.do(t, http.MethodGet, "/api/orderbook")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	book := body["book"].(map[string]interface{})
	if book["spread"] != 1.0 || book["spread_display"] != "$1.00 (1.0000%)" {
		t.Errorf("unexpected spread: %v %v", book["spread"], book["spread_display"])
	}
	ask := book["asks"].([]interface{})[0].(map[string]interface{})
	if ask["price"] != 101.0 || ask["percent"] != 100.0 {
		t.Errorf("unexpected ask: %v", ask)
	}
	if d := ask["display"].(map[string]interface{}); d["size"] != "4.0000" || d["total"] != "404.00" {
		t.Errorf("unexpected ask display: %v", d)
	}

	env.books.book.HasSpread = false
	_, body = env.do(t, http.MethodGet, "/api/orderbook")
	book = body["book"].(map[string]interface{})
	if book["spread"] != nil || book["spread_display"] != "N/A" {
		t.Errorf("book without spread should render null: %v", book)
	}
}

func TestCollaborators(t *testing.T) {
	env := newTestEnv(t)

	for target, key := range map[string]string{
		"/api/chart/BTCUSDT": "candles",
		"/api/news":          "articles",
		"/api/sentiment":     "sentiment",
		"/api/global":        "global",
	} {
		code, body := env.do(t, http.MethodGet, target)
		if code != http.StatusOK || body[key] == nil {
			t.Errorf("%s: %d %v", target, code, body)
		}
	}

	_, body := env.do(t, http.MethodGet, "/api/sentiment")
	if s := body["sentiment"].(map[string]interface{}); s["zone"] != "extreme-fear" {
		t.Errorf("unexpected sentiment: %v", s)
	}
	_, body = env.do(t, http.MethodGet, "/api/global")
	if d := body["display"].(map[string]interface{}); d["total_quote_volume"] != "$2.50B" {
		t.Errorf("unexpected global display: %v", d)
	}
}

func TestCollaboratorFailures(t *testing.T) {
	env := newTestEnv(t, btc)
	env.collector.fail = true
	env.collector.globalErr = collector.ErrNoGlobalStats

	for _, target := range []string{"/api/chart/BTCUSDT", "/api/news", "/api/sentiment"} {
		code, body := env.do(t, http.MethodGet, target)
		if code != http.StatusBadGateway || body["error"] != errUpstream.Error() {
			t.Errorf("%s: %d %v", target, code, body)
		}
	}
	if code, _ := env.do(t, http.MethodGet, "/api/global"); code != http.StatusServiceUnavailable {
		t.Errorf("global before first refresh: %d", code)
	}

	if code, _ := env.do(t, http.MethodGet, "/api/markets"); code != http.StatusOK {
		t.Errorf("market view must be unaffected by collaborator failures, got %d", code)
	}
}

func TestStatusAndReconnect(t *testing.T) {
	env := newTestEnv(t)
	env.ticker.status = models.ConnectionStatus{State: models.StateExhausted, Attempts: 5, MaxAttempts: 5}

	code, body := env.do(t, http.MethodGet, "/api/status")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["exhausted"] != true {
		t.Errorf("expected exhausted flag: %v", body)
	}
	ticker := body["ticker"].(map[string]interface{})
	if ticker["state"] != "exhausted" || ticker["attempts"] != 5.0 {
		t.Errorf("unexpected ticker status: %v", ticker)
	}
	if p := body["processor"].(map[string]interface{}); p["batches"] != 3.0 {
		t.Errorf("unexpected processor stats: %v", p)
	}

	code, body = env.do(t, http.MethodPost, "/api/reconnect")
	if code != http.StatusAccepted || env.ticker.reconnects != 1 {
		t.Fatalf("reconnect: %d %v", code, body)
	}

	env.ticker.err = errUpstream
	if code, _ := env.do(t, http.MethodPost, "/api/reconnect"); code != http.StatusConflict {
		t.Errorf("failed reconnect status = %d", code)
	}
}

func TestMetricsAndLogsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	log := logger.Logger()
	metrics.ReportBufferLength(log, metrics.TickerBufferLength, "ticker", 5, 64, 10, 0)
	env.srv.log.WithComponent("dashboard").Warn("captured line")

	code, body := env.do(t, http.MethodGet, "/api/metrics")
	if code != http.StatusOK || len(body["metrics"].([]interface{})) == 0 {
		t.Fatalf("metrics endpoint: %d %v", code, body)
	}

	code, body = env.do(t, http.MethodGet, "/api/logs")
	if code != http.StatusOK {
		t.Fatalf("logs status = %d", code)
	}
	found := false
	for _, l := range body["logs"].([]interface{}) {
		if l.(map[string]interface{})["message"] == "captured line" {
			found = true
		}
	}
	if !found {
		t.Errorf("warn line not captured: %v", body["logs"])
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	res := httptest.NewRecorder()
	env.router.ServeHTTP(res, req)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "go_goroutines") {
		t.Errorf("prometheus endpoint: %d", res.Code)
	}
}
