package api

import (
	"bot-controller-go/internal/controller"
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/models"
	"bot-controller-go/internal/notify"
	"bot-controller-go/internal/persistence"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMarket struct {
	mu         sync.Mutex
	connectErr error
}

func (m *stubMarket) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connectErr
}

func (m *stubMarket) GetTicker(_ context.Context, symbol string) (*models.Ticker, error) {
	return &models.Ticker{Symbol: symbol, Price: 100}, nil
}

func (m *stubMarket) GetCandles(context.Context, string, string, int) ([]models.Candle, error) {
	return nil, nil
}

func (m *stubMarket) GetOrderBook(_ context.Context, symbol string, _ int) (*models.OrderBook, error) {
	return &models.OrderBook{Symbol: symbol}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *stubMarket) {
	t.Helper()
	store, err := persistence.NewInMemoryBadgerStore(zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	market := &stubMarket{}
	resolver := exchange.NewPaperResolver(market, models.PaperConfig{InitialBalance: 1000, QuoteAsset: "USDT"}, zap.NewNop())
	opts := controller.DefaultOptions()
	opts.FirstCycleDelay = time.Hour

	hub := notify.NewHub(zap.NewNop())
	ctrl := controller.New(context.Background(), store, resolver, hub, zap.NewNop(), opts)
	t.Cleanup(func() { _ = ctrl.Shutdown(context.Background()) })

	srv := httptest.NewServer(NewHandler(ctrl, hub, zap.NewNop()).Routes(nil))
	t.Cleanup(srv.Close)
	return srv, market
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

const botJSON = `{"id":"bot-1","userId":"alice","name":"Alpha","strategy":"momentum","config":{"targetPair":"SOL/USDT","tradingFrequency":5}}`

func TestStartAndStopBot(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/bots", botJSON)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var info controller.BotInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "bot-1", info.ID)
	assert.Equal(t, "SOL/USDT", info.Symbol)
	assert.Equal(t, models.StatusRunning, info.Status)

	resp = do(t, http.MethodPost, srv.URL+"/api/bots", botJSON)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/bots/bot-1", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/bots", "")
	var list []controller.BotInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)

	resp = do(t, http.MethodGet, srv.URL+"/api/stats", "")
	var stats controller.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.ActiveBots)

	resp = do(t, http.MethodDelete, srv.URL+"/api/bots/bot-1", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/bots/bot-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/bots/bot-1", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStartBotValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/bots", `{"id":"bot-1"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "userid is required")

	resp = do(t, http.MethodPost, srv.URL+"/api/bots", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartBotExchangeDown(t *testing.T) {
	srv, market := newTestServer(t)
	market.mu.Lock()
	market.connectErr = exchange.ErrConnection
	market.mu.Unlock()

	resp := do(t, http.MethodPost, srv.URL+"/api/bots", botJSON)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/bots", "")
	var list []controller.BotInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Empty(t, list)
}

func TestStopAllAndStatsTable(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, id := range []string{"a", "b"} {
		body := strings.Replace(botJSON, `"bot-1"`, `"`+id+`"`, 1)
		resp := do(t, http.MethodPost, srv.URL+"/api/bots", body)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := do(t, http.MethodGet, srv.URL+"/api/stats?format=table", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain"))

	resp = do(t, http.MethodPost, srv.URL+"/api/bots/stop-all", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out["stopped"])

	resp = do(t, http.MethodGet, srv.URL+"/api/bots/pending", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
