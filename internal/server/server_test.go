package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepredict/engine/internal/engine"
	"github.com/livepredict/engine/internal/server/handler"
	"github.com/livepredict/engine/internal/service"
	"github.com/livepredict/engine/internal/store/memory"
)

const (
	adminAddr  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bettorAddr = "0x1111111111111111111111111111111111111111"
)

// newTestServer wires a full API over the in-memory store.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := slog.Default()
	store := memory.NewStore()
	eng := engine.New(store, engine.Config{FeeRateBps: 100, Admins: []string{adminAddr}}, nil, logger)

	srv := NewServer(Config{Port: 0}, Handlers{
		Health:  handler.NewHealthHandler(logger),
		Ledger:  handler.NewLedgerHandler(service.NewLedgerService(store.Ledger, store.Stats, store.Audit, logger), eng, logger),
		Markets: handler.NewMarketHandler(service.NewMarketService(store.Markets, nil, logger), eng, eng.FeeRateBps(), logger),
		Bets:    handler.NewBetHandler(service.NewBetService(store.Bets, logger), eng, logger),
	}, nil, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

// do issues a request with the given owner identity and decodes the JSON
// response body into out (when out is non-nil).
func do(t *testing.T, ts *httptest.Server, method, path, owner string, body any, out any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-Owner-Address", owner)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMissingOwnerHeader(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/ledger/deposit", "", map[string]any{"amount": 100}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBettingRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	// Fund both accounts.
	for _, owner := range []string{adminAddr, bettorAddr} {
		resp := do(t, ts, http.MethodPost, "/api/ledger/deposit", owner, map[string]any{"amount": 1000}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	// Admin opens a market.
	var created struct {
		MarketID int64 `json:"market_id"`
	}
	resp := do(t, ts, http.MethodPost, "/api/markets", adminAddr, map[string]any{
		"match_id":    "match-42",
		"market_type": "match_winner",
		"title":       "Who takes the series?",
		"options":     []string{"NAVI wins", "FaZe wins"},
		"locks_at":    time.Now().Add(time.Hour).Format(time.RFC3339),
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotZero(t, created.MarketID)

	// Quote against the empty pools matches the odds locked at placement.
	var quoted struct {
		Odds int64 `json:"odds"`
	}
	resp = do(t, ts, http.MethodGet,
		fmt.Sprintf("/api/quote?market_id=%d&option_id=0&amount=200", created.MarketID),
		"", nil, &quoted)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var placed struct {
		BetID int64 `json:"bet_id"`
		Odds  int64 `json:"odds"`
	}
	resp = do(t, ts, http.MethodPost, "/api/bets", bettorAddr, map[string]any{
		"market_id": created.MarketID,
		"option_id": 0,
		"amount":    200,
	}, &placed)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, quoted.Odds, placed.Odds)

	// The stake is locked, not spent.
	var balance struct {
		Available int64 `json:"available"`
		Locked    int64 `json:"locked"`
	}
	resp = do(t, ts, http.MethodGet, "/api/ledger/balance", bettorAddr, nil, &balance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(800), balance.Available)
	assert.Equal(t, int64(200), balance.Locked)

	// Locked stakes cannot be withdrawn past the available balance.
	resp = do(t, ts, http.MethodPost, "/api/ledger/withdraw", bettorAddr, map[string]any{"amount": 900}, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	// Only the creator or an admin may resolve.
	resp = do(t, ts, http.MethodPost,
		fmt.Sprintf("/api/markets/%d/resolve", created.MarketID),
		bettorAddr, map[string]any{"winning_option": 0}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Resolving before the deadline requires an explicit lock first.
	resp = do(t, ts, http.MethodPost,
		fmt.Sprintf("/api/markets/%d/lock", created.MarketID),
		adminAddr, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost,
		fmt.Sprintf("/api/markets/%d/resolve", created.MarketID),
		adminAddr, map[string]any{"winning_option": 0}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Settlement already credited the ledger; claim reports the payout.
	var claim struct {
		BetID  int64 `json:"bet_id"`
		Payout int64 `json:"payout"`
	}
	resp = do(t, ts, http.MethodPost,
		fmt.Sprintf("/api/bets/%d/claim", placed.BetID),
		bettorAddr, nil, &claim)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(200), claim.Payout) // sole bettor wins the stake back

	resp = do(t, ts, http.MethodGet, "/api/ledger/balance", bettorAddr, nil, &balance)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1000), balance.Available)
	assert.Zero(t, balance.Locked)
}

func TestPlaceBetUnknownMarket(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/ledger/deposit", bettorAddr, map[string]any{"amount": 500}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/bets", bettorAddr, map[string]any{
		"market_id": 999,
		"option_id": 0,
		"amount":    100,
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateMarketRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/markets", bettorAddr, map[string]any{
		"match_id": "match-1",
		"title":    "nope",
		"options":  []string{"a", "b"},
		"locks_at": time.Now().Add(time.Hour).Format(time.RFC3339),
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
