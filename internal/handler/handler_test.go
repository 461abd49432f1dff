package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"agenthub/internal/oracle"
	"agenthub/internal/repository/memory"
	"agenthub/internal/resolver"
	"agenthub/internal/service"
	"agenthub/internal/stats"
)

type stubProvider struct {
	price atomic.Int64
	down  atomic.Bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) FetchSpotPrices(ctx context.Context, symbols []string) (map[string]int64, error) {
	if s.down.Load() {
		return nil, errors.New("unreachable")
	}
	out := map[string]int64{}
	for _, sym := range symbols {
		out[sym] = s.price.Load()
	}
	return out, nil
}

type env struct {
	router   *gin.Engine
	provider *stubProvider
	now      atomic.Int64
}

func newEnv(t *testing.T, price int64) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{provider: &stubProvider{}}
	e.provider.price.Store(price)
	e.now.Store(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC).Unix())
	nowFn := func() time.Time { return time.Unix(e.now.Load(), 0).UTC() }

	repo := memory.New()
	orc, err := oracle.New(oracle.Options{
		Providers: []oracle.Provider{e.provider},
		Fallback:  map[string]int64{"BTC": 9500000},
		Now:       nowFn,
	})
	if err != nil {
		t.Fatalf("oracle: %v", err)
	}
	agg := &stats.Aggregator{Repo: repo, Now: nowFn}
	engine := &resolver.Engine{Repo: repo, Oracle: orc, Stats: agg, Now: nowFn}
	hub := &service.HubService{Repo: repo, Engine: engine, Oracle: orc, Stats: agg, Now: nowFn}

	r := gin.New()
	(&HealthHandler{Store: repo, Driver: "memory"}).Register(r)
	(&ResolverHandler{Engine: engine, Stats: agg}).Register(r)
	(&OracleHandler{Oracle: orc}).Register(r)
	(&HubHandler{Service: hub, Repo: repo}).Register(r)
	e.router = r
	return e
}

func (e *env) advance(d time.Duration) {
	e.now.Add(int64(d / time.Second))
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
}

func (e *env) do(t *testing.T, method, path, owner string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if owner != "" {
		req.Header.Set("X-Owner", owner)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var out envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec.Code, out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

type signalView struct {
	ID            uint64
	Status        string
	Result        *string
	PnLBps        *int64
	EntryValue    *int64
	ResolvedValue *int64
}

func TestHealthAndReady(t *testing.T) {
	e := newEnv(t, 1)
	if code, _ := e.do(t, http.MethodGet, "/healthz", "", nil); code != http.StatusOK {
		t.Fatalf("healthz: %d", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"driver":"memory"`)) {
		t.Fatalf("readyz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSignalLifecycleOverHTTP(t *testing.T) {
	e := newEnv(t, 10000)

	if code, _ := e.do(t, http.MethodPost, "/api/v1/strategists", "", map[string]any{"display_name": "A"}); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without owner, got %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"}); code != http.StatusCreated {
		t.Fatalf("register: %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"}); code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", code)
	}

	code, resp := e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{
		"name": "btc", "market_kind": "crypto", "base_market": "BTC-USD",
	})
	if code != http.StatusCreated {
		t.Fatalf("create strategy: %d %s", code, resp.Message)
	}
	st := decode[struct{ ID uint64 }](t, resp.Data)

	code, resp = e.do(t, http.MethodPost, "/api/v1/signals", "alice", map[string]any{
		"strategy_id": st.ID, "direction": "up", "confidence_bps": 6000, "horizon_secs": 60,
	})
	if code != http.StatusCreated {
		t.Fatalf("publish: %d %s", code, resp.Message)
	}
	sig := decode[signalView](t, resp.Data)
	if sig.EntryValue == nil || *sig.EntryValue != 10000 {
		t.Fatalf("expected oracle entry 10000, got %v", sig.EntryValue)
	}

	e.advance(2 * time.Minute)
	e.provider.price.Store(10500)

	code, resp = e.do(t, http.MethodPost, "/api/v1/resolver/sweep", "", nil)
	if code != http.StatusOK {
		t.Fatalf("sweep: %d %s", code, resp.Message)
	}
	res := decode[resolver.SweepResult](t, resp.Data)
	if res.Expired != 1 || res.Resolved != 1 {
		t.Fatalf("unexpected sweep: %+v", res)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/signals/1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get signal: %d", code)
	}
	got := decode[signalView](t, resp.Data)
	if got.Status != "resolved" || got.Result == nil || *got.Result != "win" || *got.PnLBps != 500 {
		t.Fatalf("unexpected signal: %+v", got)
	}

	if code, _ := e.do(t, http.MethodPost, "/api/v1/signals/1/cancel", "alice", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling resolved signal, got %d", code)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/strategies/1", "", nil)
	if code != http.StatusOK {
		t.Fatalf("get strategy: %d", code)
	}
	detail := decode[struct {
		Stats struct {
			WinRateBps  int64
			TotalPnLBps int64
		}
	}](t, resp.Data)
	if detail.Stats.WinRateBps != 10000 || detail.Stats.TotalPnLBps != 500 {
		t.Fatalf("unexpected stats: %+v", detail.Stats)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/activities?kind=signal_resolved", "", nil)
	if code != http.StatusOK {
		t.Fatalf("activities: %d", code)
	}
	if acts := decode[[]map[string]any](t, resp.Data); len(acts) != 1 {
		t.Fatalf("expected one resolved activity, got %d", len(acts))
	}
}

func TestOwnershipAndValidation(t *testing.T) {
	e := newEnv(t, 10000)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "s", "market_kind": "sports", "base_market": "NBA"})

	cases := []struct {
		name   string
		method string
		path   string
		owner  string
		body   any
		want   int
	}{
		{"unregistered creates strategy", http.MethodPost, "/api/v1/strategies", "bob", map[string]any{"name": "x", "market_kind": "crypto", "base_market": "BTC"}, http.StatusNotFound},
		{"bad market kind", http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "x", "market_kind": "forex", "base_market": "EUR"}, http.StatusBadRequest},
		{"foreign publish", http.MethodPost, "/api/v1/signals", "bob", map[string]any{"strategy_id": 1, "direction": "over", "horizon_secs": 60}, http.StatusForbidden},
		{"confidence too high", http.MethodPost, "/api/v1/signals", "alice", map[string]any{"strategy_id": 1, "direction": "over", "confidence_bps": 20000, "horizon_secs": 60}, http.StatusBadRequest},
		{"bad id", http.MethodGet, "/api/v1/strategies/abc", "", nil, http.StatusBadRequest},
		{"missing strategy", http.MethodGet, "/api/v1/strategies/42", "", nil, http.StatusNotFound},
		{"missing signal", http.MethodGet, "/api/v1/signals/42", "", nil, http.StatusNotFound},
		{"resolve without value", http.MethodPost, "/api/v1/signals/1/resolve", "alice", map[string]any{}, http.StatusBadRequest},
		{"list bad kind", http.MethodGet, "/api/v1/strategies?market_kind=nope", "", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if code, resp := e.do(t, tc.method, tc.path, tc.owner, tc.body); code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, code, resp.Message)
			}
		})
	}
}

func TestManualResolveAndFollow(t *testing.T) {
	e := newEnv(t, 10000)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "s", "market_kind": "sports", "base_market": "NBA"})
	code, resp := e.do(t, http.MethodPost, "/api/v1/signals", "alice", map[string]any{"strategy_id": 1, "direction": "under", "entry_value": 20000, "horizon_secs": 60})
	if code != http.StatusCreated {
		t.Fatalf("publish: %d %s", code, resp.Message)
	}

	if code, _ := e.do(t, http.MethodPost, "/api/v1/strategies/1/follow", "0xf00", map[string]any{"auto_copy": true}); code != http.StatusCreated {
		t.Fatalf("follow: %d", code)
	}
	if code, _ := e.do(t, http.MethodPost, "/api/v1/strategies/1/follow", "0xf00", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 on double follow, got %d", code)
	}

	code, resp = e.do(t, http.MethodPost, "/api/v1/signals/1/resolve", "alice", map[string]any{"resolved_value": 21000})
	if code != http.StatusOK {
		t.Fatalf("resolve: %d %s", code, resp.Message)
	}
	got := decode[signalView](t, resp.Data)
	if *got.Result != "lose" || *got.PnLBps != -500 {
		t.Fatalf("unexpected resolution: %+v", got)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/strategies/1", "", nil)
	detail := decode[struct {
		Stats struct {
			Followers     int64
			LosingSignals int64
		}
	}](t, resp.Data)
	if code != http.StatusOK || detail.Stats.Followers != 1 || detail.Stats.LosingSignals != 1 {
		t.Fatalf("unexpected stats: %d %+v", code, detail.Stats)
	}

	if code, _ := e.do(t, http.MethodDelete, "/api/v1/strategies/1/follow", "0xf00", nil); code != http.StatusOK {
		t.Fatalf("unfollow: %d", code)
	}
	if code, _ := e.do(t, http.MethodDelete, "/api/v1/strategies/1/follow", "0xf00", nil); code != http.StatusConflict {
		t.Fatalf("expected 409 on double unfollow, got %d", code)
	}
}

func TestOracleEndpoints(t *testing.T) {
	e := newEnv(t, 6400000)

	code, resp := e.do(t, http.MethodGet, "/api/v1/oracle/prices/btc-usd", "", nil)
	if code != http.StatusOK {
		t.Fatalf("price: %d", code)
	}
	p := decode[oracle.Price](t, resp.Data)
	if p.Symbol != "BTC" || p.Price != 6400000 || p.Source != "stub" {
		t.Fatalf("unexpected price: %+v", p)
	}
	if view := decode[priceView](t, resp.Data); view.Display != "64000.00" {
		t.Fatalf("unexpected display: %q", view.Display)
	}

	if code, _ := e.do(t, http.MethodGet, "/api/v1/oracle/prices/DOGE", "", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported symbol, got %d", code)
	}

	e.provider.down.Store(true)
	e.advance(time.Minute)
	code, resp = e.do(t, http.MethodGet, "/api/v1/oracle/prices/BTC", "", nil)
	p = decode[oracle.Price](t, resp.Data)
	if code != http.StatusOK || !p.Stale || p.Price != 6400000 {
		t.Fatalf("expected stale cache, got %d %+v", code, p)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/oracle/health", "", nil)
	health := decode[[]oracle.ProviderHealth](t, resp.Data)
	if code != http.StatusOK || len(health) != 1 || health[0].Status != "down" {
		t.Fatalf("unexpected health: %d %+v", code, health)
	}
}

func TestRecomputeStatsEndpoint(t *testing.T) {
	e := newEnv(t, 1)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "s", "market_kind": "crypto", "base_market": "BTC"})

	code, resp := e.do(t, http.MethodPost, "/api/v1/resolver/recompute-stats", "", nil)
	if code != http.StatusOK {
		t.Fatalf("recompute: %d", code)
	}
	if got := decode[map[string]int](t, resp.Data); got["strategies"] != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestSweepEndpointIgnoresClientDisconnect(t *testing.T) {
	e := newEnv(t, 10000)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "s", "market_kind": "crypto", "base_market": "BTC"})
	if code, resp := e.do(t, http.MethodPost, "/api/v1/signals", "alice", map[string]any{"strategy_id": 1, "direction": "up", "entry_value": 10000, "horizon_secs": 60}); code != http.StatusCreated {
		t.Fatalf("publish: %d %s", code, resp.Message)
	}
	e.advance(2 * time.Minute)
	e.provider.price.Store(10500)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/resolver/sweep", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	var out envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	res := decode[resolver.SweepResult](t, out.Data)
	if rec.Code != http.StatusOK || res.Resolved != 1 {
		t.Fatalf("expected sweep to complete, got %d %+v", rec.Code, res)
	}
	_, resp := e.do(t, http.MethodGet, "/api/v1/signals/1", "", nil)
	if got := decode[signalView](t, resp.Data); got.ResolvedValue == nil || *got.ResolvedValue != 10500 {
		t.Fatalf("expected settlement at live price, got %+v", got)
	}
}

func TestLeaderboardAndSignalFeeds(t *testing.T) {
	e := newEnv(t, 10000)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "lose", "market_kind": "sports", "base_market": "NBA"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "win", "market_kind": "sports", "base_market": "NBA"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "quiet", "market_kind": "sports", "base_market": "NBA"})

	for _, id := range []int{1, 2, 2} {
		if code, resp := e.do(t, http.MethodPost, "/api/v1/signals", "alice", map[string]any{"strategy_id": id, "direction": "over", "entry_value": 200, "horizon_secs": 60}); code != http.StatusCreated {
			t.Fatalf("publish: %d %s", code, resp.Message)
		}
	}
	e.do(t, http.MethodPost, "/api/v1/signals/1/resolve", "alice", map[string]any{"resolved_value": 180})
	e.do(t, http.MethodPost, "/api/v1/signals/2/resolve", "alice", map[string]any{"resolved_value": 220})

	code, resp := e.do(t, http.MethodGet, "/api/v1/leaderboard", "", nil)
	if code != http.StatusOK {
		t.Fatalf("leaderboard: %d %s", code, resp.Message)
	}
	board := decode[[]struct {
		Strategy struct{ ID uint64 }
		Stats    struct{ WinRateBps int64 }
	}](t, resp.Data)
	if len(board) != 2 || board[0].Strategy.ID != 2 || board[1].Strategy.ID != 1 || board[0].Stats.WinRateBps != 10000 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/signals?status=open", "", nil)
	if code != http.StatusOK {
		t.Fatalf("open feed: %d", code)
	}
	if open := decode[[]signalView](t, resp.Data); len(open) != 1 || open[0].ID != 3 {
		t.Fatalf("unexpected open feed: %+v", open)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/signals?limit=2", "", nil)
	if code != http.StatusOK {
		t.Fatalf("recent feed: %d", code)
	}
	if recent := decode[[]signalView](t, resp.Data); len(recent) != 2 || recent[0].ID != 3 || recent[1].ID != 2 {
		t.Fatalf("unexpected recent feed: %+v", recent)
	}

	code, resp = e.do(t, http.MethodGet, "/api/v1/signals?status=resolved", "", nil)
	if resolved := decode[[]signalView](t, resp.Data); code != http.StatusOK || len(resolved) != 2 {
		t.Fatalf("unexpected resolved feed: %d %+v", code, resolved)
	}
	if code, _ := e.do(t, http.MethodGet, "/api/v1/signals?status=pending", "", nil); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", code)
	}
}

func TestFollowStatusEndpoint(t *testing.T) {
	e := newEnv(t, 10000)
	e.do(t, http.MethodPost, "/api/v1/strategists", "alice", map[string]any{"display_name": "Alice"})
	e.do(t, http.MethodPost, "/api/v1/strategies", "alice", map[string]any{"name": "s", "market_kind": "sports", "base_market": "NBA"})

	type followView struct{ Following bool }
	if code, _ := e.do(t, http.MethodGet, "/api/v1/strategies/1/follow", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without wallet, got %d", code)
	}
	code, resp := e.do(t, http.MethodGet, "/api/v1/strategies/1/follow", "0xf00", nil)
	if code != http.StatusOK || decode[followView](t, resp.Data).Following {
		t.Fatalf("expected not following: %d %s", code, resp.Data)
	}
	e.do(t, http.MethodPost, "/api/v1/strategies/1/follow", "0xf00", nil)

	code, resp = e.do(t, http.MethodGet, "/api/v1/strategies/1/follow", "0xf00", nil)
	if code != http.StatusOK || !decode[followView](t, resp.Data).Following {
		t.Fatalf("expected following: %d %s", code, resp.Data)
	}
	code, resp = e.do(t, http.MethodGet, "/api/v1/strategies/1/follow?wallet=0xf00", "", nil)
	if code != http.StatusOK || !decode[followView](t, resp.Data).Following {
		t.Fatalf("expected following by query: %d %s", code, resp.Data)
	}
}
