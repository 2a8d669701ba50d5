package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *LiquidityClient {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewLiquidityClient(ClientConfig{
		BaseURL:     srv.URL,
		CandlesPath: "/candles",
		VolumesPath: "/volumes",
		HeaderPath:  "/header",
	}, zap.NewNop())
}

func TestGetCandles(t *testing.T) {
	var query map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/candles" {
			http.NotFound(w, r)
			return
		}
		q := r.URL.Query()
		query = map[string]string{
			"token_a": q.Get("token_a"), "token_b": q.Get("token_b"), "timeframe": q.Get("timeframe"),
			"timestamp": q.Get("timestamp"), "limit": q.Get("limit"),
		}
		_, _ = w.Write([]byte(`{"chart":[{"open":"1.1","high":"2","low":"1","close":"1.5","time_open":"2024-01-01T00:00:00Z"}]}`))
	})

	candles, err := c.GetCandles(context.Background(), HistoryRequest{TokenA: "0xa", TokenB: "0xb", Timeframe: "15m", Limit: 1000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 1 || candles[0].Close.String() != "1.5" {
		t.Errorf("unexpected candles: %+v", candles)
	}
	want := map[string]string{"token_a": "0xa", "token_b": "0xb", "timeframe": "15m", "timestamp": "0", "limit": "1000"}
	for k, v := range want {
		if query[k] != v {
			t.Errorf("query %s = %q, want %q", k, query[k], v)
		}
	}
}

func TestGetVolumes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"chart":[{"value":"12.5","time_label":1704067200}]}`))
	})

	volumes, err := c.GetVolumes(context.Background(), HistoryRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(volumes) != 1 || volumes[0].Value != "12.5" || volumes[0].TimeLabel != 1704067200 {
		t.Errorf("unexpected volumes: %+v", volumes)
	}
}

func TestGetChartHeader(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/header" || r.URL.Query().Get("token_a") != "0xa" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"spot_price":"3000.5","price_change_24h":"-1.2","volume_24h":"1000","liquidity":"5000"}`))
	})

	h, err := c.GetChartHeader(context.Background(), "0xa", "0xb")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.SpotPrice != "3000.5" || h.PriceChange24h != "-1.2" {
		t.Errorf("unexpected header: %+v", h)
	}
}

func TestClient_Errors(t *testing.T) {
	t.Run("bad status", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		})
		if _, err := c.GetCandles(context.Background(), HistoryRequest{}); err == nil {
			t.Error("expected error on 502")
		}
	})

	t.Run("bad body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":[{"open":"abc"}]}`))
		})
		if _, err := c.GetCandles(context.Background(), HistoryRequest{}); err == nil {
			t.Error("expected decode error")
		}
	})
}
