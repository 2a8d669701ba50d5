package chart

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
	"dex-chart-datafeed/internal/datafeed"
	"dex-chart-datafeed/internal/history"
)

// pairAPI 按 token_a 返回不同数量的 candles
type pairAPI struct {
	counts map[string]int
}

func (p pairAPI) GetCandles(_ context.Context, req api.HistoryRequest) ([]api.CandleDTO, error) {
	start := time.Unix(1_700_000_000, 0).UTC()
	var out []api.CandleDTO
	for i := 0; i < p.counts[req.TokenA]; i++ {
		price := decimal.NewFromInt(int64(i + 1))
		out = append(out, api.CandleDTO{
			Open: price, High: price, Low: price, Close: price,
			TimeOpen: start.Add(time.Duration(i) * 15 * time.Minute).Format(time.RFC3339),
		})
	}
	return out, nil
}

func (pairAPI) GetVolumes(context.Context, api.HistoryRequest) ([]api.VolumeDTO, error) {
	return nil, nil
}

func waitLoaded(t *testing.T, w *HeadlessWidget) {
	t.Helper()
	select {
	case <-w.Loaded():
	case <-time.After(3 * time.Second):
		t.Fatal("widget never finished loading")
	}
}

func newTestWidget(t *testing.T, counts map[string]int) (*HeadlessWidget, *datafeed.Datafeed) {
	t.Helper()
	feed := datafeed.New(context.Background(), datafeed.Config{
		DexName: "dex",
		WSURL:   "ws://127.0.0.1:1",
		Limits:  history.LimitedResponse{ExpectedOrder: history.EarliestFirst},
	}, pairAPI{counts: counts}, nil, zap.NewNop())
	t.Cleanup(feed.ClearSubscriptions)

	opts := WidgetOptions(Props{Symbol: symbolA}, time.Now())
	w := NewHeadlessWidget(context.Background(), opts, feed, zap.NewNop())
	t.Cleanup(w.Remove)
	return w, feed
}

func TestHeadlessWidget_LoadsHistory(t *testing.T) {
	w, _ := newTestWidget(t, map[string]int{"0xa": 25})
	waitLoaded(t, w)

	if err := w.HeaderReady(context.Background()); err != nil {
		t.Fatalf("header should be ready: %v", err)
	}

	bars := w.Bars()
	if len(bars) != 25 {
		t.Fatalf("expected 25 bars, got %d", len(bars))
	}
	if bars[0].Time >= bars[24].Time {
		t.Error("bars must be chronological")
	}

	s, err := w.Studies()
	if err != nil {
		t.Fatalf("expected studies after 25 bars: %v", err)
	}
	// 最后 20 个收盘价为 6..25
	if s.MA != 15.5 {
		t.Errorf("expected MA 15.5, got %f", s.MA)
	}

	si := w.SymbolInterval()
	if si.Symbol != symbolA.String() || si.Interval != "15" {
		t.Errorf("unexpected symbol/interval: %+v", si)
	}
}

func TestHeadlessWidget_SetSymbolAndUndo(t *testing.T) {
	w, _ := newTestWidget(t, map[string]int{"0xa": 3, "0xc": 5})
	waitLoaded(t, w)

	if err := w.SetSymbol(context.Background(), symbolB); err != nil {
		t.Fatal(err)
	}
	waitLoaded(t, w)

	if got := len(w.Bars()); got != 5 {
		t.Errorf("expected 5 bars for the new symbol, got %d", got)
	}
	if w.UndoDepth() != 1 {
		t.Errorf("expected undo depth 1, got %d", w.UndoDepth())
	}
	w.ClearUndoHistory()
	if w.UndoDepth() != 0 {
		t.Error("expected empty undo history")
	}
}

func TestHeadlessWidget_RapidSetSymbolKeepsLatest(t *testing.T) {
	for i := 0; i < 20; i++ {
		w, _ := newTestWidget(t, map[string]int{"0xa": 25, "0xc": 30})

		if err := w.SetSymbol(context.Background(), symbolB); err != nil {
			t.Fatal(err)
		}
		if err := w.SetSymbol(context.Background(), symbolA); err != nil {
			t.Fatal(err)
		}
		waitLoaded(t, w)

		if got := len(w.Bars()); got != 25 {
			t.Fatalf("iteration %d: expected 25 bars of the latest symbol, got %d", i, got)
		}
		s, err := w.Studies()
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if s.MA != 15.5 {
			t.Fatalf("iteration %d: studies mixed with a stale symbol, MA %f", i, s.MA)
		}
		if si := w.SymbolInterval(); si.Symbol != symbolA.String() {
			t.Fatalf("iteration %d: unexpected symbol %s", i, si.Symbol)
		}
		w.Remove()
	}
}

func TestHeadlessWidget_SaveSnapshot(t *testing.T) {
	w, _ := newTestWidget(t, map[string]int{"0xa": 2})
	waitLoaded(t, w)

	path, err := w.SaveSnapshot(t.TempDir(), time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var snap struct {
		Symbol string `json:"symbol"`
		Bars   []struct {
			Time int64 `json:"time"`
		} `json:"bars"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Symbol != "WETH/USDC" || len(snap.Bars) != 2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestHeadlessWidget_RemoveStopsHeaderWait(t *testing.T) {
	w, _ := newTestWidget(t, map[string]int{})
	waitLoaded(t, w)

	w.Remove()
	if err := w.SetSymbol(context.Background(), symbolB); err == nil {
		t.Error("expected error after remove")
	}
}
