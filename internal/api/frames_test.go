package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestRequests_Marshal(t *testing.T) {
	raw, err := json.Marshal(NewSubscribeRequest("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"jsonrpc":"2.0","id":0,"method":"subscribe","params":{"event_types":["a","b"]}}`
	if string(raw) != want {
		t.Errorf("got %s, want %s", raw, want)
	}

	raw, _ = json.Marshal(NewPingRequest())
	if string(raw) != `{"jsonrpc":"2.0","id":0,"method":"ping","params":{}}` {
		t.Errorf("unexpected ping: %s", raw)
	}
}

func TestTopic(t *testing.T) {
	if got := Topic(EventCandle, "0xa", "0xb", "1D"); got != "spot_price_candle_update@0xa@0xb@1d" {
		t.Errorf("unexpected topic: %s", got)
	}
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind FrameKind
	}{
		{"error", `{"jsonrpc":"2.0","id":0,"error":{"code":-32600,"message":"bad"}}`, FrameError},
		{"zero code error", `{"jsonrpc":"2.0","id":0,"error":{"code":0,"message":""}}`, FrameAck},
		{"subscription ack", `{"jsonrpc":"2.0","id":0,"result":{"event_types":["x"]}}`, FrameAck},
		{"ping ack", `{"jsonrpc":"2.0","id":0}`, FrameAck},
		{"candle", `{"jsonrpc":"2.0","method":"new_event","params":{"type":"spot_price_candle_update@a@b@15m","data":{"open":"1","high":"2","low":"0.5","close":"1.5","time_open":"2024-01-01T00:00:00Z"}}}`, FrameCandle},
		{"volume", `{"jsonrpc":"2.0","method":"new_event","params":{"type":"volume_candle_update@a@b@15m","data":{"pool_id":7,"time_open":"2024-01-01T00:00:00Z","volume":"3"}}}`, FrameVolume},
		{"unknown event", `{"jsonrpc":"2.0","method":"new_event","params":{"type":"trade@a@b","data":{}}}`, FrameUnknown},
		{"unknown", `{"jsonrpc":"2.0","method":"notice"}`, FrameUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.Kind != tt.kind {
				t.Errorf("expected %s, got %s", tt.kind, f.Kind)
			}
		})
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	for _, raw := range []string{`not json`, `{"method":"new_event","params":{"type":"spot_price_candle_update@a@b@15m","data":{"open":"x"}}}`} {
		if _, err := DecodeFrame([]byte(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestCandleData_Bar(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"jsonrpc":"2.0","method":"new_event","params":{"type":"spot_price_candle_update@a@b@15m","data":{"open":"1","high":"2","low":"0.5","close":"1.5","time_open":"2024-01-01T00:00:00Z"}}}`))
	if err != nil {
		t.Fatal(err)
	}

	bar, ok := f.Candle.Bar()
	if !ok {
		t.Fatal("expected bar")
	}
	if bar.Time != time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("unexpected time: %d", bar.Time)
	}
	if bar.Open != 1 || bar.High != 2 || bar.Low != 0.5 || bar.Close != 1.5 || bar.Volume != nil {
		t.Errorf("unexpected bar: %s", bar)
	}

	if _, ok := (CandleData{}).Bar(); ok {
		t.Error("expected no bar without time_open")
	}
}

func TestVolumeData_Amount(t *testing.T) {
	if got := (VolumeData{Volume: "1", Value: "2"}).Amount(); got != "1" {
		t.Errorf("expected volume field to win, got %s", got)
	}
	if got := (VolumeData{Value: "2"}).Amount(); got != "2" {
		t.Errorf("expected value fallback, got %s", got)
	}
}
