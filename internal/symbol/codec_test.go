package symbol

import (
	"errors"
	"testing"

	"dex-chart-datafeed/internal/model"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	a := &model.Token{Contract: "0xaaa", Symbol: "WETH"}
	b := &model.Token{Contract: "0xbbb", Symbol: "USDC"}

	s, ok := Encode(a, b, nil)
	if !ok {
		t.Fatal("expected symbol")
	}
	if s != "0xaaa/WETH|0xbbb/USDC" {
		t.Errorf("unexpected symbol: %s", s)
	}

	refs, err := Decode(s)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if refs[0] != (model.TokenRef{Contract: "0xaaa", Symbol: "WETH"}) || refs[1] != (model.TokenRef{Contract: "0xbbb", Symbol: "USDC"}) {
		t.Errorf("round trip mismatch: %+v", refs)
	}
}

func TestEncode_MissingToken(t *testing.T) {
	if _, ok := Encode(nil, &model.Token{Contract: "0xb", Symbol: "B"}, nil); ok {
		t.Error("expected no symbol when token A is missing")
	}
	if _, ok := Encode(&model.Token{Contract: "0xa", Symbol: "A"}, nil, nil); ok {
		t.Error("expected no symbol when token B is missing")
	}
}

func TestEncode_NativeAndWrappedMatch(t *testing.T) {
	normalize := func(c string) string {
		if c == "native" {
			return "0xweth"
		}
		return c
	}
	usdc := &model.Token{Contract: "0xusdc", Symbol: "USDC"}

	native, _ := Encode(&model.Token{Contract: "native", Symbol: "ETH"}, usdc, normalize)
	wrapped, _ := Encode(&model.Token{Contract: "0xweth", Symbol: "ETH"}, usdc, normalize)
	if native != wrapped {
		t.Errorf("expected equal symbols, got %s and %s", native, wrapped)
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, s := range []model.ChartSymbol{"", "0xa/A", "0xa/A|0xb", "0xa/A|0xb/B|0xc/C", "0xa/A/x|0xb/B"} {
		if _, err := Decode(s); !errors.Is(err, ErrMalformedSymbol) {
			t.Errorf("Decode(%q): expected ErrMalformedSymbol, got %v", s, err)
		}
	}
}

func TestResolutionToTimeframe(t *testing.T) {
	cases := map[string]string{
		"15":  "15m",
		"60":  "1h",
		"240": "4h",
		"1D":  "1d",
		"5":   "5",
		"1W":  "1W",
	}
	for in, want := range cases {
		if got := ResolutionToTimeframe(in); got != want {
			t.Errorf("ResolutionToTimeframe(%q) = %q, want %q", in, got, want)
		}
	}
}
