package ta

import (
	"math"
	"testing"

	"go.uber.org/zap"

	"dex-chart-datafeed/internal/model"
)

func feed(sc *StudyCalculator, resolution string, n int) {
	for i := 1; i <= n; i++ {
		sc.Update(resolution, model.Bar{Time: int64(i) * 1000, Close: float64(i)}.WithVolume(10))
	}
}

func TestGetSeries_NotReady(t *testing.T) {
	sc := NewStudyCalculator(zap.NewNop())
	feed(sc, "15", maPeriod-1)

	if _, err := sc.GetSeries("15"); err == nil {
		t.Error("expected error with short history")
	}
	if _, err := sc.GetSeries("60"); err == nil {
		t.Error("expected error for unknown resolution")
	}
}

func TestUpdate_ComputesStudies(t *testing.T) {
	sc := NewStudyCalculator(zap.NewNop())
	feed(sc, "15", 30)

	s, err := sc.GetSeries("15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 最后 20 个收盘价为 11..30
	if math.Abs(s.MA-20.5) > 1e-9 {
		t.Errorf("expected MA 20.5, got %f", s.MA)
	}
	if math.Abs(s.VolumeMA-10) > 1e-9 {
		t.Errorf("expected volume MA 10, got %f", s.VolumeMA)
	}
	// 单调上涨时 RSI 为 100
	if math.Abs(s.RSI-100) > 1e-6 {
		t.Errorf("expected RSI 100, got %f", s.RSI)
	}
}

func TestUpdate_ReplacesSameTimeAndIgnoresOlder(t *testing.T) {
	sc := NewStudyCalculator(zap.NewNop())
	feed(sc, "15", maPeriod)

	last := int64(maPeriod) * 1000
	sc.Update("15", model.Bar{Time: last, Close: 100})
	sc.Update("15", model.Bar{Time: 1000, Close: 500})

	s, err := sc.GetSeries("15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Time) != maPeriod {
		t.Fatalf("expected %d points, got %d", maPeriod, len(s.Time))
	}
	if s.Close[len(s.Close)-1] != 100 {
		t.Errorf("expected last close replaced with 100, got %f", s.Close[len(s.Close)-1])
	}
	if s.Volume[len(s.Volume)-1] != 0 {
		t.Errorf("expected missing volume recorded as 0, got %f", s.Volume[len(s.Volume)-1])
	}
}

func TestUpdate_BoundedHistory(t *testing.T) {
	sc := NewStudyCalculator(zap.NewNop())
	sc.MaxHistory = 50
	feed(sc, "1D", 120)

	s, err := sc.GetSeries("1D")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.Time) != 50 || s.Time[0] != 71000 {
		t.Errorf("expected last 50 points starting at 71000, got %d starting at %d", len(s.Time), s.Time[0])
	}

	sc.Reset()
	if _, err := sc.GetSeries("1D"); err == nil {
		t.Error("expected empty series after reset")
	}
}
