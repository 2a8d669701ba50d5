package ta

import (
	"fmt"
	"sync"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/model"
)

const (
	maPeriod  = 20
	rsiPeriod = 14

	defaultMaxHistory = 300
)

// Series 存储某个分辨率下图表上的 bar 序列及最新的指标值
type Series struct {
	Time   []int64
	Close  []float64
	Volume []float64

	// 历史不足时为 0
	MA       float64
	VolumeMA float64
	RSI      float64
	Ready    bool
}

func (s *Series) clone() *Series {
	c := *s
	c.Time = append([]int64(nil), s.Time...)
	c.Close = append([]float64(nil), s.Close...)
	c.Volume = append([]float64(nil), s.Volume...)
	return &c
}

// StudyCalculator 对应图表上的 Volume 与 MA 两个 study
type StudyCalculator struct {
	mu            sync.RWMutex
	series        map[string]*Series // Key: 图表分辨率 (e.g., "15", "1D")
	MinHistoryLen int
	MaxHistory    int
	logger        *zap.Logger
}

func NewStudyCalculator(logger *zap.Logger) *StudyCalculator {
	return &StudyCalculator{
		series:        make(map[string]*Series),
		MinHistoryLen: maPeriod,
		MaxHistory:    defaultMaxHistory,
		logger:        logger,
	}
}

// Update 同一时间的 bar 替换最后一个点，更新的 bar 追加，更早的 bar 忽略
func (sc *StudyCalculator) Update(resolution string, bar model.Bar) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	s, ok := sc.series[resolution]
	if !ok {
		s = &Series{}
		sc.series[resolution] = s
		sc.logger.Debug("Initialized study series", zap.String("resolution", resolution))
	}

	volume := 0.0
	if bar.Volume != nil {
		volume = *bar.Volume
	}

	n := len(s.Time)
	switch {
	case n > 0 && s.Time[n-1] == bar.Time:
		s.Close[n-1] = bar.Close
		s.Volume[n-1] = volume
	case n == 0 || bar.Time > s.Time[n-1]:
		s.Time = append(s.Time, bar.Time)
		s.Close = append(s.Close, bar.Close)
		s.Volume = append(s.Volume, volume)
	default:
		return
	}

	if len(s.Time) > sc.MaxHistory {
		cut := len(s.Time) - sc.MaxHistory
		s.Time = s.Time[cut:]
		s.Close = s.Close[cut:]
		s.Volume = s.Volume[cut:]
	}

	if len(s.Close) < sc.MinHistoryLen {
		s.Ready = false
		return
	}

	sc.calculate(s)
}

func (sc *StudyCalculator) calculate(s *Series) {
	ma := talib.Sma(s.Close, maPeriod)
	s.MA = ma[len(ma)-1]

	vma := talib.Sma(s.Volume, maPeriod)
	s.VolumeMA = vma[len(vma)-1]

	// RSI 需要 period+1 个点
	if len(s.Close) > rsiPeriod {
		rsi := talib.Rsi(s.Close, rsiPeriod)
		s.RSI = rsi[len(rsi)-1]
	}
	s.Ready = true
}

// Reset 切换 symbol 时清空所有分辨率
func (sc *StudyCalculator) Reset() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.series = make(map[string]*Series)
}

// GetSeries 返回副本
func (sc *StudyCalculator) GetSeries(resolution string) (*Series, error) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()

	s, ok := sc.series[resolution]
	if !ok || !s.Ready {
		return nil, fmt.Errorf("studies not available or history too short for resolution %s", resolution)
	}
	return s.clone(), nil
}
