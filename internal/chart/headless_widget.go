package chart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/datafeed"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/pkg/ta"
)

const defaultCountBack = 300

var errWidgetRemoved = errors.New("widget removed")

var resolutionDurations = map[string]time.Duration{
	"15":  15 * time.Minute,
	"60":  time.Hour,
	"240": 4 * time.Hour,
	"1D":  24 * time.Hour,
}

// HeadlessWidget 按图表库的调用顺序驱动 datafeed：
// onReady -> resolveSymbol -> getBars -> subscribeBars，并把收到的 bar 交给 studies
type HeadlessWidget struct {
	opts    Options
	feed    *datafeed.Datafeed
	studies *ta.StudyCalculator
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	headerReady chan struct{}
	headerOnce  sync.Once

	mu       sync.Mutex
	gen      int // 每次加载 symbol 递增，旧的加载流程据此放弃
	symbol   model.ChartSymbol
	interval string
	info     model.SymbolInfo
	bars     []model.Bar
	guid     string
	undo     []model.ChartSymbol
	loaded   chan struct{}
}

// NewHeadlessWidgetFactory 返回创建 HeadlessWidget 的 WidgetFactory
func NewHeadlessWidgetFactory(ctx context.Context, logger *zap.Logger) WidgetFactory {
	return func(opts Options, feed *datafeed.Datafeed) (Widget, error) {
		if feed == nil {
			return nil, errors.New("datafeed is required")
		}
		return NewHeadlessWidget(ctx, opts, feed, logger), nil
	}
}

func NewHeadlessWidget(ctx context.Context, opts Options, feed *datafeed.Datafeed, logger *zap.Logger) *HeadlessWidget {
	wctx, cancel := context.WithCancel(ctx)
	w := &HeadlessWidget{
		opts:        opts,
		feed:        feed,
		studies:     ta.NewStudyCalculator(logger.Named("studies")),
		logger:      logger.Named("widget"),
		ctx:         wctx,
		cancel:      cancel,
		headerReady: make(chan struct{}),
		interval:    opts.Interval,
	}

	w.mu.Lock()
	gen, interval, loaded := w.beginLoadLocked(model.ChartSymbol(opts.Symbol))
	w.mu.Unlock()

	go w.load(gen, model.ChartSymbol(opts.Symbol), interval, loaded)
	return w
}

func (w *HeadlessWidget) HeaderReady(ctx context.Context) error {
	select {
	case <-w.headerReady:
		return nil
	case <-w.ctx.Done():
		return errWidgetRemoved
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *HeadlessWidget) SymbolInterval() SymbolInterval {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SymbolInterval{Symbol: w.symbol.String(), Interval: w.interval}
}

// SetSymbol 退订旧 symbol 并在后台加载新的
func (w *HeadlessWidget) SetSymbol(ctx context.Context, symbol model.ChartSymbol) error {
	if err := w.ctx.Err(); err != nil {
		return errWidgetRemoved
	}

	w.mu.Lock()
	prevGUID := w.guid
	w.guid = ""
	w.undo = append(w.undo, w.symbol)
	gen, interval, loaded := w.beginLoadLocked(symbol)
	w.mu.Unlock()

	if prevGUID != "" {
		w.feed.UnsubscribeBars(prevGUID)
	}

	go w.load(gen, symbol, interval, loaded)
	return nil
}

func (w *HeadlessWidget) ClearUndoHistory() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.undo = nil
}

// UndoDepth 为 SetSymbol 累积的撤销记录数
func (w *HeadlessWidget) UndoDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.undo)
}

func (w *HeadlessWidget) Remove() {
	w.cancel()

	w.mu.Lock()
	guid := w.guid
	w.guid = ""
	w.gen++
	w.mu.Unlock()

	if guid != "" {
		w.feed.UnsubscribeBars(guid)
	}
	w.logger.Info("Widget removed")
}

// Loaded 在当前 symbol 的历史加载并订阅完成后关闭
func (w *HeadlessWidget) Loaded() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loaded
}

// Bars 返回当前 symbol 的 bar 序列副本
func (w *HeadlessWidget) Bars() []model.Bar {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.bars)
}

func (w *HeadlessWidget) Studies() (*ta.Series, error) {
	w.mu.Lock()
	interval := w.interval
	w.mu.Unlock()
	return w.studies.GetSeries(interval)
}

// beginLoadLocked 开启新一代加载，调用方需持有 w.mu；
// studies 只在 w.mu 下更新，Reset 之后旧一代的 bar 不会再写入
func (w *HeadlessWidget) beginLoadLocked(symbol model.ChartSymbol) (int, string, chan struct{}) {
	w.gen++
	w.symbol = symbol
	w.bars = nil
	w.info = model.SymbolInfo{}
	w.loaded = make(chan struct{})
	w.studies.Reset()
	return w.gen, w.interval, w.loaded
}

func (w *HeadlessWidget) current(gen int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen == gen
}

func (w *HeadlessWidget) load(gen int, symbol model.ChartSymbol, interval string, loaded chan struct{}) {
	defer close(loaded)

	logger := w.logger.With(zap.String("symbol", symbol.String()))

	confCh := make(chan datafeed.Configuration, 1)
	w.feed.OnReady(func(c datafeed.Configuration) { confCh <- c })

	var conf datafeed.Configuration
	select {
	case conf = <-confCh:
	case <-w.ctx.Done():
		return
	}
	w.headerOnce.Do(func() { close(w.headerReady) })

	if !slices.Contains(conf.SupportedResolutions, interval) {
		logger.Warn("Unsupported interval, falling back", zap.String("interval", interval))
		interval = DefaultInterval
	}

	info, err := w.resolve(symbol)
	if err != nil {
		logger.Error("Failed to resolve symbol", zap.Error(err))
		return
	}
	if !w.current(gen) {
		return
	}

	bars, err := w.history(info, interval)
	if err != nil {
		logger.Error("Failed to load history", zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		return
	}
	w.info = info
	w.interval = interval
	w.bars = bars
	for _, b := range bars {
		w.studies.Update(interval, b)
	}
	w.mu.Unlock()

	logger.Info("History loaded", zap.Int("bars", len(bars)), zap.String("interval", interval))

	guid := uuid.NewString()
	if err := w.feed.SubscribeBars(w.ctx, info, interval, w.tickHandler(gen, interval), guid); err != nil {
		logger.Error("Failed to subscribe", zap.Error(err))
		return
	}

	w.mu.Lock()
	if w.gen != gen {
		w.mu.Unlock()
		w.feed.UnsubscribeBars(guid)
		return
	}
	w.guid = guid
	w.mu.Unlock()
}

func (w *HeadlessWidget) resolve(symbol model.ChartSymbol) (model.SymbolInfo, error) {
	infoCh := make(chan model.SymbolInfo, 1)
	errCh := make(chan string, 1)
	w.feed.ResolveSymbol(symbol.String(),
		func(info model.SymbolInfo) { infoCh <- info },
		func(reason string) { errCh <- reason },
	)

	select {
	case info := <-infoCh:
		return info, nil
	case reason := <-errCh:
		return model.SymbolInfo{}, errors.New(reason)
	case <-w.ctx.Done():
		return model.SymbolInfo{}, errWidgetRemoved
	}
}

func (w *HeadlessWidget) history(info model.SymbolInfo, interval string) ([]model.Bar, error) {
	step, ok := resolutionDurations[interval]
	if !ok {
		step = 15 * time.Minute
	}
	now := time.Now()
	period := model.PeriodParams{
		From:             now.Add(-step * defaultCountBack).Unix(),
		To:               now.Unix(),
		CountBack:        defaultCountBack,
		FirstDataRequest: true,
	}

	var (
		bars   []model.Bar
		reason string
		failed bool
	)
	w.feed.GetBars(w.ctx, info, interval, period,
		func(b []model.Bar, _ model.HistoryMetadata) { bars = b },
		func(r string) { reason, failed = r, true },
	)
	if failed {
		return nil, errors.New(reason)
	}
	return bars, nil
}

func (w *HeadlessWidget) tickHandler(gen int, interval string) func(model.Bar) {
	return func(bar model.Bar) {
		w.mu.Lock()
		if w.gen != gen {
			w.mu.Unlock()
			return
		}
		n := len(w.bars)
		switch {
		case n > 0 && w.bars[n-1].Time == bar.Time:
			w.bars[n-1] = bar
		case n == 0 || bar.Time > w.bars[n-1].Time:
			w.bars = append(w.bars, bar)
		}
		w.studies.Update(interval, bar)
		w.mu.Unlock()

		w.logger.Debug("Tick", zap.String("bar", bar.String()))
	}
}

type snapshot struct {
	Symbol   string      `json:"symbol"`
	Interval string      `json:"interval"`
	Taken    time.Time   `json:"taken"`
	Bars     []barRecord `json:"bars"`
}

type barRecord struct {
	Time   int64    `json:"time"`
	Open   float64  `json:"open"`
	High   float64  `json:"high"`
	Low    float64  `json:"low"`
	Close  float64  `json:"close"`
	Volume *float64 `json:"volume,omitempty"`
}

// SaveSnapshot 把当前 bar 序列写入 dir，返回文件路径
func (w *HeadlessWidget) SaveSnapshot(dir string, now time.Time) (string, error) {
	w.mu.Lock()
	snap := snapshot{Symbol: w.info.Name, Interval: w.interval, Taken: now.UTC()}
	for _, b := range w.bars {
		snap.Bars = append(snap.Bars, barRecord{Time: b.Time, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume})
	}
	w.mu.Unlock()

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}
	path := filepath.Join(dir, FileNameToSave(snap.Symbol, now, ".json"))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}
