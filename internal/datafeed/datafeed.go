package datafeed

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
	"dex-chart-datafeed/internal/history"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/pulse"
	"dex-chart-datafeed/internal/symbol"
)

// Resolutions 为图表支持的分辨率
var Resolutions = []string{"15", "60", "240", "1D"}

// Config 描述 DEX 与推送地址
type Config struct {
	DexName        string
	DexDescription string
	WSURL          string
	AllowLogger    bool
	CurrencyCode   string
	Limits         history.LimitedResponse
	PingInterval   time.Duration
}

type Exchange struct {
	Value string `json:"value"`
	Name  string `json:"name"`
	Desc  string `json:"desc"`
}

type SymbolType struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Configuration 为 onReady 返回的 datafeed 能力声明
type Configuration struct {
	SupportedResolutions   []string     `json:"supported_resolutions"`
	SupportsMarks          bool         `json:"supports_marks"`
	SupportsTime           bool         `json:"supports_time"`
	SupportsTimescaleMarks bool         `json:"supports_timescale_marks"`
	Exchanges              []Exchange   `json:"exchanges"`
	SymbolsTypes           []SymbolType `json:"symbols_types"`
}

// Datafeed 实现图表库的 datafeed 接口，历史走 REST，实时走推送
type Datafeed struct {
	cfg           Config
	configuration Configuration
	history       *history.Provider
	pulse         *pulse.Provider
	logger        *zap.Logger
}

// New 立即在后台建立推送连接；store 为 nil 时使用进程内缓存
func New(ctx context.Context, cfg Config, backend history.API, store model.LastBarStore, logger *zap.Logger) *Datafeed {
	if !cfg.AllowLogger {
		logger = zap.NewNop()
	}
	if store == nil {
		store = model.NewMemoryLastBarStore()
	}

	d := &Datafeed{
		cfg:           cfg,
		configuration: defaultConfiguration(cfg),
		history:       history.NewProvider(backend, store, cfg.Limits, logger),
		logger:        logger.Named("datafeed"),
	}

	connector := api.NewConnector(cfg.WSURL, logger.Named("stream"))
	d.pulse = pulse.NewProvider(connector, store, cfg.PingInterval, logger)
	d.pulse.Start(ctx)

	d.logger.Info("Datafeed initialized", zap.String("dex", cfg.DexName))
	return d
}

func defaultConfiguration(cfg Config) Configuration {
	return Configuration{
		SupportedResolutions:   slices.Clone(Resolutions),
		SupportsMarks:          true,
		SupportsTime:           true,
		SupportsTimescaleMarks: true,
		Exchanges: []Exchange{
			{Value: cfg.DexName, Name: cfg.DexName, Desc: cfg.DexDescription},
		},
		SymbolsTypes: []SymbolType{
			{Name: "crypto", Value: "crypto"},
		},
	}
}

// OnReady 异步回调，不在调用者的 goroutine 中执行
func (d *Datafeed) OnReady(callback func(Configuration)) {
	conf := d.configuration
	go callback(conf)
}

// SearchSymbols 不支持搜索
func (d *Datafeed) SearchSymbols(userInput, exchange, symbolType string, onResult func([]model.SymbolInfo)) {
}

func (d *Datafeed) ResolveSymbol(symbolName string, onResolve func(model.SymbolInfo), onError func(reason string)) {
	go func() {
		d.logger.Info("Resolve requested", zap.String("symbol", symbolName))

		info, err := d.symbolInfo(symbolName)
		if err != nil {
			d.logger.Warn("Resolve failed", zap.String("symbol", symbolName), zap.Error(err))
			if onError != nil {
				onError(err.Error())
			}
			return
		}
		onResolve(info)
	}()
}

func (d *Datafeed) symbolInfo(symbolName string) (model.SymbolInfo, error) {
	tokens, err := symbol.Decode(model.ChartSymbol(symbolName))
	if err != nil {
		return model.SymbolInfo{}, err
	}

	fullName := fmt.Sprintf("%s:%s", d.cfg.DexName, symbolName)
	name := tokens[0].Symbol + "/" + tokens[1].Symbol

	return model.SymbolInfo{
		Ticker:               symbolName,
		Name:                 name,
		CurrencyCode:         d.cfg.CurrencyCode,
		BaseName:             []string{fullName},
		FullName:             fullName,
		Description:          name,
		Type:                 "crypto",
		Session:              "24x7",
		Timezone:             "Etc/UTC",
		Exchange:             d.cfg.DexName,
		MinMov:               1,
		PriceScale:           100,
		HasIntraday:          true,
		HasNoVolume:          false,
		HasWeeklyAndMonthly:  true,
		SupportedResolutions: slices.Clone(d.configuration.SupportedResolutions),
		VolumePrecision:      2,
		DataStatus:           "streaming",
		VisiblePlotsSet:      "ohlcv",
	}, nil
}

// GetBars 阻塞直到历史请求结束，再调用 onResult 或 onError
func (d *Datafeed) GetBars(
	ctx context.Context,
	info model.SymbolInfo,
	resolution string,
	period model.PeriodParams,
	onResult func(bars []model.Bar, meta model.HistoryMetadata),
	onError func(reason string),
) {
	d.logger.Info("Get bars requested", zap.String("symbol", info.FullName), zap.String("resolution", resolution))

	res, err := d.history.GetBars(ctx, info, resolution, period)
	if err != nil {
		if onError != nil {
			onError(err.Error())
		}
		return
	}
	onResult(res.Bars, res.Meta)
}

func (d *Datafeed) SubscribeBars(ctx context.Context, info model.SymbolInfo, resolution string, onTick pulse.TickFunc, listenerGUID string) error {
	return d.pulse.SubscribeBars(ctx, info, resolution, onTick, listenerGUID)
}

func (d *Datafeed) UnsubscribeBars(listenerGUID string) {
	d.pulse.UnsubscribeBars(listenerGUID)
}

func (d *Datafeed) ClearSubscriptions() {
	d.pulse.ClearSubscriptions()
}
