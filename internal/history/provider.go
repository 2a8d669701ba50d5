package history

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/service"
	"dex-chart-datafeed/internal/symbol"
)

var ErrRequestCanceled = errors.New("history request canceled")

const (
	LatestFirst   = "latestFirst"
	EarliestFirst = "earliestFirst"
)

// API 为历史数据后端，由 api.LiquidityClient 实现
type API interface {
	GetCandles(ctx context.Context, req api.HistoryRequest) ([]api.CandleDTO, error)
	GetVolumes(ctx context.Context, req api.HistoryRequest) ([]api.VolumeDTO, error)
}

// LimitedResponse 描述后端单次响应的限制
type LimitedResponse struct {
	MaxResponseLength int
	ExpectedOrder     string // latestFirst: 后端先返回最新的 bar
}

func DefaultLimitedResponse() LimitedResponse {
	return LimitedResponse{MaxResponseLength: 1000, ExpectedOrder: LatestFirst}
}

type Result struct {
	Bars []model.Bar
	Meta model.HistoryMetadata
}

func noData() Result {
	return Result{Bars: []model.Bar{}, Meta: model.HistoryMetadata{NoData: true}}
}

type Provider struct {
	api    API
	store  model.LastBarStore
	limits LimitedResponse
	logger *zap.Logger
}

// NewProvider 中 limits 的零值字段使用默认值
func NewProvider(backend API, store model.LastBarStore, limits LimitedResponse, logger *zap.Logger) *Provider {
	def := DefaultLimitedResponse()
	if limits.MaxResponseLength <= 0 {
		limits.MaxResponseLength = def.MaxResponseLength
	}
	if limits.ExpectedOrder == "" {
		limits.ExpectedOrder = def.ExpectedOrder
	}
	return &Provider{api: backend, store: store, limits: limits, logger: logger.Named("history")}
}

// GetBars 只在首次请求时拉取全部历史，之后的分页请求一律返回 noData
func (p *Provider) GetBars(ctx context.Context, info model.SymbolInfo, resolution string, period model.PeriodParams) (Result, error) {
	if !period.FirstDataRequest {
		return noData(), nil
	}

	tokens, err := symbol.Decode(model.ChartSymbol(info.Ticker))
	if err != nil {
		return Result{}, err
	}

	req := api.HistoryRequest{
		TokenA:    tokens[0].Contract,
		TokenB:    tokens[1].Contract,
		Timeframe: symbol.ResolutionToTimeframe(resolution),
		Timestamp: 0,
		Limit:     p.limits.MaxResponseLength,
	}

	var (
		candles []api.CandleDTO
		volumes []api.VolumeDTO
		wg      conc.WaitGroup
	)
	wg.Go(func() {
		res, err := p.api.GetCandles(ctx, req)
		if err != nil {
			p.logger.Warn("Candles request failed", zap.String("ticker", info.Ticker), zap.Error(err))
			return
		}
		candles = res
	})
	wg.Go(func() {
		res, err := p.api.GetVolumes(ctx, req)
		if err != nil {
			p.logger.Warn("Volumes request failed", zap.String("ticker", info.Ticker), zap.Error(err))
			return
		}
		volumes = res
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		p.logger.Warn("getBars() failed", zap.String("ticker", info.Ticker), zap.Error(err))
		return Result{}, fmt.Errorf("%w: %v", ErrRequestCanceled, err)
	}

	return p.process(ctx, candles, volumes, info), nil
}

func (p *Provider) process(ctx context.Context, candles []api.CandleDTO, volumes []api.VolumeDTO, info model.SymbolInfo) Result {
	if len(candles) == 0 {
		return noData()
	}

	bars := make([]model.Bar, 0, len(candles))
	for i, c := range candles {
		bar, ok := c.Bar()
		if !ok {
			continue
		}
		// volumes 按下标对应 candles，时间不一致时不合并
		if i < len(volumes) && volumes[i].Value != "" && volumes[i].TimeLabel*1000 == bar.Time {
			if v, err := service.StringToFloat(volumes[i].Value); err == nil {
				bar = bar.WithVolume(v)
			}
		}
		bars = append(bars, bar)
	}

	if p.limits.ExpectedOrder == LatestFirst {
		slices.Reverse(bars)
	}

	if len(bars) == 0 {
		return noData()
	}

	last := bars[len(bars)-1]
	if err := p.store.Set(ctx, info.FullName, last); err != nil {
		p.logger.Error("Failed to cache last bar", zap.String("symbol", info.FullName), zap.Error(err))
	}

	next := int64(-1)
	return Result{Bars: bars, Meta: model.HistoryMetadata{NoData: false, NextTime: &next}}
}
