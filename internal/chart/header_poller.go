package chart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
)

const DefaultHeaderPollInterval = 5 * time.Second

// HeaderSource 由 api.LiquidityClient 实现
type HeaderSource interface {
	GetChartHeader(ctx context.Context, tokenA, tokenB string) (*api.ChartHeader, error)
}

// HeaderPoller 定时刷新交易对的图表头部信息
type HeaderPoller struct {
	source   HeaderSource
	tokenA   string
	tokenB   string
	interval time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	latest   *api.ChartHeader
	onUpdate func(*api.ChartHeader)
}

func NewHeaderPoller(source HeaderSource, tokenA, tokenB string, interval time.Duration, logger *zap.Logger) *HeaderPoller {
	if interval <= 0 {
		interval = DefaultHeaderPollInterval
	}
	return &HeaderPoller{
		source:   source,
		tokenA:   tokenA,
		tokenB:   tokenB,
		interval: interval,
		logger:   logger.Named("header"),
	}
}

// OnUpdate 在每次成功刷新后调用，需在 Run 之前设置
func (p *HeaderPoller) OnUpdate(fn func(*api.ChartHeader)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Run 立即拉取一次，之后按间隔轮询，直到 ctx 结束
func (p *HeaderPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *HeaderPoller) poll(ctx context.Context) {
	header, err := p.source.GetChartHeader(ctx, p.tokenA, p.tokenB)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("Failed to fetch chart header", zap.Error(err))
		}
		return
	}

	p.mu.Lock()
	p.latest = header
	onUpdate := p.onUpdate
	p.mu.Unlock()

	if onUpdate != nil {
		onUpdate(header)
	}
}

// Latest 在第一次成功之前为 nil
func (p *HeaderPoller) Latest() *api.ChartHeader {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}
