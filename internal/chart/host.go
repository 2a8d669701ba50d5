package chart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"dex-chart-datafeed/internal/datafeed"
	"dex-chart-datafeed/internal/history"
	"dex-chart-datafeed/internal/model"
)

var ErrAlreadyMounted = errors.New("chart is already mounted")

type SymbolInterval struct {
	Symbol   string
	Interval string
}

// Widget 为外部图表组件
type Widget interface {
	HeaderReady(ctx context.Context) error
	SymbolInterval() SymbolInterval
	// SetSymbol 作用于当前激活的图表
	SetSymbol(ctx context.Context, symbol model.ChartSymbol) error
	ClearUndoHistory()
	Remove()
}

type WidgetFactory func(opts Options, feed *datafeed.Datafeed) (Widget, error)

// WidgetRef 让外部持有当前 widget，卸载后为 nil
type WidgetRef struct {
	mu sync.RWMutex
	w  Widget
}

func (r *WidgetRef) Load() Widget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.w
}

func (r *WidgetRef) Store(w Widget) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w = w
}

// Host 管理 datafeed 与 widget 的生命周期
type Host struct {
	props   Props
	dexCfg  datafeed.Config
	backend history.API
	store   model.LastBarStore
	factory WidgetFactory
	ref     *WidgetRef
	logger  *zap.Logger

	mu     sync.Mutex
	feed   *datafeed.Datafeed
	widget Widget
	symbol model.ChartSymbol
}

// NewHost 中 ref 可以为 nil
func NewHost(props Props, dexCfg datafeed.Config, backend history.API, store model.LastBarStore, factory WidgetFactory, ref *WidgetRef, logger *zap.Logger) *Host {
	if ref == nil {
		ref = &WidgetRef{}
	}
	return &Host{
		props:   props,
		dexCfg:  dexCfg,
		backend: backend,
		store:   store,
		factory: factory,
		ref:     ref,
		logger:  logger.Named("chart"),
	}
}

func (h *Host) Mount(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.widget != nil {
		return ErrAlreadyMounted
	}

	feed := datafeed.New(ctx, h.dexCfg, h.backend, h.store, h.logger)
	opts := WidgetOptions(h.props, time.Now())

	w, err := h.factory(opts, feed)
	if err != nil {
		feed.ClearSubscriptions()
		return fmt.Errorf("create widget: %w", err)
	}

	h.feed = feed
	h.widget = w
	h.symbol = h.props.Symbol
	h.ref.Store(w)

	h.logger.Info("Chart mounted", zap.String("symbol", h.symbol.String()), zap.String("theme", opts.Theme))
	return nil
}

// SetSymbol 只在 symbol 变化时切换，等待 header 就绪后生效
func (h *Host) SetSymbol(ctx context.Context, symbol model.ChartSymbol) error {
	h.mu.Lock()
	w := h.widget
	if w == nil || symbol == "" || symbol == h.symbol {
		h.mu.Unlock()
		return nil
	}
	prev := h.symbol
	h.symbol = symbol
	h.mu.Unlock()

	if err := w.HeaderReady(ctx); err != nil {
		return fmt.Errorf("wait header ready: %w", err)
	}
	if err := w.SetSymbol(ctx, symbol); err != nil {
		return fmt.Errorf("set symbol %s: %w", symbol, err)
	}
	w.ClearUndoHistory()

	h.logger.Info("Chart symbol changed", zap.String("from", prev.String()), zap.String("to", symbol.String()))
	return nil
}

func (h *Host) Unmount() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.feed != nil {
		h.feed.ClearSubscriptions()
		h.feed = nil
	}
	if h.widget != nil {
		h.widget.Remove()
		h.widget = nil
		h.ref.Store(nil)
		h.logger.Info("Chart unmounted")
	}
}

func (h *Host) Ref() *WidgetRef {
	return h.ref
}

func (h *Host) Symbol() model.ChartSymbol {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.symbol
}
