package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
	"dex-chart-datafeed/internal/cache"
	"dex-chart-datafeed/internal/chart"
	"dex-chart-datafeed/internal/datafeed"
	"dex-chart-datafeed/internal/history"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/service"
	"dex-chart-datafeed/internal/symbol"
)

func main() {
	service.InitLogger("")
	defer func() { _ = service.Logger.Sync() }()

	cfg, err := service.LoadConfig("config")
	if err != nil {
		service.Logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	service.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. last bar 缓存
	store, closeStore := newLastBarStore(ctx, cfg.Cache)
	defer closeStore()

	// 2. REST 后端
	client := api.NewLiquidityClient(api.ClientConfig{
		BaseURL:     cfg.Backend.RESTURL,
		CandlesPath: cfg.Backend.CandlesPath,
		VolumesPath: cfg.Backend.VolumesPath,
		HeaderPath:  cfg.Backend.HeaderPath,
		Timeout:     cfg.Backend.RequestTimeout,
	}, service.Logger.Named("rest"))

	// 3. 交易对 -> chart symbol，原生币按 wrapped 合约编码
	normalize := cfg.Dex.NativeToWrapped()
	chartSymbol, ok := symbol.Encode(
		&model.Token{Contract: cfg.Chart.TokenA.Contract, Symbol: cfg.Chart.TokenA.Symbol},
		&model.Token{Contract: cfg.Chart.TokenB.Contract, Symbol: cfg.Chart.TokenB.Symbol},
		normalize,
	)
	if !ok {
		service.Logger.Fatal("Chart tokens are not configured")
	}

	// 4. 图表宿主
	dexCfg := datafeed.Config{
		DexName:        cfg.Dex.Name,
		DexDescription: cfg.Dex.Description,
		WSURL:          cfg.Backend.WSURL,
		AllowLogger:    cfg.Dex.AllowLogger,
		CurrencyCode:   cfg.Dex.CurrencyCode,
		Limits: history.LimitedResponse{
			MaxResponseLength: cfg.History.MaxResponseLength,
			ExpectedOrder:     cfg.History.ExpectedOrder,
		},
		PingInterval: cfg.Pulse.PingInterval,
	}
	props := chart.Props{Symbol: chartSymbol, Theme: cfg.Chart.Theme}
	if c := cfg.Chart.Colors; c != nil {
		props.Colors = &chart.Colors{
			Background:      c.Background,
			Up:              c.Up,
			Down:            c.Down,
			UpTransparent:   c.UpTransparent,
			DownTransparent: c.DownTransparent,
			GridLine:        c.GridLine,
			Axis:            c.Axis,
		}
	}

	host := chart.NewHost(props, dexCfg, client, store, chart.NewHeadlessWidgetFactory(ctx, service.Logger), nil, service.Logger)
	if err := host.Mount(ctx); err != nil {
		service.Logger.Fatal("Failed to mount chart", zap.Error(err))
	}

	// 5. 图表头部轮询
	poller := chart.NewHeaderPoller(client,
		normalize(cfg.Chart.TokenA.Contract), normalize(cfg.Chart.TokenB.Contract),
		cfg.Chart.HeaderPollInterval, service.Logger)
	poller.OnUpdate(func(h *api.ChartHeader) {
		service.Logger.Info("Chart header",
			zap.String("symbol", chartSymbol.String()),
			zap.String("spot_price", h.SpotPrice),
			zap.String("change_24h", h.PriceChange24h),
			zap.String("volume_24h", h.Volume24h),
		)
	})
	go poller.Run(ctx)

	service.Logger.Info("Chart datafeed running", zap.String("symbol", chartSymbol.String()))
	<-ctx.Done()
	service.Logger.Info("Shutting down")

	if cfg.Chart.SnapshotDir != "" {
		if w, ok := host.Ref().Load().(*chart.HeadlessWidget); ok {
			path, err := w.SaveSnapshot(cfg.Chart.SnapshotDir, time.Now())
			if err != nil {
				service.Logger.Error("Failed to save snapshot", zap.Error(err))
			} else {
				service.Logger.Info("Snapshot saved", zap.String("path", path))
			}
		}
	}

	host.Unmount()
}

func newLastBarStore(ctx context.Context, cfg service.CacheConfig) (model.LastBarStore, func()) {
	if cfg.Driver != "redis" {
		return model.NewMemoryLastBarStore(), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		service.Logger.Fatal("Failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	service.Logger.Info("Using Redis last bar store", zap.String("addr", cfg.RedisAddr))

	return cache.NewRedisLastBarStore(rdb, cfg.KeyPrefix), func() { _ = rdb.Close() }
}
