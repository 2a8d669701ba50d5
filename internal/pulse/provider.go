package pulse

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"dex-chart-datafeed/internal/api"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/service"
	"dex-chart-datafeed/internal/symbol"
)

const (
	DefaultPingInterval = 20 * time.Second

	storeTimeout = 2 * time.Second
)

// Stream 是 Provider 依赖的推送连接，由 api.Connector 实现
type Stream interface {
	Connect(ctx context.Context) error
	OnClose(fn func(err error))
	IsOpen() bool
	Send(req api.Request) error
	AddListener(l api.Listener) api.ListenerID
	RemoveListener(id api.ListenerID)
	Close() error
}

// TickFunc 接收实时 bar
type TickFunc func(model.Bar)

type subscription struct {
	info        model.SymbolInfo
	resolution  string
	onTick      TickFunc
	guid        string
	topics      []string
	unsubscribe func()
}

// Provider 在一条连接上管理所有实时订阅
type Provider struct {
	stream       Stream
	store        model.LastBarStore
	pingInterval time.Duration
	logger       *zap.Logger
	state        *connStateMachine

	ready     chan struct{}
	readyOnce sync.Once

	stopPing     chan struct{}
	stopPingOnce sync.Once

	mu         sync.Mutex
	subs       map[string]*subscription
	cleared    bool
	cancelDial context.CancelFunc
}

func NewProvider(stream Stream, store model.LastBarStore, pingInterval time.Duration, logger *zap.Logger) *Provider {
	if pingInterval <= 0 {
		pingInterval = DefaultPingInterval
	}
	logger = logger.Named("pulse")
	return &Provider{
		stream:       stream,
		store:        store,
		pingInterval: pingInterval,
		logger:       logger,
		state:        newConnStateMachine(logger),
		ready:        make(chan struct{}),
		stopPing:     make(chan struct{}),
		subs:         make(map[string]*subscription),
	}
}

// Start 在后台建立连接，成功或失败都会放行等待中的 SubscribeBars
func (p *Provider) Start(ctx context.Context) {
	dialCtx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancelDial = cancel
	p.mu.Unlock()

	p.stream.OnClose(func(err error) {
		p.stopPinging()
		p.state.Transition(StateClosed)
	})

	go func() {
		defer cancel()
		defer p.releaseGate()

		if err := p.stream.Connect(dialCtx); err != nil {
			p.logger.Error("Stream connection failed", zap.Error(err))
			p.state.Transition(StateClosed)
			return
		}

		p.mu.Lock()
		cleared := p.cleared
		p.mu.Unlock()
		if cleared {
			// 连接建立前已经 ClearSubscriptions
			_ = p.stream.Close()
			p.state.Transition(StateClosed)
			return
		}

		p.state.Transition(StateOpen)
		go p.pingLoop()
	}()
}

// Ready 在连接建立或失败后关闭
func (p *Provider) Ready() <-chan struct{} {
	return p.ready
}

func (p *Provider) State() ConnState {
	return p.state.Current()
}

func (p *Provider) releaseGate() {
	p.readyOnce.Do(func() { close(p.ready) })
}

func (p *Provider) stopPinging() {
	p.stopPingOnce.Do(func() { close(p.stopPing) })
}

func (p *Provider) pingLoop() {
	ticker := time.NewTicker(p.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopPing:
			return
		case <-ticker.C:
			p.send(api.NewPingRequest())
		}
	}
}

// send 在连接未打开时什么都不做
func (p *Provider) send(req api.Request) {
	if err := p.stream.Send(req); err != nil && !errors.Is(err, api.ErrNotConnected) {
		p.logger.Warn("Failed to send request", zap.String("method", req.Method), zap.Error(err))
	}
}

// SubscribeBars 等待连接就绪后订阅 candle 与 volume 两个 topic
// 连接失败或已关闭时直接返回 nil，不会再有回调
func (p *Provider) SubscribeBars(ctx context.Context, info model.SymbolInfo, resolution string, onTick TickFunc, listenerGUID string) error {
	select {
	case <-p.ready:
	case <-ctx.Done():
		return ctx.Err()
	}

	if p.state.Current() != StateOpen || !p.stream.IsOpen() {
		p.logger.Debug("Connection is not open, subscription skipped", zap.String("guid", listenerGUID))
		return nil
	}

	tokens, err := symbol.Decode(model.ChartSymbol(info.Ticker))
	if err != nil {
		return err
	}

	tf := symbol.ResolutionToTimeframe(resolution)
	topics := []string{
		api.Topic(api.EventCandle, tokens[0].Contract, tokens[1].Contract, tf),
		api.Topic(api.EventVolume, tokens[0].Contract, tokens[1].Contract, tf),
	}

	sub := &subscription{
		info:       info,
		resolution: resolution,
		onTick:     onTick,
		guid:       listenerGUID,
		topics:     topics,
	}
	id := p.stream.AddListener(p.listener(sub))
	sub.unsubscribe = func() {
		p.send(api.NewUnsubscribeRequest(topics...))
		p.stream.RemoveListener(id)
	}

	p.mu.Lock()
	if p.cleared {
		p.mu.Unlock()
		p.stream.RemoveListener(id)
		return nil
	}
	prev := p.subs[listenerGUID]
	p.subs[listenerGUID] = sub
	p.mu.Unlock()

	if prev != nil {
		prev.unsubscribe()
	}

	p.send(api.NewSubscribeRequest(topics...))

	p.logger.Info("Subscribed",
		zap.String("guid", listenerGUID),
		zap.String("symbol", info.Name),
		zap.String("resolution", resolution),
	)
	return nil
}

// UnsubscribeBars 可重复调用
func (p *Provider) UnsubscribeBars(listenerGUID string) {
	p.mu.Lock()
	sub, ok := p.subs[listenerGUID]
	delete(p.subs, listenerGUID)
	p.mu.Unlock()

	p.logger.Info("Unsubscribed", zap.String("guid", listenerGUID))

	if ok {
		sub.unsubscribe()
	}
}

// ClearSubscriptions 停止 ping，退订全部并关闭连接
func (p *Provider) ClearSubscriptions() {
	p.mu.Lock()
	p.cleared = true
	subs := p.subs
	p.subs = make(map[string]*subscription)
	cancelDial := p.cancelDial
	p.mu.Unlock()

	p.stopPinging()

	for _, sub := range subs {
		sub.unsubscribe()
	}

	p.state.Transition(StateClosing)
	if cancelDial != nil {
		cancelDial()
	}
	if err := p.stream.Close(); err != nil {
		p.logger.Warn("Failed to close stream", zap.Error(err))
	}
	p.state.Transition(StateClosed)
	p.releaseGate()
}

func (p *Provider) listener(sub *subscription) api.Listener {
	return func(frame api.Frame) {
		p.mu.Lock()
		active := p.subs[sub.guid] == sub
		p.mu.Unlock()
		if !active {
			return
		}
		p.dispatch(sub, frame)
	}
}

func (p *Provider) dispatch(sub *subscription, frame api.Frame) {
	switch frame.Kind {
	case api.FrameError:
		p.logger.Warn("Stream returned error",
			zap.Int("code", frame.Error.Code),
			zap.String("message", frame.Error.Message),
		)
	case api.FrameCandle:
		if slices.Contains(sub.topics, frame.Topic) {
			p.onCandle(sub, frame.Candle)
		}
	case api.FrameVolume:
		if slices.Contains(sub.topics, frame.Topic) {
			p.onVolume(sub, frame.Volume)
		}
	case api.FrameAck, api.FrameUnknown:
	}
}

// onCandle 只接受不早于缓存的 bar
func (p *Provider) onCandle(sub *subscription, data *api.CandleData) {
	bar, ok := data.Bar()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	accepted, err := p.store.SetIfNewer(ctx, sub.info.FullName, bar)
	if err != nil {
		p.logger.Error("Failed to update last bar", zap.String("symbol", sub.info.FullName), zap.Error(err))
		return
	}
	if accepted {
		sub.onTick(bar)
	}
}

// onVolume 把成交量合并到缓存中同一时间的 bar 上再推送，不回写缓存
func (p *Provider) onVolume(sub *subscription, data *api.VolumeData) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	last, ok, err := p.store.Get(ctx, sub.info.FullName)
	if err != nil {
		p.logger.Error("Failed to read last bar", zap.String("symbol", sub.info.FullName), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	ts, err := service.ISOToUnixMilli(data.TimeOpen)
	if err != nil || ts != last.Time {
		return
	}

	volume, err := service.StringToFloat(data.Amount())
	if err != nil || volume == 0 {
		return
	}

	sub.onTick(last.WithVolume(volume))
}
