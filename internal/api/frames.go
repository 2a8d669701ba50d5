package api

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/service"
)

// 事件类型，作为 topic 的前缀
const (
	EventCandle = "spot_price_candle_update"
	EventVolume = "volume_candle_update"
)

const (
	MethodPing        = "ping"
	MethodSubscribe   = "subscribe"
	MethodUnsubscribe = "unsubscribe"
	MethodNewEvent    = "new_event"

	jsonRPCVersion = "2.0"
	topicSeparator = "@"
)

// Request 为发往推送服务的 JSON-RPC 请求
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type EventTypesParams struct {
	EventTypes []string `json:"event_types"`
}

func NewSubscribeRequest(topics ...string) Request {
	return Request{JSONRPC: jsonRPCVersion, Method: MethodSubscribe, Params: EventTypesParams{EventTypes: topics}}
}

func NewUnsubscribeRequest(topics ...string) Request {
	return Request{JSONRPC: jsonRPCVersion, Method: MethodUnsubscribe, Params: EventTypesParams{EventTypes: topics}}
}

func NewPingRequest() Request {
	return Request{JSONRPC: jsonRPCVersion, Method: MethodPing, Params: struct{}{}}
}

// Topic 组合 <kind>@<contractA>@<contractB>@<timeframe>
func Topic(kind, contractA, contractB, timeframe string) string {
	return strings.Join([]string{kind, contractA, contractB, strings.ToLower(timeframe)}, topicSeparator)
}

// RPCError 对应 {"error":{"code","message"}}
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CandleData 为 spot_price_candle_update 事件数据
type CandleData struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	TimeOpen  string          `json:"time_open"`
	Timeframe string          `json:"timeframe"`
	TokenA    string          `json:"token_a"`
	TokenB    string          `json:"token_b"`
	UpdatedAt string          `json:"updated_at"`
}

// Bar 转为图表 bar，time_open 缺失或无法解析时返回 false
func (c CandleData) Bar() (model.Bar, bool) {
	return toBar(c.TimeOpen, c.Open, c.High, c.Low, c.Close)
}

func toBar(timeOpen string, open, high, low, close decimal.Decimal) (model.Bar, bool) {
	if timeOpen == "" {
		return model.Bar{}, false
	}
	ts, err := service.ISOToUnixMilli(timeOpen)
	if err != nil {
		return model.Bar{}, false
	}
	return model.Bar{
		Time:  ts,
		Open:  open.InexactFloat64(),
		High:  high.InexactFloat64(),
		Low:   low.InexactFloat64(),
		Close: close.InexactFloat64(),
	}, true
}

// VolumeData 为 volume_candle_update 事件数据
type VolumeData struct {
	PoolID    int64  `json:"pool_id"`
	TimeOpen  string `json:"time_open"`
	Timeframe string `json:"timeframe"`
	TokenA    string `json:"token_a"`
	TokenB    string `json:"token_b"`
	Volume    string `json:"volume"`
	Value     string `json:"value"`
}

// Amount 返回成交量字符串，兼容 volume / value 两种字段名
func (v VolumeData) Amount() string {
	if v.Volume != "" {
		return v.Volume
	}
	return v.Value
}

type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameError
	FrameCandle
	FrameVolume
	FrameAck
)

func (k FrameKind) String() string {
	switch k {
	case FrameError:
		return "error"
	case FrameCandle:
		return "candle"
	case FrameVolume:
		return "volume"
	case FrameAck:
		return "ack"
	default:
		return "unknown"
	}
}

// Frame 是解码后的推送消息，按 Kind 只有对应的字段非空
type Frame struct {
	Kind      FrameKind
	Topic     string // 仅事件帧
	CreatedAt string
	Error     *RPCError
	Candle    *CandleData
	Volume    *VolumeData
	Ack       []string // 订阅确认中的 event_types
}

type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Error   *RPCError       `json:"error"`
	Result  *struct {
		EventTypes []string `json:"event_types"`
	} `json:"result"`
	Params *struct {
		CreatedAt string          `json:"created_at"`
		Type      string          `json:"type"`
		Data      json.RawMessage `json:"data"`
	} `json:"params"`
}

// DecodeFrame 解析一条推送消息，格式错误时返回 error，调用方直接丢弃
func DecodeFrame(raw []byte) (Frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Frame{}, err
	}

	if env.Error != nil && env.Error.Code != 0 {
		return Frame{Kind: FrameError, Error: env.Error}, nil
	}

	if env.Method == MethodNewEvent && env.Params != nil {
		frame := Frame{Topic: env.Params.Type, CreatedAt: env.Params.CreatedAt}
		kind, _, _ := strings.Cut(env.Params.Type, topicSeparator)

		switch kind {
		case EventCandle:
			var data CandleData
			if err := json.Unmarshal(env.Params.Data, &data); err != nil {
				return Frame{}, err
			}
			frame.Kind = FrameCandle
			frame.Candle = &data
		case EventVolume:
			var data VolumeData
			if err := json.Unmarshal(env.Params.Data, &data); err != nil {
				return Frame{}, err
			}
			frame.Kind = FrameVolume
			frame.Volume = &data
		default:
			frame.Kind = FrameUnknown
		}
		return frame, nil
	}

	if env.Result != nil {
		return Frame{Kind: FrameAck, Ack: env.Result.EventTypes}, nil
	}
	if len(env.ID) > 0 && env.Method == "" {
		// ping 应答只有 id
		return Frame{Kind: FrameAck}, nil
	}

	return Frame{Kind: FrameUnknown}, nil
}
