package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dex-chart-datafeed/internal/model"
)

// HistoryRequest 为 candles / volumes 接口的查询参数
type HistoryRequest struct {
	TokenA    string
	TokenB    string
	Timeframe string
	Timestamp int64
	Limit     int
}

func (r HistoryRequest) values() url.Values {
	q := url.Values{}
	q.Set("token_a", r.TokenA)
	q.Set("token_b", r.TokenB)
	q.Set("timeframe", r.Timeframe)
	q.Set("timestamp", strconv.FormatInt(r.Timestamp, 10))
	q.Set("limit", strconv.Itoa(r.Limit))
	return q
}

// CandleDTO 为历史价格 K 线
type CandleDTO struct {
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	TimeOpen string          `json:"time_open"`
}

func (c CandleDTO) Bar() (model.Bar, bool) {
	return toBar(c.TimeOpen, c.Open, c.High, c.Low, c.Close)
}

// VolumeDTO 为按 timeframe 聚合的成交量，TimeLabel 单位为秒
type VolumeDTO struct {
	Value     string `json:"value"`
	TimeLabel int64  `json:"time_label"`
}

// ChartHeader 为图表头部的交易对概览
type ChartHeader struct {
	SpotPrice      string `json:"spot_price"`
	PriceChange24h string `json:"price_change_24h"`
	Volume24h      string `json:"volume_24h"`
	Liquidity      string `json:"liquidity"`
}

type chartEnvelope[T any] struct {
	Chart []T `json:"chart"`
}

// ClientConfig 描述 REST 后端
type ClientConfig struct {
	BaseURL     string
	CandlesPath string
	VolumesPath string
	HeaderPath  string
	Timeout     time.Duration
}

// LiquidityClient 访问后端的图表 REST 接口
type LiquidityClient struct {
	cfg    ClientConfig
	client *http.Client
	logger *zap.Logger
}

func NewLiquidityClient(cfg ClientConfig, logger *zap.Logger) *LiquidityClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &LiquidityClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *LiquidityClient) GetCandles(ctx context.Context, req HistoryRequest) ([]CandleDTO, error) {
	var resp chartEnvelope[CandleDTO]
	if err := c.getJSON(ctx, c.cfg.CandlesPath, req.values(), &resp); err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return resp.Chart, nil
}

func (c *LiquidityClient) GetVolumes(ctx context.Context, req HistoryRequest) ([]VolumeDTO, error) {
	var resp chartEnvelope[VolumeDTO]
	if err := c.getJSON(ctx, c.cfg.VolumesPath, req.values(), &resp); err != nil {
		return nil, fmt.Errorf("get volumes: %w", err)
	}
	return resp.Chart, nil
}

func (c *LiquidityClient) GetChartHeader(ctx context.Context, tokenA, tokenB string) (*ChartHeader, error) {
	q := url.Values{}
	q.Set("token_a", tokenA)
	q.Set("token_b", tokenB)

	var header ChartHeader
	if err := c.getJSON(ctx, c.cfg.HeaderPath, q, &header); err != nil {
		return nil, fmt.Errorf("get chart header: %w", err)
	}
	return &header, nil
}

func (c *LiquidityClient) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return err
	}
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	c.logger.Debug("REST request completed", zap.String("path", path), zap.String("query", reqURL.RawQuery))
	return nil
}
