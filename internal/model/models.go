package model

import "fmt"

// Token 为 token 元数据中图表需要的部分
type Token struct {
	Contract string
	Symbol   string
}

// TokenRef 是从 chart symbol 解码出的 (合约, 展示符号)
type TokenRef struct {
	Contract string
	Symbol   string
}

// ChartSymbol 编码一对 token，格式 contractA/symbolA|contractB/symbolB
type ChartSymbol string

func (s ChartSymbol) String() string {
	return string(s)
}

// Bar 代表图表的一根 K 线
type Bar struct {
	Time   int64    // 开盘时间，UTC 毫秒
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume *float64 // 成交量可能晚于 OHLC 到达
}

// WithVolume 返回带新成交量的副本，不修改原 bar
func (b Bar) WithVolume(v float64) Bar {
	b.Volume = &v
	return b
}

func (b Bar) String() string {
	vol := "-"
	if b.Volume != nil {
		vol = fmt.Sprintf("%.4f", *b.Volume)
	}
	return fmt.Sprintf("BAR [%d] O: %.6f H: %.6f L: %.6f C: %.6f V: %s", b.Time, b.Open, b.High, b.Low, b.Close, vol)
}

// SymbolInfo 是 resolveSymbol 返回给图表的元数据
type SymbolInfo struct {
	Ticker               string   `json:"ticker"`
	Name                 string   `json:"name"`
	CurrencyCode         string   `json:"currency_code,omitempty"`
	BaseName             []string `json:"base_name"`
	FullName             string   `json:"full_name"`
	Description          string   `json:"description"`
	Type                 string   `json:"type"`
	Session              string   `json:"session"`
	Timezone             string   `json:"timezone"`
	Exchange             string   `json:"exchange"`
	MinMov               int      `json:"minmov"`
	PriceScale           int      `json:"pricescale"`
	HasIntraday          bool     `json:"has_intraday"`
	HasNoVolume          bool     `json:"has_no_volume"`
	HasWeeklyAndMonthly  bool     `json:"has_weekly_and_monthly"`
	SupportedResolutions []string `json:"supported_resolutions"`
	VolumePrecision      int      `json:"volume_precision"`
	DataStatus           string   `json:"data_status"`
	VisiblePlotsSet      string   `json:"visible_plots_set"`
}

// PeriodParams 为 getBars 的分页参数
type PeriodParams struct {
	From             int64
	To               int64
	CountBack        int
	FirstDataRequest bool
}

// HistoryMetadata 随 bars 一起返回给图表
type HistoryMetadata struct {
	NoData   bool
	NextTime *int64
}
