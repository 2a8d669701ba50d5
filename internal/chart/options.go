package chart

import (
	"maps"
	"slices"
	"strings"
	"time"

	"dex-chart-datafeed/internal/datafeed"
	"dex-chart-datafeed/internal/model"
	"dex-chart-datafeed/internal/service"
)

const (
	DefaultTheme    = "Dark"
	DefaultInterval = "15"
)

// Colors 为图表调色板
type Colors struct {
	Background      string
	Up              string
	Down            string
	UpTransparent   string
	DownTransparent string
	GridLine        string
	Axis            string
}

// Props 为挂载图表时的输入
type Props struct {
	Symbol           model.ChartSymbol
	Theme            string
	LibraryPath      string
	CustomCSSURL     string
	Overrides        map[string]any
	StudiesOverrides map[string]any
	Colors           *Colors
}

type Favorites struct {
	Intervals  []string `json:"intervals"`
	ChartTypes []string `json:"chartTypes"`
}

// Options 为传给图表 widget 的构造参数 (不含 datafeed 和容器)
type Options struct {
	Interval                 string         `json:"interval"`
	Symbol                   string         `json:"symbol"`
	Theme                    string         `json:"theme"`
	LibraryPath              string         `json:"library_path"`
	CustomCSSURL             string         `json:"custom_css_url,omitempty"`
	Overrides                map[string]any `json:"overrides,omitempty"`
	StudiesOverrides         map[string]any `json:"studies_overrides,omitempty"`
	Autosize                 bool           `json:"autosize"`
	Debug                    bool           `json:"debug"`
	DisabledFeatures         []string       `json:"disabled_features"`
	EnabledFeatures          []string       `json:"enabled_features"`
	Favorites                Favorites      `json:"favorites"`
	Fullscreen               bool           `json:"fullscreen"`
	Locale                   string         `json:"locale"`
	StudyCountLimit          int            `json:"study_count_limit"`
	SymbolSearchRequestDelay int            `json:"symbol_search_request_delay"`
	Timezone                 string         `json:"timezone"`
	HeaderWidgetButtonsMode  string         `json:"header_widget_buttons_mode"`
}

var disabledFeatures = []string{
	"use_localstorage_for_settings",
	"symbol_info",
	"source_selection_markers",
	"header_symbol_search",
	"symbol_search_hot_key",
	"header_compare",
	"header_undo_redo",
	"header_screenshot",
	"header_saveload",
	"popup_hints",
	"show_interval_dialog_on_key_press",
	"timeframes_toolbar",
}

var enabledFeatures = []string{
	"end_of_period_timescale_marks",
	"items_favoriting",
	"header_fullscreen_button",
}

var chartTypes = []string{"Candles", "Bars", "Line", "Area"}

func colorOverrides(c Colors) map[string]any {
	return map[string]any{
		// background
		"paneProperties.background":                   c.Background,
		"paneProperties.backgroundGradientStartColor": c.Background,
		"paneProperties.backgroundGradientEndColor":   c.Background,
		"paneProperties.backgroundType":               "solid",
		// grid
		"paneProperties.vertGridProperties.color": c.GridLine,
		"paneProperties.vertGridProperties.style": 0,
		"paneProperties.horzGridProperties.color": c.GridLine,
		"paneProperties.horzGridProperties.style": 0,
		// candle
		"mainSeriesProperties.candleStyle.upColor":         c.Up,
		"mainSeriesProperties.candleStyle.downColor":       c.Down,
		"mainSeriesProperties.candleStyle.borderUpColor":   c.Up,
		"mainSeriesProperties.candleStyle.borderDownColor": c.Down,
		"mainSeriesProperties.candleStyle.wickUpColor":     c.Up,
		"mainSeriesProperties.candleStyle.wickDownColor":   c.Down,
		// hollow candle
		"mainSeriesProperties.hollowCandleStyle.upColor":         c.Up,
		"mainSeriesProperties.hollowCandleStyle.downColor":       c.Down,
		"mainSeriesProperties.hollowCandleStyle.borderUpColor":   c.Up,
		"mainSeriesProperties.hollowCandleStyle.borderDownColor": c.Down,
		"mainSeriesProperties.hollowCandleStyle.wickUpColor":     c.Up,
		"mainSeriesProperties.hollowCandleStyle.wickDownColor":   c.Down,
		// bar
		"mainSeriesProperties.barStyle.upColor":   c.Up,
		"mainSeriesProperties.barStyle.downColor": c.Down,
		// column
		"mainSeriesProperties.columnStyle.upColor":   c.UpTransparent,
		"mainSeriesProperties.columnStyle.downColor": c.DownTransparent,
		// hlc area
		"mainSeriesProperties.hlcAreaStyle.closeLowFillColor":  c.DownTransparent,
		"mainSeriesProperties.hlcAreaStyle.highLineColor":      c.Up,
		"mainSeriesProperties.hlcAreaStyle.lowLineColor":       c.Down,
		"mainSeriesProperties.hlcAreaStyle.highCloseFillColor": c.UpTransparent,
		// baseline
		"mainSeriesProperties.baselineStyle.bottomFillColor1": c.DownTransparent,
		"mainSeriesProperties.baselineStyle.bottomFillColor2": c.Down,
		"mainSeriesProperties.baselineStyle.bottomLineColor":  c.Down,
		"mainSeriesProperties.baselineStyle.topFillColor1":    c.UpTransparent,
		"mainSeriesProperties.baselineStyle.topFillColor2":    c.Up,
		"mainSeriesProperties.baselineStyle.topLineColor":     c.Up,
		// heikin ashi
		"mainSeriesProperties.haStyle.borderUpColor":   c.Up,
		"mainSeriesProperties.haStyle.borderDownColor": c.Down,
		"mainSeriesProperties.haStyle.upColor":         c.Up,
		"mainSeriesProperties.haStyle.downColor":       c.Down,
		"mainSeriesProperties.haStyle.wickUpColor":     c.Up,
		"mainSeriesProperties.haStyle.wickDownColor":   c.Down,
		// axis
		"scalesProperties.axisHighlightColor": c.Axis,
		"scalesProperties.textColor":          c.Axis,
	}
}

func colorStudiesOverrides(c Colors) map[string]any {
	return map[string]any{
		"volume.volume.color.0": c.Down,
		"volume.volume.color.1": c.Up,
	}
}

// mergeOverrides 显式 overrides 覆盖调色板生成的键；两者都为空时返回 nil
func mergeOverrides(explicit map[string]any, colors *Colors, fromColors func(Colors) map[string]any) map[string]any {
	if explicit == nil && colors == nil {
		return nil
	}
	merged := make(map[string]any)
	if colors != nil {
		maps.Copy(merged, fromColors(*colors))
	}
	maps.Copy(merged, explicit)
	return merged
}

func ChartOverrides(overrides map[string]any, colors *Colors) map[string]any {
	return mergeOverrides(overrides, colors, colorOverrides)
}

func StudiesOverrides(overrides map[string]any, colors *Colors) map[string]any {
	return mergeOverrides(overrides, colors, colorStudiesOverrides)
}

// WidgetOptions 生成 widget 构造参数，now 决定时区标签
func WidgetOptions(props Props, now time.Time) Options {
	theme := props.Theme
	if theme == "" {
		theme = DefaultTheme
	}

	return Options{
		Interval:         DefaultInterval,
		Symbol:           props.Symbol.String(),
		Theme:            theme,
		LibraryPath:      props.LibraryPath,
		CustomCSSURL:     props.CustomCSSURL,
		Overrides:        ChartOverrides(props.Overrides, props.Colors),
		StudiesOverrides: StudiesOverrides(props.StudiesOverrides, props.Colors),
		Autosize:         true,
		Debug:            false,
		DisabledFeatures: slices.Clone(disabledFeatures),
		EnabledFeatures:  slices.Clone(enabledFeatures),
		Favorites: Favorites{
			Intervals:  slices.Clone(datafeed.Resolutions),
			ChartTypes: slices.Clone(chartTypes),
		},
		Fullscreen:               false,
		Locale:                   "en",
		StudyCountLimit:          2,
		SymbolSearchRequestDelay: 500,
		Timezone:                 service.UTCOffsetLabel(now),
		HeaderWidgetButtonsMode:  "fullsize",
	}
}

var fileNameReplacer = strings.NewReplacer("/", "-", "|", "_", ":", "-")

// FileNameToSave 生成快照文件名，例如 WETH-USDC_2024-01-02_15-04-05.json
func FileNameToSave(symbol string, now time.Time, ext string) string {
	stamp := now.Format("2006-01-02_15-04-05")
	if symbol == "" {
		return stamp + ext
	}
	return fileNameReplacer.Replace(symbol) + "_" + stamp + ext
}
