package service

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// StringToFloat 解析后端返回的十进制字符串 (价格、成交量)
func StringToFloat(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

// ISOToUnixMilli 将 ISO-8601 时间字符串转换为 UTC 毫秒时间戳
func ISOToUnixMilli(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// 后端偶尔返回不带时区的时间，按 UTC 处理
		t, err = time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
		if err != nil {
			return 0, fmt.Errorf("invalid ISO time %q: %w", s, err)
		}
	}
	return t.UnixMilli(), nil
}

// UTCOffsetLabel 将本地时区格式化为 "UTC+3" / "UTC-5" / "UTC0"，非整点偏移保留小数 ("UTC+5.5")
func UTCOffsetLabel(t time.Time) string {
	_, offset := t.Zone()
	hours := float64(offset/60) / 60
	label := strconv.FormatFloat(hours, 'f', -1, 64)
	if hours > 0 {
		return "UTC+" + label
	}
	return "UTC" + label
}
