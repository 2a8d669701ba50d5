package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是进程级日志实例，由 cmd 初始化后以 Named 子 logger 的形式注入各组件
// 使用：service.Logger.Named("pulse").Info("connection opened", zap.String("url", u))
var Logger = zap.NewNop()

// InitLogger 初始化 Zap 日志，level 为空时使用 info
func InitLogger(level string) {
	config := zap.NewProductionConfig()

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			log.Printf("Unknown log level %q, falling back to info", level)
		} else {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	var err error
	Logger, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}
