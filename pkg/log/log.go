// Package log 是对 zap SugaredLogger 的一层薄封装，供各个包直接调用。
package log

import (
	"fmt"
	"os"
	"path/filepath"

	"canon-rag-go/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 在 Init 之前使用 no-op logger，保证测试与命令行工具中调用日志函数不会 panic。
var sugar = zap.NewNop().Sugar()

// Init 根据配置初始化 zap logger。format 为 console 时使用开发配置（彩色级别），否则输出 JSON。
func Init(cfg config.LogConfig) error {
	logger, err := build(cfg)
	if err != nil {
		return err
	}
	sugar = logger.Sugar()
	return nil
}

func build(cfg config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var zapConfig zap.Config
	if cfg.Format == "console" {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapConfig.Level = level
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.OutputPath != "" {
		// 同时输出到文件和 stdout
		if err := os.MkdirAll(cfg.OutputPath, os.ModePerm); err != nil {
			return nil, fmt.Errorf("创建日志目录失败: %w", err)
		}
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, filepath.Join(cfg.OutputPath, "app.log"))
	}
	return zapConfig.Build()
}

// With 返回携带固定字段的 logger，用于请求级别的上下文。
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return sugar.With(keysAndValues...)
}

// Info 记录一条 info 级别的日志
func Info(msg string) {
	sugar.Info(msg)
}

func Infof(template string, args ...interface{}) {
	sugar.Infof(template, args...)
}

// Infow 使用键值对记录一条 info 级别的结构化日志。
func Infow(msg string, keysAndValues ...interface{}) {
	sugar.Infow(msg, keysAndValues...)
}

func Debugf(template string, args ...interface{}) {
	sugar.Debugf(template, args...)
}

func Warnf(template string, args ...interface{}) {
	sugar.Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	sugar.Warnw(msg, keysAndValues...)
}

// Error 记录一条 error 级别的日志，并附带 error 信息
func Error(msg string, err error) {
	sugar.Errorw(msg, "error", err)
}

func Errorf(template string, args ...interface{}) {
	sugar.Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	sugar.Errorw(msg, keysAndValues...)
}

// Fatal 记录日志后退出程序
func Fatal(msg string, err error) {
	sugar.Fatalw(msg, "error", err)
}

func Fatalf(template string, args ...interface{}) {
	sugar.Fatalf(template, args...)
}

// Sync 将缓冲区中的任何日志刷新到底层 Writer。
func Sync() {
	_ = sugar.Sync()
}
