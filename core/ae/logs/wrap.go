package logs

import (
	"github.com/Trinoooo/eggie_reactor/logs"
	"go.uber.org/zap"
)

var aeLogger = logs.Named("ae")

// Logger 事件循环默认使用的logger，可以通过 ae.Options.SetLogger 覆盖
func Logger() *zap.Logger {
	return aeLogger
}

func Debug(msg string, fields ...zap.Field) {
	aeLogger.Debug(msg, fields...)
}
