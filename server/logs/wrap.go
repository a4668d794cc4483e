package logs

import (
	"github.com/Trinoooo/eggie_reactor/logs"
	"go.uber.org/zap"
)

var serverLogger = logs.Named("server")

func Logger() *zap.Logger {
	return serverLogger
}

func Debug(msg string, fields ...zap.Field) {
	serverLogger.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	serverLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	serverLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	serverLogger.Error(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	serverLogger.Fatal(msg, fields...)
}
