package utils

import "go.uber.org/zap"

// HandlePanic 需要 defer 调用。捕获到 panic 时记录日志后执行 fn，
// 没有 panic 时直接执行 fn
func HandlePanic(logger *zap.Logger, fn func()) {
	if r := recover(); r != nil {
		logger.Error("recovered from panic", zap.Any("panic", r), zap.Stack("stack"))
	}

	if fn != nil {
		fn()
	}
}
