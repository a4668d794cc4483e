package ae

import (
	"time"

	"github.com/Trinoooo/eggie_reactor/core/ae/logs"
	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
	"github.com/Trinoooo/eggie_reactor/errs"
	"go.uber.org/zap"
)

// DefaultMaxSetSize 文件事件表扩容的硬上限
const DefaultMaxSetSize = 1 << 20

// Clock 时间源，测试里替换成可控的假时钟
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

// Options 事件循环选项
type Options struct {
	pollerFactory poller.Factory // 多路复用后端，默认按平台选择
	clock         Clock
	maxSetSize    int // 文件事件表最多能扩到多大
	logger        *zap.Logger
	metrics       *MetricsHelper // 为空时不上报
}

func NewOptions() *Options {
	return &Options{
		pollerFactory: poller.New,
		clock:         systemClock{},
		maxSetSize:    DefaultMaxSetSize,
		logger:        logs.Logger(),
	}
}

func (opts *Options) SetPollerFactory(factory poller.Factory) *Options {
	opts.pollerFactory = factory
	return opts
}

func (opts *Options) SetClock(clock Clock) *Options {
	opts.clock = clock
	return opts
}

func (opts *Options) SetMaxSetSize(maxSetSize int) *Options {
	opts.maxSetSize = maxSetSize
	return opts
}

func (opts *Options) SetLogger(logger *zap.Logger) *Options {
	opts.logger = logger
	return opts
}

func (opts *Options) SetMetrics(metrics *MetricsHelper) *Options {
	opts.metrics = metrics
	return opts
}

func (opts *Options) check() error {
	if opts.pollerFactory == nil || opts.clock == nil || opts.logger == nil {
		return errs.NewInvalidParamErr()
	}

	if opts.maxSetSize <= 0 {
		return errs.NewInvalidParamErr()
	}

	return nil
}
