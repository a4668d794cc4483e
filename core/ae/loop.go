package ae

import (
	"math"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Loop 事件循环
type Loop struct {
	events     []fileEvent // events 以 fd 为下标的文件事件表
	maxFd      int         // maxFd 当前注册的最大 fd
	registered int         // registered mask 非空的槽位数
	maxSetSize int

	timeEvents      []*timeEvent // timeEvents 按注册顺序保存
	timeEventNextID int64
	lastTime        time.Time // lastTime 用来检测时钟回拨

	stop   bool
	closed bool

	poller      poller.Poller
	beforeSleep SleepProc
	afterSleep  SleepProc

	// lastPollTimeout 最近一次 Poll 使用的超时时间，-1 表示一直阻塞
	lastPollTimeout int

	clock   Clock
	logger  *zap.Logger
	metrics *MetricsHelper
}

// New 创建容量为 setSize 的事件循环，opts 为空时使用默认选项
func New(setSize int, opts *Options) (*Loop, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	if setSize <= 0 || setSize > opts.maxSetSize {
		return nil, errs.NewInvalidCapacityErr()
	}

	p, err := opts.pollerFactory(setSize)
	if err != nil {
		return nil, errs.NewCreatePollerErr().WithErr(err)
	}

	l := &Loop{
		events:          make([]fileEvent, setSize),
		maxFd:           -1,
		maxSetSize:      opts.maxSetSize,
		lastTime:        opts.clock.Now(),
		poller:          p,
		lastPollTimeout: -1,
		clock:           opts.clock,
		logger:          opts.logger,
		metrics:         opts.metrics,
	}
	l.logger.Info("event loop created",
		zap.Int(consts.LogFieldSetSize, setSize),
		zap.String(consts.LogFieldApi, p.Name()),
	)
	return l, nil
}

// Close 释放多路复用后端，对剩余定时器执行 finalizer，释放文件事件表。
// 重复调用无副作用。
func (l *Loop) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.stop = true

	err := l.poller.Close()

	timeEvents := l.timeEvents
	l.timeEvents = nil
	for _, te := range timeEvents {
		te.removed = true
		if !te.running {
			l.finalizeTimeEvent(te)
		}
	}
	l.metrics.setTimeEvents(0)

	for fd := 0; fd <= l.maxFd; fd++ {
		fe := &l.events[fd]
		l.attach(&fe.rProc, &fe.rData, nil, nil)
		l.attach(&fe.wProc, &fe.wData, nil, nil)
	}
	l.events = nil
	l.maxFd = -1
	l.registered = 0
	l.metrics.setRegisteredFds(0)

	l.logger.Info("event loop closed", zap.String(consts.LogFieldApi, l.poller.Name()), zap.Error(err))
	if err != nil {
		return errors.Wrap(err, "close poller")
	}
	return nil
}

// Stop 在下一轮开始前生效，当前这一轮会完整执行
func (l *Loop) Stop() {
	l.stop = true
}

// Main 循环执行 ProcessEvents 直到 Stop 被调用，Poll 失败时返回错误
func (l *Loop) Main() error {
	l.stop = false
	for !l.stop {
		if _, err := l.ProcessEvents(AllEvents | CallSleepHooks); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) SetBeforeSleepProc(proc SleepProc) {
	l.beforeSleep = proc
}

func (l *Loop) SetAfterSleepProc(proc SleepProc) {
	l.afterSleep = proc
}

// ApiName 多路复用后端名称
func (l *Loop) ApiName() string {
	return l.poller.Name()
}

// LastPollTimeout 最近一次 Poll 的超时时间（毫秒）
func (l *Loop) LastPollTimeout() int {
	return l.lastPollTimeout
}

// ProcessEvents 执行一轮事件循环，返回处理的文件事件数与定时器回调数之和。
//
// 不带 FileEvents 和 TimeEvents 时直接返回；带 DontWait 时 Poll 不阻塞。
// 同一轮里所有文件事件都在定时器之前处理。
// ProcessEvents 不可重入，不要在回调里调用。
func (l *Loop) ProcessEvents(flags Flag) (int, error) {
	if l.closed {
		return 0, errs.NewLoopClosedErr()
	}
	if flags&AllEvents == 0 {
		return 0, nil
	}
	l.metrics.incIterations()

	processed := 0
	// 没有注册 fd 时也要 Poll，用来睡到最近的定时器
	if l.maxFd != -1 || (flags&TimeEvents != 0 && flags&DontWait == 0) {
		timeout := l.pollTimeout(flags)
		l.lastPollTimeout = timeout

		if flags&CallBeforeSleep != 0 && flags&DontWait == 0 && l.beforeSleep != nil {
			l.beforeSleep(l)
			if l.closed {
				return processed, nil
			}
		}

		start := time.Now()
		fired, err := l.poller.Poll(timeout)
		l.metrics.observePoll(time.Since(start), err)
		if err != nil {
			l.logger.Error("poll failed", zap.String(consts.LogFieldApi, l.poller.Name()), zap.Error(err))
			return processed, errs.NewPollErr().WithErr(errors.Wrap(err, l.poller.Name()))
		}

		if flags&CallAfterSleep != 0 && l.afterSleep != nil {
			l.afterSleep(l)
		}

		if flags&FileEvents != 0 {
			processed += l.processFileEvents(fired)
		}
	}

	if flags&TimeEvents != 0 && !l.closed {
		processed += l.processTimeEvents()
	}
	return processed, nil
}

// pollTimeout 根据最近的定时器计算 Poll 超时（毫秒），向上取整避免提前醒来
func (l *Loop) pollTimeout(flags Flag) int {
	if flags&DontWait != 0 {
		return 0
	}
	if flags&TimeEvents == 0 {
		return -1
	}

	when, ok := l.nearestTimer()
	if !ok {
		return -1
	}
	d := when.Sub(l.clock.Now())
	if d <= 0 {
		return 0
	}
	ms := (d + time.Millisecond - 1) / time.Millisecond
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(ms)
}

func (l *Loop) processFileEvents(fired []poller.FiredEvent) int {
	processed := 0
	for _, fe := range fired {
		if l.closed {
			break
		}
		if l.processFileEvent(fe.Fd, fe.Mask) {
			processed++
		}
	}
	l.metrics.addFileEvents(processed)
	return processed
}

// processFileEvent 分发一个 fd 的就绪事件。
// 注册了 Barrier 时先读后写，读回调执行过就跳过写回调；
// 否则先写后读。每次调用前都重新检查槽位，回调里注销了 fd 的话
// 剩下的事件不再分发。一次注册了读写两侧的回调每轮最多调用一次。
func (l *Loop) processFileEvent(fd int, fired Mask) bool {
	if fd < 0 || fd >= len(l.events) {
		return false
	}

	if l.events[fd].mask&Barrier != 0 {
		if l.invoke(fd, fired, Readable) {
			return true
		}
		return l.invoke(fd, fired, Writable)
	}

	wrote := l.invoke(fd, fired, Writable)
	// 读写是同一个回调时已经拿到了完整的 fired，不再调用第二次
	if wrote && fd < len(l.events) && l.events[fd].shared {
		return true
	}
	read := l.invoke(fd, fired, Readable)
	return wrote || read
}

func (l *Loop) invoke(fd int, fired, side Mask) bool {
	if l.closed || fd >= len(l.events) {
		return false
	}
	fe := &l.events[fd]
	if fe.mask&fired&side == None {
		return false
	}

	if side == Readable {
		fe.rProc(l, fd, valueOf(fe.rData), fired)
	} else {
		fe.wProc(l, fd, valueOf(fe.wData), fired)
	}
	return true
}
