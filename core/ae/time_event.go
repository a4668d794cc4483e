package ae

import (
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"go.uber.org/zap"
)

type timeEvent struct {
	id        int64
	when      time.Time
	proc      TimeProc
	finalizer EventFinalizerProc
	data      ClientData
	running   bool // 回调执行中，此时被取消要等回调返回再执行 finalizer
	removed   bool // 已从注册表摘除
}

// CreateTimeEvent 注册一个 ms 毫秒后触发的定时器，返回定时器 id。
// id 单调递增，不会复用。
func (l *Loop) CreateTimeEvent(ms int64, proc TimeProc, data ClientData, finalizer EventFinalizerProc) (int64, error) {
	if l.closed {
		return 0, errs.NewLoopClosedErr()
	}
	if proc == nil {
		return 0, errs.NewInvalidParamErr()
	}
	if ms < 0 {
		ms = 0
	}

	id := l.timeEventNextID
	l.timeEventNextID++
	if data != nil {
		data.retain()
	}
	l.timeEvents = append(l.timeEvents, &timeEvent{
		id:        id,
		when:      l.clock.Now().Add(time.Duration(ms) * time.Millisecond),
		proc:      proc,
		finalizer: finalizer,
		data:      data,
	})
	l.metrics.setTimeEvents(len(l.timeEvents))
	return id, nil
}

// DeleteTimeEvent 取消定时器，立即生效。id 不存在或已经被移除时返回 false。
func (l *Loop) DeleteTimeEvent(id int64) bool {
	for i, te := range l.timeEvents {
		if te.id != id {
			continue
		}
		l.unlinkTimeEvent(i)
		// 正在执行的定时器在回调返回后执行 finalizer
		if !te.running {
			l.finalizeTimeEvent(te)
		}
		return true
	}
	return false
}

// TimeEventCount 当前存活的定时器数量
func (l *Loop) TimeEventCount() int {
	return len(l.timeEvents)
}

func (l *Loop) unlinkTimeEvent(i int) {
	te := l.timeEvents[i]
	te.removed = true
	copy(l.timeEvents[i:], l.timeEvents[i+1:])
	l.timeEvents[len(l.timeEvents)-1] = nil
	l.timeEvents = l.timeEvents[:len(l.timeEvents)-1]
	l.metrics.setTimeEvents(len(l.timeEvents))
}

func (l *Loop) removeTimeEvent(te *timeEvent) {
	for i, item := range l.timeEvents {
		if item == te {
			l.unlinkTimeEvent(i)
			break
		}
	}
	l.finalizeTimeEvent(te)
}

func (l *Loop) finalizeTimeEvent(te *timeEvent) {
	if te.finalizer != nil {
		te.finalizer(l, valueOf(te.data))
	}
	l.release(te.data)
	te.data = nil
}

// nearestTimer 线性扫描找到最早到期的定时器
func (l *Loop) nearestTimer() (time.Time, bool) {
	if len(l.timeEvents) == 0 {
		return time.Time{}, false
	}
	nearest := l.timeEvents[0].when
	for _, te := range l.timeEvents[1:] {
		if te.when.Before(nearest) {
			nearest = te.when
		}
	}
	return nearest, true
}

// processTimeEvents 触发所有到期的定时器。
// 本轮执行过程中新建的定时器不会在本轮触发。
func (l *Loop) processTimeEvents() int {
	processed := 0
	now := l.clock.Now()

	// 时钟被回拨时把所有定时器当作已到期，
	// 提前触发比无限期推迟更容易接受
	if now.Before(l.lastTime) {
		l.logger.Warn("clock skew detected, fire all time events",
			zap.Time("now", now),
			zap.Time("last", l.lastTime),
		)
		for _, te := range l.timeEvents {
			te.when = time.Time{}
		}
	}
	l.lastTime = now

	if len(l.timeEvents) == 0 {
		return 0
	}

	maxID := l.timeEventNextID - 1
	snapshot := make([]*timeEvent, len(l.timeEvents))
	copy(snapshot, l.timeEvents)
	for _, te := range snapshot {
		if l.closed {
			break
		}
		if te.removed || te.id > maxID {
			continue
		}
		if l.clock.Now().Before(te.when) {
			continue
		}

		te.running = true
		ret := te.proc(l, te.id, valueOf(te.data))
		te.running = false
		processed++

		switch {
		case te.removed:
			// 回调里取消了自己
			l.finalizeTimeEvent(te)
		case ret < 0:
			l.removeTimeEvent(te)
		default:
			te.when = l.clock.Now().Add(time.Duration(ret) * time.Millisecond)
		}
	}

	if processed > 0 {
		l.logger.Debug("time events processed",
			zap.Int(consts.LogFieldValue, processed),
			zap.Int64(consts.LogFieldTimerId, maxID),
		)
	}
	l.metrics.addTimeEvents(processed)
	return processed
}
