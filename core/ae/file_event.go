package ae

import (
	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// fileEvent 文件事件表中的一个槽位，下标就是 fd。
// mask 为 None 时读写回调和上下文都为空。
type fileEvent struct {
	mask  Mask
	rProc FileProc
	wProc FileProc
	rData ClientData
	wData ClientData
	// shared 一次注册同时设置了读写回调，同一轮里只调用一次
	shared bool
}

// CreateFileEvent 为 fd 注册 mask 对应的回调，mask 与已有注册合并。
// fd 超过当前容量时自动扩容，超过 maxSetSize 返回 TableFull。
func (l *Loop) CreateFileEvent(fd int, mask Mask, proc FileProc, data ClientData) error {
	if l.closed {
		return errs.NewLoopClosedErr()
	}
	if fd < 0 {
		return errs.NewInvalidDescriptorErr()
	}
	if mask&poller.ReadWrite == None || proc == nil {
		return errs.NewInvalidParamErr()
	}
	if fd >= l.maxSetSize {
		return errs.NewTableFullErr()
	}

	if err := l.poller.AddInterest(fd, mask); err != nil {
		return errs.NewPollerCtlErr().WithErr(errors.Wrapf(err, "add interest %s", mask))
	}

	if fd >= len(l.events) {
		newSize := len(l.events) * 2
		if newSize <= fd {
			newSize = fd + 1
		}
		if newSize > l.maxSetSize {
			newSize = l.maxSetSize
		}
		if err := l.resize(newSize); err != nil {
			_ = l.poller.RemoveInterest(fd, mask)
			return err
		}
	}

	fe := &l.events[fd]
	if fe.mask == None {
		l.registered++
		l.metrics.setRegisteredFds(l.registered)
	}
	fe.mask |= mask
	// Barrier 只有和 Writable 一起才有意义
	if fe.mask&Writable == 0 {
		fe.mask &^= Barrier
	}
	if mask&Readable != 0 {
		l.attach(&fe.rProc, &fe.rData, proc, data)
	}
	if mask&Writable != 0 {
		l.attach(&fe.wProc, &fe.wData, proc, data)
	}
	fe.shared = mask&poller.ReadWrite == poller.ReadWrite
	if fd > l.maxFd {
		l.maxFd = fd
	}
	return nil
}

// DeleteFileEvent 清除 fd 上 mask 对应的注册，没注册过的位直接忽略。
// 清除 Writable 时同时清除 Barrier。
func (l *Loop) DeleteFileEvent(fd int, mask Mask) {
	if fd < 0 || fd >= len(l.events) {
		return
	}
	fe := &l.events[fd]
	if fe.mask == None {
		return
	}

	if mask&Writable != 0 {
		mask |= Barrier
	}
	removed := fe.mask & mask
	if removed == None {
		return
	}

	if err := l.poller.RemoveInterest(fd, removed); err != nil {
		l.logger.Warn("remove interest failed",
			zap.Int(consts.LogFieldFd, fd),
			zap.Stringer(consts.LogFieldMask, removed),
			zap.Error(err),
		)
	}

	fe.mask &^= removed
	if removed&poller.ReadWrite != None {
		fe.shared = false
	}
	if removed&Readable != 0 {
		l.attach(&fe.rProc, &fe.rData, nil, nil)
	}
	if removed&Writable != 0 {
		l.attach(&fe.wProc, &fe.wData, nil, nil)
	}

	if fe.mask != None {
		return
	}
	l.registered--
	l.metrics.setRegisteredFds(l.registered)
	if fd == l.maxFd {
		j := l.maxFd - 1
		for ; j >= 0; j-- {
			if l.events[j].mask != None {
				break
			}
		}
		l.maxFd = j
	}
}

// FileEvents 返回 fd 当前注册的 mask，未注册或越界时返回 None
func (l *Loop) FileEvents(fd int) Mask {
	if fd < 0 || fd >= len(l.events) {
		return None
	}
	return l.events[fd].mask
}

// SetSize 文件事件表当前容量
func (l *Loop) SetSize() int {
	return len(l.events)
}

// MaxFd 当前注册的最大 fd，没有注册时为 -1
func (l *Loop) MaxFd() int {
	return l.maxFd
}

// ResizeSetSize 调整文件事件表容量。
// 有注册中的 fd >= setSize 时失败，且不改变任何状态。
func (l *Loop) ResizeSetSize(setSize int) error {
	if l.closed {
		return errs.NewLoopClosedErr()
	}
	if setSize <= 0 || setSize > l.maxSetSize {
		return errs.NewInvalidCapacityErr()
	}
	if setSize == len(l.events) {
		return nil
	}
	if l.maxFd >= setSize {
		return errs.NewInUseDescriptorAboveNewCapacityErr()
	}
	return l.resize(setSize)
}

func (l *Loop) resize(setSize int) error {
	if r, ok := l.poller.(poller.Resizer); ok {
		if err := r.Resize(setSize); err != nil {
			return errs.NewPollerCtlErr().WithErr(errors.Wrapf(err, "resize to %d", setSize))
		}
	}

	events := make([]fileEvent, setSize)
	copy(events, l.events)
	l.logger.Info("file event table resized",
		zap.Int(consts.LogFieldSetSize, setSize),
		zap.Int(consts.LogFieldValue, len(l.events)),
	)
	l.events = events
	return nil
}

// attach 替换一侧的回调和上下文，旧的 Own 上下文引用计数减一
func (l *Loop) attach(proc *FileProc, slot *ClientData, p FileProc, data ClientData) {
	if data != nil {
		data.retain()
	}
	old := *slot
	*proc, *slot = p, data
	l.release(old)
}

func (l *Loop) release(data ClientData) {
	if data == nil {
		return
	}
	if err := data.release(); err != nil {
		l.logger.Warn("release client data failed", zap.Error(err))
	}
}
