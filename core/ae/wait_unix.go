//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris || aix

package ae

import (
	"math"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae/logs"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// Wait 不依赖事件循环，单独等待一个 fd 就绪，最多等 ms 毫秒（ms < 0 一直等）。
// 超时返回 WaitTimeout 错误；POLLERR / POLLHUP 按可写返回。
func Wait(fd int, mask Mask, ms int64) (Mask, error) {
	if fd < 0 {
		return None, errs.NewInvalidDescriptorErr()
	}

	pfd := []unix.PollFd{{Fd: int32(fd)}}
	if mask&Readable != 0 {
		pfd[0].Events |= unix.POLLIN
	}
	if mask&Writable != 0 {
		pfd[0].Events |= unix.POLLOUT
	}

	// poll(2) 的超时是 C int
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	var deadline time.Time
	if ms >= 0 {
		deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	timeout := int(ms)
	for {
		n, err := unix.Poll(pfd, timeout)
		if errors.Is(err, unix.EINTR) {
			// 被信号打断时按剩余时间重试
			if ms >= 0 {
				remain := time.Until(deadline)
				if remain <= 0 {
					return None, errs.NewWaitTimeoutErr()
				}
				timeout = int((remain + time.Millisecond - 1) / time.Millisecond)
			}
			continue
		}
		if err != nil {
			logs.Debug("wait failed", zap.Int(consts.LogFieldFd, fd), zap.Error(err))
			return None, errs.NewWaitErr().WithErr(errors.Wrapf(err, "poll fd %d", fd))
		}
		if n == 0 {
			return None, errs.NewWaitTimeoutErr()
		}
		break
	}

	var ready Mask
	revents := pfd[0].Revents
	if revents&unix.POLLIN != 0 {
		ready |= Readable
	}
	if revents&unix.POLLOUT != 0 {
		ready |= Writable
	}
	if revents&(unix.POLLERR|unix.POLLHUP) != 0 {
		ready |= Writable
	}
	if revents&unix.POLLNVAL != 0 {
		return None, errs.NewInvalidDescriptorErr()
	}
	return ready, nil
}
