//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris || aix

package poller

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// PollPoller poll(2) 后端，没有 epoll / kqueue 的平台使用，
// 其他平台也可以通过 Factory 显式选择
type PollPoller struct {
	fds   []unix.PollFd
	dirty bool
	fired []FiredEvent
	in    interest
}

func NewPollPoller(setSize int) (*PollPoller, error) {
	if setSize <= 0 {
		return nil, errors.Errorf("invalid set size %d", setSize)
	}
	return &PollPoller{
		fds:   make([]unix.PollFd, 0, setSize),
		fired: make([]FiredEvent, 0, setSize),
		in:    interest{},
	}, nil
}

func (pp *PollPoller) AddInterest(fd int, mask Mask) error {
	old, merged := pp.in.add(fd, mask)
	if old != merged {
		pp.dirty = true
	}
	return nil
}

func (pp *PollPoller) RemoveInterest(fd int, mask Mask) error {
	old, left := pp.in.remove(fd, mask)
	if old != left {
		pp.dirty = true
	}
	return nil
}

// rebuild 按 fd 升序重建 pollfd 数组，保证返回顺序稳定
func (pp *PollPoller) rebuild() {
	pp.fds = pp.fds[:0]
	for fd, mask := range pp.in {
		var events int16
		if mask&Readable != 0 {
			events |= unix.POLLIN
		}
		if mask&Writable != 0 {
			events |= unix.POLLOUT
		}
		pp.fds = append(pp.fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	sort.Slice(pp.fds, func(i, j int) bool {
		return pp.fds[i].Fd < pp.fds[j].Fd
	})
	pp.dirty = false
}

func (pp *PollPoller) Poll(timeoutMs int) ([]FiredEvent, error) {
	if pp.dirty {
		pp.rebuild()
	}
	if timeoutMs < 0 {
		timeoutMs = -1
	}

	pp.fired = pp.fired[:0]
	n, err := unix.Poll(pp.fds, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return pp.fired, nil
		}
		return nil, errors.Wrap(err, "poll")
	}
	if n <= 0 {
		return pp.fired, nil
	}

	for i := range pp.fds {
		revents := pp.fds[i].Revents
		if revents == 0 {
			continue
		}
		fd := int(pp.fds[i].Fd)
		var mask Mask
		if revents&unix.POLLIN != 0 {
			mask |= Readable
		}
		if revents&unix.POLLOUT != 0 {
			mask |= Writable
		}
		if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			mask |= pp.in[fd]
		}
		pp.fds[i].Revents = 0
		pp.fired = append(pp.fired, FiredEvent{Fd: fd, Mask: mask})
	}
	return pp.fired, nil
}

func (pp *PollPoller) Name() string {
	return "poll"
}

func (pp *PollPoller) Close() error {
	pp.fds = nil
	pp.in = interest{}
	return nil
}
