//go:build linux

package poller

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// New 按平台选择默认后端，linux 下为 epoll
func New(setSize int) (Poller, error) {
	return NewEpollPoller(setSize)
}

// EpollPoller 水平触发的 epoll 后端
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
	fired  []FiredEvent
	in     interest
}

func NewEpollPoller(setSize int) (*EpollPoller, error) {
	if setSize <= 0 {
		return nil, errors.Errorf("invalid set size %d", setSize)
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll create")
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, setSize),
		fired:  make([]FiredEvent, 0, setSize),
		in:     interest{},
	}, nil
}

func (ep *EpollPoller) AddInterest(fd int, mask Mask) error {
	old, merged := ep.in.add(fd, mask)
	if old == merged {
		return nil
	}

	// 已经在 epoll 里的 fd 只能 MOD
	op := unix.EPOLL_CTL_ADD
	if old != None {
		op = unix.EPOLL_CTL_MOD
	}
	ev := &unix.EpollEvent{Events: toEpoll(merged), Fd: int32(fd)}
	if err := unix.EpollCtl(ep.epfd, op, fd, ev); err != nil {
		ep.in.remove(fd, merged&^old)
		return errors.Wrapf(err, "epoll ctl fd %d", fd)
	}
	return nil
}

func (ep *EpollPoller) RemoveInterest(fd int, mask Mask) error {
	old, left := ep.in.remove(fd, mask)
	if old == left {
		return nil
	}

	var err error
	if left == None {
		// 内核 2.6.9 之前 DEL 也要求非空 event
		err = unix.EpollCtl(ep.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
	} else {
		err = unix.EpollCtl(ep.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: toEpoll(left), Fd: int32(fd)})
	}
	// fd 已经被调用方关掉时内核会自动移除，这里不算错误
	if err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return errors.Wrapf(err, "epoll ctl fd %d", fd)
	}
	return nil
}

func (ep *EpollPoller) Poll(timeoutMs int) ([]FiredEvent, error) {
	if timeoutMs < 0 {
		timeoutMs = -1
	}

	ep.fired = ep.fired[:0]
	n, err := unix.EpollWait(ep.epfd, ep.events, timeoutMs)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return ep.fired, nil
		}
		return nil, errors.Wrap(err, "epoll wait")
	}

	for i := 0; i < n; i++ {
		e := ep.events[i]
		var mask Mask
		if e.Events&unix.EPOLLIN != 0 {
			mask |= Readable
		}
		if e.Events&unix.EPOLLOUT != 0 {
			mask |= Writable
		}
		if e.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			mask |= ReadWrite
		}
		ep.fired = append(ep.fired, FiredEvent{Fd: int(e.Fd), Mask: mask})
	}
	return ep.fired, nil
}

func (ep *EpollPoller) Resize(setSize int) error {
	if setSize <= 0 {
		return errors.Errorf("invalid set size %d", setSize)
	}
	ep.events = make([]unix.EpollEvent, setSize)
	return nil
}

func (ep *EpollPoller) Name() string {
	return "epoll"
}

func (ep *EpollPoller) Close() error {
	if ep.epfd < 0 {
		return nil
	}
	err := unix.Close(ep.epfd)
	ep.epfd = -1
	return err
}

func toEpoll(mask Mask) uint32 {
	var events uint32
	if mask&Readable != 0 {
		events |= unix.EPOLLIN
	}
	if mask&Writable != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}
