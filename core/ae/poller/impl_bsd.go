//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package poller

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func New(setSize int) (Poller, error) {
	return NewKqueuePoller(setSize)
}

// KqueuePoller kqueue 后端，读写是两个独立的 filter
type KqueuePoller struct {
	kq     int
	events []unix.Kevent_t
	fired  []FiredEvent
	index  map[int]int // fd -> fired 下标，合并同一 fd 的读写事件
	in     interest
}

func NewKqueuePoller(setSize int) (*KqueuePoller, error) {
	if setSize <= 0 {
		return nil, errors.Errorf("invalid set size %d", setSize)
	}

	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue create")
	}
	unix.CloseOnExec(kq)

	return &KqueuePoller{
		kq:     kq,
		events: make([]unix.Kevent_t, setSize),
		fired:  make([]FiredEvent, 0, setSize),
		index:  map[int]int{},
		in:     interest{},
	}, nil
}

func (kp *KqueuePoller) AddInterest(fd int, mask Mask) error {
	old, merged := kp.in.add(fd, mask)
	added := merged &^ old
	if added == None {
		return nil
	}

	changes := kp.changes(fd, added, unix.EV_ADD|unix.EV_ENABLE)
	if _, err := unix.Kevent(kp.kq, changes, nil, nil); err != nil {
		kp.in.remove(fd, added)
		return errors.Wrapf(err, "kevent add fd %d", fd)
	}
	return nil
}

func (kp *KqueuePoller) RemoveInterest(fd int, mask Mask) error {
	old, left := kp.in.remove(fd, mask)
	removed := old &^ left
	if removed == None {
		return nil
	}

	changes := kp.changes(fd, removed, unix.EV_DELETE)
	_, err := unix.Kevent(kp.kq, changes, nil, nil)
	if err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return errors.Wrapf(err, "kevent delete fd %d", fd)
	}
	return nil
}

func (kp *KqueuePoller) changes(fd int, mask Mask, flags int) []unix.Kevent_t {
	changes := make([]unix.Kevent_t, 0, 2)
	if mask&Readable != 0 {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_READ, flags)
		changes = append(changes, ev)
	}
	if mask&Writable != 0 {
		var ev unix.Kevent_t
		unix.SetKevent(&ev, fd, unix.EVFILT_WRITE, flags)
		changes = append(changes, ev)
	}
	return changes
}

func (kp *KqueuePoller) Poll(timeoutMs int) ([]FiredEvent, error) {
	var ts *unix.Timespec
	if timeoutMs >= 0 {
		t := unix.NsecToTimespec(int64(timeoutMs) * 1e6)
		ts = &t
	}

	kp.fired = kp.fired[:0]
	n, err := unix.Kevent(kp.kq, nil, kp.events, ts)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return kp.fired, nil
		}
		return nil, errors.Wrap(err, "kevent wait")
	}

	for k := range kp.index {
		delete(kp.index, k)
	}
	for i := 0; i < n; i++ {
		e := kp.events[i]
		fd := int(e.Ident)
		var mask Mask
		switch e.Filter {
		case unix.EVFILT_READ:
			mask = Readable
		case unix.EVFILT_WRITE:
			mask = Writable
		}
		if e.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
			mask |= kp.in[fd]
		}
		if idx, ok := kp.index[fd]; ok {
			kp.fired[idx].Mask |= mask
			continue
		}
		kp.index[fd] = len(kp.fired)
		kp.fired = append(kp.fired, FiredEvent{Fd: fd, Mask: mask})
	}
	return kp.fired, nil
}

func (kp *KqueuePoller) Resize(setSize int) error {
	if setSize <= 0 {
		return errors.Errorf("invalid set size %d", setSize)
	}
	kp.events = make([]unix.Kevent_t, setSize)
	return nil
}

func (kp *KqueuePoller) Name() string {
	return "kqueue"
}

func (kp *KqueuePoller) Close() error {
	if kp.kq < 0 {
		return nil
	}
	err := unix.Close(kp.kq)
	kp.kq = -1
	return err
}
