//go:build unix

package server

import (
	"sync"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/eapache/queue"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type Task func(loop *ae.Loop)

// Inbox 其他 goroutine 把任务交给事件循环执行的唯一入口。
// Post 可以在任意 goroutine 调用；任务在循环 goroutine 上按提交顺序执行。
type Inbox struct {
	lock   sync.Mutex
	tasks  *queue.Queue
	closed bool
	rfd    int // 注册到事件循环的读端
	wfd    int
}

func NewInbox() (*Inbox, error) {
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return nil, errs.NewCreatePipeErr().WithErr(err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return nil, errs.NewCreatePipeErr().WithErr(err)
		}
	}
	return &Inbox{
		tasks: queue.New(),
		rfd:   p[0],
		wfd:   p[1],
	}, nil
}

func (ib *Inbox) register(loop *ae.Loop) error {
	return loop.CreateFileEvent(ib.rfd, ae.Readable, ib.drain, ae.Borrow(ib))
}

// Post 提交任务并唤醒事件循环，Inbox 关闭后返回 false
func (ib *Inbox) Post(task Task) bool {
	ok := false
	utils.WrapLock(&ib.lock, func() {
		if ib.closed {
			return
		}
		ib.tasks.Add(task)
		ok = true

		// 管道写满说明循环已经有未处理的唤醒，忽略 EAGAIN
		if _, err := unix.Write(ib.wfd, []byte{1}); err != nil && !errors.Is(err, unix.EAGAIN) {
			logs.Warn("wake up event loop failed", zap.Int(consts.LogFieldFd, ib.wfd), zap.Error(err))
		}
	})
	return ok
}

func (ib *Inbox) drain(loop *ae.Loop, fd int, data any, mask ae.Mask) {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(fd, buf)
		if n <= 0 || err != nil {
			break
		}
	}

	var tasks []Task
	utils.WrapLock(&ib.lock, func() {
		for ib.tasks.Length() > 0 {
			tasks = append(tasks, ib.tasks.Remove().(Task))
		}
	})
	for _, task := range tasks {
		task(loop)
	}
}

func (ib *Inbox) Len() int {
	n := 0
	utils.WrapLock(&ib.lock, func() {
		n = ib.tasks.Length()
	})
	return n
}

// Close 之后的 Post 都会被丢弃，未执行的任务直接丢掉
func (ib *Inbox) Close() error {
	alreadyClosed := false
	utils.WrapLock(&ib.lock, func() {
		alreadyClosed = ib.closed
		ib.closed = true
	})
	if alreadyClosed {
		return nil
	}
	err := unix.Close(ib.rfd)
	if e := unix.Close(ib.wfd); e != nil && err == nil {
		err = e
	}
	return err
}
