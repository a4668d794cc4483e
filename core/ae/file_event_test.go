package ae

import (
	"math/rand"
	"testing"

	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopFileProc(*Loop, int, any, Mask) {}

func TestCreateFileEvent_Errors(t *testing.T) {
	fp := newFakePoller()
	fc := &fakeClock{}
	l, err := New(4, newTestOptions(t, fp, fc).SetMaxSetSize(8))
	require.Nil(t, err)
	defer l.Close()

	testList := []struct {
		Description string
		Fd          int
		Mask        Mask
		Proc        FileProc
		ExpectCode  int64
	}{
		{"negative fd", -1, Readable, noopFileProc, errs.InvalidDescriptorErrCode},
		{"empty mask", 1, None, noopFileProc, errs.InvalidParamErrCode},
		{"barrier only", 1, Barrier, noopFileProc, errs.InvalidParamErrCode},
		{"nil proc", 1, Readable, nil, errs.InvalidParamErrCode},
		{"above hard ceiling", 8, Readable, noopFileProc, errs.TableFullErrCode},
	}
	for _, item := range testList {
		err := l.CreateFileEvent(item.Fd, item.Mask, item.Proc, nil)
		assert.Equal(t, item.ExpectCode, errs.GetCode(err), item.Description)
	}

	assert.Equal(t, -1, l.MaxFd())
	assert.Equal(t, 4, l.SetSize())
	assert.Empty(t, fp.interest)
}

func TestCreateFileEvent_Grow(t *testing.T) {
	fp := newFakePoller()
	l, err := New(4, newTestOptions(t, fp, &fakeClock{}).SetMaxSetSize(16))
	require.Nil(t, err)
	defer l.Close()

	require.Nil(t, l.CreateFileEvent(2, Readable, noopFileProc, nil))
	assert.Equal(t, 4, l.SetSize())

	// 4*2 不够放下 fd 10，直接扩到 fd+1
	require.Nil(t, l.CreateFileEvent(10, Writable, noopFileProc, nil))
	assert.Equal(t, 11, l.SetSize())
	assert.Equal(t, Readable, l.FileEvents(2))
	assert.Equal(t, Writable, l.FileEvents(10))

	// 11*2 超过上限，截断到上限
	require.Nil(t, l.CreateFileEvent(15, Readable, noopFileProc, nil))
	assert.Equal(t, 16, l.SetSize())
	assert.Equal(t, 15, l.MaxFd())
}

func TestFileEvents_MaskAlgebra(t *testing.T) {
	l, fp, _ := newTestLoop(t, 8)

	// model 是按规则手工维护的期望状态
	model := map[int]Mask{}
	masks := []Mask{Readable, Writable, Readable | Writable, Writable | Barrier, Readable | Writable | Barrier, Barrier}
	rnd := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		fd := rnd.Intn(6)
		mask := masks[rnd.Intn(len(masks))]
		if rnd.Intn(2) == 0 {
			err := l.CreateFileEvent(fd, mask, noopFileProc, nil)
			if mask&poller.ReadWrite == None {
				assert.Equal(t, int64(errs.InvalidParamErrCode), errs.GetCode(err))
				continue
			}
			require.Nil(t, err)
			merged := model[fd] | mask
			if merged&Writable == 0 {
				merged &^= Barrier
			}
			model[fd] = merged
		} else {
			l.DeleteFileEvent(fd, mask)
			if mask&Writable != 0 {
				mask |= Barrier
			}
			model[fd] &^= mask
		}

		for fd := 0; fd < 8; fd++ {
			assert.Equal(t, model[fd], l.FileEvents(fd), "fd %d", fd)
			assert.Equal(t, model[fd]&poller.ReadWrite, fp.interest[fd], "fd %d", fd)
		}

		expectMax := -1
		for fd, mask := range model {
			if mask != None && fd > expectMax {
				expectMax = fd
			}
		}
		assert.Equal(t, expectMax, l.MaxFd())
	}
}

func TestDeleteFileEvent_NoOp(t *testing.T) {
	l, fp, _ := newTestLoop(t, 8)

	// 越界和未注册都不报错
	l.DeleteFileEvent(-1, Readable)
	l.DeleteFileEvent(100, Readable)
	l.DeleteFileEvent(3, Readable)

	require.Nil(t, l.CreateFileEvent(3, Readable, noopFileProc, nil))
	l.DeleteFileEvent(3, Writable)
	l.DeleteFileEvent(3, Barrier)
	assert.Equal(t, Readable, l.FileEvents(3))
	assert.Equal(t, Readable, fp.interest[3])

	l.DeleteFileEvent(3, Readable)
	l.DeleteFileEvent(3, Readable)
	assert.Equal(t, None, l.FileEvents(3))
	assert.Equal(t, -1, l.MaxFd())
	assert.Equal(t, None, l.FileEvents(-5))
	assert.Equal(t, None, l.FileEvents(1000))
}

func TestDeleteFileEvent_ClearsCallbacks(t *testing.T) {
	l, _, _ := newTestLoop(t, 8)

	require.Nil(t, l.CreateFileEvent(1, Readable|Writable|Barrier, noopFileProc, nil))
	l.DeleteFileEvent(1, Writable)
	assert.Equal(t, Readable, l.FileEvents(1))
	assert.Nil(t, l.events[1].wProc)
	assert.NotNil(t, l.events[1].rProc)

	l.DeleteFileEvent(1, Readable)
	assert.Equal(t, fileEvent{}, l.events[1])
}

func TestResizeSetSize(t *testing.T) {
	l, _, _ := newTestLoop(t, 16)

	require.Nil(t, l.CreateFileEvent(5, Readable, noopFileProc, nil))

	for _, size := range []int{5, 3} {
		err := l.ResizeSetSize(size)
		assert.Equal(t, int64(errs.InUseDescriptorAboveNewCapacityErrCode), errs.GetCode(err))
		assert.Equal(t, 16, l.SetSize())
		assert.Equal(t, Readable, l.FileEvents(5))
	}

	assert.Equal(t, int64(errs.InvalidCapacityErrCode), errs.GetCode(l.ResizeSetSize(0)))
	assert.Equal(t, int64(errs.InvalidCapacityErrCode), errs.GetCode(l.ResizeSetSize(DefaultMaxSetSize+1)))

	require.Nil(t, l.ResizeSetSize(6))
	assert.Equal(t, 6, l.SetSize())
	assert.Equal(t, Readable, l.FileEvents(5))

	require.Nil(t, l.ResizeSetSize(32))
	assert.Equal(t, 32, l.SetSize())
	assert.Equal(t, Readable, l.FileEvents(5))

	l.DeleteFileEvent(5, Readable)
	require.Nil(t, l.ResizeSetSize(1))
	assert.Equal(t, 1, l.SetSize())
}

func TestClientData_Ownership(t *testing.T) {
	l, _, _ := newTestLoop(t, 8)

	shared := &countCloser{}
	data := Own(shared)
	require.Nil(t, l.CreateFileEvent(1, Readable|Writable, noopFileProc, data))

	// 读写两侧共享一个 Own 上下文，两侧都移除后才释放
	l.DeleteFileEvent(1, Readable)
	assert.Equal(t, 0, shared.closed)
	l.DeleteFileEvent(1, Writable)
	assert.Equal(t, 1, shared.closed)

	// 重新注册替换旧上下文时释放旧的
	first, second := &countCloser{}, &countCloser{}
	require.Nil(t, l.CreateFileEvent(2, Readable, noopFileProc, Own(first)))
	require.Nil(t, l.CreateFileEvent(2, Readable, noopFileProc, Own(second)))
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)

	// Borrow 的上下文从不释放
	borrowedCloser := &countCloser{}
	require.Nil(t, l.CreateFileEvent(3, Writable, noopFileProc, Borrow(borrowedCloser)))
	l.DeleteFileEvent(3, Writable)
	assert.Equal(t, 0, borrowedCloser.closed)

	// 关闭事件循环时释放剩下的
	require.Nil(t, l.Close())
	assert.Equal(t, 1, second.closed)
	assert.Equal(t, 1, first.closed)
}

func TestClientData_ValuePassedToCallback(t *testing.T) {
	l, fp, _ := newTestLoop(t, 8)

	var got []any
	proc := func(loop *Loop, fd int, data any, mask Mask) {
		got = append(got, data)
	}
	require.Nil(t, l.CreateFileEvent(1, Readable, proc, Borrow("read-ctx")))
	require.Nil(t, l.CreateFileEvent(1, Writable, proc, Borrow("write-ctx")))
	require.Nil(t, l.CreateFileEvent(2, Readable, proc, nil))

	fp.fire(poller.FiredEvent{Fd: 1, Mask: Readable | Writable}, poller.FiredEvent{Fd: 2, Mask: Readable})
	n, err := l.ProcessEvents(FileEvents | DontWait)
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []any{"write-ctx", "read-ctx", nil}, got)
}
