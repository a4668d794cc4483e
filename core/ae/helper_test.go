package ae

import (
	"testing"
	"time"

	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakePoller 按脚本返回就绪事件，记录每次 Poll 的超时
type fakePoller struct {
	interest map[int]Mask
	batches  [][]poller.FiredEvent
	timeouts []int
	err      error
	closed   bool
	onPoll   func(timeoutMs int)
}

func newFakePoller() *fakePoller {
	return &fakePoller{interest: map[int]Mask{}}
}

func (fp *fakePoller) AddInterest(fd int, mask Mask) error {
	fp.interest[fd] |= mask & poller.ReadWrite
	return nil
}

func (fp *fakePoller) RemoveInterest(fd int, mask Mask) error {
	left := fp.interest[fd] &^ (mask & poller.ReadWrite)
	if left == None {
		delete(fp.interest, fd)
		return nil
	}
	fp.interest[fd] = left
	return nil
}

// fire 安排下一次 Poll 返回的事件
func (fp *fakePoller) fire(events ...poller.FiredEvent) {
	fp.batches = append(fp.batches, events)
}

func (fp *fakePoller) Poll(timeoutMs int) ([]poller.FiredEvent, error) {
	fp.timeouts = append(fp.timeouts, timeoutMs)
	if fp.onPoll != nil {
		fp.onPoll(timeoutMs)
	}
	if fp.err != nil {
		return nil, fp.err
	}
	if len(fp.batches) == 0 {
		return nil, nil
	}
	batch := fp.batches[0]
	fp.batches = fp.batches[1:]
	return batch, nil
}

func (fp *fakePoller) Name() string {
	return "fake"
}

func (fp *fakePoller) Close() error {
	fp.closed = true
	return nil
}

type fakeClock struct {
	now time.Time
}

func (fc *fakeClock) Now() time.Time {
	return fc.now
}

func (fc *fakeClock) advance(ms int64) {
	fc.now = fc.now.Add(time.Duration(ms) * time.Millisecond)
}

func newTestOptions(t *testing.T, fp *fakePoller, fc *fakeClock) *Options {
	return NewOptions().
		SetPollerFactory(func(int) (poller.Poller, error) { return fp, nil }).
		SetClock(fc).
		SetLogger(zaptest.NewLogger(t))
}

func newTestLoop(t *testing.T, setSize int) (*Loop, *fakePoller, *fakeClock) {
	fp := newFakePoller()
	fc := &fakeClock{now: time.Unix(1700000000, 0)}
	l, err := New(setSize, newTestOptions(t, fp, fc))
	require.Nil(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l, fp, fc
}

// recorder 按调用顺序记录回调
type recorder struct {
	calls []string
}

func (r *recorder) fileProc(name string) FileProc {
	return func(loop *Loop, fd int, data any, mask Mask) {
		r.calls = append(r.calls, name)
	}
}

func (r *recorder) timeProc(name string, ret int64) TimeProc {
	return func(loop *Loop, id int64, data any) int64 {
		r.calls = append(r.calls, name)
		return ret
	}
}

// countCloser 记录 Close 次数，用于检查 Own 上下文的释放
type countCloser struct {
	closed int
}

func (cc *countCloser) Close() error {
	cc.closed++
	return nil
}
