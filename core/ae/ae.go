// Package ae 单线程的事件循环：在一次阻塞等待里同时处理
// 文件描述符就绪事件和定时器事件。
//
// Loop 的所有方法都只能在运行事件循环的那个 goroutine 上调用，
// 包括回调内部。其他 goroutine 需要通过自己的队列把请求交给循环。
package ae

import (
	"io"

	"github.com/Trinoooo/eggie_reactor/core/ae/poller"
)

type Mask = poller.Mask

const (
	None     = poller.None
	Readable = poller.Readable
	Writable = poller.Writable
	Barrier  = poller.Barrier
)

// Flag ProcessEvents 的行为控制位
type Flag int

const (
	FileEvents Flag = 1 << iota
	TimeEvents
	DontWait
	CallBeforeSleep
	CallAfterSleep

	AllEvents      = FileEvents | TimeEvents
	CallSleepHooks = CallBeforeSleep | CallAfterSleep
)

// NoMore 定时器回调返回该值表示删除定时器
const NoMore = -1

type FileProc func(loop *Loop, fd int, data any, mask Mask)

// TimeProc 返回 NoMore 删除定时器，否则返回下次触发前需要再等待的毫秒数
type TimeProc func(loop *Loop, id int64, data any) int64

type EventFinalizerProc func(loop *Loop, data any)

type SleepProc func(loop *Loop)

// ClientData 回调上下文。
// Borrow 得到的引用不归事件循环管理，调用方保证它在注册期间有效；
// Own 得到的引用归注册所有，最后一个引用它的注册被移除时 Close 一次。
type ClientData interface {
	Value() any
	retain()
	release() error
}

type borrowed struct {
	v any
}

func Borrow(v any) ClientData {
	return borrowed{v: v}
}

func (b borrowed) Value() any {
	return b.v
}

func (b borrowed) retain() {}

func (b borrowed) release() error {
	return nil
}

type owned struct {
	c    io.Closer
	refs int
}

func Own(c io.Closer) ClientData {
	return &owned{c: c}
}

func (o *owned) Value() any {
	return o.c
}

func (o *owned) retain() {
	o.refs++
}

func (o *owned) release() error {
	o.refs--
	if o.refs > 0 || o.c == nil {
		return nil
	}
	c := o.c
	o.c = nil
	return c.Close()
}

func valueOf(data ClientData) any {
	if data == nil {
		return nil
	}
	return data.Value()
}
