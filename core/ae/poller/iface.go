package poller

import "strings"

// Mask 文件事件位图
type Mask int

const (
	None     Mask = 0
	Readable Mask = 1
	Writable Mask = 2
	// Barrier 只和 Writable 一起使用：同一轮循环里 Readable 回调
	// 已经执行过时，不再执行 Writable 回调。
	Barrier Mask = 4

	// ReadWrite 是后端真正关心的部分，Barrier 对后端不可见
	ReadWrite = Readable | Writable
)

func (m Mask) String() string {
	if m == None {
		return "none"
	}
	var parts []string
	if m&Readable != 0 {
		parts = append(parts, "readable")
	}
	if m&Writable != 0 {
		parts = append(parts, "writable")
	}
	if m&Barrier != 0 {
		parts = append(parts, "barrier")
	}
	return strings.Join(parts, "|")
}

// FiredEvent 一次 Poll 返回的就绪事件
type FiredEvent struct {
	Fd   int
	Mask Mask
}

// Poller 多路复用后端。
// AddInterest / RemoveInterest 对已有的兴趣集合做并 / 差，重复调用不报错。
// Poll 的 timeoutMs < 0 表示一直阻塞，0 表示立即返回。
// 返回的切片在下一次 Poll 之前有效。
type Poller interface {
	AddInterest(fd int, mask Mask) error
	RemoveInterest(fd int, mask Mask) error
	Poll(timeoutMs int) ([]FiredEvent, error)
	Name() string
	Close() error
}

// Resizer 可选接口，事件循环容量变化时通知后端
type Resizer interface {
	Resize(setSize int) error
}

type Factory func(setSize int) (Poller, error)

// interest 记录每个fd已注册的兴趣，供各后端计算增量
type interest map[int]Mask

func (in interest) add(fd int, mask Mask) (old, merged Mask) {
	old = in[fd]
	merged = old | (mask & ReadWrite)
	in[fd] = merged
	return old, merged
}

func (in interest) remove(fd int, mask Mask) (old, left Mask) {
	old = in[fd]
	left = old &^ (mask & ReadWrite)
	if left == None {
		delete(in, fd)
	} else {
		in[fd] = left
	}
	return old, left
}
