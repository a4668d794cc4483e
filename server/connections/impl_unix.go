//go:build unix

package connections

import (
	"net"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// 监听队列长度
const backlog = 511

type Connection struct {
	fd         int
	closed     atomic.Bool
	localAddr  *unix.SockaddrInet4
	remoteAddr *unix.SockaddrInet4
}

func (c *Connection) Read(buf []byte) (int, error) {
	return unix.Read(c.fd, buf)
}

func (c *Connection) Write(buf []byte) (int, error) {
	return unix.Write(c.fd, buf)
}

// Close 只关闭一次，fd 可能已经被复用
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(c.fd)
}

func (c *Connection) RemoteAddr() net.Addr {
	return toTCPAddr(c.remoteAddr)
}

func (c *Connection) LocalAddr() net.Addr {
	return toTCPAddr(c.localAddr)
}

func (c *Connection) RawFd() int {
	return c.fd
}

type Listener struct {
	conn *Connection
}

// Accept 非阻塞，没有待处理连接时返回 unix.EAGAIN
func (l *Listener) Accept() (IConnection, error) {
	socket, sa, err := unix.Accept(l.conn.fd)
	if err != nil {
		return nil, err
	}

	if err = unix.SetNonblock(socket, true); err != nil {
		_ = unix.Close(socket)
		return nil, err
	}
	unix.CloseOnExec(socket)
	// 小包回复不等 Nagle
	_ = unix.SetsockoptInt(socket, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	remote, _ := sa.(*unix.SockaddrInet4)
	return &Connection{
		fd:         socket,
		localAddr:  l.conn.localAddr,
		remoteAddr: remote,
	}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.conn.LocalAddr()
}

func (l *Listener) RawFd() int {
	return l.conn.fd
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

// Listen 在 addr:port 上监听，port 为 0 时由内核分配端口
func Listen(addr [4]byte, port int) (IListener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)

	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	laddr := &unix.SockaddrInet4{
		Port: port,
		Addr: addr,
	}
	if err = unix.Bind(fd, laddr); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err = unix.Listen(fd, backlog); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}

	// 取回内核实际分配的端口
	if sa, err := unix.Getsockname(fd); err == nil {
		if bound, ok := sa.(*unix.SockaddrInet4); ok {
			laddr = bound
		}
	}

	return &Listener{
		conn: &Connection{
			fd:        fd,
			localAddr: laddr,
		},
	}, nil
}

func toTCPAddr(sa *unix.SockaddrInet4) net.Addr {
	if sa == nil {
		return &net.TCPAddr{}
	}
	return &net.TCPAddr{
		IP:   net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]),
		Port: sa.Port,
	}
}
