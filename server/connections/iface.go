package connections

import (
	"io"
	"net"
)

type IListener interface {
	Accept() (IConnection, error)
	Addr() net.Addr
	RawFd() int
	io.Closer
}

// IConnection 非阻塞连接，Read / Write 直接返回系统调用的错误（包括 EAGAIN）
type IConnection interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	RawFd() int
}
