//go:build unix

package server

import (
	"bytes"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/connections"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	readBufferSize = 16 * consts.KB
	// maxQueryBufferSize 一行命令最大长度，要放得下 1MB 的 value
	maxQueryBufferSize = 2 * consts.MB
	maxAcceptsPerCall  = 1000
)

type client struct {
	conn connections.IConnection
	fd   int
	addr string
	// handle 读写两侧共享，两侧都注销后由事件循环关闭连接
	handle ae.ClientData

	querybuf []byte
	reply    []byte
	sentlen  int

	pending         bool // 在 srv.pending 里等 beforeSleep 写回复
	writable        bool // 已经注册了写事件
	closeAfterReply bool
	closed          bool
	lastInteraction time.Time
}

func (c *client) Close() error {
	return c.conn.Close()
}

func (c *client) hasPendingReplies() bool {
	return c.sentlen < len(c.reply)
}

func (srv *Server) acceptHandler(loop *ae.Loop, fd int, data any, mask ae.Mask) {
	ln := data.(connections.IListener)
	for i := 0; i < maxAcceptsPerCall; i++ {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return
			}
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.ECONNABORTED) {
				continue
			}
			e := errs.NewAcceptErr().WithErr(err)
			logs.Error(e.Error(), zap.Int(consts.LogFieldFd, fd))
			return
		}
		srv.metrics.ConnectionAcceptCounter.Inc()
		srv.createClient(conn)
	}
}

func (srv *Server) createClient(conn connections.IConnection) {
	addr := conn.RemoteAddr().String()
	if len(srv.clients) >= srv.cfg.MaxClients {
		e := errs.NewMaxClientsReachedErr()
		logs.Warn(e.Error(), zap.String(consts.LogFieldAddr, addr))
		_, _ = conn.Write(errorReply(e.Error()).appendTo(nil))
		_ = conn.Close()
		srv.metrics.ConnectionRejectCounter.Inc()
		return
	}

	c := &client{
		conn:            conn,
		fd:              conn.RawFd(),
		addr:            addr,
		lastInteraction: time.Now(),
	}
	c.handle = ae.Own(c)
	if err := srv.loop.CreateFileEvent(c.fd, ae.Readable, srv.readQueryFromClient, c.handle); err != nil {
		logs.Error("register client failed", zap.String(consts.LogFieldAddr, addr), zap.Error(err))
		_ = conn.Close()
		return
	}

	srv.clients[c.fd] = c
	srv.statNumConnections++
	srv.metrics.ConnectedClients.Set(float64(len(srv.clients)))
	logs.Debug("client connected", zap.String(consts.LogFieldAddr, addr), zap.Int(consts.LogFieldFd, c.fd))
}

func (srv *Server) readQueryFromClient(loop *ae.Loop, fd int, data any, mask ae.Mask) {
	c := data.(*client)
	buf := srv.readbuf
	n, err := c.conn.Read(buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		e := errs.NewReadSocketErr().WithErr(err)
		logs.Warn(e.Error(), zap.String(consts.LogFieldAddr, c.addr))
		srv.freeClient(c)
		return
	}
	if n == 0 {
		logs.Debug("client closed connection", zap.String(consts.LogFieldAddr, c.addr))
		srv.freeClient(c)
		return
	}

	c.querybuf = append(c.querybuf, buf[:n]...)
	c.lastInteraction = time.Now()
	srv.processInputBuffer(c)
}

// processInputBuffer 执行 querybuf 里所有完整的行，剩下半行留到下次
func (srv *Server) processInputBuffer(c *client) {
	pos := 0
	for !c.closeAfterReply && !c.closed {
		idx := bytes.IndexByte(c.querybuf[pos:], '\n')
		if idx < 0 {
			if len(c.querybuf)-pos > maxQueryBufferSize {
				logs.Warn("query buffer too big", zap.String(consts.LogFieldAddr, c.addr))
				srv.addReply(c, &Reply{Kind: ReplyError, Str: "Protocol error: too big inline request", Close: true})
			}
			break
		}

		args := parseInline(c.querybuf[pos : pos+idx])
		pos += idx + 1
		if len(args) == 0 {
			continue
		}
		srv.addReply(c, srv.execute(args, c.addr))
	}

	if c.closeAfterReply {
		c.querybuf = c.querybuf[:0]
		return
	}
	rest := copy(c.querybuf, c.querybuf[pos:])
	c.querybuf = c.querybuf[:rest]
}

// addReply 追加回复，客户端第一次有待写数据时放进 pending，beforeSleep 统一写
func (srv *Server) addReply(c *client, r *Reply) {
	if c.closed || c.closeAfterReply {
		return
	}
	c.reply = r.appendTo(c.reply)
	if r.Close {
		c.closeAfterReply = true
	}
	if !c.pending && !c.writable {
		c.pending = true
		srv.pending = append(srv.pending, c)
	}
}

// writeToClient 尽量写完回复，连接出错时释放客户端并返回 false
func (srv *Server) writeToClient(c *client) bool {
	for c.hasPendingReplies() {
		n, err := c.conn.Write(c.reply[c.sentlen:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				break
			}
			e := errs.NewWriteSocketErr().WithErr(err)
			logs.Warn(e.Error(), zap.String(consts.LogFieldAddr, c.addr))
			srv.freeClient(c)
			return false
		}
		c.sentlen += n
		c.lastInteraction = time.Now()
	}

	if !c.hasPendingReplies() {
		c.reply = c.reply[:0]
		c.sentlen = 0
	}
	return true
}

func (srv *Server) sendReplyToClient(loop *ae.Loop, fd int, data any, mask ae.Mask) {
	c := data.(*client)
	if !srv.writeToClient(c) {
		return
	}
	if c.hasPendingReplies() {
		return
	}

	loop.DeleteFileEvent(fd, ae.Writable)
	c.writable = false
	if c.closeAfterReply {
		srv.freeClient(c)
	}
}

// handleClientsWithPendingWrites 在进入 Poll 前直接写回复，写不完的再注册写事件
func (srv *Server) handleClientsWithPendingWrites() {
	pending := srv.pending
	srv.pending = nil
	for _, c := range pending {
		c.pending = false
		if c.closed {
			continue
		}
		if !srv.writeToClient(c) {
			continue
		}

		if !c.hasPendingReplies() {
			if c.closeAfterReply {
				srv.freeClient(c)
			}
			continue
		}

		mask := ae.Writable
		// always 模式下同一轮里先处理读（追加 AOF），fsync 之后再回复
		if srv.aof != nil && srv.cfg.AppendFsync == consts.AppendFsyncAlways {
			mask |= ae.Barrier
		}
		if err := srv.loop.CreateFileEvent(c.fd, mask, srv.sendReplyToClient, c.handle); err != nil {
			logs.Error("register writable failed", zap.String(consts.LogFieldAddr, c.addr), zap.Error(err))
			srv.freeClient(c)
			continue
		}
		c.writable = true
	}
}

// freeClient 注销读写事件，最后一个引用释放时事件循环会关闭连接
func (srv *Server) freeClient(c *client) {
	if c.closed {
		return
	}
	c.closed = true
	delete(srv.clients, c.fd)
	srv.loop.DeleteFileEvent(c.fd, ae.Readable|ae.Writable)
	srv.metrics.ConnectedClients.Set(float64(len(srv.clients)))
	logs.Debug("client freed", zap.String(consts.LogFieldAddr, c.addr), zap.Int(consts.LogFieldFd, c.fd))
}
