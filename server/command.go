//go:build unix

package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type command struct {
	name string
	// arity 包含命令名本身，负数表示至少 -arity 个
	arity  int
	write  bool // 修改数据的命令会追加到 AOF
	handle HandleFunc
}

func (srv *Server) withCommand(name string, arity int, write bool, handle HandleFunc) {
	srv.commands[name] = &command{
		name:   name,
		arity:  arity,
		write:  write,
		handle: handle,
	}
}

func (srv *Server) withCommands() {
	srv.withCommand("ping", -1, false, srv.handlePing)
	srv.withCommand("echo", 2, false, srv.handleEcho)
	srv.withCommand("get", 2, false, srv.handleGet)
	srv.withCommand("set", 3, true, srv.handleSet)
	srv.withCommand("del", -2, true, srv.handleDel)
	srv.withCommand("exists", -2, false, srv.handleExists)
	srv.withCommand("dbsize", 1, false, srv.handleDbSize)
	srv.withCommand("info", 1, false, srv.handleInfo)
	srv.withCommand("quit", 1, false, srv.handleQuit)
}

func (srv *Server) withMiddleware(mw ...MiddlewareFunc) {
	srv.mws = append(srv.mws, mw...)
}

// execute 查表、经过中间件执行命令，任何错误都转成错误回复
func (srv *Server) execute(args []string, addr string) *Reply {
	name := strings.ToLower(args[0])
	cmd, ok := srv.commands[name]
	if !ok {
		e := errs.NewUnsupportedCommandErr().WithErr(errors.Errorf("unknown command '%s'", args[0]))
		logs.Warn(e.Error(), zap.String(consts.LogFieldAddr, addr))
		return errorReply(e.Error())
	}

	req := &Request{
		Name:  name,
		Args:  args[1:],
		Addr:  addr,
		arity: cmd.arity,
	}
	handle := cmd.handle
	for _, mw := range srv.mws {
		handle = mw(handle)
	}

	srv.statNumCommands++
	srv.metrics.incCommands(name)
	reply, err := handle(req)
	if err != nil {
		return errorReply(err.Error())
	}
	if cmd.write && srv.aof != nil {
		srv.aof.feed(args)
	}
	return reply
}

func (srv *Server) handlePing(req *Request) (*Reply, error) {
	switch len(req.Args) {
	case 0:
		return statusReply("PONG"), nil
	case 1:
		return bulkReply(req.Args[0]), nil
	default:
		return nil, errs.NewInvalidParamErr().WithErr(errors.New("wrong number of arguments for 'ping' command"))
	}
}

func (srv *Server) handleEcho(req *Request) (*Reply, error) {
	return bulkReply(req.Args[0]), nil
}

func (srv *Server) handleGet(req *Request) (*Reply, error) {
	v, ok := srv.db[req.Args[0]]
	if !ok {
		return nilReply(), nil
	}
	return bulkReply(v), nil
}

func (srv *Server) handleSet(req *Request) (*Reply, error) {
	srv.db[req.Args[0]] = req.Args[1]
	return okReply, nil
}

func (srv *Server) handleDel(req *Request) (*Reply, error) {
	var deleted int64
	for _, key := range req.Args {
		if _, ok := srv.db[key]; ok {
			delete(srv.db, key)
			deleted++
		}
	}
	return integerReply(deleted), nil
}

func (srv *Server) handleExists(req *Request) (*Reply, error) {
	var n int64
	for _, key := range req.Args {
		if _, ok := srv.db[key]; ok {
			n++
		}
	}
	return integerReply(n), nil
}

func (srv *Server) handleDbSize(req *Request) (*Reply, error) {
	return integerReply(int64(len(srv.db))), nil
}

func (srv *Server) handleInfo(req *Request) (*Reply, error) {
	var sb strings.Builder
	sb.WriteString("# Server\r\n")
	fmt.Fprintf(&sb, "version:%s\r\n", consts.AppVersion)
	fmt.Fprintf(&sb, "multiplexing_api:%s\r\n", srv.apiName)
	fmt.Fprintf(&sb, "hz:%d\r\n", srv.cfg.Hz)
	fmt.Fprintf(&sb, "uptime_in_seconds:%d\r\n", int64(time.Since(srv.startTime).Seconds()))
	sb.WriteString("# Clients\r\n")
	fmt.Fprintf(&sb, "connected_clients:%d\r\n", len(srv.clients))
	fmt.Fprintf(&sb, "maxclients:%d\r\n", srv.cfg.MaxClients)
	sb.WriteString("# Stats\r\n")
	fmt.Fprintf(&sb, "total_connections_received:%d\r\n", srv.statNumConnections)
	fmt.Fprintf(&sb, "total_commands_processed:%d\r\n", srv.statNumCommands)
	sb.WriteString("# Persistence\r\n")
	fmt.Fprintf(&sb, "aof_enabled:%d\r\n", boolToInt(srv.aof != nil))
	fmt.Fprintf(&sb, "aof_fsync:%s\r\n", srv.cfg.AppendFsync)
	sb.WriteString("# Keyspace\r\n")
	fmt.Fprintf(&sb, "keys:%d\r\n", len(srv.db))
	return bulkReply(sb.String()), nil
}

func (srv *Server) handleQuit(req *Request) (*Reply, error) {
	return &Reply{Kind: ReplyStatus, Str: "OK", Close: true}, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
