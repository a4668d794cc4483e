//go:build unix

package server

import (
	"net"
	"strings"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/connections"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Server 单线程内存 kv 服务，所有连接、定时任务都由一个 ae.Loop 驱动。
// 除了 Stop 之外的方法都只能在运行 Serve 的 goroutine 上调用。
type Server struct {
	cfg      *Config
	loop     *ae.Loop
	listener connections.IListener
	inbox    *Inbox
	aof      *aof
	pusher   *pusher

	commands map[string]*command
	mws      []MiddlewareFunc
	db       map[string]string
	clients  map[int]*client
	pending  []*client
	// readbuf 所有客户端共用的读缓冲，读到的数据会拷进各自的 querybuf
	readbuf []byte

	registry *prometheus.Registry
	metrics  *MetricsHelper
	apiName  string
	cronID   int64

	startTime          time.Time
	statNumCommands    int64
	statNumConnections int64
}

// newServer 只初始化内存状态和命令表，不涉及任何 fd
func newServer(cfg *Config) *Server {
	srv := &Server{
		cfg:       cfg,
		commands:  map[string]*command{},
		mws:       make([]MiddlewareFunc, 0),
		db:        map[string]string{},
		clients:   map[int]*client{},
		readbuf:   make([]byte, readBufferSize),
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	srv.metrics = NewMetricsHelper(srv.registry)
	srv.withCommands()
	srv.withMiddleware(
		ParamsValidateMw,
		LogMw,
	)
	return srv
}

func NewServer(cfg *Config) (*Server, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	srv := newServer(cfg)

	loop, err := ae.New(cfg.SetSize, ae.NewOptions().
		SetLogger(logs.Logger()).
		SetMetrics(ae.NewMetricsHelper(srv.registry)))
	if err != nil {
		return nil, err
	}
	srv.loop = loop
	srv.apiName = loop.ApiName()

	if err = srv.withAOF(); err != nil {
		_ = srv.Close()
		return nil, err
	}
	if err = srv.withListener(); err != nil {
		_ = srv.Close()
		return nil, err
	}
	if err = srv.withInbox(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.cronID, err = loop.CreateTimeEvent(1, srv.serverCron, nil, srv.cronFinalizer)
	if err != nil {
		_ = srv.Close()
		return nil, err
	}
	loop.SetBeforeSleepProc(srv.beforeSleep)
	return srv, nil
}

func (srv *Server) withAOF() error {
	if !srv.cfg.AppendOnly {
		return nil
	}
	a, err := openAOF(srv.cfg.AppendFilename, srv.cfg.AppendFsync)
	if err != nil {
		return err
	}
	srv.aof = a

	loaded, err := a.load(srv.replay)
	if err != nil {
		return err
	}
	logs.Info("aof loaded",
		zap.String(consts.LogFieldParams, srv.cfg.AppendFilename),
		zap.Int(consts.LogFieldValue, loaded),
	)
	return nil
}

// replay 执行 AOF 里的命令，不经过中间件也不再追加
func (srv *Server) replay(args []string) {
	cmd, ok := srv.commands[strings.ToLower(args[0])]
	if !ok || !cmd.write {
		logs.Warn("skip unknown command in aof", zap.String(consts.LogFieldCmd, args[0]))
		return
	}
	if _, err := cmd.handle(&Request{Name: cmd.name, Args: args[1:], Addr: "aof", arity: cmd.arity}); err != nil {
		logs.Warn("replay command failed", zap.String(consts.LogFieldCmd, args[0]), zap.Error(err))
	}
}

func (srv *Server) withListener() error {
	ln, err := connections.Listen(srv.cfg.hostAddr(), srv.cfg.Port)
	if err != nil {
		e := errs.NewListenErr().WithErr(err)
		logs.Error(e.Error(), zap.String(consts.LogFieldAddr, srv.cfg.Host), zap.Int(consts.LogFieldValue, srv.cfg.Port))
		return e
	}
	// 监听 fd 交给事件循环管理，Close 时一起关闭
	if err = srv.loop.CreateFileEvent(ln.RawFd(), ae.Readable, srv.acceptHandler, ae.Own(ln)); err != nil {
		_ = ln.Close()
		return err
	}
	srv.listener = ln
	return nil
}

func (srv *Server) withInbox() error {
	inbox, err := NewInbox()
	if err != nil {
		return err
	}
	if err = inbox.register(srv.loop); err != nil {
		_ = inbox.Close()
		return err
	}
	srv.inbox = inbox
	return nil
}

// Serve 阻塞运行事件循环，直到 Stop 被调用或者 Poll 出错
func (srv *Server) Serve() error {
	if srv.cfg.MetricsPushAddr != "" {
		srv.pusher = startPusher(srv.cfg.MetricsPushAddr, srv.cfg.MetricsPushInterval, srv.registry)
	}
	logs.Info("ready to accept connections",
		zap.String(consts.LogFieldAddr, srv.Addr().String()),
		zap.String(consts.LogFieldApi, srv.apiName),
	)
	return srv.loop.Main()
}

// Stop 可以在任意 goroutine 调用，事件循环在当前这一轮结束后退出
func (srv *Server) Stop() bool {
	return srv.inbox.Post(func(loop *ae.Loop) {
		logs.Info("shutdown requested")
		loop.Stop()
	})
}

// Post 把任务交给事件循环执行
func (srv *Server) Post(task Task) bool {
	return srv.inbox.Post(task)
}

func (srv *Server) Addr() net.Addr {
	if srv.listener == nil {
		return &net.TCPAddr{}
	}
	return srv.listener.Addr()
}

// Close 关闭事件循环（连带监听 fd 和所有客户端连接），落盘 AOF。
// 必须在 Serve 返回之后调用。
func (srv *Server) Close() error {
	if srv.pusher != nil {
		srv.pusher.Close()
		srv.pusher = nil
	}

	var err error
	if srv.loop != nil {
		err = srv.loop.Close()
	}
	srv.clients = map[int]*client{}
	srv.pending = nil

	if srv.inbox != nil {
		if e := srv.inbox.Close(); e != nil && err == nil {
			err = e
		}
	}
	if srv.aof != nil {
		if e := srv.aof.Close(); e != nil && err == nil {
			err = e
		}
		srv.aof = nil
	}
	logs.Info("server closed", zap.Error(err))
	return err
}

func (srv *Server) beforeSleep(loop *ae.Loop) {
	if srv.aof != nil {
		if err := srv.aof.flush(time.Now()); err != nil {
			logs.Error("flush aof failed", zap.Error(err))
		}
		srv.metrics.AOFPendingBytes.Set(float64(srv.aof.pending()))
	}
	srv.handleClientsWithPendingWrites()
}

// serverCron 每 1000/hz 毫秒执行一次：断开空闲客户端，everysec 模式下 fsync，更新指标
func (srv *Server) serverCron(loop *ae.Loop, id int64, data any) int64 {
	now := time.Now()
	if srv.cfg.Timeout > 0 {
		idle := time.Duration(srv.cfg.Timeout) * time.Second
		for _, c := range srv.clients {
			if now.Sub(c.lastInteraction) > idle {
				logs.Info("closing idle client", zap.String(consts.LogFieldAddr, c.addr))
				srv.freeClient(c)
			}
		}
	}

	if srv.aof != nil {
		if err := srv.aof.flush(now); err != nil {
			logs.Error("flush aof failed", zap.Error(err))
		}
	}

	srv.metrics.ConnectedClients.Set(float64(len(srv.clients)))
	srv.metrics.Keys.Set(float64(len(srv.db)))
	return int64(1000 / srv.cfg.Hz)
}

func (srv *Server) cronFinalizer(loop *ae.Loop, data any) {
	logs.Info("server cron stopped", zap.Int64(consts.LogFieldTimerId, srv.cronID))
}
