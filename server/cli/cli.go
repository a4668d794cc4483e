//go:build unix

package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/bytedance/gopkg/util/gopool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	flagConfig = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Value:   consts.DefaultConfigPath,
		Usage:   "directory containing config.yaml.",
	}
	flagHost = &cli.StringFlag{
		Name:    "host",
		Aliases: []string{"h"},
		Value:   "127.0.0.1",
		Usage:   "server host name, only ipv4 is supported.",
		EnvVars: []string{consts.Host},
	}
	flagPort = &cli.Int64Flag{
		Name:    "port",
		Aliases: []string{"p"},
		Value:   6380,
		Usage:   "server port number, 0 < port < 65535 are available.",
		Action: func(c *cli.Context, port int64) error {
			if port <= 0 || port > 65535 {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "port"), zap.Int64(consts.LogFieldValue, port))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.Port},
	}
	flagSetSize = &cli.Int64Flag{
		Name:    "setsize",
		Aliases: []string{"s"},
		Value:   consts.DefaultSetSize,
		Usage:   "initial capacity of the file event table, grows on demand.",
		Action: func(c *cli.Context, size int64) error {
			if size <= 0 || size > consts.MB {
				e := errs.NewInvalidParamErr()
				logs.Error(e.Error(), zap.String(consts.LogFieldParams, "setsize"), zap.Int64(consts.LogFieldValue, size))
				return e
			}
			return nil
		},
		EnvVars: []string{consts.SetSize},
	}
	flagDurable = &cli.BoolFlag{
		Name:    "durable",
		Aliases: []string{"d"},
		Value:   false,
		Usage:   "set this flag to enable the append only file.",
		EnvVars: []string{consts.Durable},
	}
)

type Wrapper struct {
	app *cli.App
}

func NewWrapper() *Wrapper {
	wrapper := &Wrapper{
		app: &cli.App{
			Name:    consts.AppName,
			Usage:   "a single threaded in-memory kv server driven by an event loop",
			Version: consts.AppVersion,
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withAction()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *Wrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *Wrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
	cli.AppHelpTemplate = consts.HelpTemplate
}

func (wrapper *Wrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagConfig,
		flagHost,
		flagPort,
		flagSetSize,
		flagDurable,
	}
}

func (wrapper *Wrapper) withAction() {
	wrapper.app.Action = func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		srv, err := server.NewServer(cfg)
		if err != nil {
			return err
		}

		// bugfix: 使用缓冲通道避免执行信号处理程序之前有信号到达会被丢弃
		sig := make(chan os.Signal, 5)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer func() {
			signal.Stop(sig)
			close(sig)
		}()
		gopool.Go(func() {
			defer utils.HandlePanic(logs.Logger(), nil)
			for s := range sig {
				logs.Info("shutdown...", zap.String(consts.LogFieldValue, s.String()))
				if !srv.Stop() {
					return
				}
			}
		})

		serveErr := srv.Serve()
		if err = srv.Close(); err != nil {
			logs.Error("close server failed", zap.Error(err))
		}
		return serveErr
	}
}

// loadConfig 配置文件 < 环境变量 < 命令行参数
func loadConfig(ctx *cli.Context) (*server.Config, error) {
	v, err := server.NewViper(ctx.String(flagConfig.Name))
	if err != nil {
		return nil, err
	}
	if ctx.IsSet(flagHost.Name) {
		v.Set(consts.ConfigHost, ctx.String(flagHost.Name))
	}
	if ctx.IsSet(flagPort.Name) {
		v.Set(consts.ConfigPort, ctx.Int64(flagPort.Name))
	}
	if ctx.IsSet(flagSetSize.Name) {
		v.Set(consts.ConfigSetSize, ctx.Int64(flagSetSize.Name))
	}
	if ctx.IsSet(flagDurable.Name) {
		v.Set(consts.ConfigAppendOnly, ctx.Bool(flagDurable.Name))
	}
	return server.LoadConfig(v)
}

func (wrapper *Wrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "Trino",
			Email: "sujun.trinoooo@gmail.com",
		},
	}
}
