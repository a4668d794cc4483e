//go:build unix

package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"strings"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/interactive/cli/handle"
	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/chzyer/readline"
	"github.com/urfave/cli/v2"
)

func main() {
	wrapper := NewCliWrapper()
	if err := wrapper.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

var (
	flagHost = &cli.StringFlag{
		Name:    "host",
		Aliases: []string{"h"},
		Value:   "127.0.0.1",
		Usage:   "server host name.",
		EnvVars: []string{consts.Host},
	}
	flagPort = &cli.Int64Flag{
		Name:    "port",
		Aliases: []string{"p"},
		Value:   6380,
		Usage:   "server port number, 0 < port < 65535 are available.",
		Action: func(c *cli.Context, port int64) error {
			if port <= 0 || port > 65535 {
				return errors.New("invalid params")
			}
			return nil
		},
		EnvVars: []string{consts.Port},
	}
	flagTimeout = &cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Value:   5 * time.Second,
		Usage:   "read/write timeout per command, 0 means no timeout.",
	}
)

var commands = []string{"PING", "ECHO", "GET", "SET", "DEL", "EXISTS", "DBSIZE", "INFO", "QUIT"}

type CliWrapper struct {
	app *cli.App
}

func NewCliWrapper() *CliWrapper {
	wrapper := &CliWrapper{
		app: &cli.App{
			Name:    consts.AppName + "_client",
			Usage:   "client for - a single threaded in-memory kv server",
			Version: consts.AppVersion,
		},
	}
	wrapper.modifyDefaultHelp()
	wrapper.withFlags()
	wrapper.withAction()
	wrapper.withAuthor()
	return wrapper
}

func (wrapper *CliWrapper) Run(args []string) error {
	return wrapper.app.Run(args)
}

func (wrapper *CliWrapper) modifyDefaultHelp() {
	cli.HelpFlag = &cli.BoolFlag{
		Name: "help",
	}
}

func (wrapper *CliWrapper) withFlags() {
	wrapper.app.Flags = []cli.Flag{
		flagHost,
		flagPort,
		flagTimeout,
	}
}

func (wrapper *CliWrapper) withAction() {
	wrapper.app.Action = func(ctx *cli.Context) error {
		addr := fmt.Sprintf("%s:%d", ctx.String(flagHost.Name), ctx.Int64(flagPort.Name))
		client := handle.NewClientWrapper(addr, ctx.Duration(flagTimeout.Name), os.Stdout)
		defer client.Close()

		items := make([]readline.PrefixCompleterInterface, 0, len(commands)*2)
		for _, cmd := range commands {
			items = append(items, readline.PcItem(cmd), readline.PcItem(strings.ToLower(cmd)))
		}
		input, err := readline.NewEx(&readline.Config{
			Prompt:       addr + "> ",
			AutoComplete: readline.NewPrefixCompleter(items...),
			HistoryFile:  historyFile(),
		})
		if err != nil {
			return err
		}
		defer input.Close()
		input.CaptureExitSignal()

		for {
			str, err := input.Readline()
			if err != nil {
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					return nil
				}
				log.Println(utils.WrapError("%v", err))
				continue
			}
			if strings.EqualFold(strings.TrimSpace(str), "exit") {
				return nil
			}
			client.HandleInput(str)
		}
	}
}

// historyFile 命令历史按天保存在家目录下，目录不存在时先创建
func historyFile() string {
	file := path.Join(consts.BaseDir, "cli", fmt.Sprintf("cmd_history_%s", time.Now().Format("20060102")))
	fd, err := utils.CheckAndCreateFile(file, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		log.Println(utils.WrapWarn("history disabled: %v", err))
		return ""
	}
	_ = fd.Close()
	return file
}

func (wrapper *CliWrapper) withAuthor() {
	wrapper.app.Authors = []*cli.Author{
		{
			Name:  "Trino",
			Email: "sujun.trinoooo@gmail.com",
		},
	}
}
