package handle

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/pkg/errors"
)

// ClientWrapper 一条到服务端的长连接，按行发送 inline 命令，读 RESP 回复
type ClientWrapper struct {
	Addr    string
	Timeout time.Duration // 单条命令的读写超时，0 表示不超时
	conn    net.Conn
	reader  *bufio.Reader
	out     io.Writer
}

func NewClientWrapper(addr string, timeout time.Duration, out io.Writer) *ClientWrapper {
	return &ClientWrapper{
		Addr:    addr,
		Timeout: timeout,
		out:     out,
	}
}

func (cw *ClientWrapper) connect() error {
	if cw.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", cw.Addr, 3*time.Second)
	if err != nil {
		return errors.Wrapf(err, "connect to %s", cw.Addr)
	}
	cw.conn = conn
	cw.reader = bufio.NewReader(conn)
	fmt.Fprintln(cw.out, utils.WrapInfo("connected to %s", cw.Addr))
	return nil
}

// HandleInput 发送一行命令并打印回复，连接断开时下次自动重连
func (cw *ClientWrapper) HandleInput(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	reply, err := cw.Do(input)
	if err != nil {
		fmt.Fprintln(cw.out, utils.WrapError("%v", err))
		return
	}
	fmt.Fprintln(cw.out, reply)
}

// Do 发送一行命令，返回格式化后的回复
func (cw *ClientWrapper) Do(input string) (string, error) {
	if err := cw.connect(); err != nil {
		return "", err
	}
	if cw.Timeout > 0 {
		_ = cw.conn.SetDeadline(time.Now().Add(cw.Timeout))
	}

	if _, err := io.WriteString(cw.conn, input+"\r\n"); err != nil {
		cw.Close()
		return "", errors.Wrap(err, "send command")
	}
	reply, err := ReadReply(cw.reader)
	if err != nil {
		cw.Close()
		return "", errors.Wrap(err, "read reply")
	}
	if strings.EqualFold(strings.Fields(input)[0], "quit") {
		cw.Close()
	}
	return reply, nil
}

func (cw *ClientWrapper) Close() {
	if cw.conn == nil {
		return
	}
	_ = cw.conn.Close()
	cw.conn = nil
	cw.reader = nil
}

// ReadReply 读一条 RESP 回复，格式化成便于阅读的文本
func ReadReply(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
	if line == "" {
		return "", errors.New("empty reply")
	}

	switch line[0] {
	case '+':
		return utils.WrapReply("%s", line[1:]), nil
	case '-':
		return utils.WrapError("%s", line[1:]), nil
	case ':':
		return utils.WrapReply("(integer) %s", line[1:]), nil
	case '$':
		size, err := strconv.Atoi(line[1:])
		if err != nil {
			return "", errors.Wrapf(err, "invalid bulk length %q", line)
		}
		if size < 0 {
			return utils.WrapReply("(nil)"), nil
		}
		data := make([]byte, size+2)
		if _, err = io.ReadFull(r, data); err != nil {
			return "", err
		}
		bulk := string(data[:size])
		// 多行内容（比如 INFO）原样输出
		if strings.Contains(bulk, "\n") {
			return utils.WrapReply("%s", strings.ReplaceAll(bulk, "\r\n", "\n")), nil
		}
		return utils.WrapReply("%q", bulk), nil
	default:
		return "", errors.Errorf("unknown reply type %q", line)
	}
}
