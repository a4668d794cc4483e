//go:build unix

package server

import (
	"bufio"
	"io"
	"net"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/core/ae"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, srv *Server) *testConn {
	conn, err := net.Dial("tcp", srv.Addr().String())
	require.Nil(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Nil(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &testConn{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (tc *testConn) send(lines ...string) {
	_, err := tc.conn.Write([]byte(strings.Join(lines, "\r\n") + "\r\n"))
	require.Nil(tc.t, err)
}

func (tc *testConn) readLine() string {
	line, err := tc.reader.ReadString('\n')
	require.Nil(tc.t, err)
	return line
}

func (tc *testConn) expectEOF() {
	_, err := tc.reader.ReadByte()
	assert.ErrorIs(tc.t, err, io.EOF)
}

func startServer(t *testing.T, cfg *Config) (*Server, func()) {
	srv, err := NewServer(cfg)
	require.Nil(t, err)

	done := make(chan error)
	go func() {
		done <- srv.Serve()
	}()
	return srv, func() {
		require.True(t, srv.Stop())
		require.Nil(t, <-done)
		require.Nil(t, srv.Close())
	}
}

func testConfig(t *testing.T) *Config {
	cfg := DefaultConfig()
	cfg.Port = 0
	cfg.AppendOnly = true
	cfg.AppendFilename = path.Join(t.TempDir(), "appendonly.aof")
	cfg.AppendFsync = consts.AppendFsyncAlways
	return cfg
}

func TestServer_Commands(t *testing.T) {
	srv, stop := startServer(t, testConfig(t))
	defer stop()

	c := dial(t, srv)
	c.send("PING")
	assert.Equal(t, "+PONG\r\n", c.readLine())

	// 一次发多条命令，回复按顺序返回
	c.send("SET a 1", "GET a", "EXISTS a b", "FOO")
	assert.Equal(t, "+OK\r\n", c.readLine())
	assert.Equal(t, "$1\r\n", c.readLine())
	assert.Equal(t, "1\r\n", c.readLine())
	assert.Equal(t, ":1\r\n", c.readLine())
	assert.True(t, strings.HasPrefix(c.readLine(), "-ERR ["))

	// 另一个连接能看到同一份数据
	other := dial(t, srv)
	other.send("GET a", "DBSIZE")
	assert.Equal(t, "$1\r\n", other.readLine())
	assert.Equal(t, "1\r\n", other.readLine())
	assert.Equal(t, ":1\r\n", other.readLine())

	c.send("QUIT")
	assert.Equal(t, "+OK\r\n", c.readLine())
	c.expectEOF()

	other.send("INFO")
	assert.True(t, strings.HasPrefix(other.readLine(), "$"))
	assert.Contains(t, other.readLine(), "# Server")
}

func TestServer_LargeValue(t *testing.T) {
	srv, stop := startServer(t, testConfig(t))
	defer stop()

	// 回复比 socket 缓冲大，需要注册写事件分多次写完
	value := strings.Repeat("v", 512*consts.KB)
	c := dial(t, srv)
	c.send("SET big "+value, "GET big", "GET big", "PING")
	assert.Equal(t, "+OK\r\n", c.readLine())
	for i := 0; i < 2; i++ {
		assert.Equal(t, "$524288\r\n", c.readLine())
		assert.Equal(t, value+"\r\n", c.readLine())
	}
	assert.Equal(t, "+PONG\r\n", c.readLine())
}

func TestServer_AOFRestart(t *testing.T) {
	cfg := testConfig(t)
	srv, stop := startServer(t, cfg)
	c := dial(t, srv)
	c.send("SET a 1", "SET b 2", "DEL a", "SET c 3")
	for i := 0; i < 3; i++ {
		assert.Equal(t, "+OK\r\n", c.readLine())
		if i == 1 {
			assert.Equal(t, ":1\r\n", c.readLine())
		}
	}
	stop()

	srv, stop = startServer(t, cfg)
	defer stop()
	c = dial(t, srv)
	c.send("GET a", "GET b", "DBSIZE")
	assert.Equal(t, "$-1\r\n", c.readLine())
	assert.Equal(t, "$1\r\n", c.readLine())
	assert.Equal(t, "2\r\n", c.readLine())
	assert.Equal(t, ":2\r\n", c.readLine())
}

func TestServer_MaxClients(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxClients = 1
	srv, stop := startServer(t, cfg)
	defer stop()

	first := dial(t, srv)
	first.send("PING")
	assert.Equal(t, "+PONG\r\n", first.readLine())

	second := dial(t, srv)
	assert.Contains(t, second.readLine(), "max number of clients reached")
	second.expectEOF()

	// 第一个连接不受影响
	first.send("PING")
	assert.Equal(t, "+PONG\r\n", first.readLine())
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.metrics.ConnectionRejectCounter))
}

func TestServer_IdleTimeout(t *testing.T) {
	cfg := testConfig(t)
	cfg.Timeout = 1
	cfg.Hz = 50
	srv, stop := startServer(t, cfg)
	defer stop()

	c := dial(t, srv)
	c.send("PING")
	assert.Equal(t, "+PONG\r\n", c.readLine())
	c.expectEOF()
}

func TestServer_Post(t *testing.T) {
	srv, stop := startServer(t, testConfig(t))
	defer stop()

	c := dial(t, srv)
	c.send("SET a 1")
	assert.Equal(t, "+OK\r\n", c.readLine())

	keys := make(chan int)
	require.True(t, srv.Post(func(*ae.Loop) {
		keys <- len(srv.db)
	}))
	assert.Equal(t, 1, <-keys)
}

func TestNewServer_Invalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Hz = 0
	_, err := NewServer(cfg)
	assert.NotNil(t, err)

	// 端口被占用
	srv, stop := startServer(t, testConfig(t))
	defer stop()
	cfg = testConfig(t)
	cfg.Port = srv.Addr().(*net.TCPAddr).Port
	_, err = NewServer(cfg)
	assert.NotNil(t, err)
}
