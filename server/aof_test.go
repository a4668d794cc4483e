//go:build unix

package server

import (
	"os"
	"path"
	"testing"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAOF_FeedFlushLoad(t *testing.T) {
	filename := path.Join(t.TempDir(), "data", "appendonly.aof")
	a, err := openAOF(filename, consts.AppendFsyncAlways)
	require.Nil(t, err)

	a.feed([]string{"SET", "k", "v"})
	a.feed([]string{"DEL", "k", "other"})
	assert.NotZero(t, a.pending())

	// 没 flush 之前文件是空的
	stat, err := os.Stat(filename)
	require.Nil(t, err)
	assert.Zero(t, stat.Size())

	require.Nil(t, a.flush(time.Now()))
	assert.Zero(t, a.pending())
	assert.False(t, a.dirty)
	require.Nil(t, a.Close())

	raw, err := os.ReadFile(filename)
	require.Nil(t, err)
	assert.Equal(t, "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n*3\r\n$3\r\nDEL\r\n$1\r\nk\r\n$5\r\nother\r\n", string(raw))

	a, err = openAOF(filename, consts.AppendFsyncAlways)
	require.Nil(t, err)
	defer a.Close()
	var replayed [][]string
	n, err := a.load(func(args []string) {
		replayed = append(replayed, args)
	})
	require.Nil(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]string{{"SET", "k", "v"}, {"DEL", "k", "other"}}, replayed)

	// 加载完之后继续追加
	a.feed([]string{"SET", "a", "b"})
	require.Nil(t, a.flush(time.Now()))
	raw, err = os.ReadFile(filename)
	require.Nil(t, err)
	assert.Contains(t, string(raw), "other\r\n*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\nb\r\n")
}

func TestAOF_LoadTruncated(t *testing.T) {
	filename := path.Join(t.TempDir(), "appendonly.aof")
	good := "*2\r\n$3\r\nDEL\r\n$1\r\nx\r\n"
	require.Nil(t, os.WriteFile(filename, []byte(good+"*3\r\n$3\r\nSET\r\n$1\r\nk"), 0644))

	a, err := openAOF(filename, consts.AppendFsyncNo)
	require.Nil(t, err)
	defer a.Close()

	n, err := a.load(func([]string) {})
	require.Nil(t, err)
	assert.Equal(t, 1, n)

	raw, err := os.ReadFile(filename)
	require.Nil(t, err)
	assert.Equal(t, good, string(raw))
}

func TestAOF_LoadCorrupted(t *testing.T) {
	first := "*3\r\n$3\r\nSET\r\n$1\r\na\r\n$1\r\n1\r\n"
	second := "*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n"
	testList := []struct {
		Description string
		Raw         string
		Loaded      int
	}{
		{"garbage in the middle", first + "GARBAGE\r\n" + second, 1},
		{"bulk length overflow", "*1\r\n$9223372036854775807\r\n", 0},
		{"bulk too long", first + "*1\r\n$1073741824\r\n" + second, 1},
		{"multibulk length overflow", "*9223372036854775807\r\n", 0},
		{"negative bulk length", "*1\r\n$-3\r\n" + second, 0},
	}
	for _, item := range testList {
		filename := path.Join(t.TempDir(), "appendonly.aof")
		require.Nil(t, os.WriteFile(filename, []byte(item.Raw), 0644))

		a, err := openAOF(filename, consts.AppendFsyncNo)
		require.Nil(t, err, item.Description)
		var replayed [][]string
		n, err := a.load(func(args []string) {
			replayed = append(replayed, args)
		})
		assert.Equal(t, int64(errs.BadAOFFormatErrCode), errs.GetCode(err), item.Description)
		assert.Equal(t, item.Loaded, n, item.Description)
		assert.Len(t, replayed, item.Loaded, item.Description)
		require.Nil(t, a.Close())

		// 格式错误时文件保持原样
		raw, err := os.ReadFile(filename)
		require.Nil(t, err)
		assert.Equal(t, item.Raw, string(raw), item.Description)
	}
}

func TestNewServer_CorruptedAOF(t *testing.T) {
	cfg := testConfig(t)
	raw := "*1\r\n$9223372036854775807\r\n"
	require.Nil(t, os.WriteFile(cfg.AppendFilename, []byte(raw), 0644))

	_, err := NewServer(cfg)
	assert.Equal(t, int64(errs.BadAOFFormatErrCode), errs.GetCode(err))
}

func TestAOF_EverySec(t *testing.T) {
	a, err := openAOF(path.Join(t.TempDir(), "appendonly.aof"), consts.AppendFsyncEverySec)
	require.Nil(t, err)
	defer a.Close()

	now := a.lastFsync
	a.feed([]string{"SET", "k", "v"})
	require.Nil(t, a.flush(now.Add(100*time.Millisecond)))
	assert.True(t, a.dirty)

	require.Nil(t, a.flush(now.Add(1100*time.Millisecond)))
	assert.False(t, a.dirty)
	assert.Equal(t, now.Add(1100*time.Millisecond), a.lastFsync)
}

func TestServer_Replay(t *testing.T) {
	srv := newServer(DefaultConfig())
	srv.replay([]string{"SET", "k", "v"})
	srv.replay([]string{"set", "a", "b"})
	srv.replay([]string{"DEL", "a"})
	srv.replay([]string{"GET", "k"})
	srv.replay([]string{"NOPE"})
	assert.Equal(t, map[string]string{"k": "v"}, srv.db)
}
