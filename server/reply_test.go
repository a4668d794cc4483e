package server

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply_AppendTo(t *testing.T) {
	testList := []struct {
		Reply  *Reply
		Expect string
	}{
		{statusReply("PONG"), "+PONG\r\n"},
		{errorReply("boom"), "-ERR boom\r\n"},
		{integerReply(-3), ":-3\r\n"},
		{bulkReply("hello"), "$5\r\nhello\r\n"},
		{bulkReply(""), "$0\r\n\r\n"},
		{nilReply(), "$-1\r\n"},
	}
	var buf []byte
	var expect string
	for _, item := range testList {
		assert.Equal(t, item.Expect, string(item.Reply.appendTo(nil)))
		buf = item.Reply.appendTo(buf)
		expect += item.Expect
	}
	assert.Equal(t, expect, string(buf))
}

func TestParseInline(t *testing.T) {
	assert.Equal(t, []string{"SET", "k", "v"}, parseInline([]byte("SET  k\tv\r")))
	assert.Equal(t, []string{"PING"}, parseInline([]byte("PING")))
	assert.Empty(t, parseInline([]byte("  \r")))
}

func TestReadMultiBulk(t *testing.T) {
	raw := encodeMultiBulk(nil, []string{"SET", "key", "a\r\nb"})
	raw = encodeMultiBulk(raw, []string{"DEL", ""})
	assert.Equal(t, "*2\r\n$3\r\nDEL\r\n$0\r\n\r\n", string(encodeMultiBulk(nil, []string{"DEL", ""})))

	r := bufio.NewReader(strings.NewReader(string(raw)))
	args, n, err := readMultiBulk(r)
	require.Nil(t, err)
	assert.Equal(t, []string{"SET", "key", "a\r\nb"}, args)
	args, m, err := readMultiBulk(r)
	require.Nil(t, err)
	assert.Equal(t, []string{"DEL", ""}, args)
	assert.Equal(t, len(raw), n+m)

	_, n, err = readMultiBulk(r)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 0, n)
}

func TestReadMultiBulk_Malformed(t *testing.T) {
	testList := []struct {
		Description string
		Raw         string
		ExpectEOF   bool
	}{
		{"truncated header", "*2", true},
		{"truncated bulk", "*1\r\n$5\r\nhel", true},
		{"missing bulk", "*2\r\n$1\r\na\r\n", true},
		{"not an array", "+OK\r\n", false},
		{"bad length", "*x\r\n", false},
		{"bad bulk terminator", "*1\r\n$1\r\nab\r\n", false},
		{"missing cr", "*1\n", false},
	}
	for _, item := range testList {
		_, _, err := readMultiBulk(bufio.NewReader(strings.NewReader(item.Raw)))
		require.NotNil(t, err, item.Description)
		if item.ExpectEOF {
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF, item.Description)
		}
	}
}
