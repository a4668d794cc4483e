package server

import (
	"bytes"
	"strconv"
)

type ReplyKind int

const (
	ReplyStatus ReplyKind = iota
	ReplyError
	ReplyInteger
	ReplyBulk
	ReplyNil
)

// Reply 一条回复，按 RESP 编码写给客户端
type Reply struct {
	Kind  ReplyKind
	Str   string
	Int   int64
	Close bool // 写完这条回复后断开连接
}

func statusReply(s string) *Reply {
	return &Reply{Kind: ReplyStatus, Str: s}
}

func errorReply(msg string) *Reply {
	return &Reply{Kind: ReplyError, Str: msg}
}

func integerReply(n int64) *Reply {
	return &Reply{Kind: ReplyInteger, Int: n}
}

func bulkReply(s string) *Reply {
	return &Reply{Kind: ReplyBulk, Str: s}
}

func nilReply() *Reply {
	return &Reply{Kind: ReplyNil}
}

var okReply = statusReply("OK")

func (r *Reply) appendTo(buf []byte) []byte {
	switch r.Kind {
	case ReplyStatus:
		buf = append(buf, '+')
		buf = append(buf, r.Str...)
	case ReplyError:
		buf = append(buf, "-ERR "...)
		buf = append(buf, r.Str...)
	case ReplyInteger:
		buf = append(buf, ':')
		buf = strconv.AppendInt(buf, r.Int, 10)
	case ReplyBulk:
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(r.Str)), 10)
		buf = append(buf, "\r\n"...)
		buf = append(buf, r.Str...)
	case ReplyNil:
		buf = append(buf, "$-1"...)
	}
	return append(buf, "\r\n"...)
}

// parseInline 把一行 inline 命令按空白切分，行尾的 \r 去掉
func parseInline(line []byte) []string {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	fields := bytes.Fields(line)
	args := make([]string, 0, len(fields))
	for _, f := range fields {
		args = append(args, string(f))
	}
	return args
}

// encodeMultiBulk 以 RESP 数组的格式编码命令，用于 AOF
func encodeMultiBulk(buf []byte, args []string) []byte {
	buf = append(buf, '*')
	buf = strconv.AppendInt(buf, int64(len(args)), 10)
	buf = append(buf, "\r\n"...)
	for _, arg := range args {
		buf = append(buf, '$')
		buf = strconv.AppendInt(buf, int64(len(arg)), 10)
		buf = append(buf, "\r\n"...)
		buf = append(buf, arg...)
		buf = append(buf, "\r\n"...)
	}
	return buf
}
