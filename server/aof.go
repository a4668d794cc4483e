package server

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/Trinoooo/eggie_reactor/utils"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// aof 追加写日志。命令先进 buf，beforeSleep 里统一写盘，
// 所以回复发出去之前数据已经写进了文件（always 模式下已经 fsync）。
type aof struct {
	file      *os.File
	filename  string
	buf       []byte
	fsync     string
	dirty     bool // 写过数据但还没 fsync
	lastFsync time.Time
}

func openAOF(filename, fsync string) (*aof, error) {
	file, err := utils.CheckAndCreateFile(filename, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &aof{
		file:      file,
		filename:  filename,
		fsync:     fsync,
		lastFsync: time.Now(),
	}, nil
}

// load 重放文件里的所有命令。结尾不完整的命令会被截掉，
// 这通常是上次写到一半时进程退出了；其他格式错误直接返回。
func (a *aof) load(apply func(args []string)) (int, error) {
	if _, err := a.file.Seek(0, io.SeekStart); err != nil {
		return 0, errs.NewFileStatErr().WithErr(err)
	}

	reader := bufio.NewReader(a.file)
	var offset int64
	loaded := 0
	for {
		args, n, err := readMultiBulk(reader)
		if errors.Is(err, io.EOF) && n == 0 {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			logs.Warn("aof truncated, drop incomplete tail",
				zap.String(consts.LogFieldParams, a.filename),
				zap.Int64(consts.LogFieldValue, offset),
				zap.Error(err),
			)
			if e := a.file.Truncate(offset); e != nil {
				return loaded, errs.NewWriteFileErr().WithErr(e)
			}
			break
		}
		// 文件中间格式错误时拒绝加载，不动文件
		if err != nil {
			e := errs.NewBadAOFFormatErr().WithErr(errors.Wrapf(err, "%s at offset %d", a.filename, offset))
			logs.Error(e.Error())
			return loaded, e
		}
		offset += int64(n)
		apply(args)
		loaded++
	}

	if _, err := a.file.Seek(0, io.SeekEnd); err != nil {
		return loaded, errs.NewFileStatErr().WithErr(err)
	}
	return loaded, nil
}

func (a *aof) feed(args []string) {
	a.buf = encodeMultiBulk(a.buf, args)
}

// flush 把缓冲写进文件，按 fsync 策略决定是否落盘
func (a *aof) flush(now time.Time) error {
	if len(a.buf) > 0 {
		n, err := a.file.Write(a.buf)
		if err != nil {
			// 写了一部分的话保留剩下的，下次继续
			a.buf = a.buf[n:]
			return errs.NewWriteFileErr().WithErr(err)
		}
		a.buf = a.buf[:0]
		a.dirty = true
	}

	switch a.fsync {
	case consts.AppendFsyncAlways:
		return a.sync(now)
	case consts.AppendFsyncEverySec:
		if now.Sub(a.lastFsync) >= time.Second {
			return a.sync(now)
		}
	}
	return nil
}

func (a *aof) sync(now time.Time) error {
	if !a.dirty {
		return nil
	}
	if err := a.file.Sync(); err != nil {
		return errs.NewSyncFileErr().WithErr(err)
	}
	a.dirty = false
	a.lastFsync = now
	return nil
}

func (a *aof) pending() int {
	return len(a.buf)
}

func (a *aof) Close() error {
	err := a.flush(time.Now())
	if err == nil {
		err = a.sync(time.Now())
	}
	if e := a.file.Close(); e != nil && err == nil {
		err = errs.NewWriteFileErr().WithErr(e)
	}
	return err
}

const (
	maxMultiBulkLen = 1024 * 1024
	maxBulkLen      = 512 * consts.MB
)

// readMultiBulk 读一条 *N\r\n($len\r\ndata\r\n)*N 格式的命令，返回消耗的字节数
func readMultiBulk(r *bufio.Reader) ([]string, int, error) {
	consumed := 0
	readLine := func() (string, error) {
		line, err := r.ReadString('\n')
		consumed += len(line)
		if err != nil {
			if errors.Is(err, io.EOF) && len(line) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		if len(line) < 2 || line[len(line)-2] != '\r' {
			return "", errors.New("malformed line")
		}
		return line[:len(line)-2], nil
	}

	header, err := readLine()
	if err != nil {
		return nil, consumed, err
	}
	if len(header) < 2 || header[0] != '*' {
		return nil, consumed, errors.Errorf("expect '*', got %q", header)
	}
	count, err := strconv.Atoi(header[1:])
	if err != nil || count <= 0 || count > maxMultiBulkLen {
		return nil, consumed, errors.Errorf("invalid multibulk length %q", header)
	}

	args := make([]string, 0, count)
	for i := 0; i < count; i++ {
		lenLine, err := readLine()
		if err != nil {
			return nil, consumed, unexpected(err)
		}
		if len(lenLine) < 2 || lenLine[0] != '$' {
			return nil, consumed, errors.Errorf("expect '$', got %q", lenLine)
		}
		size, err := strconv.Atoi(lenLine[1:])
		if err != nil || size < 0 || size > maxBulkLen {
			return nil, consumed, errors.Errorf("invalid bulk length %q", lenLine)
		}

		data := make([]byte, size+2)
		n, err := io.ReadFull(r, data)
		consumed += n
		if err != nil {
			return nil, consumed, unexpected(err)
		}
		if data[size] != '\r' || data[size+1] != '\n' {
			return nil, consumed, errors.New("bulk not terminated by CRLF")
		}
		args = append(args, string(data[:size]))
	}
	return args, consumed, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
