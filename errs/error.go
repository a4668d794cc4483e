package errs

import (
	"fmt"

	"github.com/pkg/errors"
)

type ReactorErr struct {
	msg  string
	code int64
	err  error
}

// Error 输出格式：
// [错误码] 错误类型描述 ( => 包含错误详细描述 )
// 解释：(xxx) 表示可选内容
func (re *ReactorErr) Error() string {
	details := fmt.Sprintf("[%d] %s", re.code, re.msg)
	if re.err != nil {
		details += fmt.Sprintf(" => %s", re.err)
	}

	return details
}

func (re *ReactorErr) Code() int64 {
	return re.code
}

func (re *ReactorErr) WithErr(err error) *ReactorErr {
	re.err = err
	return re
}

func (re *ReactorErr) Unwrap() error {
	return re.err
}

func GetCode(err error) int64 {
	var re *ReactorErr
	if errors.As(err, &re) {
		return re.code
	}
	return UnknownErrCode
}

// 1000xx 事件循环本身的错误，2000xx 宿主服务的错误
const (
	UnknownErrCode                         = 0
	InvalidParamErrCode                    = 100001
	InvalidCapacityErrCode                 = 100002
	CreatePollerErrCode                    = 100003
	InvalidDescriptorErrCode               = 100004
	TableFullErrCode                       = 100005
	InUseDescriptorAboveNewCapacityErrCode = 100006
	PollErrCode                            = 100007
	PollerCtlErrCode                       = 100008
	WaitTimeoutErrCode                     = 100009
	WaitErrCode                            = 100010
	LoopClosedErrCode                      = 100011
	UnsupportedPlatformErrCode             = 100012
	ReadConfigErrCode                      = 200001
	ListenErrCode                          = 200002
	AcceptErrCode                          = 200003
	ReadSocketErrCode                      = 200004
	WriteSocketErrCode                     = 200005
	UnsupportedCommandErrCode              = 200006
	OpenFileErrCode                        = 200007
	WriteFileErrCode                       = 200008
	SyncFileErrCode                        = 200009
	MkdirErrCode                           = 200010
	FileStatErrCode                        = 200011
	FileNoPermissionErrCode                = 200012
	MaxClientsReachedErrCode               = 200013
	CreatePipeErrCode                      = 200014
	BadAOFFormatErrCode                    = 200015
)

func NewUnknownErr() *ReactorErr {
	return &ReactorErr{msg: "unknown error", code: UnknownErrCode}
}

func NewInvalidParamErr() *ReactorErr {
	return &ReactorErr{msg: "invalid params", code: InvalidParamErrCode}
}

func NewInvalidCapacityErr() *ReactorErr {
	return &ReactorErr{msg: "invalid capacity", code: InvalidCapacityErrCode}
}

func NewCreatePollerErr() *ReactorErr {
	return &ReactorErr{msg: "create poller failed", code: CreatePollerErrCode}
}

func NewInvalidDescriptorErr() *ReactorErr {
	return &ReactorErr{msg: "invalid descriptor", code: InvalidDescriptorErrCode}
}

func NewTableFullErr() *ReactorErr {
	return &ReactorErr{msg: "file event table full", code: TableFullErrCode}
}

func NewInUseDescriptorAboveNewCapacityErr() *ReactorErr {
	return &ReactorErr{msg: "in use descriptor above new capacity", code: InUseDescriptorAboveNewCapacityErrCode}
}

func NewPollErr() *ReactorErr {
	return &ReactorErr{msg: "poll failed", code: PollErrCode}
}

func NewPollerCtlErr() *ReactorErr {
	return &ReactorErr{msg: "poller change interest failed", code: PollerCtlErrCode}
}

func NewWaitTimeoutErr() *ReactorErr {
	return &ReactorErr{msg: "wait timeout", code: WaitTimeoutErrCode}
}

func NewWaitErr() *ReactorErr {
	return &ReactorErr{msg: "wait failed", code: WaitErrCode}
}

func NewLoopClosedErr() *ReactorErr {
	return &ReactorErr{msg: "event loop already closed", code: LoopClosedErrCode}
}

func NewUnsupportedPlatformErr() *ReactorErr {
	return &ReactorErr{msg: "platform not supported", code: UnsupportedPlatformErrCode}
}

func NewReadConfigErr() *ReactorErr {
	return &ReactorErr{msg: "read config failed", code: ReadConfigErrCode}
}

func NewListenErr() *ReactorErr {
	return &ReactorErr{msg: "listen failed", code: ListenErrCode}
}

func NewAcceptErr() *ReactorErr {
	return &ReactorErr{msg: "accept connection failed", code: AcceptErrCode}
}

func NewReadSocketErr() *ReactorErr {
	return &ReactorErr{msg: "read socket failed", code: ReadSocketErrCode}
}

func NewWriteSocketErr() *ReactorErr {
	return &ReactorErr{msg: "write socket failed", code: WriteSocketErrCode}
}

func NewUnsupportedCommandErr() *ReactorErr {
	return &ReactorErr{msg: "unsupported command", code: UnsupportedCommandErrCode}
}

func NewOpenFileErr() *ReactorErr {
	return &ReactorErr{msg: "open file failed", code: OpenFileErrCode}
}

func NewWriteFileErr() *ReactorErr {
	return &ReactorErr{msg: "write file failed", code: WriteFileErrCode}
}

func NewSyncFileErr() *ReactorErr {
	return &ReactorErr{msg: "sync file failed", code: SyncFileErrCode}
}

func NewMkdirErr() *ReactorErr {
	return &ReactorErr{msg: "mkdir failed", code: MkdirErrCode}
}

func NewFileStatErr() *ReactorErr {
	return &ReactorErr{msg: "file stat failed", code: FileStatErrCode}
}

func NewFileNoPermissionErr() *ReactorErr {
	return &ReactorErr{msg: "file no permission", code: FileNoPermissionErrCode}
}

func NewMaxClientsReachedErr() *ReactorErr {
	return &ReactorErr{msg: "max number of clients reached", code: MaxClientsReachedErrCode}
}

func NewCreatePipeErr() *ReactorErr {
	return &ReactorErr{msg: "create pipe failed", code: CreatePipeErrCode}
}

func NewBadAOFFormatErr() *ReactorErr {
	return &ReactorErr{msg: "bad append only file format", code: BadAOFFormatErrCode}
}
