//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris || aix)

package poller

import "github.com/pkg/errors"

// New 不支持的平台直接返回错误
func New(setSize int) (Poller, error) {
	return nil, errors.New("poller: this platform is not supported")
}
