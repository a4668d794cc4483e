//go:build !(linux || darwin || dragonfly || freebsd || netbsd || openbsd || solaris || aix)

package ae

import "github.com/Trinoooo/eggie_reactor/errs"

func Wait(fd int, mask Mask, ms int64) (Mask, error) {
	return None, errs.NewUnsupportedPlatformErr()
}
