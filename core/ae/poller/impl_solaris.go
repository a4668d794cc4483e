//go:build solaris || aix

package poller

func New(setSize int) (Poller, error) {
	return NewPollPoller(setSize)
}
