package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapLock(t *testing.T) {
	var (
		mu        sync.Mutex
		globalVar int64
	)

	wg := sync.WaitGroup{}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			WrapLock(&mu, func() {
				loop(10, func() {
					globalVar++
				})
			})
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(30), globalVar)
}

func loop(times int, fn func()) {
	for i := 0; i < times; i++ {
		fn()
	}
}
