package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestHandlePanic(t *testing.T) {
	finished := false
	func() {
		defer HandlePanic(zaptest.NewLogger(t), func() {
			finished = true
		})

		panic("haha")
	}()
	assert.True(t, finished)
}
