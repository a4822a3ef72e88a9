package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "ñá", Truncate("ñáé", 2))
	assert.Equal(t, "ab", Truncate("ab", 10))
	assert.Equal(t, "", Truncate("ab", 0))
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Dedupe([]string{"a", "", "b", "a", "c", "b"}))
	assert.Empty(t, Dedupe(nil))
}

func TestDetached_IsolatesErrorsAndPanics(t *testing.T) {
	// ARRANGE
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	// ACT
	<-Detached(log, "failing", time.Second, func(context.Context) error { return errors.New("boom") })
	<-Detached(log, "panicking", time.Second, func(context.Context) error { panic("kaboom") })
	<-Detached(log, "ok", time.Second, func(ctx context.Context) error {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})

	// ASSERT
	assert.Equal(t, 1, logs.FilterField(zap.String("task", "failing")).Len())
	assert.Equal(t, 1, logs.FilterField(zap.String("task", "panicking")).Len())
	assert.Equal(t, 0, logs.FilterField(zap.String("task", "ok")).Len())
}
