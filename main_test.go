package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdownFuncCancelsOnce(t *testing.T) {
	calls := 0
	shutdown := shutdownFunc(func() { calls++ })
	shutdown()
	shutdown()
	assert.Equal(t, 1, calls)
}

func TestWaitForLink(t *testing.T) {
	assert.NoError(t, waitForLink(context.Background(), ""))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, waitForLink(ctx, "no-such-iface0"), context.DeadlineExceeded)
}
