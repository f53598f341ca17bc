// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWatchedConn(closed chan<- struct{}, count *atomic.Int32) *netstub.FuncConn {
	conn := newMinimalConn()
	conn.CloseFunc = func() error {
		if count.Add(1) == 1 {
			close(closed)
		}
		return nil
	}
	return conn
}

func TestCancelWatchFuncClosesOnCancel(t *testing.T) {
	logger, records := newCapturingLogger()
	fn := NewCancelWatchFunc(NewConfig(), logger)

	closed := make(chan struct{})
	var count atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())

	_, err := fn.Call(ctx, newWatchedConn(closed, &count))
	require.NoError(t, err)

	select {
	case <-closed:
		t.Fatal("conn closed before cancel")
	default:
	}

	cancel()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("conn not closed after cancel")
	}
	assert.Equal(t, int32(1), count.Load())
	assert.Equal(t, []string{"cancelWatchClose"}, records.messages())
}

func TestCancelWatchFuncCloseUnregistersWatcher(t *testing.T) {
	fn := NewCancelWatchFunc(NewConfig(), slog.New(slog.DiscardHandler))

	closed := make(chan struct{})
	var count atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := fn.Call(ctx, newWatchedConn(closed, &count))
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
}
