// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// NewObserveConnFunc populates all fields from Config and the provided logger.
func TestNewObserveConnFunc(t *testing.T) {
	fn := NewObserveConnFunc(NewConfig(), DefaultSLogger())

	require.NotNil(t, fn)
	assert.NotNil(t, fn.Logger)
	assert.NotNil(t, fn.TimeNow)
	assert.NotNil(t, fn.ErrClassifier)
}

func newObservedUDPConn(t *testing.T, logger SLogger, conn *netstub.FuncConn) net.Conn {
	conn.LocalAddrFunc = func() net.Addr {
		return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 54321}
	}
	conn.RemoteAddrFunc = func() net.Addr {
		return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9000}
	}
	observed, err := NewObserveConnFunc(NewConfig(), logger).Call(context.Background(), conn)
	require.NoError(t, err)
	return observed
}

// Each observed operation delegates to the underlying conn, propagates its
// error, and emits the expected events at the expected level.
func TestObservedConnOperations(t *testing.T) {
	mockErr := errors.New("mocked error")

	tests := []struct {
		// name describes what this test case verifies.
		name string

		// setup installs the underlying behavior, returning err.
		setup func(conn *netstub.FuncConn, err error)

		// run invokes the observed operation.
		run func(conn net.Conn) error

		// wantMessages are the expected log messages.
		wantMessages []string

		// wantLevel is the expected level of every message.
		wantLevel slog.Level
	}{
		{
			name: "Read",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.ReadFunc = func(b []byte) (int, error) { return 0, err }
			},
			run: func(conn net.Conn) error {
				_, err := conn.Read(make([]byte, 16))
				return err
			},
			wantMessages: []string{"readStart", "readDone"},
			wantLevel:    slog.LevelDebug,
		},

		{
			name: "Write",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.WriteFunc = func(b []byte) (int, error) { return len(b), err }
			},
			run: func(conn net.Conn) error {
				_, err := conn.Write([]byte("datagram"))
				return err
			},
			wantMessages: []string{"writeStart", "writeDone"},
			wantLevel:    slog.LevelDebug,
		},

		{
			name: "SetDeadline",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.SetDeadlineFunc = func(time.Time) error { return err }
			},
			run: func(conn net.Conn) error {
				return conn.SetDeadline(time.Now().Add(time.Hour))
			},
			wantMessages: []string{"setDeadline"},
			wantLevel:    slog.LevelDebug,
		},

		{
			name: "SetReadDeadline",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.SetReadDeadFunc = func(time.Time) error { return err }
			},
			run: func(conn net.Conn) error {
				return conn.SetReadDeadline(time.Now().Add(time.Hour))
			},
			wantMessages: []string{"setReadDeadline"},
			wantLevel:    slog.LevelDebug,
		},

		{
			name: "SetWriteDeadline",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.SetWriteDeaFunc = func(time.Time) error { return err }
			},
			run: func(conn net.Conn) error {
				return conn.SetWriteDeadline(time.Now().Add(time.Hour))
			},
			wantMessages: []string{"setWriteDeadline"},
			wantLevel:    slog.LevelDebug,
		},

		{
			name: "Close",
			setup: func(conn *netstub.FuncConn, err error) {
				conn.CloseFunc = func() error { return err }
			},
			run: func(conn net.Conn) error {
				return conn.Close()
			},
			wantMessages: []string{"closeStart", "closeDone"},
			wantLevel:    slog.LevelInfo,
		},
	}

	for _, tt := range tests {
		for _, wantErr := range []error{nil, mockErr} {
			t.Run(tt.name, func(t *testing.T) {
				logger, records := newCapturingLogger()
				conn := &netstub.FuncConn{}
				tt.setup(conn, wantErr)

				err := tt.run(newObservedUDPConn(t, logger, conn))

				assert.ErrorIs(t, err, wantErr)
				assert.Equal(t, tt.wantMessages, records.messages())
				for _, record := range records.all() {
					assert.Equal(t, tt.wantLevel, record.Level)
					assert.Equal(t, "udp", attrs(record)["protocol"].String())
					assert.Equal(t, "127.0.0.1:9000", attrs(record)["remoteAddr"].String())
				}
			})
		}
	}
}

// Read and Write carry datagrams unchanged.
func TestObservedConnReadWrite(t *testing.T) {
	var written []byte
	conn := &netstub.FuncConn{
		ReadFunc: func(b []byte) (int, error) {
			return copy(b, "answer"), nil
		},
		WriteFunc: func(b []byte) (int, error) {
			written = append(written, b...)
			return len(b), nil
		},
	}
	observed := newObservedUDPConn(t, DefaultSLogger(), conn)

	buf := make([]byte, 64)
	count, err := observed.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "answer", string(buf[:count]))

	count, err = observed.Write([]byte("quest"))
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, "quest", string(written))
}

// Second Close returns net.ErrClosed without calling the underlying Close again.
func TestObservedConnCloseOnce(t *testing.T) {
	closeCount := 0
	conn := &netstub.FuncConn{
		CloseFunc: func() error {
			closeCount++
			return nil
		},
	}
	observed := newObservedUDPConn(t, DefaultSLogger(), conn)

	require.NoError(t, observed.Close())
	require.ErrorIs(t, observed.Close(), net.ErrClosed)
	assert.Equal(t, 1, closeCount)
}
