// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"

	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"go.uber.org/goleak"
)

// verifyNoLeaks checks, after every other cleanup of t has run, that the
// test left no goroutines behind.
func verifyNoLeaks(t *testing.T) {
	ignore := goleak.IgnoreCurrent()
	t.Cleanup(func() { goleak.VerifyNone(t, ignore) })
}

// recordSink collects the records emitted through a capturing logger.
//
// Engine goroutines log concurrently with the test, so access is locked.
type recordSink struct {
	mu      sync.Mutex
	records []slog.Record
}

// all returns a copy of the captured records.
func (s *recordSink) all() []slog.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]slog.Record(nil), s.records...)
}

// messages returns the messages of the captured records, in order.
func (s *recordSink) messages() []string {
	var out []string
	for _, r := range s.all() {
		out = append(out, r.Message)
	}
	return out
}

// find returns the captured records with the given message.
func (s *recordSink) find(message string) []slog.Record {
	var out []slog.Record
	for _, r := range s.all() {
		if r.Message == message {
			out = append(out, r)
		}
	}
	return out
}

// attrs flattens the attributes of a record.
func attrs(r slog.Record) map[string]slog.Value {
	out := make(map[string]slog.Value)
	r.Attrs(func(a slog.Attr) bool {
		out[a.Key] = a.Value
		return true
	})
	return out
}

// newCapturingLogger returns a logger that captures all log records into the
// returned sink. The caller can inspect the sink after exercising the code
// under test to verify which events were emitted.
func newCapturingLogger() (*slog.Logger, *recordSink) {
	sink := &recordSink{}
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			sink.mu.Lock()
			sink.records = append(sink.records, record)
			sink.mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), sink
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr] and [safeconn.RemoteAddr].
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.UDPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.UDPAddr{} },
	}
}
