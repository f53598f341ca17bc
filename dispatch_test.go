// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcEngine is an [Engine] whose SendData is a user-provided function.
type funcEngine struct {
	SendDataFunc func(info *ConnectionInfo, data []byte) error
}

func (e *funcEngine) JoinPoll(*Connection) bool                     { return true }
func (e *funcEngine) ExitPoll(*Connection)                          {}
func (e *funcEngine) TakeConnection(*ConnectionInfo) *Connection    { return nil }
func (e *funcEngine) SendData(info *ConnectionInfo, b []byte) error { return e.SendDataFunc(info, b) }

// recordingEngine returns a [*funcEngine] that stores every datagram sent.
func recordingEngine() (*funcEngine, func() [][]byte) {
	var (
		mu   sync.Mutex
		sent [][]byte
	)
	engine := &funcEngine{SendDataFunc: func(info *ConnectionInfo, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, data)
		return nil
	}}
	return engine, func() [][]byte {
		mu.Lock()
		defer mu.Unlock()
		return append([][]byte(nil), sent...)
	}
}

// stubPool is a [WorkerPool] that never accepts and reports a fixed state.
type stubPool struct {
	exiting bool
}

func (p stubPool) WakeUp(Task) bool { return false }
func (p stubPool) Exiting() bool    { return p.exiting }

// inlinePool runs tasks on the submitting goroutine.
type inlinePool struct{}

func (inlinePool) WakeUp(task Task) bool { task.Run(); return true }
func (inlinePool) Exiting() bool         { return false }

func newDispatchClient(t *testing.T, engine Engine, pool WorkerPool, processor QuestProcessor) (*Client, *recordSink) {
	logger, records := newCapturingLogger()
	cfg := NewConfig()
	cfg.Engine = engine
	cfg.Registry = NewConnectionRegistry()
	client := newClient(cfg, "127.0.0.1", 9000, true, false, logger)
	client.QuestProcessPool = pool
	client.QuestProcessor = processor
	return client, records
}

var echoProcessor = QuestProcessorFunc(func(quest *Quest, info *ConnectionInfo) (*Answer, error) {
	if !quest.TwoWay {
		return nil, nil
	}
	return NewAnswer(quest, quest.Payload)
})

func TestDealQuestWithoutProcessor(t *testing.T) {
	engine, sent := recordingEngine()
	client, records := newDispatchClient(t, engine, inlinePool{}, nil)

	client.DealQuest(&Quest{Method: "ping", Seq: 1, TwoWay: true}, client.ConnectionInfo())

	assert.Empty(t, sent())
	assert.Equal(t, []string{"questDropped"}, records.messages())
}

func TestDealQuestProcessesOnPool(t *testing.T) {
	engine, sent := recordingEngine()
	client, records := newDispatchClient(t, engine, inlinePool{}, echoProcessor)

	client.DealQuest(&Quest{Method: "echo", Payload: []byte("hi"), Seq: 5, TwoWay: true}, client.ConnectionInfo())
	client.DealQuest(&Quest{Method: "notify", Seq: 6}, client.ConnectionInfo())

	require.Len(t, sent(), 1)
	_, answer, err := DecodePacket(sent()[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(5), answer.Seq)
	assert.Equal(t, "hi", string(answer.Payload))
	assert.Empty(t, records.messages())
}

func TestDealQuestUsesSharedPool(t *testing.T) {
	prev := SetSharedQuestPool(inlinePool{})
	defer SetSharedQuestPool(prev)

	engine, sent := recordingEngine()
	client, _ := newDispatchClient(t, engine, nil, echoProcessor)

	client.DealQuest(&Quest{Method: "echo", Seq: 1, TwoWay: true}, client.ConnectionInfo())

	assert.Len(t, sent(), 1)
}

func TestDealQuestBackpressure(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// exiting is the state reported by the pool.
		exiting bool

		// twoWay selects the quest kind.
		twoWay bool

		// wantSent is the number of datagrams sent.
		wantSent int

		// wantMessages are the expected log messages.
		wantMessages []string
	}{
		{
			name:         "full pool with two-way quest",
			twoWay:       true,
			wantSent:     1,
			wantMessages: []string{"questRejected"},
		},

		{
			name:         "full pool with one-way quest",
			wantMessages: []string{"questRejected"},
		},

		{
			name:         "exiting pool with two-way quest",
			exiting:      true,
			twoWay:       true,
			wantMessages: []string{"questRejected"},
		},

		{
			name:         "exiting pool with one-way quest",
			exiting:      true,
			wantMessages: []string{"questRejected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sent := recordingEngine()
			client, records := newDispatchClient(t, engine, stubPool{exiting: tt.exiting}, echoProcessor)

			client.DealQuest(&Quest{Method: "work", Seq: 77, TwoWay: tt.twoWay}, client.ConnectionInfo())

			assert.Equal(t, tt.wantMessages, records.messages())
			require.Len(t, sent(), tt.wantSent)
			if tt.wantSent <= 0 {
				return
			}
			_, answer, err := DecodePacket(sent()[0])
			require.NoError(t, err)
			assert.Equal(t, uint32(77), answer.Seq)
			assert.Equal(t, CodeWorkQueueFull, answer.Code)
			assert.Contains(t, answer.Message, "worker queue full, ")
			assert.Contains(t, answer.Message, client.ConnectionInfo().String())
		})
	}
}

func TestDealQuestErrorAnswerFailure(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// send is the failing SendData implementation.
		send func(*ConnectionInfo, []byte) error
	}{
		{
			name: "send error",
			send: func(*ConnectionInfo, []byte) error { return errors.New("mocked error") },
		},

		{
			name: "send panic",
			send: func(*ConnectionInfo, []byte) error { panic("mocked panic") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &funcEngine{SendDataFunc: tt.send}
			client, records := newDispatchClient(t, engine, stubPool{}, echoProcessor)

			assert.NotPanics(t, func() {
				client.DealQuest(&Quest{Method: "work", Seq: 1, TwoWay: true}, client.ConnectionInfo())
			})

			assert.Equal(t, []string{"questRejected", "errorAnswerFailed"}, records.messages())
		})
	}
}

func TestQuestTaskFailures(t *testing.T) {
	tests := []struct {
		// name describes what this test case verifies.
		name string

		// processor is the failing processor.
		processor QuestProcessorFunc

		// wantErr is a substring of the logged error.
		wantErr string
	}{
		{
			name: "processor error",
			processor: func(*Quest, *ConnectionInfo) (*Answer, error) {
				return nil, errors.New("mocked error")
			},
			wantErr: "mocked error",
		},

		{
			name: "processor panic",
			processor: func(*Quest, *ConnectionInfo) (*Answer, error) {
				panic("mocked panic")
			},
			wantErr: "mocked panic",
		},

		{
			name: "nil answer to two-way quest",
			processor: func(*Quest, *ConnectionInfo) (*Answer, error) {
				return nil, nil
			},
			wantErr: ErrNoAnswer.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sent := recordingEngine()
			client, records := newDispatchClient(t, engine, inlinePool{}, tt.processor)

			assert.NotPanics(t, func() {
				client.DealQuest(&Quest{Method: "work", Seq: 1, TwoWay: true}, client.ConnectionInfo())
			})

			assert.Empty(t, sent())
			failures := records.find("questProcessFailed")
			require.Len(t, failures, 1)
			assert.Contains(t, attrs(failures[0])["err"].String(), tt.wantErr)
		})
	}
}
