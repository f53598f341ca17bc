// SPDX-License-Identifier: GPL-3.0-or-later

package udprpc

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoAnswer indicates that a processor returned no answer for a two-way quest.
var ErrNoAnswer = errors.New("udprpc: no answer for two-way quest")

// QuestProcessor handles inbound quests on a worker pool goroutine.
//
// For two-way quests the returned answer is sent back to the peer. For
// one-way quests the answer is ignored. A returned error is logged and the
// peer of a two-way quest eventually observes a timeout.
//
// A QuestProcessor may also implement [ConnectionEventHandler].
type QuestProcessor interface {
	ProcessQuest(quest *Quest, info *ConnectionInfo) (*Answer, error)
}

// QuestProcessorFunc adapts a function to the [QuestProcessor] interface.
type QuestProcessorFunc func(quest *Quest, info *ConnectionInfo) (*Answer, error)

var _ QuestProcessor = QuestProcessorFunc(nil)

// ProcessQuest implements [QuestProcessor].
func (f QuestProcessorFunc) ProcessQuest(quest *Quest, info *ConnectionInfo) (*Answer, error) {
	return f(quest, info)
}

// DealQuest hands an inbound quest to a worker pool.
//
// The engine calls DealQuest from its reader goroutine; the quest is never
// processed there. The task goes to QuestProcessPool or, when nil, to the
// [SharedQuestPool]. When the pool is exiting the quest is dropped. When the
// pool is full, a two-way quest is answered with [CodeWorkQueueFull] directly
// on the socket, bypassing the pool.
func (c *Client) DealQuest(quest *Quest, info *ConnectionInfo) {
	if c.QuestProcessor == nil {
		c.Logger.Error(
			"questDropped",
			slog.String("connection", info.String()),
			slog.String("method", quest.Method),
			slog.String("reason", "no quest processor"),
		)
		questsRejected.WithLabelValues("no_processor").Inc()
		return
	}

	pool := c.QuestProcessPool
	if pool == nil {
		pool = SharedQuestPool()
	}
	if pool.WakeUp(&questTask{client: c, quest: quest, info: info}) {
		questsDispatched.Inc()
		return
	}

	if pool.Exiting() {
		c.Logger.Error(
			"questRejected",
			slog.String("connection", info.String()),
			slog.String("method", quest.Method),
			slog.String("reason", "quest pool is exiting"),
			slog.Bool("twoWay", quest.TwoWay),
		)
		questsRejected.WithLabelValues("exiting").Inc()
		return
	}

	c.Logger.Warn(
		"questRejected",
		slog.String("connection", info.String()),
		slog.String("method", quest.Method),
		slog.String("reason", "work queue full"),
		slog.Bool("twoWay", quest.TwoWay),
	)
	questsRejected.WithLabelValues("queue_full").Inc()

	if !quest.IsTwoWay() {
		return
	}
	if err := c.sendErrorAnswer(quest, info, CodeWorkQueueFull, "worker queue full, "+info.String()); err != nil {
		c.Logger.Error(
			"errorAnswerFailed",
			slog.String("connection", info.String()),
			slog.Any("err", err),
			slog.String("errClass", c.ErrClassifier.Classify(err)),
			slog.String("method", quest.Method),
		)
	}
}

// sendErrorAnswer synthesizes an error answer and sends it through the engine.
func (c *Client) sendErrorAnswer(quest *Quest, info *ConnectionInfo, code ErrorCode, message string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("udprpc: panic while sending error answer: %v", r)
		}
	}()
	answer, err := NewErrorAnswer(quest, code, message)
	if err != nil {
		return err
	}
	raw, err := answer.Raw()
	if err != nil {
		return err
	}
	if err := c.Engine.SendData(info, raw); err != nil {
		return err
	}
	errorAnswersSent.Inc()
	return nil
}

// processQuest runs the processor and sends the answer of two-way quests.
func (c *Client) processQuest(quest *Quest, info *ConnectionInfo) error {
	answer, err := c.QuestProcessor.ProcessQuest(quest, info)
	if err != nil {
		return err
	}
	if !quest.TwoWay {
		return nil
	}
	if answer == nil {
		return ErrNoAnswer
	}
	answer.Seq = quest.Seq
	raw, err := answer.Raw()
	if err != nil {
		return err
	}
	return c.Engine.SendData(info, raw)
}

// questTask is the [Task] that processes one inbound quest.
type questTask struct {
	client *Client
	info   *ConnectionInfo
	quest  *Quest
}

var _ Task = &questTask{}

// Run implements [Task]. Errors and panics never escape to the pool.
func (t *questTask) Run() {
	defer func() {
		if r := recover(); r != nil {
			t.logFailure(fmt.Errorf("udprpc: quest processor panic: %v", r))
		}
	}()
	if err := t.client.processQuest(t.quest, t.info); err != nil {
		t.logFailure(err)
	}
}

func (t *questTask) logFailure(err error) {
	t.client.Logger.Error(
		"questProcessFailed",
		slog.String("connection", t.info.String()),
		slog.Any("err", err),
		slog.String("errClass", t.client.ErrClassifier.Classify(err)),
		slog.String("method", t.quest.Method),
	)
}
