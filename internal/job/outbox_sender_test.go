package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"creditledger/internal/config"
	"creditledger/internal/infrastructure/mq"
	"creditledger/internal/model"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	mu       sync.Mutex
	messages map[int64]*model.OutboxMessage
	listErr  error
}

func newFakeOutbox(msgs ...*model.OutboxMessage) *fakeOutbox {
	f := &fakeOutbox{messages: make(map[int64]*model.OutboxMessage)}
	for _, m := range msgs {
		if m.Status == "" {
			m.Status = model.OutboxStatusPending
		}
		f.messages[m.ID] = m
	}
	return f
}

func (f *fakeOutbox) GetPendingMessages(ctx context.Context, limit int) ([]*model.OutboxMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*model.OutboxMessage
	for id := int64(1); id <= int64(len(f.messages)) && len(out) < limit; id++ {
		if m, ok := f.messages[id]; ok && m.Status == model.OutboxStatusPending {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeOutbox) MarkAsSent(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id].Status = model.OutboxStatusSent
	return nil
}

func (f *fakeOutbox) IncrementRetryCount(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id].RetryCount++
	return nil
}

func (f *fakeOutbox) MarkAsFailed(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[id].Status = model.OutboxStatusFailed
	return nil
}

func (f *fakeOutbox) get(id int64) model.OutboxMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.messages[id]
}

func message(id int64, key string) *model.OutboxMessage {
	return &model.OutboxMessage{ID: id, Topic: "ledger.credit-applied", MessageKey: key, Payload: `{"credit_id":"x"}`}
}

func TestOutboxSenderMarksSent(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"credit_id":"x"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sp.ExpectSendMessageAndSucceed()
	producer := mq.NewProducerFromSync(sp)
	defer producer.Close()

	outbox := newFakeOutbox(message(1, "c-1"), message(2, "c-2"))
	sender := NewOutboxSender(outbox, producer, &config.BusinessConfig{MaxRetryCount: 3})

	sender.processPendingMessages(context.Background())

	assert.Equal(t, model.OutboxStatusSent, outbox.get(1).Status)
	assert.Equal(t, model.OutboxStatusSent, outbox.get(2).Status)
}

func TestOutboxSenderRetriesThenFails(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer := mq.NewProducerFromSync(sp)
	defer producer.Close()

	outbox := newFakeOutbox(message(1, "c-1"))
	sender := NewOutboxSender(outbox, producer, &config.BusinessConfig{MaxRetryCount: 2})

	sender.processPendingMessages(context.Background())
	got := outbox.get(1)
	assert.Equal(t, model.OutboxStatusPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)

	sender.processPendingMessages(context.Background())
	got = outbox.get(1)
	assert.Equal(t, model.OutboxStatusFailed, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	// FAILED 的消息不再投递
	sender.processPendingMessages(context.Background())
}

func TestOutboxSenderListError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	producer := mq.NewProducerFromSync(sp)
	defer producer.Close()

	outbox := newFakeOutbox(message(1, "c-1"))
	outbox.listErr = errors.New("db down")
	sender := NewOutboxSender(outbox, producer, &config.BusinessConfig{})

	sender.processPendingMessages(context.Background())
	assert.Equal(t, model.OutboxStatusPending, outbox.get(1).Status)
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Send(topic, key, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

func TestOutboxSenderStartStop(t *testing.T) {
	outbox := newFakeOutbox(message(1, "c-1"), message(2, "c-2"))
	pub := &recordingPublisher{}
	sender := NewOutboxSender(outbox, pub, &config.BusinessConfig{OutboxIntervalMs: 5, OutboxBatchSize: 10, MaxRetryCount: 3})

	done := make(chan struct{})
	go func() {
		sender.Start(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(pub.sent()) == 2
	}, time.Second, 5*time.Millisecond)

	sender.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not stop")
	}
	assert.Equal(t, []string{"c-1", "c-2"}, pub.sent())
}
