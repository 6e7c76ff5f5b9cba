package mq

import (
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
)

func TestProducerSend(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"amount":"100"}` {
			return errors.New("unexpected payload")
		}
		return nil
	})
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerFromSync(sp)
	assert.NoError(t, p.Send("ledger.credit-applied", "customer-1", `{"amount":"100"}`))
	assert.ErrorIs(t, p.Send("ledger.credit-applied", "customer-1", `{}`), sarama.ErrOutOfBrokers)
	assert.NoError(t, p.Close())
}
