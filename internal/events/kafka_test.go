package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaPublisherSendsJSONEvent(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Type != TypeSaleRecorded || got.Key != "med-1" {
			return errors.New("unexpected event body")
		}
		return nil
	})

	publisher := NewKafkaPublisherWithProducer(producer, "pharmacy.inventory")
	err := publisher.Publish(context.Background(), Event{
		ID:        "evt-1",
		Type:      TypeSaleRecorded,
		Key:       "med-1",
		Actor:     "seller",
		Timestamp: time.Now().UTC(),
		Payload:   map[string]int{"quantity": 2},
	})
	require.NoError(t, err)
	require.NoError(t, publisher.Close())
}

func TestKafkaPublisherReportsSendFailure(t *testing.T) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, config)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisherWithProducer(producer, "pharmacy.inventory")
	err := publisher.Publish(context.Background(), Event{ID: "evt-2", Type: TypeMedicineDeleted, Key: "med-2"})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, publisher.Close())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeAdjustmentRecorded}))
	assert.NoError(t, p.Close())
}
