package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coin-ledger/internal/config"
)

// MockKafkaWriter is defined in ledger_event_test.go

func newTestDLQProducer(writer KafkaWriter) *DLQProducer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newDLQProducer(logger, writer, "coin_ledger_events_dlq")
	p.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	ctx := context.Background()
	letter := DeadLetter{
		Key:         []byte("account-1"),
		Value:       []byte(`{"broken":`),
		SourceTopic: "coin_ledger_events",
		Partition:   2,
		Offset:      17,
		Reason:      "unmarshal ledger event: unexpected end of JSON input",
	}

	t.Run("SuccessfulPublishToDLQ", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := newTestDLQProducer(writer)

		writer.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != "account-1" {
				return false
			}
			var payload dlqPayload
			if err := json.Unmarshal(msgs[0].Value, &payload); err != nil {
				return false
			}
			return payload.OriginalKey == "account-1" &&
				payload.OriginalValue == `{"broken":` &&
				payload.SourceTopic == "coin_ledger_events" &&
				payload.Partition == 2 &&
				payload.Offset == 17 &&
				payload.DLQReason == letter.Reason &&
				payload.Timestamp == "2026-03-01T12:00:00Z" &&
				string(msgs[0].Headers[0].Value) == letter.Reason &&
				string(msgs[0].Headers[1].Value) == "17"
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, letter))
		writer.AssertExpectations(t)
	})

	t.Run("WriterErrorIsWrapped", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		producer := newTestDLQProducer(writer)
		writeErr := errors.New("kafka DLQ write error")

		writer.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writeErr).Once()

		err := producer.PublishToDLQ(ctx, letter)
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
		writer.AssertExpectations(t)
	})

	t.Run("NilProducerReportsDisabled", func(t *testing.T) {
		var producer *DLQProducer
		assert.ErrorIs(t, producer.PublishToDLQ(ctx, letter), ErrDLQDisabled)
	})

	t.Run("NilWriterReportsDisabled", func(t *testing.T) {
		producer := newTestDLQProducer(nil)
		assert.ErrorIs(t, producer.PublishToDLQ(ctx, letter), ErrDLQDisabled)
	})
}

func TestDLQProducer_Close(t *testing.T) {
	t.Run("SuccessfulClose", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		writer.On("Close").Return(nil).Once()
		require.NoError(t, newTestDLQProducer(writer).Close())
		writer.AssertExpectations(t)
	})

	t.Run("CloseReturnsErrorOnWriterError", func(t *testing.T) {
		writer := new(MockKafkaWriter)
		closeErr := errors.New("kafka DLQ close error")
		writer.On("Close").Return(closeErr).Once()
		err := newTestDLQProducer(writer).Close()
		require.Error(t, err)
		assert.ErrorIs(t, err, closeErr)
	})

	t.Run("NilProducerCloses", func(t *testing.T) {
		var producer *DLQProducer
		assert.NoError(t, producer.Close())
	})
}

func TestNewDLQProducer_DisabledWithoutTopic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	producer, err := NewDLQProducer(context.Background(), logger, &config.KafkaConfig{Brokers: "localhost:9092"})
	require.NoError(t, err)
	assert.Nil(t, producer)
}
