package archiver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coin-ledger/internal/domain/audit"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/shared"
	"github.com/coin-ledger/internal/platform/messaging/producers"
)

type MockAuditRepo struct {
	mock.Mock
}

func (m *MockAuditRepo) Archive(ctx context.Context, record *audit.Record) (bool, error) {
	args := m.Called(ctx, record)
	return args.Bool(0), args.Error(1)
}

func (m *MockAuditRepo) GetByEntryID(ctx context.Context, entryID string) (*audit.Record, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*audit.Record), args.Error(1)
}

func (m *MockAuditRepo) ListByAccount(ctx context.Context, accountID string, limit int64) ([]*audit.Record, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Record), args.Error(1)
}

func (m *MockAuditRepo) EnsureIndexes(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, letter producers.DeadLetter) error {
	args := m.Called(ctx, letter)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

type resultRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *resultRecorder) ObserveArchive(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func committedEvent(t *testing.T) (*shared.LedgerEvent, kafka.Message) {
	t.Helper()
	entry := &ledger.Entry{
		ID:            uuid.New(),
		Sequence:      12,
		AccountID:     uuid.New(),
		Kind:          ledger.KindRegistrationBonus,
		Amount:        100,
		BalanceBefore: 0,
		BalanceAfter:  100,
		Description:   "Registration bonus",
		CreatedAt:     time.Date(2026, 1, 5, 8, 30, 0, 0, time.UTC),
	}
	event := shared.NewLedgerEvent(entry, "corr-archive")
	value, err := json.Marshal(event)
	require.NoError(t, err)
	return event, kafka.Message{
		Topic:     "coin_ledger_events",
		Partition: 1,
		Offset:    40,
		Key:       []byte(entry.AccountID.String()),
		Value:     value,
	}
}

func newTestHandler(repo audit.Repository, dlq DeadLetterSink, recorder ArchiveRecorder) *EventHandler {
	h := NewEventHandler(slog.Default(), repo, dlq, recorder)
	h.now = func() time.Time { return time.Date(2026, 1, 5, 8, 31, 0, 0, time.UTC) }
	return h
}

func TestEventHandler_HandleMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("ArchivesNewEntry", func(t *testing.T) {
		event, msg := committedEvent(t)
		repo := &MockAuditRepo{}
		recorder := &resultRecorder{}

		repo.On("Archive", ctx, mock.MatchedBy(func(r *audit.Record) bool {
			return r.EntryID == event.Entry.ID.String() &&
				r.EventID == event.EventID.String() &&
				r.Kind == "registration_bonus" &&
				r.BalanceAfter == 100 &&
				r.CorrelationID == "corr-archive" &&
				r.ArchivedAt.Equal(time.Date(2026, 1, 5, 8, 31, 0, 0, time.UTC))
		})).Return(true, nil).Once()

		err := newTestHandler(repo, &MockDeadLetterPublisher{}, recorder).HandleMessage(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, []string{ResultInserted}, recorder.results)
		repo.AssertExpectations(t)
	})

	t.Run("RedeliveryIsDuplicate", func(t *testing.T) {
		_, msg := committedEvent(t)
		repo := &MockAuditRepo{}
		recorder := &resultRecorder{}
		repo.On("Archive", ctx, mock.Anything).Return(false, nil).Once()

		require.NoError(t, newTestHandler(repo, nil, recorder).HandleMessage(ctx, msg))
		assert.Equal(t, []string{ResultDuplicate}, recorder.results)
	})

	t.Run("ArchiveFailureIsRetried", func(t *testing.T) {
		_, msg := committedEvent(t)
		repo := &MockAuditRepo{}
		recorder := &resultRecorder{}
		mongoErr := errors.New("server selection timeout")
		repo.On("Archive", ctx, mock.Anything).Return(false, mongoErr).Once()

		err := newTestHandler(repo, nil, recorder).HandleMessage(ctx, msg)
		require.Error(t, err)
		assert.ErrorIs(t, err, mongoErr)
		assert.Equal(t, []string{ResultFailed}, recorder.results)
	})

	t.Run("GarbageGoesToDLQ", func(t *testing.T) {
		repo := &MockAuditRepo{}
		dlq := &MockDeadLetterPublisher{}
		recorder := &resultRecorder{}
		msg := kafka.Message{Topic: "coin_ledger_events", Partition: 0, Offset: 9, Key: []byte("k"), Value: []byte("{oops")}

		dlq.On("PublishToDLQ", ctx, mock.MatchedBy(func(l producers.DeadLetter) bool {
			return string(l.Value) == "{oops" && l.Offset == 9 && l.SourceTopic == "coin_ledger_events" && l.Reason != ""
		})).Return(nil).Once()

		require.NoError(t, newTestHandler(repo, dlq, recorder).HandleMessage(ctx, msg))
		assert.Equal(t, []string{ResultDeadLettered}, recorder.results)
		repo.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything)
		dlq.AssertExpectations(t)
	})

	t.Run("InconsistentEntryGoesToDLQ", func(t *testing.T) {
		event, _ := committedEvent(t)
		event.Entry.BalanceAfter = 99
		value, err := json.Marshal(event)
		require.NoError(t, err)

		dlq := &MockDeadLetterPublisher{}
		dlq.On("PublishToDLQ", ctx, mock.Anything).Return(nil).Once()

		require.NoError(t, newTestHandler(&MockAuditRepo{}, dlq, nil).HandleMessage(ctx, kafka.Message{Value: value}))
		dlq.AssertExpectations(t)
	})

	t.Run("UnknownEventTypeGoesToDLQ", func(t *testing.T) {
		event, _ := committedEvent(t)
		event.EventType = "coin_ledger.something_else"
		value, err := json.Marshal(event)
		require.NoError(t, err)

		dlq := &MockDeadLetterPublisher{}
		dlq.On("PublishToDLQ", ctx, mock.MatchedBy(func(l producers.DeadLetter) bool {
			return l.Reason == `unexpected event type "coin_ledger.something_else"`
		})).Return(nil).Once()

		require.NoError(t, newTestHandler(&MockAuditRepo{}, dlq, nil).HandleMessage(ctx, kafka.Message{Value: value}))
		dlq.AssertExpectations(t)
	})

	t.Run("DisabledDLQDropsGarbage", func(t *testing.T) {
		recorder := &resultRecorder{}
		var disabled *producers.DLQProducer

		err := newTestHandler(&MockAuditRepo{}, disabled, recorder).HandleMessage(ctx, kafka.Message{Value: []byte("nope")})
		require.NoError(t, err)
		assert.Equal(t, []string{ResultDropped}, recorder.results)
	})

	t.Run("DLQFailureIsRetried", func(t *testing.T) {
		dlq := &MockDeadLetterPublisher{}
		dlqErr := errors.New("dlq unavailable")
		dlq.On("PublishToDLQ", ctx, mock.Anything).Return(dlqErr).Once()

		err := newTestHandler(&MockAuditRepo{}, dlq, nil).HandleMessage(ctx, kafka.Message{Value: []byte("nope")})
		require.Error(t, err)
		assert.ErrorIs(t, err, dlqErr)
	})
}
