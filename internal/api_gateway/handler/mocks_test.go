package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/coin-ledger/internal/api_gateway/middleware"
	"github.com/coin-ledger/internal/api_gateway/service"
	ledgerservice "github.com/coin-ledger/internal/coin_ledger/service"
	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/reason"
)

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) CreateAccount(ctx context.Context, id uuid.UUID) (*service.AccountCreation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccountCreation), args.Error(1)
}

func (m *MockAccountService) GetAccount(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAccountService) GetBalance(ctx context.Context, id uuid.UUID) (*service.BalanceView, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.BalanceView), args.Error(1)
}

type MockSpendGateway struct {
	mock.Mock
}

func (m *MockSpendGateway) Spend(ctx context.Context, req *ledgerservice.SpendRequest) (*ledgerservice.SpendResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.SpendResult), args.Error(1)
}

func (m *MockSpendGateway) Refund(ctx context.Context, req *ledgerservice.RefundRequest) (*ledgerservice.MutationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.MutationResult), args.Error(1)
}

type MockBonusGranter struct {
	mock.Mock
}

func (m *MockBonusGranter) GrantRegistrationBonus(ctx context.Context, accountID uuid.UUID, amount int64) (*ledgerservice.MutationResult, error) {
	args := m.Called(ctx, accountID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.MutationResult), args.Error(1)
}

func (m *MockBonusGranter) Earn(ctx context.Context, req *ledgerservice.EarnRequest) (*ledgerservice.MutationResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.MutationResult), args.Error(1)
}

type MockHistoryReader struct {
	mock.Mock
}

func (m *MockHistoryReader) ListEntries(ctx context.Context, accountID uuid.UUID, query ledgerservice.HistoryQuery) (*ledgerservice.HistoryPage, error) {
	args := m.Called(ctx, accountID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.HistoryPage), args.Error(1)
}

func (m *MockHistoryReader) GetEntry(ctx context.Context, accountID, entryID uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, accountID, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockHistoryReader) GetStats(ctx context.Context, accountID uuid.UUID) (*ledger.Stats, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Stats), args.Error(1)
}

func (m *MockHistoryReader) Reconcile(ctx context.Context, accountID uuid.UUID) (*ledgerservice.Reconciliation, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.Reconciliation), args.Error(1)
}

type MockAdminAdjuster struct {
	mock.Mock
}

func (m *MockAdminAdjuster) Adjust(ctx context.Context, adj *ledgerservice.AdminAdjustment) (*ledgerservice.MutationResult, error) {
	args := m.Called(ctx, adj)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerservice.MutationResult), args.Error(1)
}

type MockReasonCatalog struct {
	mock.Mock
}

func (m *MockReasonCatalog) ListReasons(ctx context.Context, direction *reason.Polarity, includeInactive bool) ([]*reason.Reason, error) {
	args := m.Called(ctx, direction, includeInactive)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*reason.Reason), args.Error(1)
}

func (m *MockReasonCatalog) GetReason(ctx context.Context, id uuid.UUID) (*reason.Reason, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reason.Reason), args.Error(1)
}

func (m *MockReasonCatalog) CreateReason(ctx context.Context, text string, polarity reason.Polarity, sortOrder int) (*reason.Reason, error) {
	args := m.Called(ctx, text, polarity, sortOrder)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reason.Reason), args.Error(1)
}

func (m *MockReasonCatalog) UpdateReason(ctx context.Context, id uuid.UUID, update ledgerservice.ReasonUpdate) (*reason.Reason, error) {
	args := m.Called(ctx, id, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reason.Reason), args.Error(1)
}

func (m *MockReasonCatalog) DeactivateReason(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReasonCatalog) DeleteReason(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockReasonCatalog) Match(ctx context.Context, direction ledger.Direction, text string) (*reason.Reason, error) {
	args := m.Called(ctx, direction, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*reason.Reason), args.Error(1)
}

var (
	_ service.AccountService      = (*MockAccountService)(nil)
	_ ledgerservice.SpendGateway  = (*MockSpendGateway)(nil)
	_ ledgerservice.BonusGranter  = (*MockBonusGranter)(nil)
	_ ledgerservice.HistoryReader = (*MockHistoryReader)(nil)
	_ ledgerservice.AdminAdjuster = (*MockAdminAdjuster)(nil)
	_ ledgerservice.ReasonCatalog = (*MockReasonCatalog)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())
	r := gin.New()
	r.Use(middleware.CorrelationID())
	return r
}

// doJSON performs a request with an optional JSON body and headers given as key/value pairs
func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// decodeResponse unmarshals the envelope and, when data is non-nil, its data field
func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, data interface{}) Response {
	t.Helper()

	var envelope struct {
		Data          json.RawMessage `json:"data"`
		Error         *ErrorInfo      `json:"error"`
		CorrelationID string          `json:"correlation_id"`
		Meta          *MetaInfo       `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope), rr.Body.String())
	if data != nil {
		require.NotEmpty(t, envelope.Data, "'data' field should not be empty")
		require.NoError(t, json.Unmarshal(envelope.Data, data))
	}
	return Response{Error: envelope.Error, CorrelationID: envelope.CorrelationID, Meta: envelope.Meta}
}

func testEntry(accountID uuid.UUID, kind ledger.Kind, amount, before int64) *ledger.Entry {
	return &ledger.Entry{
		ID:            uuid.New(),
		Sequence:      1,
		AccountID:     accountID,
		Kind:          kind,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  before + amount,
		Description:   string(kind),
	}
}
