package service

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/coin-ledger/internal/domain/ledger"
)

// assertLedgerInvariants checks balance, entry chain, stats and ordering for one account
func assertLedgerInvariants(t *testing.T, l *testLedger, accountID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	balance := l.store.balance(accountID)
	entries := l.store.entriesOf(accountID)

	var sum, prevAfter int64
	for i, e := range entries {
		sum += e.Amount
		assert.Equal(t, e.BalanceBefore+e.Amount, e.BalanceAfter, "entry %d arithmetic", i)
		assert.GreaterOrEqual(t, e.BalanceAfter, int64(0), "entry %d negative", i)
		assert.Equal(t, prevAfter, e.BalanceBefore, "entry %d chain", i)
		prevAfter = e.BalanceAfter
	}
	assert.Equal(t, balance, sum, "balance equals sum of entries")
	assert.GreaterOrEqual(t, balance, int64(0))

	stats, err := l.history.GetStats(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, balance, stats.TotalCredited-stats.TotalDebited, "stats net equals balance")

	page, err := l.history.ListEntries(ctx, accountID, HistoryQuery{PageSize: 100})
	require.NoError(t, err)
	var listed int64
	for i, e := range page.Entries {
		listed += e.Amount
		if i > 0 {
			assert.False(t, e.CreatedAt.After(page.Entries[i-1].CreatedAt), "history not newest first at %d", i)
		}
	}
	assert.Equal(t, stats.EntryCount, page.TotalCount)
	assert.Equal(t, stats.Net(), listed)
}

func TestProperties_RandomMutations(t *testing.T) {
	l := newTestLedger(false)
	rng := rand.New(rand.NewSource(7))
	accounts := []uuid.UUID{l.store.createAccount(), l.store.createAccount(), l.store.createAccount()}
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		accountID := accounts[rng.Intn(len(accounts))]
		before := l.store.balance(accountID)
		entriesBefore := len(l.store.entriesOf(accountID))
		amount := int64(rng.Intn(20) + 1)

		var result *MutationResult
		var err error
		switch rng.Intn(4) {
		case 0:
			var spent *SpendResult
			spent, err = l.spend.Spend(ctx, &SpendRequest{AccountID: accountID, ToolReference: "t", Cost: amount})
			if spent != nil {
				result = &spent.MutationResult
			}
		case 1:
			result, err = l.bonus.Earn(ctx, &EarnRequest{AccountID: accountID, Amount: amount})
		case 2:
			result, err = l.admin.Adjust(ctx, &AdminAdjustment{AccountID: accountID, Direction: ledger.DirectionSubtract, Amount: amount, Reason: "Correction"})
		default:
			result, err = l.admin.Adjust(ctx, &AdminAdjustment{AccountID: accountID, Direction: ledger.DirectionAdd, Amount: amount, Reason: "Correction"})
		}

		if err != nil {
			require.ErrorIs(t, err, ledger.ErrInsufficientBalance{})
			assert.Equal(t, before, l.store.balance(accountID), "failed mutation changed balance")
			assert.Len(t, l.store.entriesOf(accountID), entriesBefore, "failed mutation wrote entry")
			continue
		}
		assert.Equal(t, before, result.Entry.BalanceBefore)
		assert.Equal(t, result.NewBalance, l.store.balance(accountID))
	}

	for _, accountID := range accounts {
		assertLedgerInvariants(t, l, accountID)
	}
}

func TestProperties_ConcurrentSpendsExhaustBalance(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()
	fund(t, l, accountID, 10)

	var succeeded, refused atomic.Int64
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := l.spend.Spend(ctx, &SpendRequest{AccountID: accountID, ToolReference: "t", Cost: 1})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ledger.ErrInsufficientBalance{}):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(10), succeeded.Load())
	assert.Equal(t, int64(15), refused.Load())
	assert.Equal(t, int64(0), l.store.balance(accountID))
	assertLedgerInvariants(t, l, accountID)
}

func TestScenario_RegistrationBonus(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()

	_, err := l.bonus.GrantRegistrationBonus(context.Background(), accountID, 100)
	require.NoError(t, err)

	assert.Equal(t, int64(100), l.store.balance(accountID))
	entries := l.store.entriesOf(accountID)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.KindRegistrationBonus, entries[0].Kind)
	assert.Equal(t, int64(100), entries[0].Amount)
	assert.Equal(t, int64(0), entries[0].BalanceBefore)
	assert.Equal(t, int64(100), entries[0].BalanceAfter)
}

func TestScenario_SpendFromHundred(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()
	_, err := l.bonus.GrantRegistrationBonus(context.Background(), accountID, 100)
	require.NoError(t, err)

	result, err := l.spend.Spend(context.Background(), &SpendRequest{AccountID: accountID, ToolReference: "password-generator", Cost: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(99), result.NewBalance)

	entries := l.store.entriesOf(accountID)
	require.Len(t, entries, 2)
	assert.Equal(t, ledger.KindSpend, entries[1].Kind)
	assert.Equal(t, int64(-1), entries[1].Amount)
}

func TestScenario_SpendFromZero(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()

	_, err := l.spend.Spend(context.Background(), &SpendRequest{AccountID: accountID, ToolReference: "password-generator", Cost: 1})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance{})
	assert.Empty(t, l.store.entriesOf(accountID))
	assert.Equal(t, int64(0), l.store.balance(accountID))
}

func TestScenario_AdminSubtractBeyondBalance(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()
	fund(t, l, accountID, 50)

	_, err := l.admin.Adjust(context.Background(), &AdminAdjustment{
		AccountID: accountID,
		Direction: ledger.DirectionSubtract,
		Amount:    200,
		Reason:    "Correction",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance{})
	assert.Equal(t, int64(50), l.store.balance(accountID))
	assert.Len(t, l.store.entriesOf(accountID), 1)
}

func TestScenario_TwoConcurrentSpendsOfSix(t *testing.T) {
	for run := 0; run < 20; run++ {
		l := newTestLedger(false)
		accountID := l.store.createAccount()
		fund(t, l, accountID, 10)

		errs := make([]error, 2)
		var g errgroup.Group
		for i := range errs {
			g.Go(func() error {
				_, errs[i] = l.spend.Spend(context.Background(), &SpendRequest{AccountID: accountID, ToolReference: "t", Cost: 6})
				return nil
			})
		}
		require.NoError(t, g.Wait())

		var ok, insufficient int
		for _, err := range errs {
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ledger.ErrInsufficientBalance{}):
				insufficient++
			}
		}
		assert.Equal(t, 1, ok)
		assert.Equal(t, 1, insufficient)
		assert.Equal(t, int64(4), l.store.balance(accountID))
	}
}

func TestScenario_HistoryKindFilter(t *testing.T) {
	l := newTestLedger(false)
	accountID := l.store.createAccount()
	ctx := context.Background()

	_, err := l.bonus.GrantRegistrationBonus(ctx, accountID, 100)
	require.NoError(t, err)
	for i := 0; i < 15; i++ {
		_, err := l.spend.Spend(ctx, &SpendRequest{AccountID: accountID, ToolReference: "password-generator", Cost: 1})
		require.NoError(t, err)
	}

	page, err := l.history.ListEntries(ctx, accountID, HistoryQuery{
		Kinds:    []ledger.Kind{ledger.KindSpend},
		Page:     1,
		PageSize: 10,
	})
	require.NoError(t, err)

	assert.Len(t, page.Entries, 10)
	assert.Equal(t, int64(15), page.TotalCount)
	assert.Equal(t, 2, page.PageCount)
	for _, e := range page.Entries {
		assert.Equal(t, ledger.KindSpend, e.Kind)
	}
}
