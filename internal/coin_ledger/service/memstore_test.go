package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/coin-ledger/internal/domain/account"
	"github.com/coin-ledger/internal/domain/ledger"
	"github.com/coin-ledger/internal/domain/outbox"
	"github.com/coin-ledger/internal/domain/reason"
	"github.com/coin-ledger/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memStore is an in-memory ledger store. LockForUpdate holds a per-account
// mutex until the unit of work ends, like SELECT ... FOR UPDATE; writes are
// buffered and only become visible on commit.
type memStore struct {
	mu       sync.Mutex
	rowLocks map[uuid.UUID]*sync.Mutex
	accounts map[uuid.UUID]account.Account
	entries  []*ledger.Entry
	messages []*outbox.Message
	seq      int64
	clock    time.Time

	failOutbox error
	failCommit error
	afterLock  func(id uuid.UUID)
}

func newMemStore() *memStore {
	return &memStore{
		rowLocks: make(map[uuid.UUID]*sync.Mutex),
		accounts: make(map[uuid.UUID]account.Account),
		clock:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type memTx struct {
	store    *memStore
	held     []*sync.Mutex
	balances map[uuid.UUID]int64
	entries  []*ledger.Entry
	messages []*outbox.Message
}

func (s *memStore) Do(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{store: s, balances: make(map[uuid.UUID]int64)}
	defer tx.release()

	stores := Stores{
		Balances: &memBalances{tx: tx},
		Entries:  &memEntries{store: s, tx: tx},
		Outbox:   &memOutbox{store: s, tx: tx},
	}
	if err := fn(ctx, stores); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failCommit != nil {
		return s.failCommit
	}
	s.commit(tx)
	return nil
}

func (s *memStore) commit(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, balance := range tx.balances {
		acc := s.accounts[id]
		acc.Balance = balance
		acc.Version++
		s.accounts[id] = acc
	}
	s.entries = append(s.entries, tx.entries...)
	for _, m := range tx.messages {
		m.ID = int64(len(s.messages) + 1)
		s.messages = append(s.messages, m)
	}
}

func (tx *memTx) release() {
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	tx.held = nil
}

func (s *memStore) createAccount() uuid.UUID {
	acc := account.NewAccount()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[acc.ID] = *acc
	s.rowLocks[acc.ID] = &sync.Mutex{}
	return acc.ID
}

func (s *memStore) balance(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id].Balance
}

func (s *memStore) entriesOf(id uuid.UUID) []*ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ledger.Entry
	for _, e := range s.entries {
		if e.AccountID == id {
			out = append(out, e)
		}
	}
	return out
}

func (s *memStore) outboxCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// memBalances implements account.BalanceStore inside a memTx
type memBalances struct {
	tx *memTx
}

func (b *memBalances) LockForUpdate(_ context.Context, id uuid.UUID) (*account.Account, error) {
	s := b.tx.store
	s.mu.Lock()
	acc, ok := s.accounts[id]
	if !ok || acc.DeletedAt != nil {
		s.mu.Unlock()
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	lock := s.rowLocks[id]
	s.mu.Unlock()

	lock.Lock()
	b.tx.held = append(b.tx.held, lock)
	if s.afterLock != nil {
		s.afterLock(id)
	}

	s.mu.Lock()
	acc = s.accounts[id]
	s.mu.Unlock()
	if pending, ok := b.tx.balances[id]; ok {
		acc.Balance = pending
	}
	return &acc, nil
}

func (b *memBalances) UpdateBalance(_ context.Context, id uuid.UUID, balance int64) error {
	if balance < 0 {
		return errors.New("check constraint accounts_balance_non_negative")
	}
	b.tx.balances[id] = balance
	return nil
}

func (b *memBalances) WithTx(pgx.Tx) account.BalanceStore {
	return b
}

// memEntries implements ledger.Repository. Without a tx it reads committed entries.
type memEntries struct {
	store *memStore
	tx    *memTx
}

func (r *memEntries) visible() []*ledger.Entry {
	r.store.mu.Lock()
	out := slices.Clone(r.store.entries)
	r.store.mu.Unlock()
	if r.tx != nil {
		out = append(out, r.tx.entries...)
	}
	return out
}

func (r *memEntries) Append(_ context.Context, entry *ledger.Entry) error {
	if r.tx == nil {
		return errors.New("append outside unit of work")
	}
	if entry.IdempotencyKey != "" {
		for _, e := range r.visible() {
			if e.AccountID == entry.AccountID && e.IdempotencyKey == entry.IdempotencyKey {
				return ledger.ErrIdempotencyConflict
			}
		}
	}
	r.store.mu.Lock()
	r.store.seq++
	r.store.clock = r.store.clock.Add(time.Millisecond)
	entry.Sequence = r.store.seq
	entry.CreatedAt = r.store.clock
	r.store.mu.Unlock()
	r.tx.entries = append(r.tx.entries, entry)
	return nil
}

func (r *memEntries) GetByID(_ context.Context, id uuid.UUID) (*ledger.Entry, error) {
	for _, e := range r.visible() {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{EntryID: id}
}

func (r *memEntries) GetByIdempotencyKey(_ context.Context, accountID uuid.UUID, key string) (*ledger.Entry, error) {
	for _, e := range r.visible() {
		if e.AccountID == accountID && e.IdempotencyKey == key {
			return e, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{}
}

func (r *memEntries) matching(filter ledger.Filter) []*ledger.Entry {
	var out []*ledger.Entry
	for _, e := range r.visible() {
		if e.AccountID != filter.AccountID {
			continue
		}
		if len(filter.Kinds) > 0 && !slices.Contains(filter.Kinds, e.Kind) {
			continue
		}
		if filter.From != nil && e.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.CreatedAt.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Sequence > out[j].Sequence
	})
	return out
}

func (r *memEntries) List(_ context.Context, filter ledger.Filter) ([]*ledger.Entry, error) {
	out := r.matching(filter)
	if filter.Offset >= len(out) {
		return []*ledger.Entry{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memEntries) Count(_ context.Context, filter ledger.Filter) (int64, error) {
	return int64(len(r.matching(filter))), nil
}

func (r *memEntries) Stats(_ context.Context, accountID uuid.UUID) (*ledger.Stats, error) {
	stats := &ledger.Stats{AccountID: accountID}
	for _, e := range r.matching(ledger.Filter{AccountID: accountID}) {
		if e.Amount > 0 {
			stats.TotalCredited += e.Amount
		} else {
			stats.TotalDebited += e.Magnitude()
		}
		stats.EntryCount++
		at := e.CreatedAt
		if stats.FirstEntryAt == nil || at.Before(*stats.FirstEntryAt) {
			stats.FirstEntryAt = &at
		}
		if stats.LastEntryAt == nil || at.After(*stats.LastEntryAt) {
			stats.LastEntryAt = &at
		}
	}
	return stats, nil
}

func (r *memEntries) LastEntry(_ context.Context, accountID uuid.UUID) (*ledger.Entry, error) {
	out := r.matching(ledger.Filter{AccountID: accountID})
	if len(out) == 0 {
		return nil, ledger.ErrEntryNotFound{}
	}
	return out[0], nil
}

func (r *memEntries) CountByReasonID(_ context.Context, reasonID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range r.visible() {
		if id, ok := e.Metadata["reason_id"].(string); ok && id == reasonID.String() {
			n++
		}
	}
	return n, nil
}

func (r *memEntries) RefundedAmount(_ context.Context, spendID uuid.UUID) (int64, error) {
	var total int64
	for _, e := range r.visible() {
		if id, ok := e.Metadata[ledger.MetadataRefundedEntryID].(string); ok && e.Kind == ledger.KindRefund && id == spendID.String() {
			total += e.Amount
		}
	}
	return total, nil
}

func (r *memEntries) WithTx(pgx.Tx) ledger.Repository {
	return r
}

// memOutbox implements outbox.Repository
type memOutbox struct {
	store *memStore
	tx    *memTx
}

func (o *memOutbox) Create(_ context.Context, message *outbox.Message) error {
	if o.store.failOutbox != nil {
		return o.store.failOutbox
	}
	if o.tx == nil {
		return errors.New("outbox write outside unit of work")
	}
	o.tx.messages = append(o.tx.messages, message)
	return nil
}

func (o *memOutbox) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	var out []*outbox.Message
	for _, m := range o.store.messages {
		if m.Status == shared.OutboxStatusPending && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *memOutbox) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	for _, m := range o.store.messages {
		if m.ID == id {
			m.Status = status
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

func (o *memOutbox) RecordFailedAttempt(_ context.Context, id int64) (int, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	for _, m := range o.store.messages {
		if m.ID == id {
			m.Attempts++
			return m.Attempts, nil
		}
	}
	return 0, outbox.ErrMessageNotFound{ID: id}
}

func (o *memOutbox) CountPending(_ context.Context) (int64, error) {
	o.store.mu.Lock()
	defer o.store.mu.Unlock()
	var n int64
	for _, m := range o.store.messages {
		if m.Status == shared.OutboxStatusPending {
			n++
		}
	}
	return n, nil
}

func (o *memOutbox) WithTx(pgx.Tx) outbox.Repository {
	return o
}

// memAccounts implements account.Repository over the same store
type memAccounts struct {
	store *memStore
}

func (a *memAccounts) Create(_ context.Context, acc *account.Account) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	stored := *acc
	stored.Balance = 0
	a.store.accounts[acc.ID] = stored
	a.store.rowLocks[acc.ID] = &sync.Mutex{}
	return nil
}

func (a *memAccounts) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	acc, ok := a.store.accounts[id]
	if !ok || acc.DeletedAt != nil {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	return &acc, nil
}

func (a *memAccounts) GetIncludingDeleted(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	acc, ok := a.store.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	return &acc, nil
}

func (a *memAccounts) Restore(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	acc, ok := a.store.accounts[id]
	if !ok || acc.DeletedAt == nil || acc.Balance != 0 {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	for _, e := range a.store.entries {
		if e.AccountID == id {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
	}
	acc.DeletedAt = nil
	a.store.accounts[id] = acc
	return &acc, nil
}

func (a *memAccounts) SoftDelete(_ context.Context, id uuid.UUID) error {
	a.store.mu.Lock()
	defer a.store.mu.Unlock()
	acc, ok := a.store.accounts[id]
	if !ok || acc.DeletedAt != nil {
		return account.ErrAccountNotFound{AccountID: id}
	}
	now := time.Now().UTC()
	acc.DeletedAt = &now
	a.store.accounts[id] = acc
	return nil
}

// memReasons implements reason.Repository
type memReasons struct {
	mu      sync.Mutex
	reasons map[uuid.UUID]*reason.Reason
	failAll error
}

func newMemReasons(seed ...*reason.Reason) *memReasons {
	r := &memReasons{reasons: make(map[uuid.UUID]*reason.Reason)}
	for _, s := range seed {
		r.reasons[s.ID] = s
	}
	return r
}

func (r *memReasons) Create(_ context.Context, rsn *reason.Reason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.reasons {
		if strings.EqualFold(existing.Text, rsn.Text) && existing.Polarity == rsn.Polarity {
			return reason.ErrDuplicateReason{Text: rsn.Text, Polarity: rsn.Polarity}
		}
	}
	cp := *rsn
	r.reasons[rsn.ID] = &cp
	return nil
}

func (r *memReasons) GetByID(_ context.Context, id uuid.UUID) (*reason.Reason, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rsn, ok := r.reasons[id]
	if !ok {
		return nil, reason.ErrReasonNotFound{ReasonID: id}
	}
	cp := *rsn
	return &cp, nil
}

func (r *memReasons) List(_ context.Context, filter reason.ListFilter) ([]*reason.Reason, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*reason.Reason
	for _, rsn := range r.reasons {
		if !filter.IncludeInactive && !rsn.Active {
			continue
		}
		if filter.Direction != nil && rsn.Polarity != *filter.Direction && rsn.Polarity != reason.PolarityBoth {
			continue
		}
		cp := *rsn
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Text < out[j].Text
	})
	return out, nil
}

func (r *memReasons) FindActiveByText(_ context.Context, direction reason.Polarity, text string) (*reason.Reason, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll != nil {
		return nil, r.failAll
	}
	for _, rsn := range r.reasons {
		if rsn.Active && rsn.Polarity.Allows(ledger.Direction(direction)) && strings.EqualFold(strings.TrimSpace(text), rsn.Text) {
			cp := *rsn
			return &cp, nil
		}
	}
	return nil, reason.ErrReasonNotFound{}
}

func (r *memReasons) Update(_ context.Context, rsn *reason.Reason) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.reasons[rsn.ID]; !ok {
		return reason.ErrReasonNotFound{ReasonID: rsn.ID}
	}
	cp := *rsn
	r.reasons[rsn.ID] = &cp
	return nil
}

func (r *memReasons) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rsn, ok := r.reasons[id]
	if !ok {
		return reason.ErrReasonNotFound{ReasonID: id}
	}
	rsn.Active = active
	return nil
}

func (r *memReasons) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rsn, ok := r.reasons[id]
	if !ok || rsn.System {
		return reason.ErrReasonNotFound{ReasonID: id}
	}
	delete(r.reasons, id)
	return nil
}

// systemReason mirrors a seeded catalog row
func systemReason(text string, polarity reason.Polarity, sortOrder int) *reason.Reason {
	rsn, _ := reason.NewReason(text, polarity, sortOrder)
	rsn.System = true
	return rsn
}

type recordedMutation struct {
	kind    ledger.Kind
	outcome string
}

type fakeRecorder struct {
	mu        sync.Mutex
	mutations []recordedMutation
}

func (f *fakeRecorder) ObserveMutation(kind ledger.Kind, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutations = append(f.mutations, recordedMutation{kind: kind, outcome: outcome})
}

func (f *fakeRecorder) outcomes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.mutations))
	for _, m := range f.mutations {
		out = append(out, m.outcome)
	}
	return out
}

type fakeObserver struct {
	mu      sync.Mutex
	entries []*ledger.Entry
}

func (f *fakeObserver) EntryCommitted(_ context.Context, entry *ledger.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeObserver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// testLedger wires every service over one memStore
type testLedger struct {
	store    *memStore
	reasons  *memReasons
	recorder *fakeRecorder
	observer *fakeObserver
	executor *ExecutorImpl
	spend    SpendGateway
	admin    AdminAdjuster
	bonus    BonusGranter
	history  HistoryReader
	catalog  ReasonCatalog
}

func newTestLedger(strict bool) *testLedger {
	store := newMemStore()
	reasons := newMemReasons(
		systemReason("Correction", reason.PolarityBoth, 10),
		systemReason("Goodwill credit", reason.PolarityAdd, 20),
		systemReason("Chargeback", reason.PolaritySubtract, 30),
	)
	recorder := &fakeRecorder{}
	observer := &fakeObserver{}
	logger := newTestLogger()
	entries := &memEntries{store: store}

	executor := NewExecutor(store, recorder, logger, observer)
	catalog := NewReasonCatalog(reasons, entries, logger)
	return &testLedger{
		store:    store,
		reasons:  reasons,
		recorder: recorder,
		observer: observer,
		executor: executor,
		spend:    NewSpendGateway(executor, logger),
		admin:    NewAdminAdjuster(executor, catalog, strict, logger),
		bonus:    NewBonusGranter(executor, logger),
		history:  NewHistoryReader(&memAccounts{store: store}, entries, 20, 100, logger),
		catalog:  catalog,
	}
}
