package syncer

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/receipt-sync/internal/archive"
	"github.com/dvloznov/receipt-sync/internal/ledger"
	"github.com/dvloznov/receipt-sync/internal/logger"
	"github.com/dvloznov/receipt-sync/internal/money"
	"github.com/dvloznov/receipt-sync/internal/reconcile"
	"github.com/dvloznov/receipt-sync/internal/receipt"
	"github.com/dvloznov/receipt-sync/internal/runlog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource implements loyalty.Source for testing.
type mockSource struct {
	baskets []receipt.RawBasket
	err     error
}

func (m *mockSource) FetchBaskets(ctx context.Context) ([]receipt.RawBasket, error) {
	return m.baskets, m.err
}

// mockStore implements ledger.Store for testing.
type mockStore struct {
	txs       []*ledger.Transaction
	listErr   error
	updateErr error
	calls     [][]ledger.Update
}

func (m *mockStore) ListTransactions(ctx context.Context, budgetID string) ([]*ledger.Transaction, error) {
	return m.txs, m.listErr
}

func (m *mockStore) UpdateTransactions(ctx context.Context, budgetID string, updates []ledger.Update) error {
	m.calls = append(m.calls, updates)
	return m.updateErr
}

const basketView = `<div>
<div class="row"><span class="left">Milk</span><span class="right">€2.00</span></div>
<div class="row"><span class="left">Bread</span><span class="right">€3.00</span></div>
<div class="row"><span class="left">Eggs</span><span class="right">€5.00</span></div>
<hr>
<div class="row"><span class="left">Total</span><span class="right">€10.00</span></div>
</div>`

func basket(id, paid string) receipt.RawBasket {
	return receipt.RawBasket{
		ID:    id,
		Type:  "instore",
		Date:  "2024-03-01T10:00:00Z",
		Total: decimal.RequireFromString("10.00"),
		Paid:  decimal.RequireFromString(paid),
		View:  basketView,
	}
}

func supervaluTx(id string, amount int64) *ledger.Transaction {
	return &ledger.Transaction{
		ID:         id,
		Date:       civil.Date{Year: 2024, Month: 3, Day: 2},
		Amount:     money.Milliunits(-amount),
		PayeeID:    "p-1",
		PayeeName:  reconcile.DefaultPayeeName,
		CategoryID: "c-groceries",
	}
}

func testOptions(dryRun bool) Options {
	return Options{
		BudgetID: "budget-1",
		Match:    reconcile.Options{Location: time.UTC},
		DryRun:   dryRun,
		Trigger:  "test",
	}
}

func TestSyncReceipts_WritesOnce(t *testing.T) {
	src := &mockSource{baskets: []receipt.RawBasket{basket("b-1", "10.00"), basket("b-2", "7.77")}}
	store := &mockStore{txs: []*ledger.Transaction{supervaluTx("t-1", 10000)}}
	rec := runlog.NewMemoryRecorder()
	arch := archive.NewMemoryArchiver()

	report, err := New(src, store, rec, arch).SyncReceipts(context.Background(), testOptions(false))
	require.NoError(t, err)

	require.Len(t, store.calls, 1)
	require.Len(t, store.calls[0], 1)
	update := store.calls[0][0]
	assert.Equal(t, "t-1", update.TransactionID)
	assert.Len(t, update.Splits, 3)
	assert.Equal(t, int64(-10000), int64(update.SplitTotal()))

	assert.Equal(t, runlog.Stats{Receipts: 2, Updated: 1, Unmatched: 1}, report.Stats)

	runs, err := rec.ListRecentRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].RunID)
	assert.Equal(t, runlog.StatusSuccess, runs[0].Status)

	_, ok := arch.Get(archive.ReportObject(report.RunID))
	assert.True(t, ok)
	_, ok = arch.Get(archive.BasketObject(report.RunID, src.baskets[0]))
	assert.True(t, ok)
}

func TestSyncReceipts_DryRunNoWrite(t *testing.T) {
	src := &mockSource{baskets: []receipt.RawBasket{basket("b-1", "10.00")}}
	store := &mockStore{txs: []*ledger.Transaction{supervaluTx("t-1", 10000)}}

	report, err := New(src, store, nil, nil).SyncReceipts(context.Background(), testOptions(true))
	require.NoError(t, err)

	assert.Empty(t, store.calls)
	assert.True(t, report.DryRun)
	assert.Len(t, report.Updates, 1, "the plan is still reported")
}

func TestSyncReceipts_EmptyPlanNoWrite(t *testing.T) {
	src := &mockSource{baskets: []receipt.RawBasket{basket("b-1", "10.00")}}
	store := &mockStore{}

	report, err := New(src, store, nil, nil).SyncReceipts(context.Background(), testOptions(false))
	require.NoError(t, err)

	assert.Empty(t, store.calls)
	assert.Equal(t, 1, report.Stats.Unmatched)
}

func TestSyncReceipts_DegenerateLoggedAtWarn(t *testing.T) {
	zero := basket("b-1", "0.00")
	zero.Total = decimal.Zero
	zero.View = `<div class="row"><span class="left">Bag</span><span class="right">€0.00</span></div>`
	tx := supervaluTx("t-1", 0)

	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&buf))

	store := &mockStore{txs: []*ledger.Transaction{tx}}
	report, err := New(&mockSource{baskets: []receipt.RawBasket{zero}}, store, nil, nil).SyncReceipts(ctx, testOptions(false))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.Degenerate)
	assert.Empty(t, store.calls)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"receipt_id":"b-1"`)
}

func TestSyncReceipts_FetchErrorIsFatal(t *testing.T) {
	boom := errors.New("portal down")
	store := &mockStore{}
	rec := runlog.NewMemoryRecorder()

	_, err := New(&mockSource{err: boom}, store, rec, nil).SyncReceipts(context.Background(), testOptions(false))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.calls)

	runs, _ := rec.ListRecentRuns(context.Background(), 1)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].ErrorMessage, "portal down")
}

func TestSyncReceipts_ListErrorIsFatal(t *testing.T) {
	boom := errors.New("ynab down")
	store := &mockStore{listErr: boom}

	_, err := New(&mockSource{}, store, nil, nil).SyncReceipts(context.Background(), testOptions(false))
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, store.calls)
}

func TestSyncReceipts_WriteErrorIsFatal(t *testing.T) {
	boom := errors.New("429")
	src := &mockSource{baskets: []receipt.RawBasket{basket("b-1", "10.00")}}
	store := &mockStore{txs: []*ledger.Transaction{supervaluTx("t-1", 10000)}, updateErr: boom}
	rec := runlog.NewMemoryRecorder()

	_, err := New(src, store, rec, nil).SyncReceipts(context.Background(), testOptions(false))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, store.calls, 1)

	runs, _ := rec.ListRecentRuns(context.Background(), 1)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusFailed, runs[0].Status)
}

func TestSyncReceipts_RequiresBudget(t *testing.T) {
	_, err := New(&mockSource{}, &mockStore{}, nil, nil).SyncReceipts(context.Background(), Options{})
	assert.Error(t, err)
}

func TestSyncReceipts_SecondRunIsNoop(t *testing.T) {
	src := &mockSource{baskets: []receipt.RawBasket{basket("b-1", "10.00")}}
	tx := supervaluTx("t-1", 10000)
	store := &mockStore{txs: []*ledger.Transaction{tx}}
	s := New(src, store, nil, nil)

	_, err := s.SyncReceipts(context.Background(), testOptions(false))
	require.NoError(t, err)
	require.Len(t, store.calls, 1)

	tx.Subtransactions = store.calls[0][0].Splits

	report, err := s.SyncReceipts(context.Background(), testOptions(false))
	require.NoError(t, err)
	assert.Len(t, store.calls, 1)
	assert.Equal(t, 1, report.Stats.AlreadyItemized)
}
