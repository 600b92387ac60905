package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
)

type memoryRepo struct {
	products    map[string]*Product
	auditTxs    []stock.StockTransaction
	pendingBill map[string]int
	pendingTx   map[string]int
	deleteErrs  []error
	deleteCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		products:    map[string]*Product{},
		pendingBill: map[string]int{},
		pendingTx:   map[string]int{},
	}
}

func (m *memoryRepo) add(p Product) {
	cp := p
	m.products[p.ID] = &cp
}

func (m *memoryRepo) ListProducts(ctx context.Context) ([]Product, error) {
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, *p)
	}
	return out, nil
}

func (m *memoryRepo) Get(ctx context.Context, id string) (Product, error) {
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrProductNotFound
	}
	return *p, nil
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, &memoryTx{repo: m})
}

func (m *memoryRepo) CountPendingBills(ctx context.Context, id string) (int, error) {
	return m.pendingBill[id], nil
}

func (m *memoryRepo) CountPendingTransactions(ctx context.Context, id string) (int, error) {
	return m.pendingTx[id], nil
}

func (m *memoryRepo) DeleteProduct(ctx context.Context, id string) error {
	m.deleteCalls++
	if len(m.deleteErrs) > 0 {
		err := m.deleteErrs[0]
		m.deleteErrs = m.deleteErrs[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *memoryRepo) DeleteProductWithTransactions(ctx context.Context, id string) (int64, error) {
	if _, ok := m.products[id]; !ok {
		return 0, ErrProductNotFound
	}
	var removed int64
	kept := m.auditTxs[:0]
	for _, tx := range m.auditTxs {
		if tx.ProductID == id {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	m.auditTxs = kept
	delete(m.products, id)
	return removed, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetProductForUpdate(ctx context.Context, id string) (Product, error) {
	return t.repo.Get(ctx, id)
}

func (t *memoryTx) InsertAuditTransaction(ctx context.Context, tx stock.StockTransaction) error {
	t.repo.auditTxs = append(t.repo.auditTxs, tx)
	return nil
}

func (t *memoryTx) MarkDeleted(ctx context.Context, id string, at time.Time) error {
	p, ok := t.repo.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Deleted = true
	p.DeletedAt = &at
	p.CurrentStock = 0
	return nil
}

func (t *memoryTx) ClearDeleted(ctx context.Context, id string) error {
	p, ok := t.repo.products[id]
	if !ok {
		return ErrProductNotFound
	}
	p.Deleted = false
	p.DeletedAt = nil
	return nil
}

type lifecycleRecorder struct {
	events []ProductLifecycleEvent
}

func (r *lifecycleRecorder) PublishProductLifecycle(ctx context.Context, evt ProductLifecycleEvent) error {
	r.events = append(r.events, evt)
	return nil
}

type auditRecorder struct {
	logs []shared.AuditLog
}

func (r *auditRecorder) Record(ctx context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newTestService(t *testing.T, repo *memoryRepo) (*Service, *lifecycleRecorder, *auditRecorder) {
	t.Helper()
	pub := &lifecycleRecorder{}
	aud := &auditRecorder{}
	svc := NewService(repo, NewConsolidationCache(nil, time.Minute), pub, aud, nil, ServiceConfig{
		HardDeleteMaxAttempts: 3,
		HardDeleteBackoff:     time.Millisecond,
	})
	svc.sleep = func(time.Duration) {}
	return svc, pub, aud
}

func TestSoftDeleteRecordsAbandonedStockFirst(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 7})
	svc, pub, aud := newTestService(t, repo)

	require.NoError(t, svc.SoftDelete(context.Background(), "p1"))

	p := repo.products["p1"]
	require.True(t, p.Deleted)
	require.NotNil(t, p.DeletedAt)
	require.Equal(t, 0.0, p.CurrentStock)

	require.Len(t, repo.auditTxs, 1)
	tx := repo.auditTxs[0]
	require.Equal(t, stock.TransactionTypeAdjustment, tx.Type)
	require.Equal(t, 7.0, tx.Quantity)
	require.Equal(t, 0.0, tx.TotalAmount)
	require.Contains(t, tx.Notes, "SOFT DELETE")
	require.False(t, tx.TransactionDate.After(*p.DeletedAt))

	require.Len(t, pub.events, 1)
	require.Equal(t, LifecycleSoftDeleted, pub.events[0].Kind)
	require.Equal(t, 7.0, pub.events[0].StockAtDeletion)
	require.Len(t, aud.logs, 1)
	require.False(t, aud.logs[0].At.IsZero())
}

func TestSoftDeleteZeroStockSkipsAuditTransaction(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire"})
	svc, _, _ := newTestService(t, repo)

	require.NoError(t, svc.SoftDelete(context.Background(), "p1"))
	require.Empty(t, repo.auditTxs)
	require.True(t, repo.products["p1"].Deleted)
}

func TestSoftDeleteTwiceFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 2})
	svc, _, _ := newTestService(t, repo)

	require.NoError(t, svc.SoftDelete(context.Background(), "p1"))
	err := svc.SoftDelete(context.Background(), "p1")
	require.ErrorIs(t, err, ErrAlreadyDeleted)
	require.Len(t, repo.auditTxs, 1)
}

func TestRestoreDoesNotReplenishStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 7})
	svc, pub, _ := newTestService(t, repo)

	require.NoError(t, svc.SoftDelete(context.Background(), "p1"))
	require.NoError(t, svc.Restore(context.Background(), "p1"))

	p := repo.products["p1"]
	require.False(t, p.Deleted)
	require.Nil(t, p.DeletedAt)
	require.Equal(t, 0.0, p.CurrentStock)

	require.Len(t, repo.auditTxs, 2)
	require.Contains(t, repo.auditTxs[1].Notes, "RESTORE")
	require.Equal(t, 0.0, repo.auditTxs[1].Quantity)
	require.Equal(t, LifecycleRestored, pub.events[1].Kind)
}

func TestRestoreActiveProductFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire"})
	svc, _, _ := newTestService(t, repo)

	require.ErrorIs(t, svc.Restore(context.Background(), "p1"), ErrNotDeleted)
}

func TestHardDeleteBlockedByReferences(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire"})
	repo.pendingBill["p1"] = 1
	svc, pub, _ := newTestService(t, repo)

	err := svc.HardDelete(context.Background(), "p1")
	var refErr *ReferenceConflictError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, 1, refErr.PendingBills)
	require.Contains(t, err.Error(), "1 pending bills")

	require.Zero(t, repo.deleteCalls)
	require.Contains(t, repo.products, "p1")
	require.Empty(t, pub.events)
}

func TestHardDeleteRetriesTransientConflicts(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 3})
	repo.deleteErrs = []error{ErrTransientConflict, ErrTransientConflict}
	svc, pub, _ := newTestService(t, repo)

	require.NoError(t, svc.HardDelete(context.Background(), "p1"))
	require.Equal(t, 3, repo.deleteCalls)
	require.NotContains(t, repo.products, "p1")

	require.Len(t, repo.auditTxs, 1)
	require.Contains(t, repo.auditTxs[0].Notes, "HARD DELETE")
	require.Equal(t, LifecycleHardDeleted, pub.events[0].Kind)
}

func TestHardDeleteGivesUpAfterMaxAttempts(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire"})
	repo.deleteErrs = []error{ErrTransientConflict, ErrTransientConflict, ErrTransientConflict}
	svc, _, _ := newTestService(t, repo)

	err := svc.HardDelete(context.Background(), "p1")
	require.ErrorIs(t, err, ErrTransientConflict)
	require.Equal(t, 3, repo.deleteCalls)
}

func TestHardDeleteDoesNotRetryOtherErrors(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire"})
	boom := errors.New("connection refused")
	repo.deleteErrs = []error{boom}
	svc, _, _ := newTestService(t, repo)

	err := svc.HardDelete(context.Background(), "p1")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, repo.deleteCalls)
}

func TestForceDeleteRemovesTransactionHistory(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 2})
	repo.auditTxs = []stock.StockTransaction{
		{ID: "t1", ProductID: "p1"},
		{ID: "t2", ProductID: "p1"},
		{ID: "t3", ProductID: "other"},
	}
	svc, pub, aud := newTestService(t, repo)

	require.NoError(t, svc.ForceDelete(context.Background(), "p1"))
	require.NotContains(t, repo.products, "p1")
	require.Len(t, repo.auditTxs, 1)
	require.Equal(t, "t3", repo.auditTxs[0].ID)
	require.Equal(t, LifecycleForceDeleted, pub.events[0].Kind)
	require.Equal(t, int64(2), aud.logs[0].Meta["transactions_removed"])
}

func TestSoftDeleteGroupReportsPerMember(t *testing.T) {
	repo := newMemoryRepo()
	repo.add(Product{ID: "p1", Name: "Copper Wire", CurrentStock: 1})
	svc, _, _ := newTestService(t, repo)

	results := svc.SoftDeleteGroup(context.Background(), []string{"p1", "missing"})
	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.False(t, results[1].Success)
	require.Contains(t, results[1].Error, "not found")
	require.True(t, repo.products["p1"].Deleted)
}

func TestConsolidatedViewWithoutCache(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Now().UTC()
	repo.add(Product{ID: "p1", Name: "Bolt", CurrentStock: 3, UpdatedAt: now})
	repo.add(Product{ID: "p2", Name: "Bolt", CurrentStock: 4, UpdatedAt: now.Add(time.Hour)})
	svc, _, _ := newTestService(t, repo)

	view, err := svc.ConsolidatedView(context.Background())
	require.NoError(t, err)
	require.Len(t, view, 1)
	require.Equal(t, 7.0, view[0].CurrentStock)
	require.Equal(t, "p2", view[0].ID)
}
