package stock

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	levels   map[string]StockLevel
	txs      []StockTransaction
	failNext error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{levels: make(map[string]StockLevel)}
}

func (m *memoryStore) addProduct(id, name string, stock, sellingPrice float64) {
	m.levels[id] = StockLevel{ProductID: id, Name: name, CurrentStock: stock, SellingPrice: sellingPrice}
}

func (m *memoryStore) GetStockLevels(ctx context.Context, ids []string) (map[string]StockLevel, error) {
	if m.failNext != nil {
		err := m.failNext
		m.failNext = nil
		return nil, err
	}
	out := make(map[string]StockLevel)
	for _, id := range ids {
		if level, ok := m.levels[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

func (m *memoryStore) GetPriceSnapshots(ctx context.Context, ids []string) (map[string]PriceSnapshot, error) {
	out := make(map[string]PriceSnapshot)
	for _, id := range ids {
		if level, ok := m.levels[id]; ok {
			out[id] = PriceSnapshot{SellingPrice: level.SellingPrice}
		}
	}
	return out, nil
}

func (m *memoryStore) AdjustStock(ctx context.Context, productID string, delta float64) (float64, error) {
	level, ok := m.levels[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	level.CurrentStock += delta
	m.levels[productID] = level
	return level.CurrentStock, nil
}

func (m *memoryStore) SetStock(ctx context.Context, productID string, newStock float64) (float64, error) {
	level, ok := m.levels[productID]
	if !ok {
		return 0, ErrProductNotFound
	}
	old := level.CurrentStock
	level.CurrentStock = newStock
	m.levels[productID] = level
	return old, nil
}

func (m *memoryStore) InsertTransaction(ctx context.Context, tx StockTransaction) (string, error) {
	m.txs = append(m.txs, tx)
	return tx.ID, nil
}

func (m *memoryStore) ListTransactions(ctx context.Context, productID string, limit int) ([]StockTransaction, error) {
	var out []StockTransaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].ProductID == productID {
			out = append(out, m.txs[i])
		}
	}
	return out, nil
}

type recordingPublisher struct {
	events []StockChangedEvent
}

func (p *recordingPublisher) PublishStockChanged(ctx context.Context, evt StockChangedEvent) error {
	p.events = append(p.events, evt)
	return nil
}

func newTestService(store Store) *Service {
	return NewService(store, &recordingPublisher{}, nil, ServiceConfig{})
}

func TestValidateInsufficientStock(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 100)
	store.addProduct("b", "Product B", 0, 100)
	svc := newTestService(store)

	result, err := svc.ValidateStock(context.Background(), []ValidationItem{
		{ProductID: "a", Quantity: 3},
		{ProductID: "b", Quantity: 1},
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	require.Equal(t, "Product B: Insufficient stock (Available: 0, Requested: 1)", result.Errors[0])
	require.True(t, result.Items[0].Valid)
	require.False(t, result.Items[1].Valid)
}

func TestValidateMissingProductContinues(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 5, 100)
	svc := newTestService(store)

	result, err := svc.ValidateStock(context.Background(), []ValidationItem{
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "a", Quantity: 2},
	})
	require.NoError(t, err)
	require.False(t, result.Valid)
	require.Len(t, result.Items, 2)
	require.Contains(t, result.Items[0].Error, "not found")
	require.InDelta(t, 0.0, result.Items[0].Available, 1e-9)
	require.True(t, result.Items[1].Valid)
}

func TestValidateStoreFailure(t *testing.T) {
	store := newMemoryStore()
	store.failNext = errors.New("connection refused")
	svc := newTestService(store)

	result, err := svc.ValidateStock(context.Background(), []ValidationItem{{ProductID: "a", Quantity: 1}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
}

func TestApplyReduceRejectsOversellWithoutMutation(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 100)
	store.addProduct("b", "Product B", 0, 100)
	svc := newTestService(store)

	result, err := svc.ApplyStockChange(context.Background(), []ChangeItem{
		{ProductID: "a", Quantity: 3},
		{ProductID: "b", Quantity: 1},
	}, "bill-1", DirectionReduce)
	require.ErrorIs(t, err, ErrInsufficientStock)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)

	require.InDelta(t, 10.0, store.levels["a"].CurrentStock, 1e-9)
	require.Empty(t, store.txs)
}

func TestApplyReduceThenRestoreConservesStock(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 100)
	pub := &recordingPublisher{}
	svc := NewService(store, pub, nil, ServiceConfig{})

	items := []ChangeItem{{ProductID: "a", Quantity: 4}}

	reduced, err := svc.ApplyStockChange(context.Background(), items, "bill-1", DirectionReduce)
	require.NoError(t, err)
	require.True(t, reduced.Success)
	require.InDelta(t, 6.0, reduced.Items[0].NewStock, 1e-9)

	restored, err := svc.ApplyStockChange(context.Background(), items, "bill-1", DirectionRestore)
	require.NoError(t, err)
	require.True(t, restored.Success)
	require.InDelta(t, 10.0, restored.Items[0].NewStock, 1e-9)

	require.Len(t, store.txs, 2)
	require.Equal(t, TransactionTypeSale, store.txs[0].Type)
	require.Equal(t, TransactionTypeReturn, store.txs[1].Type)
	require.InDelta(t, store.txs[0].Quantity, store.txs[1].Quantity, 1e-9)
	require.Len(t, pub.events, 2)
}

func TestApplyResolvesSellingPriceWhenUnset(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 75)
	svc := newTestService(store)

	explicit := 60.0
	result, err := svc.ApplyStockChange(context.Background(), []ChangeItem{
		{ProductID: "a", Quantity: 1},
		{ProductID: "a", Quantity: 1, UnitPrice: &explicit},
	}, "bill-2", DirectionReduce)
	require.NoError(t, err)
	require.True(t, result.Success)

	require.InDelta(t, 75.0, store.txs[0].UnitPrice, 1e-9)
	require.InDelta(t, 60.0, store.txs[1].UnitPrice, 1e-9)
	require.InDelta(t, 75.0, store.txs[0].TotalAmount, 1e-9)
}

func TestApplySkipsItemsWithoutProductID(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 100)
	svc := newTestService(store)

	result, err := svc.ApplyStockChange(context.Background(), []ChangeItem{
		{ProductID: "", Quantity: 2},
		{ProductID: "a", Quantity: 1},
	}, "bill-3", DirectionReduce)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Len(t, result.Items, 1)
	require.Equal(t, "a", result.Items[0].ProductID)
}

func TestApplyRestoreFailsIndependentlyPerItem(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 5, 100)
	svc := newTestService(store)

	result, err := svc.ApplyStockChange(context.Background(), []ChangeItem{
		{ProductID: "ghost", Quantity: 1},
		{ProductID: "a", Quantity: 2},
	}, "bill-4", DirectionRestore)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Items, 2)
	require.False(t, result.Items[0].Success)
	require.True(t, result.Items[1].Success)
	require.InDelta(t, 7.0, store.levels["a"].CurrentStock, 1e-9)
}

func TestBulkAdjustReportsOldNewDiff(t *testing.T) {
	store := newMemoryStore()
	store.addProduct("a", "Product A", 10, 100)
	svc := newTestService(store)

	results, err := svc.BulkAdjust(context.Background(), []Adjustment{
		{ProductID: "a", NewStock: 4, Reason: "cycle count"},
		{ProductID: "ghost", NewStock: 2},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.True(t, results[0].Success)
	require.InDelta(t, 10.0, results[0].OldStock, 1e-9)
	require.InDelta(t, 4.0, results[0].NewStock, 1e-9)
	require.InDelta(t, -6.0, results[0].Diff, 1e-9)
	require.False(t, results[1].Success)

	require.Len(t, store.txs, 1)
	require.Equal(t, TransactionTypeAdjustment, store.txs[0].Type)
	require.InDelta(t, 6.0, store.txs[0].Quantity, 1e-9)
	require.Equal(t, "cycle count", store.txs[0].Notes)
	require.InDelta(t, 0.0, store.txs[0].TotalAmount, 1e-9)
}

func TestTransactionsRequiresProductID(t *testing.T) {
	svc := newTestService(newMemoryStore())
	_, err := svc.Transactions(context.Background(), "", 10)
	require.ErrorIs(t, err, ErrMissingProductID)
}
