package stock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupeMergesSameProduct(t *testing.T) {
	items := []BillItem{
		{ProductID: "p1", ProductName: "Engine Oil", Quantity: 2, UnitPrice: 50},
		{ProductID: "p1", ProductName: "Engine Oil", Quantity: 3, UnitPrice: 50},
	}

	merged := DedupeItems(items)
	require.Len(t, merged, 1)
	require.InDelta(t, 5.0, merged[0].Quantity, 1e-9)
	require.InDelta(t, 250.0, merged[0].TotalPrice, 1e-9)
	require.InDelta(t, 50.0, merged[0].UnitPrice, 1e-9)
}

func TestDedupeFirstOccurrencePriceWins(t *testing.T) {
	items := []BillItem{
		{ProductID: "p1", ProductName: "Filter", Quantity: 1, UnitPrice: 100},
		{ProductID: "p1", ProductName: "Filter", Quantity: 1, UnitPrice: 80},
	}

	merged := DedupeItems(items)
	require.Len(t, merged, 1)
	require.InDelta(t, 100.0, merged[0].UnitPrice, 1e-9)
	require.InDelta(t, 200.0, merged[0].TotalPrice, 1e-9)
}

func TestDedupeCustomLinesByNormalizedName(t *testing.T) {
	items := []BillItem{
		{ProductName: "Labour Charge", Quantity: 1, UnitPrice: 300, IsCustom: true},
		{ProductName: "  labour charge ", Quantity: 1, UnitPrice: 300, IsCustom: true},
		{ProductName: "Washing", Quantity: 1, UnitPrice: 150, IsCustom: true},
	}

	merged := DedupeItems(items)
	require.Len(t, merged, 2)
	require.InDelta(t, 2.0, merged[0].Quantity, 1e-9)
	require.Equal(t, "Washing", merged[1].ProductName)
}

func TestDedupePreservesFirstSeenOrder(t *testing.T) {
	items := []BillItem{
		{ProductID: "b", ProductName: "B", Quantity: 1, UnitPrice: 10},
		{ProductID: "a", ProductName: "A", Quantity: 1, UnitPrice: 10},
		{ProductID: "b", ProductName: "B", Quantity: 2, UnitPrice: 10},
	}

	merged := DedupeItems(items)
	require.Len(t, merged, 2)
	require.Equal(t, "b", merged[0].ProductID)
	require.Equal(t, "a", merged[1].ProductID)
}

func TestDedupeIdempotent(t *testing.T) {
	items := []BillItem{
		{ProductID: "p1", ProductName: "Oil", Quantity: 2, UnitPrice: 50},
		{ProductID: "p2", ProductName: "Filter", Quantity: 1, UnitPrice: 120},
		{ProductID: "p1", ProductName: "Oil", Quantity: 1, UnitPrice: 50},
		{ProductName: "Service", Quantity: 1, UnitPrice: 200, IsCustom: true},
	}

	once := DedupeItems(items)
	twice := DedupeItems(once)
	require.Equal(t, once, twice)
}

func TestDedupeEmpty(t *testing.T) {
	require.Nil(t, DedupeItems(nil))
	require.Nil(t, DedupeItems([]BillItem{}))
}
