package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func activeProduct(id, name string, stock float64, updated time.Time) Product {
	return Product{
		ID:           id,
		Name:         name,
		BrandID:      "brand-1",
		CategoryID:   "cat-1",
		CurrentStock: stock,
		SellingPrice: 100,
		IsActive:     true,
		UpdatedAt:    updated,
	}
}

func TestConsolidatedViewGroupsEquivalentProducts(t *testing.T) {
	older := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	a := activeProduct("p1", "Copper Wire", 10, older)
	a.Specifications = map[string]any{"gauge": "12", "length": "90m"}
	b := activeProduct("p2", "Copper Wire", 5, newer)
	b.Specifications = map[string]any{"length": "90m", "gauge": "12"}
	b.SellingPrice = 120

	view := BuildConsolidatedView([]Product{a, b})
	require.Len(t, view, 1)
	require.Equal(t, "p2", view[0].ID)
	require.Equal(t, 120.0, view[0].SellingPrice)
	require.Equal(t, 15.0, view[0].CurrentStock)
	require.Equal(t, 2, view[0].TotalEntries)
	require.Equal(t, []string{"p1", "p2"}, view[0].OriginalIDs)
	require.Equal(t, newer, view[0].LastUpdated)
}

func TestConsolidatedViewSpecKeyOrderIndependent(t *testing.T) {
	now := time.Now().UTC()
	a := activeProduct("p1", "Cement Bag", 4, now)
	a.Specifications = map[string]any{"weight": "50kg", "grade": "OPC-53", "color": "grey"}
	b := activeProduct("p2", "Cement Bag", 6, now)
	b.Specifications = map[string]any{"color": "grey", "weight": "50kg", "grade": "OPC-53"}

	view := BuildConsolidatedView([]Product{a, b})
	require.Len(t, view, 1)
	require.Equal(t, 10.0, view[0].CurrentStock)
}

func TestConsolidatedViewSeparatesDifferingSpecs(t *testing.T) {
	now := time.Now().UTC()
	a := activeProduct("p1", "Cement Bag", 4, now)
	a.Specifications = map[string]any{"weight": "50kg"}
	b := activeProduct("p2", "Cement Bag", 6, now)
	b.Specifications = map[string]any{"weight": "25kg"}

	view := BuildConsolidatedView([]Product{a, b})
	require.Len(t, view, 2)
}

func TestConsolidatedViewOrderInvariant(t *testing.T) {
	now := time.Now().UTC()
	products := []Product{
		activeProduct("p1", "Bolt", 1, now),
		activeProduct("p2", "Bolt", 2, now.Add(time.Hour)),
		activeProduct("p3", "Nut", 7, now),
	}
	reversed := []Product{products[2], products[1], products[0]}

	require.Equal(t, BuildConsolidatedView(products), BuildConsolidatedView(reversed))
}

func TestConsolidatedViewExcludesDeleted(t *testing.T) {
	now := time.Now().UTC()
	live := activeProduct("p1", "Bolt", 3, now)
	gone := activeProduct("p2", "Bolt", 9, now.Add(time.Hour))
	gone.Deleted = true

	view := BuildConsolidatedView([]Product{live, gone})
	require.Len(t, view, 1)
	require.Equal(t, "p1", view[0].ID)
	require.Equal(t, 3.0, view[0].CurrentStock)
	require.Equal(t, 1, view[0].TotalEntries)
}

func TestConsolidatedViewSingletonPassthrough(t *testing.T) {
	now := time.Now().UTC()
	p := activeProduct("p1", "Hammer", 2, now)

	view := BuildConsolidatedView([]Product{p})
	require.Len(t, view, 1)
	require.Equal(t, "p1", view[0].ID)
	require.Equal(t, 2.0, view[0].CurrentStock)
	require.Equal(t, 1, view[0].TotalEntries)
	require.Equal(t, []string{"p1"}, view[0].OriginalIDs)
}

func TestConsolidatedViewFoldsNameCase(t *testing.T) {
	now := time.Now().UTC()
	a := activeProduct("p1", "Steel Rod", 5, now)
	b := activeProduct("p2", "steel rod", 5, now.Add(time.Minute))

	view := BuildConsolidatedView([]Product{a, b})
	require.Len(t, view, 1)
	require.Equal(t, 10.0, view[0].CurrentStock)
}
