package catalog

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

var nameFolder = cases.Fold()

// consolidationKey builds the equivalence key for a product. The
// specification map is serialized with sorted keys so two maps holding the
// same pairs always produce the same key regardless of iteration order.
func consolidationKey(p Product) string {
	var b strings.Builder
	b.WriteString(nameFolder.String(strings.TrimSpace(p.Name)))
	b.WriteByte('|')
	b.WriteString(p.BrandID)
	b.WriteByte('|')
	b.WriteString(p.CategoryID)
	b.WriteByte('|')
	keys := make([]string, 0, len(p.Specifications))
	for k := range p.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v;", k, p.Specifications[k])
	}
	return b.String()
}

// BuildConsolidatedView groups active products into equivalence classes and
// emits one aggregated row per class. Deleted products are excluded first.
// Each multi-member group is displayed through its most recently updated
// member with the members' stock summed. Pure function; the output is
// ordered by display name for stable rendering.
func BuildConsolidatedView(products []Product) []ConsolidatedProduct {
	groups := make(map[string][]Product)
	order := make([]string, 0, len(products))
	for _, p := range products {
		if p.Deleted {
			continue
		}
		key := consolidationKey(p)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], p)
	}

	views := make([]ConsolidatedProduct, 0, len(order))
	for _, key := range order {
		members := groups[key]
		template := members[0]
		var totalStock float64
		ids := make([]string, 0, len(members))
		for _, member := range members {
			totalStock += member.CurrentStock
			ids = append(ids, member.ID)
			if member.UpdatedAt.After(template.UpdatedAt) {
				template = member
			}
		}
		sort.Strings(ids)
		views = append(views, ConsolidatedProduct{
			ID:             template.ID,
			Name:           template.Name,
			BrandID:        template.BrandID,
			CategoryID:     template.CategoryID,
			Specifications: template.Specifications,
			Unit:           template.Unit,
			PurchasePrice:  template.PurchasePrice,
			SellingPrice:   template.SellingPrice,
			CurrentStock:   totalStock,
			TotalEntries:   len(members),
			OriginalIDs:    ids,
			LastUpdated:    template.UpdatedAt,
		})
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].Name != views[j].Name {
			return views[i].Name < views[j].Name
		}
		return views[i].ID < views[j].ID
	})
	return views
}
