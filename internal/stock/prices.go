package stock

import "context"

// FetchPrices batch-reads the current price snapshot for the given product
// ids in a single round trip. Ids missing from the store are simply absent
// from the result; callers fall back to a caller-supplied price or fail.
func (s *Service) FetchPrices(ctx context.Context, productIDs []string) (map[string]PriceSnapshot, error) {
	if len(productIDs) == 0 {
		return map[string]PriceSnapshot{}, nil
	}
	return s.store.GetPriceSnapshots(ctx, productIDs)
}
