package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/receipt-sync/internal/receipt"
)

// Source yields raw baskets with their views filled in.
type Source interface {
	FetchBaskets(ctx context.Context) ([]receipt.RawBasket, error)
}

// FetchReceipts fetches every basket from src and normalizes it in loc. The
// raw baskets are returned alongside so callers can archive what was parsed.
func FetchReceipts(ctx context.Context, src Source, loc *time.Location) ([]*receipt.Receipt, []receipt.RawBasket, error) {
	baskets, err := src.FetchBaskets(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("FetchReceipts: %w", err)
	}

	receipts := make([]*receipt.Receipt, 0, len(baskets))
	for _, b := range baskets {
		r, err := receipt.Normalize(b, loc)
		if err != nil {
			return nil, baskets, fmt.Errorf("FetchReceipts: %w", err)
		}
		receipts = append(receipts, r)
	}
	return receipts, baskets, nil
}

var _ Source = (*Client)(nil)
