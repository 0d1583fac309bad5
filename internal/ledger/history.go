package ledger

import (
	"context"
	"time"

	"github.com/spendwatch/spendwatch/internal/feature"
)

// HistorySource adapts the ledger into the feature deriver's history
// capability: trailing-hour activity from committed purchases. An account
// with no ledger records at all reports found=false, which sends the
// deriver to its synthetic placeholder policy instead.
type HistorySource struct {
	store  Store
	window time.Duration
}

// NewHistorySource creates a ledger-backed history provider with a
// one-hour trailing window.
func NewHistorySource(store Store) *HistorySource {
	return &HistorySource{store: store, window: time.Hour}
}

func (h *HistorySource) LookupHistory(ctx context.Context, accountID string) (feature.History, bool, error) {
	// Any record at all means the account has real history, even if the
	// trailing window is empty.
	any, err := h.store.List(ctx, accountID, "", 1)
	if err != nil {
		return feature.History{}, false, err
	}
	if len(any) == 0 {
		return feature.History{}, false, nil
	}

	count, total, err := h.store.Window(ctx, accountID, time.Now().Add(-h.window))
	if err != nil {
		return feature.History{}, false, err
	}
	return feature.History{Count: count, Spend: total}, true, nil
}
