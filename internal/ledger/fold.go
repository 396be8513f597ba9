package ledger

import (
	"fmt"
	"sort"

	"github.com/duelarena/backend/internal/apperr"
	"github.com/duelarena/backend/internal/models"
)

// Balance is a user's position derived from ledger events.
type Balance struct {
	Total     int64 `json:"total"`
	Held      int64 `json:"held"`
	Available int64 `json:"available"`
}

// BalanceOf reads the cached totals on an account.
func BalanceOf(a *models.Account) Balance {
	return Balance{Total: a.Balance, Held: a.Held, Available: a.Available()}
}

// Fold replays events in timestamp order. GRANT and REWARD add to the total,
// DEDUCT removes from it, HOLD and RELEASE move credits in and out of Held.
// A HOLD larger than the available balance at that point, or a RELEASE or
// DEDUCT that cannot be covered, is reported as an error.
func Fold(events []*models.CreditLedgerEvent) (Balance, error) {
	ordered := make([]*models.CreditLedgerEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })

	var b Balance
	for _, ev := range ordered {
		if ev.Amount < 0 {
			return b, fmt.Errorf("event %s: negative amount %d", ev.ID, ev.Amount)
		}
		switch ev.Type {
		case models.LedgerGrant, models.LedgerReward:
			b.Total += ev.Amount
		case models.LedgerDeduct:
			if ev.Amount > b.Total-b.Held {
				return b, fmt.Errorf("event %s: deduct %d exceeds available %d: %w", ev.ID, ev.Amount, b.Total-b.Held, apperr.ErrInsufficientFunds)
			}
			b.Total -= ev.Amount
		case models.LedgerHold:
			if ev.Amount > b.Total-b.Held {
				return b, fmt.Errorf("event %s: hold %d exceeds available %d: %w", ev.ID, ev.Amount, b.Total-b.Held, apperr.ErrInsufficientFunds)
			}
			b.Held += ev.Amount
		case models.LedgerRelease:
			if ev.Amount > b.Held {
				return b, fmt.Errorf("event %s: release %d exceeds held %d", ev.ID, ev.Amount, b.Held)
			}
			b.Held -= ev.Amount
		default:
			return b, fmt.Errorf("event %s: unknown type %q", ev.ID, ev.Type)
		}
	}
	b.Available = b.Total - b.Held
	return b, nil
}
