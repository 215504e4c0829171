package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/rl1809/stockroom/internal/core/domain"
	"github.com/rl1809/stockroom/internal/core/ledger"
)

// FormSubmission is a movement entered by warehouse staff. Items are picked
// from a list, so they arrive by persistence ID.
type FormSubmission struct {
	Type         string `json:"type"`
	ItemID       string `json:"itemId"`
	Quantity     int    `json:"quantity"`
	FromLocation string `json:"fromLocation"`
	ToLocation   string `json:"toLocation"`
	Notes        string `json:"notes"`
	Status       string `json:"status"`
}

var formTypes = map[domain.MovementType]bool{
	domain.MovementReceive:     true,
	domain.MovementTransfer:    true,
	domain.MovementCheck:       true,
	domain.MovementFulfillment: true,
	domain.MovementReturn:      true,
}

type FormAdapter struct {
	items   ItemResolver
	applier MovementApplier
}

func NewFormAdapter(items ItemResolver, applier MovementApplier) *FormAdapter {
	return &FormAdapter{items: items, applier: applier}
}

// Intent validates sub and resolves its item to a SKU.
func (f *FormAdapter) Intent(ctx context.Context, sub FormSubmission, userID string) (domain.Intent, error) {
	mt := domain.MovementType(strings.ToLower(strings.TrimSpace(sub.Type)))
	if !formTypes[mt] {
		return domain.Intent{}, &domain.ValidationError{Field: "type", Message: fmt.Sprintf("unsupported movement type %q", sub.Type)}
	}
	if sub.Quantity < 1 {
		return domain.Intent{}, domain.ErrInvalidQuantity
	}
	if sub.ItemID == "" {
		return domain.Intent{}, &domain.ValidationError{Field: "itemId", Message: "item is required"}
	}

	to := strings.TrimSpace(sub.ToLocation)
	from := strings.TrimSpace(sub.FromLocation)
	switch mt {
	case domain.MovementReceive, domain.MovementTransfer, domain.MovementReturn:
		if to == "" {
			return domain.Intent{}, &domain.ValidationError{Field: "toLocation", Message: "location is required"}
		}
	}
	if mt == domain.MovementTransfer && from == "" {
		return domain.Intent{}, &domain.ValidationError{Field: "fromLocation", Message: "source location is required"}
	}

	status := domain.MovementStatus(sub.Status)
	if status != "" && !status.Valid() {
		return domain.Intent{}, &domain.ValidationError{Field: "status", Message: fmt.Sprintf("unsupported status %q", sub.Status)}
	}

	item, err := f.items.GetItem(ctx, sub.ItemID)
	if err != nil {
		return domain.Intent{}, err
	}

	return domain.Intent{
		Type:         mt,
		SKU:          item.SKU,
		Quantity:     sub.Quantity,
		FromLocation: from,
		ToLocation:   to,
		UserID:       userID,
		Notes:        sub.Notes,
		Status:       status,
	}, nil
}

func (f *FormAdapter) Submit(ctx context.Context, sub FormSubmission, userID string) (*ledger.Result, error) {
	intent, err := f.Intent(ctx, sub, userID)
	if err != nil {
		return nil, err
	}
	return f.applier.Apply(ctx, intent)
}
