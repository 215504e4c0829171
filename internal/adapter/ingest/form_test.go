package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stockroom/internal/core/domain"
)

func newFormFixture() (*FormAdapter, *fakeApplier) {
	item := domain.InventoryItem{ID: "item-1", SKU: "SKU-1", Name: "Bolt", Location: "A1", Quantity: 35, MinimumStock: 5}
	applier := newFakeApplier(item)
	return NewFormAdapter(fakeResolver{"item-1": item}, applier), applier
}

func TestFormIntent_ResolvesSKU(t *testing.T) {
	form, _ := newFormFixture()

	intent, err := form.Intent(context.Background(), FormSubmission{
		Type:       "Receive",
		ItemID:     "item-1",
		Quantity:   4,
		ToLocation: " B2 ",
		Notes:      "pallet 7",
	}, "user-1")

	require.NoError(t, err)
	assert.Equal(t, domain.MovementReceive, intent.Type)
	assert.Equal(t, "SKU-1", intent.SKU)
	assert.Equal(t, "B2", intent.ToLocation)
	assert.Equal(t, "user-1", intent.UserID)
	assert.Empty(t, intent.IdempotencyKey)
}

func TestFormIntent_Validation(t *testing.T) {
	form, _ := newFormFixture()

	tests := []struct {
		name  string
		sub   FormSubmission
		field string
	}{
		{"order type not allowed", FormSubmission{Type: "order", ItemID: "item-1", Quantity: 1}, "type"},
		{"zero quantity", FormSubmission{Type: "check", ItemID: "item-1", Quantity: 0}, "quantity"},
		{"missing item", FormSubmission{Type: "check", Quantity: 1}, "itemId"},
		{"receive without location", FormSubmission{Type: "receive", ItemID: "item-1", Quantity: 1}, "toLocation"},
		{"return without location", FormSubmission{Type: "return", ItemID: "item-1", Quantity: 1}, "toLocation"},
		{"transfer without source", FormSubmission{Type: "transfer", ItemID: "item-1", Quantity: 1, ToLocation: "B"}, "fromLocation"},
		{"bad status", FormSubmission{Type: "check", ItemID: "item-1", Quantity: 1, Status: "draft"}, "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := form.Intent(context.Background(), tt.sub, "user-1")
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestFormIntent_UnknownItem(t *testing.T) {
	form, _ := newFormFixture()
	_, err := form.Intent(context.Background(), FormSubmission{Type: "check", ItemID: "nope", Quantity: 1}, "user-1")
	assert.ErrorIs(t, err, domain.ErrItemNotFound)
}

func TestFormSubmit_CheckOverwrites(t *testing.T) {
	form, applier := newFormFixture()

	res, err := form.Submit(context.Background(), FormSubmission{Type: "check", ItemID: "item-1", Quantity: 40}, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 35, res.Movement.QuantityBefore)
	assert.Equal(t, 40, res.Movement.QuantityAfter)
	assert.Equal(t, 40, applier.quantity("SKU-1"))
}

func TestFormSubmit_FulfillmentNeedsNoLocation(t *testing.T) {
	form, applier := newFormFixture()

	_, err := form.Submit(context.Background(), FormSubmission{Type: "fulfillment", ItemID: "item-1", Quantity: 50}, "user-1")

	require.NoError(t, err)
	assert.Equal(t, 0, applier.quantity("SKU-1"))
}
