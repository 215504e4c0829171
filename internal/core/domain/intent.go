package domain

import "fmt"

// Intent is the canonical, validated shape every ingestion adapter produces
// before a movement is applied to ledger state. Items are referenced by SKU.
type Intent struct {
	Type         MovementType
	SKU          string
	Quantity     int
	FromLocation string
	ToLocation   string
	UserID       string
	Notes        string
	Status       MovementStatus
	Reference    string

	// IdempotencyKey deduplicates redelivered external events. Empty for
	// interactive submissions.
	IdempotencyKey string

	// CreateIfMissing lets a receive intent create the item on first receipt.
	CreateIfMissing bool
	ItemName        string
}

func (in Intent) Validate() error {
	if !in.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported movement type %q", in.Type)}
	}
	if in.SKU == "" {
		return &ValidationError{Field: "sku", Message: "sku is required"}
	}
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if in.Status != "" && !in.Status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unsupported status %q", in.Status)}
	}
	if in.UserID == "" {
		return &ValidationError{Field: "userId", Message: "userId is required"}
	}
	return nil
}
