package domain

import (
	"errors"
	"fmt"
)

var (
	ErrItemNotFound      = errors.New("inventory item not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrMovementNotFound  = errors.New("movement not found")
	ErrDuplicateSKU      = errors.New("sku already exists")
	ErrDuplicateDelivery = errors.New("event already applied")
	ErrInvalidQuantity   = &ValidationError{Field: "quantity", Message: "quantity must be greater than zero"}
)

// ValidationError rejects an intent or request before anything is applied.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PersistenceError wraps a failure of the backing store.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

var (
	// ErrVersionConflict is returned by stores when an optimistic write lost a race.
	ErrVersionConflict   = errors.New("version conflict")
	ErrInvalidTransition = errors.New("invalid status transition")
)
