// Package backend talks to the backoffice content API that owns the persisted
// copy of each collection.
package backend

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/dbsmedya/contentsync/internal/record"
)

// Store is the narrow backend surface the reconciler depends on.
type Store interface {
	// ListRecords returns every record of a collection in backend order.
	ListRecords(ctx context.Context, collection string) ([]record.Raw, error)
	// CreateRecord persists a new record and returns it as stored.
	CreateRecord(ctx context.Context, collection string, fields map[string]any) (record.Raw, error)
	// UpdateRecord replaces the fields of an existing record.
	UpdateRecord(ctx context.Context, collection, id string, fields map[string]any) (record.Raw, error)
	// DeleteRecord removes a record. Reconciliation never calls it.
	DeleteRecord(ctx context.Context, collection, id string) error
}

// createRules is the minimum shape the backend accepts for a new record.
type createRules struct {
	Name  string `validate:"required"`
	Email string `validate:"omitempty,email"`
	Order int    `validate:"gte=0"`
}

// updateRules allows partial payloads; ignored fields may be absent.
type updateRules struct {
	Email string `validate:"omitempty,email"`
	Order int    `validate:"gte=0"`
}

var validate = validator.New()

// ValidateCreate rejects create payloads the backend would refuse.
func ValidateCreate(fields map[string]any) error {
	return validatePayload(createRules{
		Name:  record.ToString(fields[record.FieldName]),
		Email: record.ToString(fields[record.FieldEmail]),
		Order: record.ToInt(fields[record.FieldOrder]),
	})
}

// ValidateUpdate rejects update payloads the backend would refuse.
func ValidateUpdate(fields map[string]any) error {
	return validatePayload(updateRules{
		Email: record.ToString(fields[record.FieldEmail]),
		Order: record.ToInt(fields[record.FieldOrder]),
	})
}

func validatePayload(rules any) error {
	err := validate.Struct(rules)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		fe := verrs[0]
		return validationError(fmt.Sprintf("invalid payload: field %s failed %q", fieldName(fe.Field()), fe.Tag()), nil)
	}
	return validationError("invalid payload", err)
}

func fieldName(structField string) string {
	switch structField {
	case "Name":
		return record.FieldName
	case "Email":
		return record.FieldEmail
	case "Order":
		return record.FieldOrder
	}
	return structField
}
