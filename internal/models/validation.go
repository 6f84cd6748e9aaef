package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	MaxOrderLines    = 50
	MaxClientNameLen = 100
	MaxNotesLen      = 500
	MaxReviewComment = 2000
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the shape of the cart. Prices are not looked at here.
func (req *CreateOrderRequest) Validate() error {
	if err := validateID("restaurant_id", req.RestaurantID); err != nil {
		return err
	}
	if err := validateID("table_id", req.TableID); err != nil {
		return err
	}
	if strings.TrimSpace(req.ClientID) == "" {
		return ValidationError{Field: "client_id", Message: "client id is required"}
	}
	if err := validateClientName(req.ClientName); err != nil {
		return err
	}
	if err := validateNotes("notes", req.Notes); err != nil {
		return err
	}
	return validateItems(req.Items)
}

func validateItems(items []CreateOrderItem) error {
	if len(items) == 0 {
		return ValidationError{Field: "items", Message: "order must contain at least one item"}
	}
	if len(items) > MaxOrderLines {
		return ValidationError{Field: "items", Message: fmt.Sprintf("order cannot contain more than %d items", MaxOrderLines)}
	}

	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if err := validateID(field+".menu_item_id", item.MenuItemID); err != nil {
			return err
		}
		if item.Quantity < 1 {
			return ValidationError{Field: field + ".quantity", Message: "quantity must be at least 1"}
		}
		if err := validateNotes(field+".notes", item.Notes); err != nil {
			return err
		}
		for j, opt := range item.Options {
			optField := fmt.Sprintf("%s.options[%d]", field, j)
			if err := validateID(optField+".option_id", opt.OptionID); err != nil {
				return err
			}
			if opt.Quantity < 1 {
				return ValidationError{Field: optField + ".quantity", Message: "quantity must be at least 1"}
			}
		}
	}
	return nil
}

func (req *UpdateStatusRequest) Validate() error {
	if strings.TrimSpace(req.Status) == "" {
		return ValidationError{Field: "status", Message: "status is required"}
	}
	return validateNotes("notes", req.Notes)
}

func (req *SubmitReviewRequest) Validate() error {
	if strings.TrimSpace(req.ClientID) == "" {
		return ValidationError{Field: "client_id", Message: "client id is required"}
	}
	if req.Rating < MinRating || req.Rating > MaxRating {
		return ValidationError{Field: "rating", Message: fmt.Sprintf("rating must be between %d and %d", MinRating, MaxRating)}
	}
	if err := validateClientName(req.ClientName); err != nil {
		return err
	}
	if req.Comment != nil && len(*req.Comment) > MaxReviewComment {
		return ValidationError{Field: "comment", Message: fmt.Sprintf("comment must be at most %d characters", MaxReviewComment)}
	}
	return nil
}

func validateID(field, id string) error {
	if id == "" {
		return ValidationError{Field: field, Message: "is required"}
	}
	if _, err := uuid.Parse(id); err != nil {
		return ValidationError{Field: field, Message: "must be a valid UUID"}
	}
	return nil
}

func validateClientName(name *string) error {
	if name != nil && len(*name) > MaxClientNameLen {
		return ValidationError{Field: "client_name", Message: fmt.Sprintf("client name must be at most %d characters", MaxClientNameLen)}
	}
	return nil
}

func validateNotes(field string, notes *string) error {
	if notes != nil && len(*notes) > MaxNotesLen {
		return ValidationError{Field: field, Message: fmt.Sprintf("notes must be at most %d characters", MaxNotesLen)}
	}
	return nil
}

// IsUUID reports whether id parses as a UUID. Path identifiers that fail this
// check can never match a stored row.
func IsUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
