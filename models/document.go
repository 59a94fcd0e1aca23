package models

import (
	"strings"
	"time"

	"github.com/rpupo63/portfolio-api/errs"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document holds the fields every managed collection shares.
type Document struct {
	ID        bson.ObjectID `json:"id" bson:"_id,omitempty"`
	Published bool          `json:"published" bson:"published"`
	Deleted   bool          `json:"deleted" bson:"deleted"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" bson:"updated_at"`
}

// requireText fails when value is blank.
func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errs.NewMissingRequiredFieldError(field)
	}
	return nil
}

func maxLength(field, value string, limit int) error {
	if len(value) > limit {
		return errs.NewValidationError(field, "is too long")
	}
	return nil
}

// cleanList trims items, drops blanks and never returns nil so lists are
// stored as empty arrays.
func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func firstError(checks ...error) error {
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}
