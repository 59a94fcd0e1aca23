package models

import (
	"net/mail"
	"strings"

	"github.com/rpupo63/portfolio-api/errs"
)

const MaxContactMessageLength = 5000

type ContactInput struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

func (in *ContactInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	err := firstError(
		requireText("name", in.Name),
		requireText("email", in.Email),
		requireText("message", in.Message),
		maxLength("name", in.Name, 200),
		maxLength("message", in.Message, MaxContactMessageLength),
	)
	if err != nil {
		return err
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return errs.NewValidationError("email", "is not a valid address")
	}
	return nil
}

// Metadata returns the submitted fields for the activity log.
func (in ContactInput) Metadata() map[string]any {
	return map[string]any{"name": in.Name, "email": in.Email, "message": in.Message}
}
