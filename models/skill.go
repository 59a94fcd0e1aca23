package models

import (
	"github.com/rpupo63/portfolio-api/errs"
)

const (
	MinSkillLevel = 0
	MaxSkillLevel = 100
)

type Skill struct {
	Document    `bson:",inline"`
	Name        string  `json:"name" bson:"name"`
	Level       int     `json:"level" bson:"level"`
	Category    string  `json:"category" bson:"category"`
	Icon        *string `json:"icon,omitempty" bson:"icon,omitempty"`
	Description *string `json:"description,omitempty" bson:"description,omitempty"`
	OrderIndex  int     `json:"orderIndex" bson:"orderIndex"`
}

// SkillInput is the admin payload for a skill. Published defaults to true.
type SkillInput struct {
	Name        string  `json:"name" bson:"name"`
	Level       *int    `json:"level" bson:"level"`
	Category    string  `json:"category" bson:"category"`
	Icon        *string `json:"icon" bson:"icon"`
	Description *string `json:"description" bson:"description"`
	OrderIndex  int     `json:"orderIndex" bson:"orderIndex"`
	Published   *bool   `json:"published" bson:"published"`
	Deleted     bool    `json:"deleted" bson:"deleted"`
}

func (in *SkillInput) Validate() error {
	err := firstError(
		requireText("name", in.Name),
		requireText("category", in.Category),
	)
	if err != nil {
		return err
	}
	if in.Level == nil {
		return errs.NewMissingRequiredFieldError("level")
	}
	if *in.Level < MinSkillLevel || *in.Level > MaxSkillLevel {
		return errs.NewValidationError("level", "must be between 0 and 100")
	}
	if in.Published == nil {
		published := true
		in.Published = &published
	}
	return nil
}
