package models

import (
	"strings"

	"github.com/rpupo63/portfolio-api/errs"
)

// Project represents a portfolio project, looked up publicly by slug
type Project struct {
	Document    `bson:",inline"`
	Title       string   `json:"title" bson:"title"`
	Slug        string   `json:"slug" bson:"slug"`
	ShortDesc   string   `json:"shortDesc" bson:"shortDesc"`
	LongDesc    *string  `json:"longDesc,omitempty" bson:"longDesc,omitempty"`
	Tech        []string `json:"tech" bson:"tech"`
	Tags        []string `json:"tags" bson:"tags"`
	LiveDemoURL *string  `json:"liveDemoUrl,omitempty" bson:"liveDemoUrl,omitempty"`
	GithubURL   *string  `json:"githubUrl,omitempty" bson:"githubUrl,omitempty"`
	Images      []string `json:"images" bson:"images"`
	Featured    bool     `json:"featured" bson:"featured"`
	OrderIndex  int      `json:"orderIndex" bson:"orderIndex"`
}

// ProjectInput is the admin payload for creating or replacing a project.
type ProjectInput struct {
	Title       string   `json:"title" bson:"title"`
	Slug        string   `json:"slug" bson:"slug"`
	ShortDesc   string   `json:"shortDesc" bson:"shortDesc"`
	LongDesc    *string  `json:"longDesc" bson:"longDesc"`
	Tech        []string `json:"tech" bson:"tech"`
	Tags        []string `json:"tags" bson:"tags"`
	LiveDemoURL *string  `json:"liveDemoUrl" bson:"liveDemoUrl"`
	GithubURL   *string  `json:"githubUrl" bson:"githubUrl"`
	Images      []string `json:"images" bson:"images"`
	Featured    bool     `json:"featured" bson:"featured"`
	Published   bool     `json:"published" bson:"published"`
	OrderIndex  int      `json:"orderIndex" bson:"orderIndex"`
	Deleted     bool     `json:"deleted" bson:"deleted"`
}

// Validate checks required fields and normalises list fields.
func (in *ProjectInput) Validate() error {
	in.Slug = strings.TrimSpace(in.Slug)
	err := firstError(
		requireText("title", in.Title),
		requireText("slug", in.Slug),
		requireText("shortDesc", in.ShortDesc),
	)
	if err != nil {
		return err
	}
	if strings.ContainsAny(in.Slug, "/ \t\n?#") {
		return errs.NewValidationError("slug", "must not contain whitespace, '/', '?' or '#'")
	}
	in.Tech = cleanList(in.Tech)
	in.Tags = cleanList(in.Tags)
	in.Images = cleanList(in.Images)
	return nil
}
