package models

// Certificate keeps IssueDate as free text, e.g. "2024-01".
type Certificate struct {
	Document    `bson:",inline"`
	Title       string   `json:"title" bson:"title"`
	Issuer      string   `json:"issuer" bson:"issuer"`
	IssueDate   string   `json:"issueDate" bson:"issueDate"`
	Image       *string  `json:"image,omitempty" bson:"image,omitempty"`
	Description *string  `json:"description,omitempty" bson:"description,omitempty"`
	Tags        []string `json:"tags" bson:"tags"`
}

type CertificateInput struct {
	Title       string   `json:"title" bson:"title"`
	Issuer      string   `json:"issuer" bson:"issuer"`
	IssueDate   string   `json:"issueDate" bson:"issueDate"`
	Image       *string  `json:"image" bson:"image"`
	Description *string  `json:"description" bson:"description"`
	Tags        []string `json:"tags" bson:"tags"`
	Published   bool     `json:"published" bson:"published"`
	Deleted     bool     `json:"deleted" bson:"deleted"`
}

func (in *CertificateInput) Validate() error {
	err := firstError(
		requireText("title", in.Title),
		requireText("issuer", in.Issuer),
		requireText("issueDate", in.IssueDate),
	)
	if err != nil {
		return err
	}
	in.Tags = cleanList(in.Tags)
	return nil
}
