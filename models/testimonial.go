package models

type Testimonial struct {
	Document   `bson:",inline"`
	Name       string  `json:"name" bson:"name"`
	Role       *string `json:"role,omitempty" bson:"role,omitempty"`
	Quote      string  `json:"quote" bson:"quote"`
	Avatar     *string `json:"avatar,omitempty" bson:"avatar,omitempty"`
	SourceURL  *string `json:"sourceUrl,omitempty" bson:"sourceUrl,omitempty"`
	OrderIndex int     `json:"orderIndex" bson:"orderIndex"`
}

type TestimonialInput struct {
	Name       string  `json:"name" bson:"name"`
	Role       *string `json:"role" bson:"role"`
	Quote      string  `json:"quote" bson:"quote"`
	Avatar     *string `json:"avatar" bson:"avatar"`
	SourceURL  *string `json:"sourceUrl" bson:"sourceUrl"`
	OrderIndex int     `json:"orderIndex" bson:"orderIndex"`
	Published  bool    `json:"published" bson:"published"`
	Deleted    bool    `json:"deleted" bson:"deleted"`
}

func (in *TestimonialInput) Validate() error {
	return firstError(
		requireText("name", in.Name),
		requireText("quote", in.Quote),
	)
}
