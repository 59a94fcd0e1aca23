package api

import "github.com/rpupo63/portfolio-api/models"

// routeHandlers contains all the handlers for different route types
type routeHandlers struct {
	systemHandler      systemHandler
	projectHandler     projectHandler
	skillHandler       resourceHandler[models.Skill, models.SkillInput, *models.SkillInput]
	testimonialHandler resourceHandler[models.Testimonial, models.TestimonialInput, *models.TestimonialInput]
	certificateHandler resourceHandler[models.Certificate, models.CertificateInput, *models.CertificateInput]
	contactHandler     contactHandler
	uploadHandler      uploadHandler
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error   string `json:"error" example:"validation failed: title: is required"`
	Status  string `json:"status" example:"error"`
	Field   string `json:"field,omitempty" example:"title"`
	Details string `json:"details,omitempty" example:"title: is required"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type createdResponse struct {
	ID string `json:"id"`
}

type uploadResponse struct {
	URL string `json:"url"`
}

type bulkPublishRequest struct {
	IDs       []string `json:"ids"`
	Published *bool    `json:"published"`
}

type reorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}
