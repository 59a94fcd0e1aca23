package api

import (
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/models"
)

// initializeHandlers creates and returns all handlers organized in a routeHandlers struct
func initializeHandlers(db database.Database, svc Services, startupTime time.Time) *routeHandlers {
	return &routeHandlers{
		systemHandler:      newSystemHandler(db.Store(), startupTime),
		projectHandler:     newProjectHandler(db.ProjectRepo()),
		skillHandler:       newResourceHandler[models.Skill, models.SkillInput](db.SkillRepo(), "category"),
		testimonialHandler: newResourceHandler[models.Testimonial, models.TestimonialInput](db.TestimonialRepo(), ""),
		certificateHandler: newResourceHandler[models.Certificate, models.CertificateInput](db.CertificateRepo(), "tag"),
		contactHandler:     newContactHandler(svc.Contact),
		uploadHandler:      newUploadHandler(svc.Files, svc.UploadMaxBytes),
	}
}
