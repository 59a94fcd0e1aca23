package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// setupRoutes mounts the public read endpoints, the contact form and the
// token-protected admin API.
func setupRoutes(r chi.Router, handlers *routeHandlers, authMiddleware authMiddleware, uploadDir string) {
	r.Get("/", handlers.systemHandler.root())
	r.Get("/schema", handlers.systemHandler.schema())
	r.Get("/test", handlers.systemHandler.test())

	if uploadDir != "" {
		r.Get("/uploads/*", uploadedFiles(uploadDir))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/projects", handlers.projectHandler.publicList(false))
		r.Get("/projects/{slug}", handlers.projectHandler.getProject())
		r.Get("/skills", handlers.skillHandler.publicList(true))
		r.Get("/testimonials", handlers.testimonialHandler.publicList(true))
		r.Get("/certificates", handlers.certificateHandler.publicList(true))
		r.Post("/contact", handlers.contactHandler.submit())

		r.Route("/admin", func(r chi.Router) {
			r.Use(authMiddleware.authenticate)

			r.Post("/upload", handlers.uploadHandler.upload())
			r.Route("/projects", handlers.projectHandler.adminRoutes)
			r.Route("/skills", handlers.skillHandler.adminRoutes)
			r.Route("/testimonials", handlers.testimonialHandler.adminRoutes)
			r.Route("/certificates", handlers.certificateHandler.adminRoutes)
		})
	})
}

// uploadedFiles serves stored uploads read-only, without directory listings.
func uploadedFiles(dir string) http.HandlerFunc {
	fs := http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir)))
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}
}
