package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/models"
)

// projectHandler adds the public slug lookup to the shared resource endpoints.
type projectHandler struct {
	resourceHandler[models.Project, models.ProjectInput, *models.ProjectInput]
}

func newProjectHandler(projectRepo *database.ProjectRepo) projectHandler {
	return projectHandler{
		resourceHandler: newResourceHandler[models.Project, models.ProjectInput](projectRepo, "tag"),
	}
}

// getProject retrieves a published, non-deleted project by slug. A well-formed
// id is accepted as well.
func (h projectHandler) getProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		project, err := h.repo.GetBySlugOrID(r.Context(), chi.URLParam(r, "slug"), true)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, project)
	}
}
