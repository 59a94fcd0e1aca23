package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const maxJSONBodyBytes = 1 << 20

// inputPtr lets a handler allocate a fresh typed input per request.
type inputPtr[V any] interface {
	*V
	database.Input
}

// resourceHandler serves the public list and the admin CRUD endpoints of one
// collection.
type resourceHandler[T any, V any, PI inputPtr[V]] struct {
	responder Responder
	logger    zerolog.Logger
	repo      *database.Repository[T, PI]
	tagParam  string
}

func newResourceHandler[T any, V any, PI inputPtr[V]](repo *database.Repository[T, PI], tagParam string) resourceHandler[T, V, PI] {
	logger := log.With().Str("handlerName", repo.Entity()+"Handler").Logger()
	return resourceHandler[T, V, PI]{
		responder: NewResponder(logger),
		logger:    logger,
		repo:      repo,
		tagParam:  tagParam,
	}
}

// adminRoutes mounts the bearer-protected endpoints under the entity prefix.
func (h resourceHandler[T, V, PI]) adminRoutes(r chi.Router) {
	r.Get("/", h.adminList())
	r.Post("/", h.create())
	r.Post("/bulk-publish", h.bulkPublish())
	r.Post("/reorder", h.reorder())
	r.Get("/{id}", h.adminGet())
	r.Put("/{id}", h.update())
	r.Delete("/{id}", h.deleteResource())
}

// publicList lists non-deleted documents. Published-only listings ignore any
// published parameter.
func (h resourceHandler[T, V, PI]) publicList(publishedOnly bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := h.parseListQuery(r)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		q.IncludeDeleted = false
		if publishedOnly {
			published := true
			q.Published = &published
		}

		page, err := h.repo.List(r.Context(), q)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, page)
	}
}

func (h resourceHandler[T, V, PI]) adminList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := h.parseListQuery(r)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		page, err := h.repo.List(r.Context(), q)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, page)
	}
}

func (h resourceHandler[T, V, PI]) adminGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeDeleted, err := boolParam(r, "include_deleted")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		item, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"), includeDeleted != nil && *includeDeleted)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteJSON(w, item)
	}
}

func (h resourceHandler[T, V, PI]) create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := PI(new(V))
		if err := decodeJSON(w, r, in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		id, err := h.repo.Create(r.Context(), in)
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.logger.Info().Str("id", id.Hex()).Msg("created")
		h.responder.WriteJSONStatus(w, http.StatusCreated, createdResponse{ID: id.Hex()})
	}
}

func (h resourceHandler[T, V, PI]) update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := PI(new(V))
		if err := decodeJSON(w, r, in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.repo.Update(r.Context(), chi.URLParam(r, "id"), in); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteOK(w)
	}
}

func (h resourceHandler[T, V, PI]) deleteResource() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hard, err := boolParam(r, "hard")
		if err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.repo.Delete(r.Context(), chi.URLParam(r, "id"), hard != nil && *hard); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteOK(w)
	}
}

func (h resourceHandler[T, V, PI]) bulkPublish() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkPublishRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if req.IDs == nil {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("ids"))
			return
		}
		if req.Published == nil {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("published"))
			return
		}

		if err := h.repo.BulkSetPublished(r.Context(), req.IDs, *req.Published); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteOK(w)
	}
}

func (h resourceHandler[T, V, PI]) reorder() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reorderRequest
		if err := decodeJSON(w, r, &req); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		if req.OrderedIDs == nil {
			h.responder.WriteError(w, errs.NewMissingRequiredFieldError("ordered_ids"))
			return
		}

		if err := h.repo.Reorder(r.Context(), req.OrderedIDs); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteOK(w)
	}
}

// parseListQuery reads page, limit, search, published, include_deleted and the
// entity's tag parameter. Absent page and limit take their defaults.
func (h resourceHandler[T, V, PI]) parseListQuery(r *http.Request) (database.Query, error) {
	params := r.URL.Query()
	q := database.Query{
		Search: params.Get("search"),
		Page:   1,
		Limit:  h.repo.DefaultLimit(),
	}
	if h.tagParam != "" {
		q.Tag = params.Get(h.tagParam)
	}

	var err error
	if q.Page, err = intParam(r, "page", q.Page); err != nil {
		return q, err
	}
	if q.Limit, err = intParam(r, "limit", q.Limit); err != nil {
		return q, err
	}
	if q.Published, err = boolParam(r, "published"); err != nil {
		return q, err
	}
	includeDeleted, err := boolParam(r, "include_deleted")
	if err != nil {
		return q, err
	}
	q.IncludeDeleted = includeDeleted != nil && *includeDeleted
	return q, nil
}

func intParam(r *http.Request, name string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.NewValidationError(name, "must be an integer")
	}
	return v, nil
}

// boolParam returns nil when the parameter is absent.
func boolParam(r *http.Request, name string) (*bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, errs.NewValidationError(name, "must be true or false")
	}
	return &v, nil
}

// decodeJSON reads one JSON value from a size-capped body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return errs.NewUnsupportedMediaTypeError(ct)
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return errs.NewMaxBodySizeExceededError(maxErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return errs.NewMalformedPayloadError("json", errors.New("empty body"))
		}
		return errs.NewMalformedPayloadError("json", err)
	}
	return nil
}
