package api

import (
	"context"
	"net/http"

	"github.com/rpupo63/portfolio-api/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contactSubmitter interface {
	Submit(ctx context.Context, callerKey string, in models.ContactInput) error
}

type contactHandler struct {
	responder Responder
	logger    zerolog.Logger
	contact   contactSubmitter
}

func newContactHandler(contact contactSubmitter) contactHandler {
	logger := log.With().Str("handlerName", "contactHandler").Logger()
	return contactHandler{
		responder: NewResponder(logger),
		logger:    logger,
		contact:   contact,
	}
}

// submit records a contact form message. Callers are rate limited by address.
func (h contactHandler) submit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in models.ContactInput
		if err := decodeJSON(w, r, &in); err != nil {
			h.responder.WriteError(w, err)
			return
		}

		if err := h.contact.Submit(r.Context(), callerKey(r), in); err != nil {
			h.responder.WriteError(w, err)
			return
		}
		h.responder.WriteOK(w)
	}
}
