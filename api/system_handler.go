package api

import (
	"context"
	"net/http"
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/docstore"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const diagnosticsTimeout = 2 * time.Second

var schemaCollections = []string{
	database.ProjectCollection,
	database.SkillCollection,
	database.TestimonialCollection,
	database.CertificateCollection,
	database.ActivityLogCollection,
}

type systemHandler struct {
	responder   Responder
	logger      zerolog.Logger
	store       docstore.Store
	startupTime time.Time
}

func newSystemHandler(store docstore.Store, startupTime time.Time) systemHandler {
	logger := log.With().Str("handlerName", "systemHandler").Logger()
	return systemHandler{
		responder:   NewResponder(logger),
		logger:      logger,
		store:       store,
		startupTime: startupTime,
	}
}

func (h systemHandler) root() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.responder.WriteJSON(w, map[string]string{"message": "Portfolio API is running"})
	}
}

func (h systemHandler) schema() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.responder.WriteJSON(w, map[string][]string{"collections": schemaCollections})
	}
}

type diagnostics struct {
	Backend          string   `json:"backend"`
	Database         string   `json:"database"`
	ConnectionStatus string   `json:"connection_status"`
	Collections      []string `json:"collections"`
	Error            string   `json:"error,omitempty"`
	UptimeSeconds    int64    `json:"uptime_seconds"`
}

// test reports store connectivity. It always answers 200.
func (h systemHandler) test() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), diagnosticsTimeout)
		defer cancel()

		status := diagnostics{
			Backend:          "running",
			Database:         h.store.Kind(),
			ConnectionStatus: "Not Connected",
			Collections:      []string{},
			UptimeSeconds:    int64(time.Since(h.startupTime).Seconds()),
		}
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("store ping failed")
			status.Error = err.Error()
			h.responder.WriteJSON(w, status)
			return
		}
		status.ConnectionStatus = "Connected"
		if names, err := h.store.CollectionNames(ctx); err == nil {
			status.Collections = append(status.Collections, names...)
		} else {
			status.Error = err.Error()
		}
		h.responder.WriteJSON(w, status)
	}
}
