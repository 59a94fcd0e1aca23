package api

import (
	"errors"
	"net/http"

	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/services"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	uploadFormField      = "file"
	uploadMemoryBytes    = 8 << 20
	defaultUploadMaxSize = 10 << 20
)

type uploadHandler struct {
	responder Responder
	logger    zerolog.Logger
	files     services.FileStore
	maxBytes  int64
}

func newUploadHandler(files services.FileStore, maxBytes int64) uploadHandler {
	if maxBytes <= 0 {
		maxBytes = defaultUploadMaxSize
	}
	logger := log.With().Str("handlerName", "uploadHandler").Logger()
	return uploadHandler{
		responder: NewResponder(logger),
		logger:    logger,
		files:     files,
		maxBytes:  maxBytes,
	}
}

// upload stores the multipart "file" field and returns the URL it is served from.
func (h uploadHandler) upload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > h.maxBytes {
			h.responder.WriteError(w, errs.NewMaxBodySizeExceededError(h.maxBytes))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

		if err := r.ParseMultipartForm(uploadMemoryBytes); err != nil {
			h.responder.WriteError(w, h.formError(r, err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile(uploadFormField)
		if err != nil {
			h.responder.WriteError(w, h.formError(r, err))
			return
		}
		defer file.Close()

		url, err := h.files.Save(r.Context(), services.Upload{
			OriginalName: header.Filename,
			ContentType:  header.Header.Get("Content-Type"),
			Size:         header.Size,
			Body:         file,
		})
		if err != nil {
			h.responder.WriteError(w, errs.NewInternalErrorWithCause("store upload", err))
			return
		}
		h.logger.Info().Str("url", url).Int64("size", header.Size).Msg("stored upload")
		h.responder.WriteJSON(w, uploadResponse{URL: url})
	}
}

func (h uploadHandler) formError(r *http.Request, err error) error {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		return errs.NewMaxBodySizeExceededError(h.maxBytes)
	case errors.Is(err, http.ErrNotMultipart):
		return errs.NewUnsupportedMediaTypeError(r.Header.Get("Content-Type"))
	case errors.Is(err, http.ErrMissingFile):
		return errs.NewMissingRequiredFieldError(uploadFormField)
	default:
		return errs.NewMalformedPayloadError("multipart", err)
	}
}
