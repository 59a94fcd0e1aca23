package services

import (
	"context"
	"time"

	"github.com/rpupo63/portfolio-api/database"
	"github.com/rpupo63/portfolio-api/errs"
	"github.com/rpupo63/portfolio-api/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	contactEntity        = "message"
	contactNotifyTimeout = 15 * time.Second
)

type contactNotifier interface {
	Notify(ctx context.Context, in models.ContactInput) error
}

// ContactService accepts contact form submissions from anonymous callers.
type ContactService struct {
	limiter  RateLimiter
	sink     database.ActivitySink
	notifier contactNotifier
	logger   zerolog.Logger
	now      func() time.Time
}

// NewContactService wires the intake. notifier may be nil.
func NewContactService(limiter RateLimiter, sink database.ActivitySink, notifier contactNotifier) *ContactService {
	return &ContactService{
		limiter:  limiter,
		sink:     sink,
		notifier: notifier,
		logger:   log.With().Str("component", "contact").Logger(),
		now:      time.Now,
	}
}

// Submit validates in, charges callerKey against the rate limit and records the
// message. A failing limiter backend lets the submission through.
func (s *ContactService) Submit(ctx context.Context, callerKey string, in models.ContactInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	allowed, retryAfter, err := s.limiter.Allow(ctx, callerKey)
	switch {
	case err != nil:
		s.logger.Warn().Err(err).Str("caller", callerKey).Msg("rate limiter unavailable, admitting contact request")
	case !allowed:
		return errs.NewRateLimitError("contact", retryAfter)
	}

	s.sink.Record(ctx, models.ActivityLog{
		UserEmail: in.Email,
		Action:    models.ActionContact,
		Entity:    contactEntity,
		EntityID:  "-",
		Metadata:  in.Metadata(),
		Timestamp: s.now().UTC(),
	})

	if s.notifier != nil {
		go s.notify(in)
	}
	return nil
}

func (s *ContactService) notify(in models.ContactInput) {
	ctx, cancel := context.WithTimeout(context.Background(), contactNotifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(ctx, in); err != nil {
		s.logger.Error().Err(err).Msg("failed to send contact notification")
	}
}
