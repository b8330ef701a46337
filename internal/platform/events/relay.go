package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/opd/internal/platform/metrics"
	"github.com/hms/opd/internal/platform/websocket"
)

// PlanInvalidator drops cached day plans.
type PlanInvalidator interface {
	InvalidatePlan(ctx context.Context, tenant string, doctorID uuid.UUID, date time.Time) error
	InvalidateDoctor(ctx context.Context, tenant string, doctorID uuid.UUID) error
}

// Source produces raw event payloads until ctx is done.
type Source interface {
	Name() string
	Run(ctx context.Context, deliver func(ctx context.Context, payload []byte)) error
}

// Relay decodes events, invalidates the cached plan and publishes them to
// the doctor's topic, scoped to the event's tenant.
type Relay struct {
	publisher     websocket.EventPublisher
	invalidator   PlanInvalidator
	defaultTenant string
	logger        zerolog.Logger
}

// NewRelay returns a Relay. invalidator may be nil. Events without a tenant
// are attributed to defaultTenant.
func NewRelay(publisher websocket.EventPublisher, invalidator PlanInvalidator, defaultTenant string, logger zerolog.Logger) *Relay {
	return &Relay{
		publisher:     publisher,
		invalidator:   invalidator,
		defaultTenant: defaultTenant,
		logger:        logger.With().Str("component", "events").Logger(),
	}
}

// Handle processes one payload received from source.
func (r *Relay) Handle(ctx context.Context, source string, payload []byte) error {
	ev, err := Decode(payload)
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownType) {
			reason = "unknown_type"
		}
		metrics.EventsDropped.WithLabelValues(source, reason).Inc()
		r.logger.Warn().Err(err).Str("source", source).Msg("slot event dropped")
		return err
	}

	tenant := ev.Tenant
	if tenant == "" {
		tenant = r.defaultTenant
	}

	if err := r.invalidate(ctx, tenant, ev); err != nil {
		r.logger.Warn().Err(err).
			Str("tenant", tenant).
			Str("doctor_id", ev.DoctorID.String()).
			Str("date", ev.Date).
			Msg("plan cache invalidation failed")
	}

	if err := r.publisher.Publish(ctx, websocket.Event{
		Type:     string(ev.Type),
		Topic:    websocket.DoctorTopic(ev.DoctorID.String()),
		Tenant:   tenant,
		DoctorID: ev.DoctorID.String(),
		Date:     ev.Date,
		Data:     payload,
	}); err != nil {
		metrics.EventsDropped.WithLabelValues(source, "publish").Inc()
		return err
	}

	metrics.EventsRelayed.WithLabelValues(source, string(ev.Type)).Inc()
	r.logger.Debug().
		Str("source", source).
		Str("type", string(ev.Type)).
		Str("doctor_id", ev.DoctorID.String()).
		Str("date", ev.Date).
		Msg("slot event relayed")
	return nil
}

func (r *Relay) invalidate(ctx context.Context, tenant string, ev SlotEvent) error {
	switch {
	case r.invalidator == nil:
		return nil
	case ev.AllDates():
		return r.invalidator.InvalidateDoctor(ctx, tenant, ev.DoctorID)
	default:
		return r.invalidator.InvalidatePlan(ctx, tenant, ev.DoctorID, ev.Day())
	}
}

// Run feeds src into the relay until ctx is done or src fails.
func (r *Relay) Run(ctx context.Context, src Source) error {
	r.logger.Info().Str("source", src.Name()).Msg("event relay started")
	err := src.Run(ctx, func(ctx context.Context, payload []byte) {
		_ = r.Handle(ctx, src.Name(), payload)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	r.logger.Info().Str("source", src.Name()).Msg("event relay stopped")
	return nil
}
