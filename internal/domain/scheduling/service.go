package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/opd/internal/platform/cache"
	"github.com/hms/opd/internal/platform/db"
	"github.com/hms/opd/internal/platform/metrics"
)

type Service struct {
	doctors   DoctorRepository
	blocks    AvailabilityRepository
	bookings  BookingRepository
	planner   *Planner
	validator *BlockValidator
	cache     cache.Store
	cacheTTL  time.Duration
	logger    zerolog.Logger
}

func NewService(doc DoctorRepository, avail AvailabilityRepository, book BookingRepository, planner *Planner, logger zerolog.Logger) *Service {
	return &Service{
		doctors:   doc,
		blocks:    avail,
		bookings:  book,
		planner:   planner,
		validator: NewBlockValidator(),
		cache:     cache.Nop{},
		logger:    logger.With().Str("component", "scheduling").Logger(),
	}
}

// UsePlanCache makes DayPlan serve repeated requests from store for up to
// ttl. Entries are dropped early by InvalidatePlan.
func (s *Service) UsePlanCache(store cache.Store, ttl time.Duration) {
	if store == nil {
		store = cache.Nop{}
	}
	s.cache = store
	s.cacheTTL = ttl
}

// -- Doctor --

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Availability --

// ListAvailability returns the doctor's blocks after validating each one.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityBlock, error) {
	blocks, err := s.blocks.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	for i := range blocks {
		if err := s.validator.Validate(&blocks[i]); err != nil {
			return nil, fmt.Errorf("availability block %s: %w", blocks[i].ID, err)
		}
	}
	return blocks, nil
}

// -- Day plan --

// DayPlan loads the inputs for doctorID and date and runs the planner. The
// result is advisory: the booking server decides who gets a contested slot.
func (s *Service) DayPlan(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DayPlan, error) {
	start := time.Now()
	key := PlanCacheKey(db.TenantFromContext(ctx), doctorID, date)
	if plan, ok := s.cachedPlan(ctx, key); ok {
		return plan, nil
	}

	doctor, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	blocks, err := s.ListAvailability(ctx, doctorID)
	if err != nil {
		metrics.PlanFailures.WithLabelValues("availability").Inc()
		return nil, err
	}
	bookings, err := s.bookings.ListByDate(ctx, date)
	if err != nil {
		metrics.PlanFailures.WithLabelValues("bookings").Inc()
		return nil, err
	}

	plan, err := s.planner.Plan(doctor, blocks, bookings, date)
	if err != nil {
		metrics.PlanFailures.WithLabelValues("reconcile").Inc()
		s.logger.Error().Err(err).
			Str("doctor_id", doctorID.String()).
			Str("date", date.Format(time.DateOnly)).
			Msg("day plan failed")
		return nil, err
	}

	generated, booked, legacy := plan.Counts()
	metrics.SlotsGenerated.Add(float64(generated))
	metrics.SlotsBooked.Add(float64(booked))
	metrics.LegacySlotsSynthesized.Add(float64(legacy))
	metrics.PlanDuration.Observe(time.Since(start).Seconds())

	s.logger.Debug().
		Str("doctor_id", doctorID.String()).
		Str("date", date.Format(time.DateOnly)).
		Int("generated", generated).
		Int("booked", booked).
		Int("legacy", legacy).
		Int("available", len(plan.Available)).
		Msg("day plan computed")

	s.storePlan(ctx, key, plan)
	return plan, nil
}

// InvalidatePlan drops the cached plan for one doctor and date.
func (s *Service) InvalidatePlan(ctx context.Context, tenant string, doctorID uuid.UUID, date time.Time) error {
	return s.cache.Delete(ctx, PlanCacheKey(tenant, doctorID, date))
}

// InvalidateDoctor drops every cached plan of one doctor. A weekly block
// change affects an open-ended set of dates.
func (s *Service) InvalidateDoctor(ctx context.Context, tenant string, doctorID uuid.UUID) error {
	return s.cache.DeletePrefix(ctx, planCachePrefix(tenant, doctorID))
}

// Cache failures never fail a request; the plan is recomputed instead.
func (s *Service) cachedPlan(ctx context.Context, key string) (*DayPlan, bool) {
	data, err := s.cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		metrics.PlanCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case err != nil:
		metrics.PlanCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("plan cache read")
		return nil, false
	}

	var plan DayPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		metrics.PlanCacheLookups.WithLabelValues("error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("plan cache decode")
		return nil, false
	}
	metrics.PlanCacheLookups.WithLabelValues("hit").Inc()
	return &plan, true
}

func (s *Service) storePlan(ctx context.Context, key string, plan *DayPlan) {
	if s.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(plan)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("plan cache encode")
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("plan cache write")
	}
}

// PlanCacheKey is plan:<tenant>:<doctor>:<YYYY-MM-DD>. An empty tenant is
// stored as "default".
func PlanCacheKey(tenant string, doctorID uuid.UUID, date time.Time) string {
	return planCachePrefix(tenant, doctorID) + date.Format(time.DateOnly)
}

func planCachePrefix(tenant string, doctorID uuid.UUID) string {
	if tenant == "" {
		tenant = "default"
	}
	return fmt.Sprintf("plan:%s:%s:", tenant, doctorID)
}
