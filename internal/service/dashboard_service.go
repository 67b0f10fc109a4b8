package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

const dashboardCacheKey = "dashboard:summary"

type dashboardUserRepository interface {
	CountByRole(ctx context.Context) (map[models.UserRole]int, error)
}

type dashboardAssignmentRepository interface {
	CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error)
}

type dashboardEnrollmentRepository interface {
	CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error)
}

type dashboardClassRepository interface {
	Count(ctx context.Context) (int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// DashboardSummary aggregates counts shown on the admin landing page.
type DashboardSummary struct {
	Users       map[models.UserRole]int         `json:"users"`
	Classes     int                             `json:"classes"`
	Requests    map[models.RequestStatus]int    `json:"teach_requests"`
	Enrollments map[models.EnrollmentStatus]int `json:"enrollments"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// DashboardService composes the summary payload. Counts are cached in
// Redis; authorization decisions never read from this cache.
type DashboardService struct {
	users       dashboardUserRepository
	classes     dashboardClassRepository
	assignments dashboardAssignmentRepository
	enrollments dashboardEnrollmentRepository
	cache       dashboardCache
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewDashboardService creates a new dashboard service.
func NewDashboardService(users dashboardUserRepository, classes dashboardClassRepository, assignments dashboardAssignmentRepository, enrollments dashboardEnrollmentRepository, cache dashboardCache, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &DashboardService{
		users:       users,
		classes:     classes,
		assignments: assignments,
		enrollments: enrollments,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the aggregate counts, served from cache when fresh.
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	if s.cache != nil {
		var cached DashboardSummary
		if err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil {
			return &cached, nil
		} else if !appErrors.HasCode(err, appErrors.ErrCacheMiss.Code) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	users, err := s.users.CountByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}
	classCount, err := s.classes.Count(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count classes")
	}
	requests, err := s.assignments.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teach requests")
	}
	enrollments, err := s.enrollments.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count enrollments")
	}

	summary := &DashboardSummary{
		Users:       users,
		Classes:     classCount,
		Requests:    requests,
		Enrollments: enrollments,
		GeneratedAt: s.now(),
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}
