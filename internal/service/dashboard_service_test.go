package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type mockDashboardUserRepo struct{ calls int }

func (m *mockDashboardUserRepo) CountByRole(ctx context.Context) (map[models.UserRole]int, error) {
	m.calls++
	return map[models.UserRole]int{models.RoleStudent: 120, models.RoleTeacher: 14}, nil
}

type mockDashboardClassRepo struct{}

func (mockDashboardClassRepo) Count(ctx context.Context) (int, error) { return 6, nil }

type mockDashboardAssignmentRepo struct{}

func (mockDashboardAssignmentRepo) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	return map[models.RequestStatus]int{models.RequestPending: 3}, nil
}

type mockDashboardEnrollmentRepo struct{}

func (mockDashboardEnrollmentRepo) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	return map[models.EnrollmentStatus]int{models.EnrollmentActive: 118}, nil
}

type mockDashboardCache struct {
	entries map[string]*DashboardSummary
	sets    int
}

func (m *mockDashboardCache) Get(ctx context.Context, key string, dest interface{}) error {
	cached, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	*dest.(*DashboardSummary) = *cached
	return nil
}

func (m *mockDashboardCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.sets++
	summary := value.(*DashboardSummary)
	m.entries[key] = summary
	return nil
}

func TestDashboardSummaryAggregates(t *testing.T) {
	users := &mockDashboardUserRepo{}
	cache := &mockDashboardCache{entries: map[string]*DashboardSummary{}}
	svc := NewDashboardService(users, mockDashboardClassRepo{}, mockDashboardAssignmentRepo{}, mockDashboardEnrollmentRepo{}, cache, time.Minute, nil)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Classes)
	assert.Equal(t, 120, summary.Users[models.RoleStudent])
	assert.Equal(t, 3, summary.Requests[models.RequestPending])
	assert.Equal(t, 118, summary.Enrollments[models.EnrollmentActive])
	assert.Equal(t, 1, cache.sets)
}

func TestDashboardSummaryServedFromCache(t *testing.T) {
	users := &mockDashboardUserRepo{}
	cache := &mockDashboardCache{entries: map[string]*DashboardSummary{}}
	svc := NewDashboardService(users, mockDashboardClassRepo{}, mockDashboardAssignmentRepo{}, mockDashboardEnrollmentRepo{}, cache, time.Minute, nil)

	_, err := svc.Summary(context.Background())
	require.NoError(t, err)
	_, err = svc.Summary(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, users.calls)
	assert.Equal(t, 1, cache.sets)
}

func TestDashboardSummaryWithoutCache(t *testing.T) {
	users := &mockDashboardUserRepo{}
	svc := NewDashboardService(users, mockDashboardClassRepo{}, mockDashboardAssignmentRepo{}, mockDashboardEnrollmentRepo{}, nil, time.Minute, nil)

	_, err := svc.Summary(context.Background())
	require.NoError(t, err)
	_, err = svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, users.calls)
}
