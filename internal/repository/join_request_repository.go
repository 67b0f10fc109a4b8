package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/akademi/akademi-api/internal/models"
)

// JoinRequestRepository persists student class-join requests.
type JoinRequestRepository struct {
	db *sqlx.DB
}

// NewJoinRequestRepository constructs the repository.
func NewJoinRequestRepository(db *sqlx.DB) *JoinRequestRepository {
	return &JoinRequestRepository{db: db}
}

// Create inserts a PENDING join request unless a row for the
// (class, student) tuple already exists. Returns false on duplicate.
func (r *JoinRequestRepository) Create(ctx context.Context, request *models.ClassJoinRequest) (bool, error) {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.RequestedAt.IsZero() {
		request.RequestedAt = time.Now().UTC()
	}
	if request.Status == "" {
		request.Status = models.RequestPending
	}
	const query = `INSERT INTO class_join_requests (id, class_id, student_id, status, requested_at)
        SELECT $1, $2, $3, $4, $5
        WHERE NOT EXISTS (
            SELECT 1 FROM class_join_requests WHERE class_id = $2 AND student_id = $3
        )`
	res, err := r.db.ExecContext(ctx, query,
		request.ID, request.ClassID, request.StudentID, request.Status, request.RequestedAt)
	if err != nil {
		return false, fmt.Errorf("create join request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create join request result: %w", err)
	}
	return affected == 1, nil
}

// FindByID returns a join request by its ID.
func (r *JoinRequestRepository) FindByID(ctx context.Context, id string) (*models.ClassJoinRequest, error) {
	const query = `SELECT id, class_id, student_id, status, requested_at, resolved_at, resolved_by
        FROM class_join_requests WHERE id = $1`
	var request models.ClassJoinRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByTuple returns the join request for a (class, student) tuple.
func (r *JoinRequestRepository) FindByTuple(ctx context.Context, classID, studentID string) (*models.ClassJoinRequest, error) {
	const query = `SELECT id, class_id, student_id, status, requested_at, resolved_at, resolved_by
        FROM class_join_requests WHERE class_id = $1 AND student_id = $2`
	var request models.ClassJoinRequest
	if err := r.db.GetContext(ctx, &request, query, classID, studentID); err != nil {
		return nil, err
	}
	return &request, nil
}

// ResolvePending flips a PENDING request into a terminal status. False is
// returned when no PENDING row matched.
func (r *JoinRequestRepository) ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error) {
	const query = `UPDATE class_join_requests
        SET status = $2, resolved_at = $3, resolved_by = $4
        WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, resolvedAt, adminID, models.RequestPending)
	if err != nil {
		return false, fmt.Errorf("resolve join request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve join request result: %w", err)
	}
	return affected == 1, nil
}

// HasPendingByStudent reports whether the student already has an open
// request for any class.
func (r *JoinRequestRepository) HasPendingByStudent(ctx context.Context, studentID string) (bool, error) {
	const query = `SELECT 1 FROM class_join_requests WHERE student_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, models.RequestPending); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check pending join request: %w", err)
	}
	return true, nil
}

// ListByClass returns requests for a class with descriptive fields.
func (r *JoinRequestRepository) ListByClass(ctx context.Context, classID string, status models.RequestStatus) ([]models.ClassJoinRequestDetail, error) {
	query := `SELECT j.id, j.class_id, j.student_id, j.status, j.requested_at, j.resolved_at, j.resolved_by,
        c.name AS class_name, u.full_name AS student_name
        FROM class_join_requests j
        LEFT JOIN classes c ON c.id = j.class_id
        LEFT JOIN users u ON u.id = j.student_id
        WHERE j.class_id = $1`
	args := []interface{}{classID}
	if status != "" {
		query += " AND j.status = $2"
		args = append(args, status)
	}
	query += " ORDER BY j.requested_at DESC"

	var requests []models.ClassJoinRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("list join requests: %w", err)
	}
	return requests, nil
}

// ListByStudent returns the student's own requests.
func (r *JoinRequestRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ClassJoinRequestDetail, error) {
	const query = `SELECT j.id, j.class_id, j.student_id, j.status, j.requested_at, j.resolved_at, j.resolved_by,
        c.name AS class_name, u.full_name AS student_name
        FROM class_join_requests j
        LEFT JOIN classes c ON c.id = j.class_id
        LEFT JOIN users u ON u.id = j.student_id
        WHERE j.student_id = $1 ORDER BY j.requested_at DESC`
	var requests []models.ClassJoinRequestDetail
	if err := r.db.SelectContext(ctx, &requests, query, studentID); err != nil {
		return nil, fmt.Errorf("list student join requests: %w", err)
	}
	return requests, nil
}
