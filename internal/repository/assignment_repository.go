package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/akademi/akademi-api/internal/models"
)

// AssignmentRepository persists teacher-subject assignment rows. Every
// mutation is a single predicate-guarded statement so concurrent requests
// cannot double-apply.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts a PENDING assignment unless a row for the
// (class, subject, teacher) tuple already exists in any status. Returns
// false when the tuple is already taken.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.TeacherAssignment) (bool, error) {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.RequestedAt.IsZero() {
		assignment.RequestedAt = time.Now().UTC()
	}
	if assignment.Status == "" {
		assignment.Status = models.RequestPending
	}
	const query = `INSERT INTO teacher_assignments (id, class_id, subject_id, teacher_id, status, lead_teacher, requested_at)
        SELECT $1, $2, $3, $4, $5, $6, $7
        WHERE NOT EXISTS (
            SELECT 1 FROM teacher_assignments
            WHERE class_id = $2 AND subject_id = $3 AND teacher_id = $4
        )`
	res, err := r.db.ExecContext(ctx, query,
		assignment.ID, assignment.ClassID, assignment.SubjectID, assignment.TeacherID,
		assignment.Status, assignment.LeadTeacher, assignment.RequestedAt)
	if err != nil {
		return false, fmt.Errorf("create teacher assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create teacher assignment result: %w", err)
	}
	return affected == 1, nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, class_id, subject_id, teacher_id, status, lead_teacher, requested_at, resolved_at, resolved_by
        FROM teacher_assignments WHERE id = $1`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// FindByTuple returns the assignment for a (class, subject, teacher) tuple.
func (r *AssignmentRepository) FindByTuple(ctx context.Context, classID, subjectID, teacherID string) (*models.TeacherAssignment, error) {
	const query = `SELECT id, class_id, subject_id, teacher_id, status, lead_teacher, requested_at, resolved_at, resolved_by
        FROM teacher_assignments WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3`
	var assignment models.TeacherAssignment
	if err := r.db.GetContext(ctx, &assignment, query, classID, subjectID, teacherID); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ResolvePending flips a PENDING assignment into a terminal status. The
// update predicate makes a concurrent second resolution a no-op; false is
// returned when no PENDING row matched.
func (r *AssignmentRepository) ResolvePending(ctx context.Context, id string, status models.RequestStatus, adminID string, resolvedAt time.Time) (bool, error) {
	const query = `UPDATE teacher_assignments
        SET status = $2, resolved_at = $3, resolved_by = $4
        WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, status, resolvedAt, adminID, models.RequestPending)
	if err != nil {
		return false, fmt.Errorf("resolve teacher assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("resolve teacher assignment result: %w", err)
	}
	return affected == 1, nil
}

// ExistsApproved checks whether the teacher is approved for the exact
// (class, subject) pair.
func (r *AssignmentRepository) ExistsApproved(ctx context.Context, classID, subjectID, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_assignments
        WHERE class_id = $1 AND subject_id = $2 AND teacher_id = $3 AND status = $4 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, subjectID, teacherID, models.RequestApproved); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check approved assignment: %w", err)
	}
	return true, nil
}

// ExistsApprovedInClass checks whether the teacher is approved for any
// subject within the class.
func (r *AssignmentRepository) ExistsApprovedInClass(ctx context.Context, classID, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM teacher_assignments
        WHERE class_id = $1 AND teacher_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, teacherID, models.RequestApproved); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check approved class assignment: %w", err)
	}
	return true, nil
}

// ApprovedPairsByTeacher returns the (class, subject) pairs the teacher is
// approved for, used to build listing filters.
func (r *AssignmentRepository) ApprovedPairsByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectPair, error) {
	const query = `SELECT class_id, subject_id FROM teacher_assignments
        WHERE teacher_id = $1 AND status = $2 ORDER BY class_id, subject_id`
	var pairs []models.ClassSubjectPair
	if err := r.db.SelectContext(ctx, &pairs, query, teacherID, models.RequestApproved); err != nil {
		return nil, fmt.Errorf("list approved pairs: %w", err)
	}
	return pairs, nil
}

// List returns assignments with descriptive fields filtered by the criteria.
func (r *AssignmentRepository) List(ctx context.Context, filter models.TeacherAssignmentFilter) ([]models.TeacherAssignmentDetail, int, error) {
	base := `FROM teacher_assignments a
LEFT JOIN classes c ON c.id = a.class_id
LEFT JOIN subjects s ON s.id = a.subject_id
LEFT JOIN users u ON u.id = a.teacher_id`
	var conditions []string
	var args []interface{}

	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("a.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.class_id, a.subject_id, a.teacher_id, a.status, a.lead_teacher,
        a.requested_at, a.resolved_at, a.resolved_by,
        c.name AS class_name, s.name AS subject_name, u.full_name AS teacher_name
        %s ORDER BY a.requested_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var assignments []models.TeacherAssignmentDetail
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teacher assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teacher assignments: %w", err)
	}
	return assignments, total, nil
}

// CountByStatus aggregates assignment totals for the dashboard.
func (r *AssignmentRepository) CountByStatus(ctx context.Context) (map[models.RequestStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM teacher_assignments GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count assignments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RequestStatus]int)
	for rows.Next() {
		var status models.RequestStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan assignment count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
