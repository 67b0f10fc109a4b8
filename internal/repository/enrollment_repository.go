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

// EnrollmentRepository handles persistence of enrollments and their
// per-subject rows. Creation and transfer are transactional so there is
// never a window with zero or two ACTIVE rows for a student and term.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateWithSubjects inserts an ACTIVE enrollment plus its subject rows in
// one transaction. The insert is guarded against an existing ACTIVE row for
// the (student, term) pair; false is returned when the guard rejects it.
func (r *EnrollmentRepository) CreateWithSubjects(ctx context.Context, enrollment *models.Enrollment, subjectIDs []string) (bool, error) {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.JoinedAt.IsZero() {
		enrollment.JoinedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentActive
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enrollment tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	created, err := insertEnrollment(ctx, tx, enrollment)
	if err != nil {
		return false, err
	}
	if !created {
		return false, nil
	}

	if err := insertEnrollmentSubjects(ctx, tx, enrollment.ID, subjectIDs); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enrollment tx: %w", err)
	}
	return true, nil
}

func insertEnrollment(ctx context.Context, tx *sqlx.Tx, enrollment *models.Enrollment) (bool, error) {
	const query = `INSERT INTO enrollments (id, student_id, class_id, term_id, status, joined_at, left_at, transfer_from_class_id, transfer_reason)
        SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9
        WHERE NOT EXISTS (
            SELECT 1 FROM enrollments
            WHERE student_id = $2 AND term_id = $4 AND status = $10
        )`
	res, err := tx.ExecContext(ctx, query,
		enrollment.ID, enrollment.StudentID, enrollment.ClassID, enrollment.TermID,
		enrollment.Status, enrollment.JoinedAt, enrollment.LeftAt,
		enrollment.TransferFromClassID, enrollment.TransferReason,
		models.EnrollmentActive)
	if err != nil {
		return false, fmt.Errorf("insert enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert enrollment result: %w", err)
	}
	return affected == 1, nil
}

func insertEnrollmentSubjects(ctx context.Context, tx *sqlx.Tx, enrollmentID string, subjectIDs []string) error {
	const query = `INSERT INTO enrollment_subjects (id, enrollment_id, subject_id, status)
        VALUES ($1, $2, $3, $4)`
	for _, subjectID := range subjectIDs {
		if _, err := tx.ExecContext(ctx, query, uuid.NewString(), enrollmentID, subjectID, models.SubjectEnrolled); err != nil {
			return fmt.Errorf("insert enrollment subject %s: %w", subjectID, err)
		}
	}
	return nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, term_id, status, joined_at, left_at, transfer_from_class_id, transfer_reason
        FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByID returns an enrollment with contextual info and subjects.
func (r *EnrollmentRepository) FindDetailByID(ctx context.Context, id string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.term_id, e.status, e.joined_at, e.left_at,
        e.transfer_from_class_id, e.transfer_reason,
        u.full_name AS student_name, c.name AS class_name, t.name AS term_name
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        LEFT JOIN terms t ON t.id = e.term_id
        WHERE e.id = $1`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	subjects, err := r.ListSubjects(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.Subjects = subjects
	return &detail, nil
}

// ListSubjects returns the subject rows of an enrollment.
func (r *EnrollmentRepository) ListSubjects(ctx context.Context, enrollmentID string) ([]models.EnrollmentSubject, error) {
	const query = `SELECT id, enrollment_id, subject_id, status FROM enrollment_subjects
        WHERE enrollment_id = $1 ORDER BY subject_id`
	var subjects []models.EnrollmentSubject
	if err := r.db.SelectContext(ctx, &subjects, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list enrollment subjects: %w", err)
	}
	return subjects, nil
}

// ExistsActive checks if an ACTIVE enrollment exists for (student, term).
func (r *EnrollmentRepository) ExistsActive(ctx context.Context, studentID, termID string) (bool, error) {
	const query = `SELECT 1 FROM enrollments
        WHERE student_id = $1 AND term_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, studentID, termID, models.EnrollmentActive); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check active enrollment: %w", err)
	}
	return true, nil
}

// FindActiveByStudentAndClass returns the student's ACTIVE enrollment for a
// class, if any.
func (r *EnrollmentRepository) FindActiveByStudentAndClass(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, term_id, status, joined_at, left_at, transfer_from_class_id, transfer_reason
        FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID, models.EnrollmentActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// HasEnrolledSubject reports whether the enrollment carries the subject in
// ENROLLED state.
func (r *EnrollmentRepository) HasEnrolledSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM enrollment_subjects
        WHERE enrollment_id = $1 AND subject_id = $2 AND status = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, enrollmentID, subjectID, models.SubjectEnrolled); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrolled subject: %w", err)
	}
	return true, nil
}

// ActivePairsByStudent returns the (class, subject) pairs the student may
// act on, derived from ACTIVE enrollments and ENROLLED subject rows.
func (r *EnrollmentRepository) ActivePairsByStudent(ctx context.Context, studentID string) ([]models.ClassSubjectPair, error) {
	const query = `SELECT e.class_id, es.subject_id
        FROM enrollments e
        JOIN enrollment_subjects es ON es.enrollment_id = e.id
        WHERE e.student_id = $1 AND e.status = $2 AND es.status = $3
        ORDER BY e.class_id, es.subject_id`
	var pairs []models.ClassSubjectPair
	if err := r.db.SelectContext(ctx, &pairs, query, studentID, models.EnrollmentActive, models.SubjectEnrolled); err != nil {
		return nil, fmt.Errorf("list student pairs: %w", err)
	}
	return pairs, nil
}

// Transfer closes the ACTIVE source enrollment and opens a new ACTIVE one
// for the target class in a single transaction. The close is guarded on
// ACTIVE status; sql.ErrNoRows is returned when the source is not ACTIVE.
func (r *EnrollmentRepository) Transfer(ctx context.Context, id, targetClassID, reason string, carrySubjectIDs []string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transfer tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var source models.Enrollment
	const selectQuery = `SELECT id, student_id, class_id, term_id, status, joined_at, left_at, transfer_from_class_id, transfer_reason
        FROM enrollments WHERE id = $1 FOR UPDATE`
	if err := tx.GetContext(ctx, &source, selectQuery, id); err != nil {
		return nil, err
	}

	leftAt := time.Now().UTC()
	const closeQuery = `UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, closeQuery, id, models.EnrollmentTransferred, leftAt, models.EnrollmentActive)
	if err != nil {
		return nil, fmt.Errorf("close source enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("close source enrollment result: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}

	replacement := &models.Enrollment{
		ID:                  uuid.NewString(),
		StudentID:           source.StudentID,
		ClassID:             targetClassID,
		TermID:              source.TermID,
		Status:              models.EnrollmentActive,
		JoinedAt:            leftAt,
		TransferFromClassID: &source.ClassID,
	}
	if reason != "" {
		replacement.TransferReason = &reason
	}
	const insertQuery = `INSERT INTO enrollments (id, student_id, class_id, term_id, status, joined_at, transfer_from_class_id, transfer_reason)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := tx.ExecContext(ctx, insertQuery,
		replacement.ID, replacement.StudentID, replacement.ClassID, replacement.TermID,
		replacement.Status, replacement.JoinedAt, replacement.TransferFromClassID, replacement.TransferReason); err != nil {
		return nil, fmt.Errorf("insert replacement enrollment: %w", err)
	}

	if err := insertEnrollmentSubjects(ctx, tx, replacement.ID, carrySubjectIDs); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transfer tx: %w", err)
	}
	return replacement, nil
}

// Complete marks an ACTIVE enrollment COMPLETED and finishes its ENROLLED
// subject rows. False is returned when the enrollment was not ACTIVE.
func (r *EnrollmentRepository) Complete(ctx context.Context, id string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin complete tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	leftAt := time.Now().UTC()
	const closeQuery = `UPDATE enrollments SET status = $2, left_at = $3 WHERE id = $1 AND status = $4`
	res, err := tx.ExecContext(ctx, closeQuery, id, models.EnrollmentCompleted, leftAt, models.EnrollmentActive)
	if err != nil {
		return false, fmt.Errorf("complete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete enrollment result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const subjectsQuery = `UPDATE enrollment_subjects SET status = $2 WHERE enrollment_id = $1 AND status = $3`
	if _, err := tx.ExecContext(ctx, subjectsQuery, id, models.SubjectCompletedState, models.SubjectEnrolled); err != nil {
		return false, fmt.Errorf("complete enrollment subjects: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit complete tx: %w", err)
	}
	return true, nil
}

// DropSubject flips an ENROLLED subject row to DROPPED. False is returned
// when no ENROLLED row matched.
func (r *EnrollmentRepository) DropSubject(ctx context.Context, enrollmentID, subjectID string) (bool, error) {
	const query = `UPDATE enrollment_subjects SET status = $3
        WHERE enrollment_id = $1 AND subject_id = $2 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, enrollmentID, subjectID, models.SubjectDropped, models.SubjectEnrolled)
	if err != nil {
		return false, fmt.Errorf("drop enrollment subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("drop enrollment subject result: %w", err)
	}
	return affected == 1, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN terms t ON t.id = e.term_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("e.term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"joined_at":    "e.joined_at",
		"student_name": "u.full_name",
		"class_name":   "c.name",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "joined_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.joined_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
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

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.term_id, e.status, e.joined_at, e.left_at,
        e.transfer_from_class_id, e.transfer_reason,
        u.full_name AS student_name, c.name AS class_name, t.name AS term_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// ListActiveByClass returns the ACTIVE enrollments of a class with student
// names, used for rosters.
func (r *EnrollmentRepository) ListActiveByClass(ctx context.Context, classID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.term_id, e.status, e.joined_at, e.left_at,
        e.transfer_from_class_id, e.transfer_reason,
        u.full_name AS student_name, c.name AS class_name, t.name AS term_name
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.student_id
        LEFT JOIN classes c ON c.id = e.class_id
        LEFT JOIN terms t ON t.id = e.term_id
        WHERE e.class_id = $1 AND e.status = $2
        ORDER BY u.full_name`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, models.EnrollmentActive); err != nil {
		return nil, fmt.Errorf("list class roster: %w", err)
	}
	return enrollments, nil
}

// CountByStatus aggregates enrollment totals for the dashboard.
func (r *EnrollmentRepository) CountByStatus(ctx context.Context) (map[models.EnrollmentStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS total FROM enrollments GROUP BY status`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count enrollments by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.EnrollmentStatus]int)
	for rows.Next() {
		var status models.EnrollmentStatus
		var total int
		if err := rows.Scan(&status, &total); err != nil {
			return nil, fmt.Errorf("scan enrollment count: %w", err)
		}
		counts[status] = total
	}
	return counts, rows.Err()
}
