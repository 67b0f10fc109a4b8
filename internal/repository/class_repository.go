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

// ClassRepository handles persistence of classes and their curriculum.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// FindByID returns a class by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	const query = `SELECT id, name, code, grade, track, homeroom_teacher_id, created_at, updated_at
        FROM classes WHERE id = $1`
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ExistsByCode checks code uniqueness.
func (r *ClassRepository) ExistsByCode(ctx context.Context, code, excludeID string) (bool, error) {
	query := `SELECT 1 FROM classes WHERE code = $1`
	args := []interface{}{code}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class code: %w", err)
	}
	return true, nil
}

// List returns classes filtered by the provided criteria.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := `FROM classes`
	var conditions []string
	var args []interface{}

	if filter.Grade != "" {
		conditions = append(conditions, fmt.Sprintf("grade = $%d", len(args)+1))
		args = append(args, filter.Grade)
	}
	if filter.Track != "" {
		conditions = append(conditions, fmt.Sprintf("track = $%d", len(args)+1))
		args = append(args, filter.Track)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
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

	query := fmt.Sprintf(`SELECT id, name, code, grade, track, homeroom_teacher_id, created_at, updated_at
        %s ORDER BY name ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// Create persists a new class record.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, code, grade, track, homeroom_teacher_id, created_at, updated_at)
        VALUES (:id, :name, :code, :grade, :track, :homeroom_teacher_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update persists class field changes.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, code = :code, grade = :grade, track = :track,
        homeroom_teacher_id = :homeroom_teacher_id, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		return fmt.Errorf("update class: %w", err)
	}
	return nil
}

// Delete removes a class record.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete class result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddSubject attaches a subject to the class curriculum. Returns false when
// the (class, subject) pair already exists.
func (r *ClassRepository) AddSubject(ctx context.Context, cs *models.ClassSubject) (bool, error) {
	if cs.ID == "" {
		cs.ID = uuid.NewString()
	}
	if cs.CreatedAt.IsZero() {
		cs.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO class_subjects (id, class_id, subject_id, schedule, created_at)
        SELECT $1, $2, $3, $4, $5
        WHERE NOT EXISTS (
            SELECT 1 FROM class_subjects WHERE class_id = $2 AND subject_id = $3
        )`
	res, err := r.db.ExecContext(ctx, query, cs.ID, cs.ClassID, cs.SubjectID, cs.Schedule, cs.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("add class subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add class subject result: %w", err)
	}
	return affected == 1, nil
}

// RemoveSubject detaches a subject from the class curriculum.
func (r *ClassRepository) RemoveSubject(ctx context.Context, classID, subjectID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM class_subjects WHERE class_id = $1 AND subject_id = $2`, classID, subjectID)
	if err != nil {
		return fmt.Errorf("remove class subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove class subject result: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasSubject reports whether the subject belongs to the class curriculum.
func (r *ClassRepository) HasSubject(ctx context.Context, classID, subjectID string) (bool, error) {
	const query = `SELECT 1 FROM class_subjects WHERE class_id = $1 AND subject_id = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, classID, subjectID); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class subject: %w", err)
	}
	return true, nil
}

// ListSubjects returns the class curriculum with subject info.
func (r *ClassRepository) ListSubjects(ctx context.Context, classID string) ([]models.ClassSubjectDetail, error) {
	const query = `SELECT cs.id, cs.class_id, cs.subject_id, cs.schedule, cs.created_at,
        s.name AS subject_name, s.code AS subject_code, s.category
        FROM class_subjects cs
        JOIN subjects s ON s.id = cs.subject_id
        WHERE cs.class_id = $1 ORDER BY s.name`
	var subjects []models.ClassSubjectDetail
	if err := r.db.SelectContext(ctx, &subjects, query, classID); err != nil {
		return nil, fmt.Errorf("list class subjects: %w", err)
	}
	return subjects, nil
}

// CompulsorySubjectIDs returns the IDs of the class's compulsory subjects,
// seeded into enrollments created by join-request approval.
func (r *ClassRepository) CompulsorySubjectIDs(ctx context.Context, classID string) ([]string, error) {
	const query = `SELECT cs.subject_id FROM class_subjects cs
        JOIN subjects s ON s.id = cs.subject_id
        WHERE cs.class_id = $1 AND s.category = $2
        ORDER BY cs.subject_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, classID, models.SubjectCompulsory); err != nil {
		return nil, fmt.Errorf("list compulsory subjects: %w", err)
	}
	return ids, nil
}

// AllPairs returns every (class, subject) pair, used for admin scope.
func (r *ClassRepository) AllPairs(ctx context.Context) ([]models.ClassSubjectPair, error) {
	const query = `SELECT class_id, subject_id FROM class_subjects ORDER BY class_id, subject_id`
	var pairs []models.ClassSubjectPair
	if err := r.db.SelectContext(ctx, &pairs, query); err != nil {
		return nil, fmt.Errorf("list class subject pairs: %w", err)
	}
	return pairs, nil
}

// Count returns the total number of classes.
func (r *ClassRepository) Count(ctx context.Context) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM classes`); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return total, nil
}
