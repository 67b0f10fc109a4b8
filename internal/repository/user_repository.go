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

// UserRepository handles persistence of users, qualifications, refresh
// tokens and the audit trail.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by its ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at
        FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail returns a user by email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at
        FROM users WHERE LOWER(email) = LOWER($1)`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// List returns users filtered by the provided criteria.
func (r *UserRepository) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	base := `FROM users`
	var conditions []string
	var args []interface{}

	if filter.Role != nil {
		conditions = append(conditions, fmt.Sprintf("role = $%d", len(args)+1))
		args = append(args, *filter.Role)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(full_name ILIKE $%d OR email ILIKE $%d)", len(args)+1, len(args)+1))
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

	query := fmt.Sprintf(`SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at
        %s ORDER BY full_name ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}
	return users, total, nil
}

// Create persists a new user record.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
        VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastLogin stamps the last successful login time.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, updatedAt); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// HasQualification reports whether the teacher holds a qualification for
// the subject at the given grade.
func (r *UserRepository) HasQualification(ctx context.Context, teacherID, subjectID, grade string) (bool, error) {
	const query = `SELECT 1 FROM teacher_qualifications
        WHERE teacher_id = $1 AND subject_id = $2 AND grade = $3 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, subjectID, grade); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check qualification: %w", err)
	}
	return true, nil
}

// AddQualification records a teaching qualification.
func (r *UserRepository) AddQualification(ctx context.Context, q *models.TeacherQualification) (bool, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_qualifications (id, teacher_id, subject_id, grade, created_at)
        SELECT $1, $2, $3, $4, $5
        WHERE NOT EXISTS (
            SELECT 1 FROM teacher_qualifications
            WHERE teacher_id = $2 AND subject_id = $3 AND grade = $4
        )`
	res, err := r.db.ExecContext(ctx, query, q.ID, q.TeacherID, q.SubjectID, q.Grade, q.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("add qualification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("add qualification result: %w", err)
	}
	return affected == 1, nil
}

// ListQualifications returns a teacher's qualifications.
func (r *UserRepository) ListQualifications(ctx context.Context, teacherID string) ([]models.TeacherQualification, error) {
	const query = `SELECT id, teacher_id, subject_id, grade, created_at
        FROM teacher_qualifications WHERE teacher_id = $1 ORDER BY subject_id`
	var quals []models.TeacherQualification
	if err := r.db.SelectContext(ctx, &quals, query, teacherID); err != nil {
		return nil, fmt.Errorf("list qualifications: %w", err)
	}
	return quals, nil
}

// StudentsOfTeacher returns the students enrolled in classes where the
// teacher holds an approved assignment — the teacher's messaging candidates.
func (r *UserRepository) StudentsOfTeacher(ctx context.Context, teacherID string) ([]models.Peer, error) {
	const query = `SELECT DISTINCT u.id AS user_id, u.full_name, u.role, e.class_id
        FROM teacher_assignments a
        JOIN enrollments e ON e.class_id = a.class_id AND e.status = $2
        JOIN users u ON u.id = e.student_id
        WHERE a.teacher_id = $1 AND a.status = $3
        ORDER BY u.full_name`
	var peers []models.Peer
	if err := r.db.SelectContext(ctx, &peers, query, teacherID, models.EnrollmentActive, models.RequestApproved); err != nil {
		return nil, fmt.Errorf("list students of teacher: %w", err)
	}
	return peers, nil
}

// TeachersOfStudent returns the approved teachers of the classes the
// student is actively enrolled in — the student's messaging candidates.
func (r *UserRepository) TeachersOfStudent(ctx context.Context, studentID string) ([]models.Peer, error) {
	const query = `SELECT DISTINCT u.id AS user_id, u.full_name, u.role, a.class_id
        FROM enrollments e
        JOIN teacher_assignments a ON a.class_id = e.class_id AND a.status = $2
        JOIN users u ON u.id = a.teacher_id
        WHERE e.student_id = $1 AND e.status = $3
        ORDER BY u.full_name`
	var peers []models.Peer
	if err := r.db.SelectContext(ctx, &peers, query, studentID, models.RequestApproved, models.EnrollmentActive); err != nil {
		return nil, fmt.Errorf("list teachers of student: %w", err)
	}
	return peers, nil
}

// AllActivePeers returns every active teacher and student, the admin's
// messaging candidate set.
func (r *UserRepository) AllActivePeers(ctx context.Context) ([]models.Peer, error) {
	const query = `SELECT id AS user_id, full_name, role, '' AS class_id
        FROM users WHERE active = TRUE AND role IN ($1, $2)
        ORDER BY full_name`
	var peers []models.Peer
	if err := r.db.SelectContext(ctx, &peers, query, models.RoleTeacher, models.RoleStudent); err != nil {
		return nil, fmt.Errorf("list active peers: %w", err)
	}
	return peers, nil
}

// CreateRefreshToken persists a refresh token session.
func (r *UserRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const query = `INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked, ip_address, user_agent)
        VALUES (:id, :user_id, :token, :expires_at, :created_at, :revoked, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindRefreshToken returns a refresh token by its value.
func (r *UserRepository) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const query = `SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent
        FROM refresh_tokens WHERE token = $1`
	var refreshToken models.RefreshToken
	if err := r.db.GetContext(ctx, &refreshToken, query, token); err != nil {
		return nil, err
	}
	return &refreshToken, nil
}

// RevokeRefreshToken marks a refresh token revoked.
func (r *UserRepository) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1`, id, revokedAt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeUserRefreshTokens revokes every live token of a user.
func (r *UserRepository) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`,
		userID, time.Now().UTC()); err != nil {
		return fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return nil
}

// CreateAuditLog appends an audit trail record.
func (r *UserRepository) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, new_values, ip_address, user_agent, created_at)
        VALUES (:id, :user_id, :action, :resource, :resource_id, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// CountByRole aggregates user totals for the dashboard.
func (r *UserRepository) CountByRole(ctx context.Context) (map[models.UserRole]int, error) {
	const query = `SELECT role, COUNT(*) AS total FROM users WHERE active = TRUE GROUP BY role`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count users by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.UserRole]int)
	for rows.Next() {
		var role models.UserRole
		var total int
		if err := rows.Scan(&role, &total); err != nil {
			return nil, fmt.Errorf("scan user count: %w", err)
		}
		counts[role] = total
	}
	return counts, rows.Err()
}
