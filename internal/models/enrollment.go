package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment. Access is
// gated strictly on ACTIVE at read time.
type EnrollmentStatus string

const (
	EnrollmentActive      EnrollmentStatus = "ACTIVE"
	EnrollmentCompleted   EnrollmentStatus = "COMPLETED"
	EnrollmentTransferred EnrollmentStatus = "TRANSFERRED"
)

// SubjectEnrollmentStatus is the per-subject state within an enrollment.
type SubjectEnrollmentStatus string

const (
	SubjectEnrolled       SubjectEnrollmentStatus = "ENROLLED"
	SubjectCompletedState SubjectEnrollmentStatus = "COMPLETED"
	SubjectDropped        SubjectEnrollmentStatus = "DROPPED"
)

// Enrollment captures a student's registration to a class within a term.
// At most one ACTIVE row may exist per (student, term).
type Enrollment struct {
	ID                  string           `db:"id" json:"id"`
	StudentID           string           `db:"student_id" json:"student_id"`
	ClassID             string           `db:"class_id" json:"class_id"`
	TermID              string           `db:"term_id" json:"term_id"`
	Status              EnrollmentStatus `db:"status" json:"status"`
	JoinedAt            time.Time        `db:"joined_at" json:"joined_at"`
	LeftAt              *time.Time       `db:"left_at" json:"left_at,omitempty"`
	TransferFromClassID *string          `db:"transfer_from_class_id" json:"transfer_from_class_id,omitempty"`
	TransferReason      *string          `db:"transfer_reason" json:"transfer_reason,omitempty"`
}

// EnrollmentSubject records a per-subject enrollment state within an
// enrollment. Unique per (enrollment_id, subject_id).
type EnrollmentSubject struct {
	ID           string                  `db:"id" json:"id"`
	EnrollmentID string                  `db:"enrollment_id" json:"enrollment_id"`
	SubjectID    string                  `db:"subject_id" json:"subject_id"`
	Status       SubjectEnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string              `db:"student_name" json:"student_name"`
	ClassName   string              `db:"class_name" json:"class_name"`
	TermName    string              `db:"term_name" json:"term_name"`
	Subjects    []EnrollmentSubject `db:"-" json:"subjects,omitempty"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	TermID    string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ClassSubjectPair is one (class, subject) grant in an actor's scope.
type ClassSubjectPair struct {
	ClassID   string `db:"class_id" json:"class_id"`
	SubjectID string `db:"subject_id" json:"subject_id"`
}
