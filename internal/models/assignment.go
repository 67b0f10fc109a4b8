package models

import "time"

// RequestStatus is the workflow state of a teach-request or join-request.
// Requests start PENDING and settle into a terminal state exactly once.
type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// ParseRequestStatus validates a client-supplied status string.
func ParseRequestStatus(raw string) (RequestStatus, bool) {
	switch RequestStatus(raw) {
	case RequestPending, RequestApproved, RequestRejected:
		return RequestStatus(raw), true
	}
	return "", false
}

// Terminal reports whether the status is a settled workflow state.
func (s RequestStatus) Terminal() bool {
	return s == RequestApproved || s == RequestRejected
}

// TeacherAssignment links a teacher to a (class, subject) pair. The row is
// created PENDING by a teach-request and resolved by an admin. Unique per
// (class_id, subject_id, teacher_id). LeadTeacher is presentation only and
// never consulted by authorization.
type TeacherAssignment struct {
	ID          string        `db:"id" json:"id"`
	ClassID     string        `db:"class_id" json:"class_id"`
	SubjectID   string        `db:"subject_id" json:"subject_id"`
	TeacherID   string        `db:"teacher_id" json:"teacher_id"`
	Status      RequestStatus `db:"status" json:"status"`
	LeadTeacher bool          `db:"lead_teacher" json:"lead_teacher"`
	RequestedAt time.Time     `db:"requested_at" json:"requested_at"`
	ResolvedAt  *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *string       `db:"resolved_by" json:"resolved_by,omitempty"`
}

// TeacherAssignmentDetail enriches assignments with descriptive fields.
type TeacherAssignmentDetail struct {
	TeacherAssignment
	ClassName   string `db:"class_name" json:"class_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// TeacherAssignmentFilter provides filters for listing assignments.
type TeacherAssignmentFilter struct {
	TeacherID string
	ClassID   string
	SubjectID string
	Status    RequestStatus
	Page      int
	PageSize  int
}

// ClassJoinRequest is a student's request to join a class. Unique per
// (class_id, student_id).
type ClassJoinRequest struct {
	ID          string        `db:"id" json:"id"`
	ClassID     string        `db:"class_id" json:"class_id"`
	StudentID   string        `db:"student_id" json:"student_id"`
	Status      RequestStatus `db:"status" json:"status"`
	RequestedAt time.Time     `db:"requested_at" json:"requested_at"`
	ResolvedAt  *time.Time    `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *string       `db:"resolved_by" json:"resolved_by,omitempty"`
}

// ClassJoinRequestDetail enriches join requests with descriptive fields.
type ClassJoinRequestDetail struct {
	ClassJoinRequest
	ClassName   string `db:"class_name" json:"class_name"`
	StudentName string `db:"student_name" json:"student_name"`
}
