package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionTeachRequest    = "TEACH_REQUEST"
	AuditActionTeachResolve    = "TEACH_RESOLVE"
	AuditActionJoinRequest     = "JOIN_REQUEST"
	AuditActionJoinResolve     = "JOIN_RESOLVE"
	AuditActionEnroll          = "ENROLL"
	AuditActionEnrollTransfer  = "ENROLL_TRANSFER"
	AuditActionEnrollComplete  = "ENROLL_COMPLETE"
	AuditActionSubjectDrop     = "SUBJECT_DROP"
	AuditActionClassMutation   = "CLASS_MUTATION"
	AuditActionSubjectMutation = "SUBJECT_MUTATION"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
