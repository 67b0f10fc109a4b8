package models

import "time"

// SubjectCategory distinguishes compulsory curriculum subjects from electives.
type SubjectCategory string

const (
	SubjectCompulsory SubjectCategory = "COMPULSORY"
	SubjectElective   SubjectCategory = "ELECTIVE"
)

// ParseSubjectCategory validates a client-supplied category string.
func ParseSubjectCategory(raw string) (SubjectCategory, bool) {
	switch SubjectCategory(raw) {
	case SubjectCompulsory, SubjectElective:
		return SubjectCategory(raw), true
	}
	return "", false
}

// Subject represents an academic subject, referenced by classes and enrollments.
type Subject struct {
	ID           string          `db:"id" json:"id"`
	Code         string          `db:"code" json:"code"`
	Name         string          `db:"name" json:"name"`
	Category     SubjectCategory `db:"category" json:"category"`
	SubjectGroup string          `db:"subject_group" json:"subject_group"`
	Active       bool            `db:"active" json:"active"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Category  SubjectCategory
	Group     string
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
