package authz

import (
	"context"

	"github.com/akademi/akademi-api/internal/models"
)

type teacherPairReader interface {
	ApprovedPairsByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectPair, error)
}

type studentPairReader interface {
	ActivePairsByStudent(ctx context.Context, studentID string) ([]models.ClassSubjectPair, error)
}

type classPairReader interface {
	AllPairs(ctx context.Context) ([]models.ClassSubjectPair, error)
}

type peerReader interface {
	StudentsOfTeacher(ctx context.Context, teacherID string) ([]models.Peer, error)
	TeachersOfStudent(ctx context.Context, studentID string) ([]models.Peer, error)
	AllActivePeers(ctx context.Context) ([]models.Peer, error)
}

// Index derives the set of (class, subject) pairs an actor may act on.
// It is recomputed on every call so approval and enrollment changes are
// reflected immediately; nothing is cached or persisted.
type Index struct {
	assignments teacherPairReader
	enrollments studentPairReader
	classes     classPairReader
	users       peerReader
}

// NewIndex constructs a scoping index.
func NewIndex(assignments teacherPairReader, enrollments studentPairReader, classes classPairReader, users peerReader) *Index {
	return &Index{assignments: assignments, enrollments: enrollments, classes: classes, users: users}
}

// ScopedPairs returns the actor's permitted (class, subject) pairs, used by
// listing endpoints to build IN filters.
func (i *Index) ScopedPairs(ctx context.Context, actor Actor) ([]models.ClassSubjectPair, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return i.classes.AllPairs(ctx)
	case models.RoleTeacher:
		return i.assignments.ApprovedPairsByTeacher(ctx, actor.ID)
	case models.RoleStudent:
		return i.enrollments.ActivePairsByStudent(ctx, actor.ID)
	}
	return nil, nil
}

// MessageablePeers returns the users the actor may message, derived from
// the same relation graph the resolver reads, traversed in reverse.
func (i *Index) MessageablePeers(ctx context.Context, actor Actor) ([]models.Peer, error) {
	switch actor.Role {
	case models.RoleAdmin:
		return i.users.AllActivePeers(ctx)
	case models.RoleTeacher:
		return i.users.StudentsOfTeacher(ctx, actor.ID)
	case models.RoleStudent:
		return i.users.TeachersOfStudent(ctx, actor.ID)
	}
	return nil, nil
}
