package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akademi/akademi-api/internal/models"
)

type pairReaderStub struct {
	teacherPairs map[string][]models.ClassSubjectPair
	studentPairs map[string][]models.ClassSubjectPair
	allPairs     []models.ClassSubjectPair
}

func (s *pairReaderStub) ApprovedPairsByTeacher(ctx context.Context, teacherID string) ([]models.ClassSubjectPair, error) {
	return s.teacherPairs[teacherID], nil
}

func (s *pairReaderStub) ActivePairsByStudent(ctx context.Context, studentID string) ([]models.ClassSubjectPair, error) {
	return s.studentPairs[studentID], nil
}

func (s *pairReaderStub) AllPairs(ctx context.Context) ([]models.ClassSubjectPair, error) {
	return s.allPairs, nil
}

type peerReaderStub struct {
	students map[string][]models.Peer
	teachers map[string][]models.Peer
	all      []models.Peer
}

func (s *peerReaderStub) StudentsOfTeacher(ctx context.Context, teacherID string) ([]models.Peer, error) {
	return s.students[teacherID], nil
}

func (s *peerReaderStub) TeachersOfStudent(ctx context.Context, studentID string) ([]models.Peer, error) {
	return s.teachers[studentID], nil
}

func (s *peerReaderStub) AllActivePeers(ctx context.Context) ([]models.Peer, error) {
	return s.all, nil
}

func TestScopedPairsPerRole(t *testing.T) {
	pairs := &pairReaderStub{
		teacherPairs: map[string][]models.ClassSubjectPair{
			"teacher-1": {{ClassID: "class-1", SubjectID: "subject-1"}},
		},
		studentPairs: map[string][]models.ClassSubjectPair{
			"student-1": {
				{ClassID: "class-2", SubjectID: "subject-1"},
				{ClassID: "class-2", SubjectID: "subject-3"},
			},
		},
		allPairs: []models.ClassSubjectPair{
			{ClassID: "class-1", SubjectID: "subject-1"},
			{ClassID: "class-2", SubjectID: "subject-1"},
			{ClassID: "class-2", SubjectID: "subject-3"},
		},
	}
	index := NewIndex(pairs, pairs, pairs, &peerReaderStub{})

	teacherScope, err := index.ScopedPairs(context.Background(), Actor{ID: "teacher-1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Equal(t, []models.ClassSubjectPair{{ClassID: "class-1", SubjectID: "subject-1"}}, teacherScope)

	studentScope, err := index.ScopedPairs(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	assert.Len(t, studentScope, 2)

	adminScope, err := index.ScopedPairs(context.Background(), Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, adminScope, 3)

	unknownScope, err := index.ScopedPairs(context.Background(), Actor{ID: "teacher-2", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Empty(t, unknownScope)
}

func TestMessageablePeersPerRole(t *testing.T) {
	peers := &peerReaderStub{
		students: map[string][]models.Peer{
			"teacher-1": {{UserID: "student-1", Role: models.RoleStudent}},
		},
		teachers: map[string][]models.Peer{
			"student-1": {{UserID: "teacher-1", Role: models.RoleTeacher}},
		},
		all: []models.Peer{
			{UserID: "teacher-1", Role: models.RoleTeacher},
			{UserID: "student-1", Role: models.RoleStudent},
		},
	}
	index := NewIndex(&pairReaderStub{}, &pairReaderStub{}, &pairReaderStub{}, peers)

	forTeacher, err := index.MessageablePeers(context.Background(), Actor{ID: "teacher-1", Role: models.RoleTeacher})
	require.NoError(t, err)
	require.Len(t, forTeacher, 1)
	assert.Equal(t, "student-1", forTeacher[0].UserID)

	forStudent, err := index.MessageablePeers(context.Background(), Actor{ID: "student-1", Role: models.RoleStudent})
	require.NoError(t, err)
	require.Len(t, forStudent, 1)
	assert.Equal(t, "teacher-1", forStudent[0].UserID)

	forAdmin, err := index.MessageablePeers(context.Background(), Actor{ID: "admin-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, forAdmin, 2)
}
