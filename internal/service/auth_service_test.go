package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/akademi/akademi-api/internal/models"
	appErrors "github.com/akademi/akademi-api/pkg/errors"
)

type mockAuthRepo struct {
	users   map[string]models.User
	byEmail map[string]string
	tokens  map[string]models.RefreshToken

	revokedAll []string
	lastLogin  map[string]time.Time
	passwords  map[string]string
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		users:     map[string]models.User{},
		byEmail:   map[string]string{},
		tokens:    map[string]models.RefreshToken{},
		lastLogin: map[string]time.Time{},
		passwords: map[string]string{},
	}
}

func (m *mockAuthRepo) addUser(user models.User) {
	m.users[user.ID] = user
	m.byEmail[user.Email] = user.ID
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, sql.ErrNoRows
	}
	u := m.users[id]
	return &u, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLogin[id] = ts
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.passwords[id] = passwordHash
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	for key, token := range m.tokens {
		if token.UserID == userID {
			token.Revoked = true
			m.tokens[key] = token
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.Token] = *token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.tokens[token]; ok {
		return &t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for key, token := range m.tokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
			m.tokens[key] = token
		}
	}
	return nil
}

type auditRecorderStub struct {
	entries []models.AuditLog
}

func (s *auditRecorderStub) Record(entry models.AuditLog) {
	s.entries = append(s.entries, entry)
}

func authFixtures(t *testing.T) (*mockAuthRepo, *AuthService, *auditRecorderStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret!"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := newMockAuthRepo()
	repo.addUser(models.User{
		ID:           "user-1",
		Email:        "teacher@school.id",
		FullName:     "Jane Poe",
		Role:         models.RoleTeacher,
		PasswordHash: string(hash),
		Active:       true,
	})

	audit := &auditRecorderStub{}
	svc := NewAuthService(repo, audit, nil, nil, AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "akademi-test",
	})
	return repo, svc, audit
}

func TestLoginSuccess(t *testing.T) {
	repo, svc, audit := authFixtures(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "s3cret!",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Contains(t, repo.lastLogin, "user-1")
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLogin, audit.entries[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	_, svc, _ := authFixtures(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials.Code))
}

func TestLoginInactiveAccount(t *testing.T) {
	repo, svc, _ := authFixtures(t)
	user := repo.users["user-1"]
	user.Active = false
	repo.addUser(user)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "s3cret!",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount.Code))
}

func TestRefreshTokenRotates(t *testing.T) {
	_, svc, _ := authFixtures(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked; replaying it is rejected.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized.Code))
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	repo, svc, _ := authFixtures(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "s3cret!",
		NewPassword: "n3w-s3cret",
	})
	require.NoError(t, err)
	assert.Contains(t, repo.revokedAll, "user-1")
	assert.NotEmpty(t, repo.passwords["user-1"])

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{
		RefreshToken: login.RefreshToken,
	})
	require.Error(t, err)
}

func TestChangePasswordWrongOldPassword(t *testing.T) {
	_, svc, _ := authFixtures(t)

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "n3w-s3cret",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	_, svc, _ := authFixtures(t)

	login, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "teacher@school.id",
		Password: "s3cret!",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), login.RefreshToken, "someone-else", "", "")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	require.NoError(t, svc.Logout(context.Background(), login.RefreshToken, "user-1", "", ""))
}
