package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/records-api/internal/models"
	appErrors "github.com/campusworks/records-api/pkg/errors"
)

type mockUserRepo struct {
	users map[string]models.User
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]models.User)
	}
	if user.ID == "" {
		user.ID = "usr-" + user.Username
	}
	m.users[user.Username] = *user
	return nil
}

func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := m.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &user, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return &user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	for username, user := range m.users {
		if user.ID == id {
			user.PasswordHash = passwordHash
			m.users[username] = user
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	_, ok := m.users[username]
	return ok, nil
}

func newAuthServiceForTest(repo *mockUserRepo, expiry time.Duration) *AuthService {
	return NewAuthService(repo, nil, nil, AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: expiry,
		Issuer:      "records-api-test",
	})
}

func seedUser(t *testing.T, repo *mockUserRepo, username, password string, role models.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), &models.User{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}))
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "registrar", "s3cret99", models.RoleAdmin)
	svc := newAuthServiceForTest(repo, time.Hour)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar", Password: "s3cret99"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Positive(t, resp.ExpiresIn)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "registrar", "s3cret99", models.RoleAdmin)
	svc := newAuthServiceForTest(repo, time.Hour)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar", Password: "wrong"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthFailed)
}

func TestAuthServiceLoginUnknownUser(t *testing.T) {
	svc := newAuthServiceForTest(&mockUserRepo{}, time.Hour)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAuthFailed)
}

func TestAuthServiceRegisterDefaultsToStudent(t *testing.T) {
	repo := &mockUserRepo{}
	svc := newAuthServiceForTest(repo, time.Hour)

	info, err := svc.Register(context.Background(), models.RegisterUserRequest{Username: "fresh", Password: "s3cret99"})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, info.Role)
}

func TestAuthServiceRegisterDuplicateUsername(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "taken", "s3cret99", models.RoleStudent)
	svc := newAuthServiceForTest(repo, time.Hour)

	_, err := svc.Register(context.Background(), models.RegisterUserRequest{Username: "taken", Password: "s3cret99"})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "registrar", "s3cret99", models.RoleInstructor)
	svc := newAuthServiceForTest(repo, time.Hour)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar", Password: "s3cret99"})
	require.NoError(t, err)

	session, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "registrar", session.Username)
	assert.Equal(t, models.RoleInstructor, session.Role)
	assert.Equal(t, resp.User.ID, session.UserID)
}

func TestValidateTokenExpired(t *testing.T) {
	repo := &mockUserRepo{}
	seedUser(t, repo, "registrar", "s3cret99", models.RoleAdmin)
	svc := newAuthServiceForTest(repo, -time.Minute)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar", Password: "s3cret99"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrSessionExpired)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc := newAuthServiceForTest(&mockUserRepo{}, time.Hour)

	_, err := svc.ValidateToken("not-a-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)
}

func TestRequireRole(t *testing.T) {
	svc := newAuthServiceForTest(&mockUserRepo{}, time.Hour)
	session := &models.Session{UserID: "usr-1", Role: models.RoleInstructor}

	assert.NoError(t, svc.RequireRole(session, models.RoleInstructor))
	assert.NoError(t, svc.RequireRole(session, models.RoleAdmin, models.RoleInstructor))

	err := svc.RequireRole(session, models.RoleAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)

	err = svc.RequireRole(nil, models.RoleAdmin)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInsufficientPermissions)
}
