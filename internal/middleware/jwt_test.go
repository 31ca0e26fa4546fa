package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusworks/records-api/internal/models"
	"github.com/campusworks/records-api/internal/service"
)

type staticUserRepo struct {
	user models.User
}

func (r *staticUserRepo) Create(ctx context.Context, user *models.User) error { return nil }

func (r *staticUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u := r.user
	return &u, nil
}

func (r *staticUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u := r.user
	return &u, nil
}

func (r *staticUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	return nil
}

func (r *staticUserRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return true, nil
}

func newTestRouter(t *testing.T, roles ...models.UserRole) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret99"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &staticUserRepo{user: models.User{
		ID:           "usr-1",
		Username:     "registrar",
		PasswordHash: string(hash),
		Role:         models.RoleInstructor,
	}}
	authSvc := service.NewAuthService(repo, nil, nil, service.AuthConfig{
		TokenSecret: "test-secret",
		TokenExpiry: time.Hour,
		Issuer:      "records-api-test",
	})

	resp, err := authSvc.Login(context.Background(), models.LoginRequest{Username: "registrar", Password: "s3cret99"})
	require.NoError(t, err)

	r := gin.New()
	handlers := []gin.HandlerFunc{JWT(authSvc)}
	if len(roles) > 0 {
		handlers = append(handlers, RequireRoles(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		session, _ := c.Get(ContextUserKey)
		c.JSON(http.StatusOK, gin.H{"user_id": session.(*models.Session).UserID})
	})
	r.GET("/protected", handlers...)
	return r, resp.AccessToken
}

func TestJWTMissingHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	r, token := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", token) // no Bearer prefix
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidToken(t *testing.T) {
	r, token := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "usr-1")
}

func TestRequireRolesAllows(t *testing.T) {
	r, token := newTestRouter(t, models.RoleAdmin, models.RoleInstructor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireRolesBlocks(t *testing.T) {
	r, token := newTestRouter(t, models.RoleAdmin)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
