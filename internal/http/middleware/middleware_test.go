package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/auth"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
)

type recordedRoles struct {
	roles map[uuid.UUID]valueobject.Role
	err   error
}

func (r *recordedRoles) Remember(_ context.Context, id uuid.UUID, role valueobject.Role) error {
	if r.roles == nil {
		r.roles = map[uuid.UUID]valueobject.Role{}
	}
	r.roles[id] = role
	return r.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	tokens := auth.NewTokenManager("middleware-test-secret-0123456789", time.Hour)
	actor := valueobject.Actor{ID: uuid.New(), Role: valueobject.RoleArbitrator}
	token, _, err := tokens.Issue(actor)
	require.NoError(t, err)

	roles := &recordedRoles{}
	r := gin.New()
	r.GET("/me", AuthMiddleware(tokens, roles), func(c *gin.Context) {
		got, ok := ActorFrom(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"id": got.ID.String(), "role": string(got.Role)})
	})

	t.Run("валидный токен", func(t *testing.T) {
		w := serve(r, "/me", token)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), actor.ID.String())
		assert.Equal(t, valueobject.RoleArbitrator, roles.roles[actor.ID])
	})

	t.Run("без заголовка", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
	})

	t.Run("чужая подпись", func(t *testing.T) {
		other := auth.NewTokenManager("another-secret-another-secret-000", time.Hour)
		forged, _, err := other.Issue(actor)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", forged).Code)
	})

	t.Run("ошибка каталога ролей не блокирует запрос", func(t *testing.T) {
		roles.err = errors.New("db down")
		defer func() { roles.err = nil }()
		assert.Equal(t, http.StatusOK, serve(r, "/me", token).Code)
	})
}

func TestUUIDValidator(t *testing.T) {
	r := gin.New()
	r.GET("/projects/:id", UUIDValidator("id"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, "/projects/"+uuid.NewString(), "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(r, "/projects/123", "").Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/ping", RateLimitMiddleware(2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	assert.Equal(t, http.StatusNoContent, serve(r, "/ping", "").Code)
	w := serve(r, "/ping", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, http.StatusTooManyRequests, serve(r, "/ping", "").Code)
}
