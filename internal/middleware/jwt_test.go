package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/fieldops-api/internal/models"
	"github.com/noah-isme/fieldops-api/internal/service"
)

const testSecret = "middleware-secret"

func testAuthService(localEnabled bool) *service.AuthService {
	return service.NewAuthService(nil, nil, nil, nil, zap.NewNop(), service.AuthConfig{
		Secret:               testSecret,
		LocalProviderEnabled: localEnabled,
	})
}

func signTestToken(t *testing.T, provider string, ttl time.Duration) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID:   "user-1",
		Email:    "tech@fieldops.test",
		Role:     models.RoleTechnician,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func performRequest(router *gin.Engine, method, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func protectedRouter(authService *service.AuthService, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(authService)}, extra...)
	group := router.Group("/", handlers...)
	group.GET("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.POST("/resource", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestJWTMissingHeader(t *testing.T) {
	router := protectedRouter(testAuthService(false))
	rec := performRequest(router, http.MethodGet, "/resource", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := protectedRouter(testAuthService(false))

	req := httptest.NewRequest(http.MethodGet, "/resource", nil)
	req.Header.Set("Authorization", "Token abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTExpiredToken(t *testing.T) {
	router := protectedRouter(testAuthService(false))
	token := signTestToken(t, models.ProviderSSO, -time.Minute)
	rec := performRequest(router, http.MethodGet, "/resource", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTValidToken(t *testing.T) {
	router := protectedRouter(testAuthService(false))
	token := signTestToken(t, models.ProviderSSO, time.Minute)
	rec := performRequest(router, http.MethodGet, "/resource", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTLocalProviderDisabled(t *testing.T) {
	router := protectedRouter(testAuthService(false))
	token := signTestToken(t, models.ProviderLocal, time.Minute)
	rec := performRequest(router, http.MethodGet, "/resource", token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReadOnlyProviderBlocksMutation(t *testing.T) {
	router := protectedRouter(testAuthService(true), ReadOnlyProvider())
	token := signTestToken(t, models.ProviderLocal, time.Minute)

	rec := performRequest(router, http.MethodGet, "/resource", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = performRequest(router, http.MethodPost, "/resource", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReadOnlyProviderPassesSSO(t *testing.T) {
	router := protectedRouter(testAuthService(true), ReadOnlyProvider())
	token := signTestToken(t, models.ProviderSSO, time.Minute)

	rec := performRequest(router, http.MethodPost, "/resource", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentActor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWT(testAuthService(false)), func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		require.True(t, ok)
		assert.Equal(t, "user-1", actor.UserID)
		assert.Equal(t, string(models.RoleTechnician), actor.Role)
		c.Status(http.StatusOK)
	})

	token := signTestToken(t, models.ProviderSSO, time.Minute)
	rec := performRequest(router, http.MethodGet, "/me", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}
