package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/models"
)

func testResolver(t *testing.T) *access.Resolver {
	t.Helper()
	registry, err := metadata.NewRegistry(metadata.Entities())
	require.NoError(t, err)
	return access.NewResolver(registry, []models.Role{
		{ID: "1", Name: "admin", Priority: 100, IsActive: true},
		{ID: "2", Name: "manager", Priority: 80, IsActive: true},
		{ID: "3", Name: "technician", Priority: 40, IsActive: true},
	})
}

func rbacRouter(t *testing.T, guard gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", JWT(testAuthService(false)), guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireMinimumRoleDeniesBelowThreshold(t *testing.T) {
	router := rbacRouter(t, RequireMinimumRole(testResolver(t), "manager"))
	token := signTestToken(t, models.ProviderSSO, time.Minute) // technician

	rec := performRequest(router, http.MethodGet, "/guarded", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireMinimumRoleAllowsAtThreshold(t *testing.T) {
	router := rbacRouter(t, RequireMinimumRole(testResolver(t), "technician"))
	token := signTestToken(t, models.ProviderSSO, time.Minute)

	rec := performRequest(router, http.MethodGet, "/guarded", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireExactRole(t *testing.T) {
	router := rbacRouter(t, RequireExactRole(testResolver(t), "technician"))
	token := signTestToken(t, models.ProviderSSO, time.Minute)

	rec := performRequest(router, http.MethodGet, "/guarded", token)
	assert.Equal(t, http.StatusOK, rec.Code)

	router = rbacRouter(t, RequireExactRole(testResolver(t), "admin"))
	rec = performRequest(router, http.MethodGet, "/guarded", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func entityRouter(t *testing.T, op access.Operation) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	registry, err := metadata.NewRegistry(metadata.Entities())
	require.NoError(t, err)
	resolver := access.NewResolver(registry, []models.Role{
		{ID: "1", Name: "technician", Priority: 40, IsActive: true},
	})

	router := gin.New()
	router.Handle(http.MethodGet, "/entities/:entity",
		JWT(testAuthService(false)), EntityContext(registry), RequirePermission(resolver, op),
		func(c *gin.Context) {
			_, exists := c.Get(ContextDecisionKey)
			assert.True(t, exists)
			c.Status(http.StatusOK)
		})
	return router
}

func TestEntityContextUnknownEntity(t *testing.T) {
	router := entityRouter(t, access.OpList)
	token := signTestToken(t, models.ProviderSSO, time.Minute)

	rec := performRequest(router, http.MethodGet, "/entities/payroll", token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequirePermissionAllowsPolicyHolder(t *testing.T) {
	router := entityRouter(t, access.OpList)
	token := signTestToken(t, models.ProviderSSO, time.Minute) // technician

	rec := performRequest(router, http.MethodGet, "/entities/work_order", token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequirePermissionDeniesMissingPolicy(t *testing.T) {
	router := entityRouter(t, access.OpList)
	token := signTestToken(t, models.ProviderSSO, time.Minute)

	// Technicians have no invoice policy at all.
	rec := performRequest(router, http.MethodGet, "/entities/invoice", token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardsRequireClaims(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", RequireMinimumRole(testResolver(t), "technician"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := performRequest(router, http.MethodGet, "/guarded", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
