package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	appErrors "github.com/noah-isme/fieldops-api/pkg/errors"
	"github.com/noah-isme/fieldops-api/pkg/response"
)

// Context keys for the entity route group.
const (
	ContextEntityKey   = "entityName"
	ContextDecisionKey = "accessDecision"
)

// RequireMinimumRole admits callers whose role priority is at least that of
// the threshold role. Inactive or unknown roles are always denied.
func RequireMinimumRole(resolver *access.Resolver, threshold string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !resolver.MeetsMinimumRole(string(claims.Role), threshold) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// EntityContext resolves the :entity path segment against the registry and
// attaches the canonical entity name. Unknown entities are a 404 before any
// permission check runs.
func EntityContext(registry *metadata.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("entity")
		if _, err := registry.Get(name); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		c.Set(ContextEntityKey, name)
		c.Next()
	}
}

// RequirePermission resolves the caller's permission for the given operation
// on the entity attached by EntityContext, storing the decision for the
// handler. Denials carry no detail.
func RequirePermission(resolver *access.Resolver, op access.Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		entity, _ := c.Get(ContextEntityKey)
		name, ok := entity.(string)
		if !ok || name == "" {
			response.Error(c, appErrors.ErrNotFound)
			c.Abort()
			return
		}

		decision := resolver.Resolve(string(claims.Role), name, claims.UserID, op)
		if !decision.Allowed {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}

		c.Set(ContextDecisionKey, decision)
		c.Next()
	}
}

// RequireExactRole admits only callers holding exactly the named role.
func RequireExactRole(resolver *access.Resolver, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !resolver.ExactRole(string(claims.Role), role) {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
