package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/docuvault/docuvault/internal/access"
	"github.com/docuvault/docuvault/pkg/middleware"
)

// PrincipalFromContext builds the caller's principal from the verified token
// claims set by the auth middleware. The name comes from preferred_username
// or sub; roles from the "roles" claim, with "groups" entries folded in so
// group-based grants work like role grants.
func PrincipalFromContext(c *gin.Context) access.Principal {
	v, ok := c.Get(middleware.ClaimsKey)
	if !ok {
		return access.Anonymous
	}
	claims, ok := v.(map[string]interface{})
	if !ok {
		return access.Anonymous
	}

	p := access.Principal{}
	if name, ok := claims["preferred_username"].(string); ok && name != "" {
		p.Name = name
	} else if sub, ok := claims["sub"].(string); ok {
		p.Name = sub
	}
	for _, claim := range []string{"roles", "groups"} {
		if list, ok := claims[claim].([]interface{}); ok {
			for _, e := range list {
				if s, ok := e.(string); ok && s != "" {
					p.Roles = append(p.Roles, s)
				}
			}
		}
	}
	return p
}
