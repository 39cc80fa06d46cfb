// Package http holds the contract between the router and the domain modules.
package http

import "github.com/gin-gonic/gin"

// Module is a bounded context that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext hands each module the groups it may mount on. All groups
// live under /api/v1 and are rate limited per client IP.
type RouterContext struct {
	// Public requires no token.
	Public *gin.RouterGroup
	// Protected requires a valid access token.
	Protected *gin.RouterGroup
	// Admin additionally requires a manager role on the token.
	Admin *gin.RouterGroup
}
