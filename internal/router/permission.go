package router

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// permissionRoutes defines the permission management routes. Reads need a
// valid session; mutations additionally need the admin permission of the
// configured namespace.
func (r *Router) permissionRoutes(rg *gin.RouterGroup) {
	adminPermission := fmt.Sprintf("%s_admin", r.Config.App.PermissionNamespace)

	permissions := rg.Group("/permissions")
	permissions.Use(r.guard.RequireAuth())
	{
		permissions.GET("/:userId/:app", r.permissionHandler.GetForApp)

		admin := permissions.Group("")
		admin.Use(r.guard.RequirePermissions(adminPermission))
		{
			admin.POST("/:userId", r.permissionHandler.Grant)
			admin.DELETE("/:userId", r.permissionHandler.Revoke)
		}
	}
}
