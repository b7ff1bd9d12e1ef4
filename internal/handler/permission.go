package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/theluxar/auth-service/internal/constants"
	"github.com/theluxar/auth-service/internal/dto"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	"github.com/theluxar/auth-service/internal/service"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
)

type PermissionHandler struct {
	permissionService *service.PermissionService
}

func NewPermissionHandler(permissionService *service.PermissionService) *PermissionHandler {
	return &PermissionHandler{permissionService: permissionService}
}

// GetForApp returns a user's permissions scoped to one application
// namespace. This is the endpoint sibling services call to authorize their
// own operations.
func (h *PermissionHandler) GetForApp(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "GetForApp")

	userID := c.Param("userId")
	app := c.Param("app")

	permissions, err := h.permissionService.GetPermissionsForApp(ctx, userID, app)
	if err != nil {
		logger.WarnWithContext(ctx, "Permission lookup failed").
			String("user_id", userID).
			String("app", app).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Permission lookup failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.PermissionResponse{
		OwnerID:     userID,
		Permissions: permissions,
	})
}

// Grant merges permissions into a user's set. Admin only.
func (h *PermissionHandler) Grant(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Grant")

	userID := c.Param("userId")

	var req dto.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	permissions, err := h.permissionService.AddPermissions(ctx, userID, req.Permissions)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Permission grant failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.PermissionResponse{
		OwnerID:     userID,
		Permissions: permissions,
	})
}

// Revoke removes permissions from a user's set. Admin only.
func (h *PermissionHandler) Revoke(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Revoke")

	userID := c.Param("userId")

	var req dto.PermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	permissions, err := h.permissionService.RevokePermissions(ctx, userID, req.Permissions)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Permission revoke failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, dto.PermissionResponse{
		OwnerID:     userID,
		Permissions: permissions,
	})
}
