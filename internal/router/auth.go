package router

import (
	"github.com/gin-gonic/gin"
)

// authRoutes defines the account lifecycle routes.
func (r *Router) authRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		// Public routes
		auth.POST("/signup", r.authHandler.Signup)
		auth.GET("/confirm-email", r.authHandler.ConfirmEmail)
		auth.POST("/resend-activation", r.authHandler.ResendActivation)
		auth.POST("/login", r.authHandler.Login)
		auth.POST("/refresh", r.authHandler.Refresh)
		auth.POST("/forgot-password", r.authHandler.ForgotPassword)
		auth.GET("/reset-password", r.authHandler.ValidateResetToken)
		auth.POST("/reset-password", r.authHandler.ResetPassword)

		// Provider login
		auth.GET("/google", r.authHandler.GoogleLogin)
		auth.GET("/google/callback", r.authHandler.GoogleCallback)
		auth.GET("/github", r.authHandler.GitHubLogin)
		auth.GET("/github/callback", r.authHandler.GitHubCallback)

		// Protected routes
		protected := auth.Group("")
		protected.Use(r.guard.RequireAuth())
		{
			protected.GET("/verify", r.authHandler.Verify)
			protected.POST("/logout", r.authHandler.Logout)
		}
	}
}
