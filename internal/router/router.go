// Package router maps the HTTP surface onto handlers and middleware.
// Route groups mirror the trust levels: /v1/auth is reachable without a
// session, /v1 requires a validated session plus CSRF on writes, and
// /v1/admin requires the short-lived admin bearer token.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/handler"
	"github.com/iliyamo/asset-checkout-kiosk/internal/middleware"
	"github.com/iliyamo/asset-checkout-kiosk/internal/ratelimit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/session"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Auth      *handler.AuthHandler
	Scan      *handler.ScanHandler
	Assets    *handler.AssetHandler
	Admin     *handler.AdminHandler
	Sessions  *session.Manager
	Limiter   *ratelimit.Limiter
	JWTSecret string
}

// Register wires all routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health)

	// Sign-in is the only unauthenticated write. It is limited by
	// client IP hash since no subject exists yet.
	auth := e.Group("/v1/auth")
	auth.POST("/sign-in", d.Auth.SignIn, middleware.ActionLimit(d.Limiter, "signin"))

	// Everything else requires a live session. CSRF applies to the
	// state-changing methods in the group.
	v1 := e.Group("/v1", middleware.SessionAuth(d.Sessions), middleware.CSRF(d.Sessions))
	v1.POST("/auth/logout", d.Auth.Logout)
	v1.GET("/session", d.Auth.Session)

	v1.POST("/scan", d.Scan.Scan, middleware.ActionLimit(d.Limiter, "scan"))
	v1.GET("/assets/:tag", d.Assets.GetAssetInfo, middleware.ActionLimit(d.Limiter, "lookup"))
	v1.GET("/me/assets", d.Assets.MyAssets, middleware.ActionLimit(d.Limiter, "lookup"))

	// Transaction routes are additionally limited inside the
	// coordinator itself; no ActionLimit here or each execution would
	// burn two window slots.
	v1.POST("/assets/checkout", d.Assets.Checkout)
	v1.POST("/assets/checkin", d.Assets.Checkin)
	v1.POST("/assets/transfer", d.Assets.Transfer)

	admin := e.Group("/v1/admin")
	admin.POST("/login", d.Admin.Login, middleware.ActionLimit(d.Limiter, "admin"))
	elevated := admin.Group("", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole("ADMIN"))
	elevated.POST("/assets/checkin", d.Admin.OverrideCheckin)
}
