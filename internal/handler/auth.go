package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
	"github.com/iliyamo/asset-checkout-kiosk/internal/decoder"
	"github.com/iliyamo/asset-checkout-kiosk/internal/inventory"
	"github.com/iliyamo/asset-checkout-kiosk/internal/middleware"
	"github.com/iliyamo/asset-checkout-kiosk/internal/session"
)

// AuthHandler bundles dependencies for the sign-in and logout endpoints.
type AuthHandler struct {
	Cfg      config.Config
	Sessions *session.Manager
	Identity *inventory.Client
	Decoder  *decoder.Pipeline
	Audit    *audit.Recorder
}

func NewAuthHandler(cfg config.Config, s *session.Manager, inv *inventory.Client, d *decoder.Pipeline, a *audit.Recorder) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Sessions: s, Identity: inv, Decoder: d, Audit: a}
}

type signInReq struct {
	Badge string `json:"badge"` // scanned employee credential
}

type sessionResp struct {
	Session *session.Session `json:"session"`
	CSRF    string           `json:"csrf_token,omitempty"`
}

// SignIn exchanges a scanned badge for a session. The badge value goes
// through the same validation as any other scanned code, is resolved
// against the remote directory, and is never stored anywhere. The
// session ID travels in an HttpOnly cookie while the CSRF token is
// returned in the body for the kiosk frontend to echo on writes.
func (h *AuthHandler) SignIn(c echo.Context) error {
	var req signInReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	code, err := h.Decoder.DecodeText(req.Badge)
	if err != nil {
		h.auditSignin(c, 0, audit.ResultDenied, "malformed badge")
		return writeError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	ident, err := h.Identity.GetIdentity(ctx, code.Value)
	if err != nil {
		// Unknown badge and remote outage both read as a denied
		// sign-in; the audit detail distinguishes them.
		h.auditSignin(c, 0, audit.ResultDenied, "identity not resolved")
		return writeError(c, err)
	}

	s, err := h.Sessions.Create(ctx, *ident)
	if err != nil {
		h.auditSignin(c, ident.ID, audit.ResultError, "session create failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}

	c.SetCookie(h.sessionCookie(s.ID, h.Cfg.SessionLifetime))
	h.auditSignin(c, ident.ID, audit.ResultSuccess, "")
	return c.JSON(http.StatusOK, sessionResp{Session: s, CSRF: s.CSRFToken})
}

// Logout revokes the presenting session and expires the cookie. The
// CSRF token dies with the session.
func (h *AuthHandler) Logout(c echo.Context) error {
	s := middleware.SessionFrom(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	if err := h.Sessions.Revoke(c.Request().Context(), s); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
	c.SetCookie(h.sessionCookie("", -time.Hour))
	h.Audit.Record(c.Request().Context(), audit.Event{
		ActorID:      s.SubjectID,
		Action:       "auth.logout",
		Result:       audit.ResultSuccess,
		ClientIPHash: audit.HashIP(c.RealIP()),
	})
	return c.JSON(http.StatusOK, echo.Map{"status": "signed out"})
}

// Session returns the caller's current session state.
func (h *AuthHandler) Session(c echo.Context) error {
	s := middleware.SessionFrom(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, sessionResp{Session: s})
}

func (h *AuthHandler) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   h.Cfg.Env == "prod",
		SameSite: http.SameSiteStrictMode,
	}
}

func (h *AuthHandler) auditSignin(c echo.Context, actorID uint64, result audit.Result, detail string) {
	h.Audit.Record(c.Request().Context(), audit.Event{
		ActorID:      actorID,
		Action:       "auth.signin",
		Result:       result,
		Detail:       detail,
		ClientIPHash: audit.HashIP(c.RealIP()),
	})
}
