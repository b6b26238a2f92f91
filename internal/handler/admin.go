package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/config"
	"github.com/iliyamo/asset-checkout-kiosk/internal/coordinator"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
	"github.com/iliyamo/asset-checkout-kiosk/internal/utils"
)

// AdminHandler covers the elevated-privilege path: an operator proves
// the shared admin passphrase, receives a short-lived bearer token, and
// may then force-checkin assets held by absent users. Every override is
// audited under a distinct action name.
type AdminHandler struct {
	Cfg       config.Config
	adminHash string // bcrypt hash resolved at construction
	Coord     *coordinator.Coordinator
	Audit     *audit.Recorder
}

// NewAdminHandler resolves the admin credential once at startup: a
// pre-computed hash wins, otherwise the plain passphrase from the
// environment is hashed and the plain value is not kept.
func NewAdminHandler(cfg config.Config, coord *coordinator.Coordinator, a *audit.Recorder) (*AdminHandler, error) {
	hash := cfg.AdminHash
	if hash == "" && cfg.AdminPass != "" {
		var err error
		hash, err = utils.HashPassword(cfg.AdminPass, cfg.BcryptCost)
		if err != nil {
			return nil, err
		}
	}
	return &AdminHandler{Cfg: cfg, adminHash: hash, Coord: coord, Audit: a}, nil
}

type adminLoginReq struct {
	Passphrase string `json:"passphrase"`
}

type adminLoginResp struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// Login verifies the admin passphrase and issues a short-lived HS256
// bearer token with the ADMIN role.
func (h *AdminHandler) Login(c echo.Context) error {
	var req adminLoginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if h.adminHash == "" || !utils.VerifyPassword(h.adminHash, req.Passphrase) {
		h.Audit.Record(c.Request().Context(), audit.Event{
			Action:       "admin.login",
			Result:       audit.ResultDenied,
			Detail:       "passphrase rejected",
			ClientIPHash: audit.HashIP(c.RealIP()),
		})
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAdminToken(h.Cfg.JWTSecret, h.Cfg.AdminActorID, h.Cfg.AdminTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
	}
	h.Audit.Record(c.Request().Context(), audit.Event{
		ActorID:      h.Cfg.AdminActorID,
		Action:       "admin.login",
		Result:       audit.ResultSuccess,
		ClientIPHash: audit.HashIP(c.RealIP()),
	})
	return c.JSON(http.StatusOK, adminLoginResp{Token: tok.Token, Expires: tok.Exp})
}

type overrideReq struct {
	AssetTag string `json:"asset_tag"`
	Note     string `json:"note,omitempty"`
}

// OverrideCheckin force-returns an asset regardless of who holds it.
// The coordinator audits the execution under asset.checkin.override.
func (h *AdminHandler) OverrideCheckin(c echo.Context) error {
	var req overrideReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	res, err := h.Coord.Execute(c.Request().Context(), model.OperationRequest{
		Operation: model.OpCheckin,
		AssetTag:  strings.TrimSpace(req.AssetTag),
		ActorID:   h.Cfg.AdminActorID,
		Override:  true,
		Note:      req.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
