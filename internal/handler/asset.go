package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/coordinator"
	"github.com/iliyamo/asset-checkout-kiosk/internal/inventory"
	"github.com/iliyamo/asset-checkout-kiosk/internal/middleware"
	"github.com/iliyamo/asset-checkout-kiosk/internal/model"
)

// AssetHandler exposes the asset transaction endpoints. All state
// changes go through the coordinator; reads go straight to the
// inventory client.
type AssetHandler struct {
	Coord     *coordinator.Coordinator
	Inventory *inventory.Client
}

func NewAssetHandler(coord *coordinator.Coordinator, inv *inventory.Client) *AssetHandler {
	return &AssetHandler{Coord: coord, Inventory: inv}
}

type operationReq struct {
	AssetTag string `json:"asset_tag"`
	TargetID uint64 `json:"target_id,omitempty"` // transfer destination
	Note     string `json:"note,omitempty"`
}

// Checkout assigns an available asset to the signed-in subject.
func (h *AssetHandler) Checkout(c echo.Context) error {
	return h.execute(c, model.OpCheckout)
}

// Checkin returns an asset held by the signed-in subject.
func (h *AssetHandler) Checkin(c echo.Context) error {
	return h.execute(c, model.OpCheckin)
}

// Transfer hands an asset held by the signed-in subject to another.
func (h *AssetHandler) Transfer(c echo.Context) error {
	return h.execute(c, model.OpTransfer)
}

func (h *AssetHandler) execute(c echo.Context, op model.Operation) error {
	s := middleware.SessionFrom(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	var req operationReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	res, err := h.Coord.Execute(c.Request().Context(), model.OperationRequest{
		Operation: op,
		AssetTag:  strings.TrimSpace(req.AssetTag),
		ActorID:   s.SubjectID,
		TargetID:  req.TargetID,
		// Staff flagged as VIP in the directory may force-return an
		// asset held by someone else, e.g. equipment found abandoned.
		// The coordinator audits these as asset.checkin.override.
		Override: op == model.OpCheckin && s.VIP,
		Note:     req.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// GetAssetInfo returns the live remote state for one asset tag.
func (h *AssetHandler) GetAssetInfo(c echo.Context) error {
	tag := strings.TrimSpace(c.Param("tag"))
	if tag == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing asset tag"})
	}
	asset, err := h.Inventory.GetAsset(c.Request().Context(), tag)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, asset)
}

// MyAssets lists the assets currently assigned to the caller.
func (h *AssetHandler) MyAssets(c echo.Context) error {
	s := middleware.SessionFrom(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	assets, err := h.Inventory.ListAssignedAssets(c.Request().Context(), s.SubjectID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"assets": assets})
}
