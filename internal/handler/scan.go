package handler

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
	"github.com/iliyamo/asset-checkout-kiosk/internal/audit"
	"github.com/iliyamo/asset-checkout-kiosk/internal/decoder"
	"github.com/iliyamo/asset-checkout-kiosk/internal/inventory"
	"github.com/iliyamo/asset-checkout-kiosk/internal/middleware"
)

// ScanHandler resolves scanned payloads to asset records.
type ScanHandler struct {
	Decoder   *decoder.Pipeline
	Inventory *inventory.Client
	Audit     *audit.Recorder
}

func NewScanHandler(d *decoder.Pipeline, inv *inventory.Client, a *audit.Recorder) *ScanHandler {
	return &ScanHandler{Decoder: d, Inventory: inv, Audit: a}
}

type scanReq struct {
	Barcode string `json:"barcode,omitempty"` // raw text from a wedge scanner
	Image   string `json:"image,omitempty"`   // base64 image, optionally a data URL
}

type scanResp struct {
	Code  decoder.DecodedCode `json:"code"`
	Asset any                 `json:"asset,omitempty"`
}

// Scan accepts either a scanner text payload or a camera frame, decodes
// it through the pipeline, and looks the resulting tag up in the remote
// inventory. The asset field is omitted when the code decodes but
// matches no record, so the kiosk can still show what was read.
func (h *ScanHandler) Scan(c echo.Context) error {
	s := middleware.SessionFrom(c)
	if s == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	var req scanReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	code, err := h.decode(c, req)
	if err != nil {
		h.Audit.Record(c.Request().Context(), audit.Event{
			ActorID: s.SubjectID,
			Action:  "scan.resolve",
			Result:  audit.ResultDenied,
			Detail:  err.Error(),
		})
		return writeError(c, err)
	}

	resp := scanResp{Code: code}
	asset, err := h.Inventory.GetAsset(c.Request().Context(), code.Value)
	switch {
	case err == nil:
		resp.Asset = asset
	case errors.Is(err, apperr.ErrNotFound):
		// Decoded fine, just no matching record. Keep the code in the
		// response so the kiosk can show what was read.
	default:
		h.Audit.Record(c.Request().Context(), audit.Event{
			ActorID: s.SubjectID,
			Action:  "scan.resolve",
			Target:  code.Value,
			Result:  audit.ResultError,
			Detail:  err.Error(),
		})
		return writeError(c, err)
	}

	h.Audit.Record(c.Request().Context(), audit.Event{
		ActorID: s.SubjectID,
		Action:  "scan.resolve",
		Target:  code.Value,
		Result:  audit.ResultSuccess,
	})
	return c.JSON(http.StatusOK, resp)
}

func (h *ScanHandler) decode(c echo.Context, req scanReq) (decoder.DecodedCode, error) {
	if req.Barcode != "" {
		return h.Decoder.DecodeText(req.Barcode)
	}
	raw := req.Image
	// Accept data URLs from the kiosk camera widget.
	if i := strings.Index(raw, ";base64,"); i >= 0 {
		raw = raw[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data = nil // fall through to the pipeline's invalid-input path
	}
	return h.Decoder.DecodeImage(c.Request().Context(), data)
}
