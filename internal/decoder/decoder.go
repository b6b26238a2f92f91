// Package decoder turns a raw scan — hardware-scanner keystrokes or a
// camera frame — into a trustworthy asset/identity code. Image decoding
// runs as an ordered, short-circuiting pipeline: the raw frame is tried
// first, then a fixed sequence of preprocessing stages, decoding after
// each one and stopping at the first hit. Stage order never changes, so
// the same input always produces the same result and the same
// provenance.
package decoder

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // register JPEG decoding for image.Decode
	_ "image/png"  // register PNG decoding for image.Decode
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/iliyamo/asset-checkout-kiosk/internal/apperr"
)

// Symbology identifies the barcode standard a value was read from.
type Symbology string

const (
	SymCode128 Symbology = "CODE128"
	SymCode39  Symbology = "CODE39"
	SymQR      Symbology = "QR"
	SymOther   Symbology = "OTHER"
)

// DecodedCode is the pipeline's output. SourceStage records which
// preprocessing stage produced the successful read (0 means the raw
// frame, or a pass-through scanner payload). The value is immutable
// once produced and is consumed once per request.
type DecodedCode struct {
	Value       string    `json:"value"`
	Symbology   Symbology `json:"symbology"`
	SourceStage int       `json:"source_stage"`
}

// Config bounds the pipeline. MaxImageBytes rejects oversize payloads
// before any work happens; Budget is the wall-clock limit across the
// entire stage sequence.
type Config struct {
	MaxImageBytes int
	Budget        time.Duration
}

// Pipeline is safe for concurrent use; it holds no mutable state.
type Pipeline struct {
	cfg    Config
	stages []stage
}

// New builds a pipeline with the default stage order: grayscale,
// contrast normalization, adaptive threshold, morphological open,
// rotation correction, upscale.
func New(cfg Config) *Pipeline {
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = 10 * 1024 * 1024
	}
	if cfg.Budget <= 0 {
		cfg.Budget = 1500 * time.Millisecond
	}
	return &Pipeline{cfg: cfg, stages: defaultStages()}
}

const (
	minBarcodeLen = 3
	maxBarcodeLen = 50
)

// barcodePattern is the strict allowlist carried over from the kiosk's
// input-hardening rules: letters, digits, hyphen and underscore only.
var barcodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DecodeText validates a hardware-scanner payload and passes it through
// with symbology OTHER. The scanner has already done the optical work;
// this path only guards against malformed or hostile keystroke data.
func (p *Pipeline) DecodeText(raw string) (DecodedCode, error) {
	v := strings.TrimSpace(raw)
	if len(v) < minBarcodeLen {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "payload too short"}
	}
	if len(v) > maxBarcodeLen {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "payload too long"}
	}
	for _, r := range v {
		if r < 0x20 || r == 0x7f {
			return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "control character in payload"}
		}
	}
	if !barcodePattern.MatchString(v) {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "forbidden characters in payload"}
	}
	return DecodedCode{Value: v, Symbology: SymOther, SourceStage: 0}, nil
}

// DecodeImage runs the preprocessing pipeline over an encoded PNG or
// JPEG frame. Oversize or corrupt input fails fast with INVALID_INPUT
// before any stage executes. The whole pipeline shares one wall-clock
// budget; crossing it returns TIMEOUT rather than blocking the caller.
func (p *Pipeline) DecodeImage(ctx context.Context, data []byte) (DecodedCode, error) {
	if len(data) == 0 {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "empty image payload"}
	}
	if len(data) > p.cfg.MaxImageBytes {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: fmt.Sprintf("image exceeds %d bytes", p.cfg.MaxImageBytes)}
	}
	if !sniffImage(data) {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "payload is not a PNG or JPEG"}
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "corrupt image data"}
	}
	b := img.Bounds()
	if b.Dx() > 8192 || b.Dy() > 8192 {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeInvalidInput, Detail: "image dimensions out of range"}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Budget)
	defer cancel()

	// Stage 0: the raw frame, the cheapest path.
	if code, ok := p.tryFrame(ctx, img, 0); ok {
		return code, nil
	}
	if ctx.Err() != nil {
		return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeTimeout, Detail: "budget exhausted at stage 0"}
	}

	work := img
	for i, st := range p.stages {
		stageIdx := i + 1
		candidates := st.apply(work)
		for _, cand := range candidates {
			if ctx.Err() != nil {
				return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeTimeout, Detail: fmt.Sprintf("budget exhausted at stage %d (%s)", stageIdx, st.name)}
			}
			if code, ok := p.tryFrame(ctx, cand, stageIdx); ok {
				log.Printf("decoder: decoded %s after stage %d (%s)", code.Symbology, stageIdx, st.name)
				return code, nil
			}
		}
		// Single-output transforms feed the next stage; speculative
		// variants (rotation sweep) do not redefine the working frame.
		if st.carryForward && len(candidates) == 1 {
			work = candidates[0]
		}
	}
	return DecodedCode{}, &apperr.DecodeFailure{Reason: apperr.DecodeNoMatch, Detail: "no supported symbology found"}
}

// tryFrame attempts all supported symbologies against one frame. The
// decoded value must also pass the text allowlist; a read that fails it
// is treated as no match rather than handed to the caller.
func (p *Pipeline) tryFrame(ctx context.Context, img image.Image, stageIdx int) (DecodedCode, bool) {
	if ctx.Err() != nil {
		return DecodedCode{}, false
	}
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return DecodedCode{}, false
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	readers := []struct {
		reader    gozxing.Reader
		symbology Symbology
	}{
		{oned.NewCode128Reader(), SymCode128},
		{oned.NewCode39Reader(), SymCode39},
		{qrcode.NewQRCodeReader(), SymQR},
	}
	for _, r := range readers {
		res, err := r.reader.Decode(bmp, hints)
		if err != nil {
			continue
		}
		value := strings.TrimSpace(res.GetText())
		if len(value) < minBarcodeLen || len(value) > maxBarcodeLen || !barcodePattern.MatchString(value) {
			continue
		}
		return DecodedCode{Value: value, Symbology: r.symbology, SourceStage: stageIdx}, true
	}
	return DecodedCode{}, false
}

// sniffImage checks the payload's magic header. Only PNG and JPEG are
// accepted from the kiosk camera path.
func sniffImage(data []byte) bool {
	if len(data) >= 8 && bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}) {
		return true
	}
	if len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff {
		return true
	}
	return false
}
