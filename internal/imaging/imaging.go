// Package imaging implements the normalization step of the Cache Engine
// (§4.3.2): decode, validate, fit-inside resize without upscaling, flatten
// onto white, re-encode as JPEG. Grounded on disintegration/imaging's
// resize/fill helpers, with golang.org/x/image's format decoders registered
// alongside the standard library's so webp/bmp/tiff sources decode the
// same way jpeg/png/gif ones do.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

func init() {
	image.RegisterFormat("webp", "RIFF????WEBP", webp.Decode, webp.DecodeConfig)
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
}

// allowedFormats is the decoder whitelist from §4.3.2. HEIF never reaches
// this check: no pure-Go HEIF decoder exists in the ecosystem, so HEIF
// sources are sniffed and bypassed (original bytes cached unprocessed)
// before image.Decode ever runs — see isHEIF.
var allowedFormats = map[string]bool{
	"jpeg": true, "png": true, "webp": true, "gif": true, "tiff": true, "bmp": true,
}

const (
	minDimension   = 100
	maxDimension   = 16384
	minOutputBytes = 1024
)

// heifBrands are the ISOBMFF "ftyp" box brands that mark a HEIF/HEIC file
// (ISO/IEC 23008-12). image.Decode has no registered decoder for any of
// them, so they're sniffed ahead of Decode rather than left to fail it.
var heifBrands = map[string]bool{
	"heic": true, "heix": true, "heim": true, "heis": true,
	"hevc": true, "hevx": true, "hevm": true, "hevs": true,
	"mif1": true, "msf1": true,
}

// isHEIF reports whether raw starts with an ISOBMFF "ftyp" box naming a
// HEIF/HEIC brand: 4 bytes of box size, then "ftyp", then a 4-byte brand.
func isHEIF(raw []byte) bool {
	if len(raw) < 12 || string(raw[4:8]) != "ftyp" {
		return false
	}
	return heifBrands[string(raw[8:12])]
}

// Options controls normalization. Zero-value Quality is treated as 90.
type Options struct {
	TargetWidth  int
	TargetHeight int
	Quality      int
}

// Normalizer fits an image inside TargetWidth x TargetHeight, flattens
// transparency onto white, and re-encodes it as JPEG.
type Normalizer interface {
	Normalize(raw []byte, opts Options) ([]byte, error)
}

// realNormalizer is the default Normalizer, available whenever this
// package is linked in — §4.3.2's "image processor is available" branch.
type realNormalizer struct{}

// New returns the real Normalizer.
func New() Normalizer { return realNormalizer{} }

func (realNormalizer) Normalize(raw []byte, opts Options) ([]byte, error) {
	quality := opts.Quality
	if quality == 0 {
		quality = 90
	}

	if isHEIF(raw) {
		return raw, nil
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if !allowedFormats[format] {
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	minSide, maxSide := w, h
	if h < minSide {
		minSide = h
	}
	if w > maxSide {
		maxSide = w
	}
	if minSide < minDimension {
		return nil, fmt.Errorf("image too small: %dx%d", w, h)
	}
	if maxSide > maxDimension {
		return nil, fmt.Errorf("image too large: %dx%d", w, h)
	}

	resized := img
	if w > opts.TargetWidth || h > opts.TargetHeight {
		resized = imaging.Fit(img, opts.TargetWidth, opts.TargetHeight, imaging.Lanczos)
	}
	flattened := flattenOnWhite(resized)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, flattened, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	if out.Len() < minOutputBytes {
		return nil, fmt.Errorf("normalized output too small: %d bytes", out.Len())
	}
	return out.Bytes(), nil
}

// flattenOnWhite composites img onto an opaque white background, removing
// any alpha channel before JPEG re-encoding (JPEG carries no alpha).
func flattenOnWhite(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, image.NewUniform(image.White), image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}

// NopNormalizer bypasses processing entirely, caching original bytes
// unmodified — the "gracefully bypassed... when [a processor] is not
// [available]" branch of §4.3 point 3.
type NopNormalizer struct{}

func (NopNormalizer) Normalize(raw []byte, _ Options) ([]byte, error) { return raw, nil }

var (
	_ Normalizer = realNormalizer{}
	_ Normalizer = NopNormalizer{}
)
