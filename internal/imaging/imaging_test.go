package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture PNG: %v", err)
	}
	return buf.Bytes()
}

// encodeTexturedPNG draws a checkerboard so the re-encoded JPEG carries
// enough entropy to clear Normalize's output-size floor — a solid fill
// compresses away to almost nothing.
func encodeTexturedPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	const cell = 8
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
			} else {
				img.Set(x, y, color.RGBA{R: 50, G: 80, B: 200, A: 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture PNG: %v", err)
	}
	return buf.Bytes()
}

func TestNormalize_resizesAndReencodesAsJPEG(t *testing.T) {
	raw := encodeTexturedPNG(t, 1000, 800)

	out, err := New().Normalize(raw, Options{TargetWidth: 200, TargetHeight: 150, Quality: 85})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	img, format, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding Normalize() output: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("output format = %q, want jpeg", format)
	}

	b := img.Bounds()
	if b.Dx() > 200 || b.Dy() > 150 {
		t.Errorf("output dimensions %dx%d exceed target 200x150", b.Dx(), b.Dy())
	}
}

func TestNormalize_neverUpscales(t *testing.T) {
	raw := encodeTexturedPNG(t, 150, 120)

	out, err := New().Normalize(raw, Options{TargetWidth: 4000, TargetHeight: 3000, Quality: 90})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	img, _, err := image.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	b := img.Bounds()
	if b.Dx() > 150 || b.Dy() > 120 {
		t.Errorf("output %dx%d is larger than the source; Fit should never upscale", b.Dx(), b.Dy())
	}
}

func TestNormalize_flattensTransparencyOntoWhite(t *testing.T) {
	// A checkerboard of opaque black and fully transparent cells gives the
	// re-encoder enough entropy to clear the output size floor, while
	// still letting us check that the transparent cells came out white.
	const size, cell = 320, 16
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.NRGBA{R: 0, G: 0, B: 0, A: 255})
			} else {
				img.Set(x, y, color.NRGBA{R: 0, G: 0, B: 0, A: 0})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	out, err := New().Normalize(buf.Bytes(), Options{TargetWidth: size, TargetHeight: size, Quality: 90})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decoding output as JPEG: %v", err)
	}
	// (cell/2, cell/2) falls in the first (opaque black) cell; one cell
	// over falls in a transparent cell, which should have flattened white.
	br, bg, bb, _ := decoded.At(cell/2, cell/2).RGBA()
	wr, wg, wb, _ := decoded.At(cell+cell/2, cell/2).RGBA()
	if br > 0x4000 || bg > 0x4000 || bb > 0x4000 {
		t.Errorf("opaque cell = (%d,%d,%d), want near-black", br, bg, bb)
	}
	if wr < 0xc000 || wg < 0xc000 || wb < 0xc000 {
		t.Errorf("transparent cell = (%d,%d,%d), want near-white after flattening", wr, wg, wb)
	}
}

func TestNormalize_rejectsImageBelowMinimumDimension(t *testing.T) {
	raw := encodePNG(t, 50, 50, color.RGBA{A: 255})

	_, err := New().Normalize(raw, Options{TargetWidth: 200, TargetHeight: 200, Quality: 90})
	if err == nil {
		t.Fatal("Normalize() expected an error for a 50x50 source below the minimum dimension")
	}
}

func TestNormalize_rejectsImageAboveMaximumDimension(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16385, 100))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}

	_, err := New().Normalize(buf.Bytes(), Options{TargetWidth: 800, TargetHeight: 600, Quality: 90})
	if err == nil {
		t.Fatal("Normalize() expected an error for a source exceeding the maximum dimension")
	}
}

func TestNormalize_bypassesHEIFUnprocessed(t *testing.T) {
	raw := []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00mif1heic" + "trailing atom data, not a real HEIF file")

	out, err := New().Normalize(raw, Options{TargetWidth: 800, TargetHeight: 600})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("Normalize() should return HEIF input unchanged, not attempt to decode it")
	}
}

func TestNormalize_rejectsUndecodableInput(t *testing.T) {
	_, err := New().Normalize([]byte("not an image"), Options{TargetWidth: 800, TargetHeight: 600})
	if err == nil {
		t.Fatal("Normalize() expected an error for undecodable input")
	}
}

func TestNormalize_defaultsQualityWhenZero(t *testing.T) {
	raw := encodeTexturedPNG(t, 300, 300)

	out, err := New().Normalize(raw, Options{TargetWidth: 300, TargetHeight: 300, Quality: 0})
	if err != nil {
		t.Fatalf("Normalize() with Quality 0 error = %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("output is not a decodable JPEG: %v", err)
	}
}

func TestNopNormalizer_passesThroughUnmodified(t *testing.T) {
	raw := []byte("arbitrary bytes, not necessarily an image")

	out, err := NopNormalizer{}.Normalize(raw, Options{TargetWidth: 100, TargetHeight: 100})
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("NopNormalizer should return the input unchanged")
	}
}
